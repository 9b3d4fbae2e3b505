// Package session holds the signed-in user and drives login, register,
// logout and session restore against the API client.
package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sceneboard/internal/api"
	"github.com/sceneboard/internal/models"
)

// Status is the position in the sign-in state machine.
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusError          Status = "error"
)

// MinPasswordLength is the shortest password accepted before any request.
const MinPasswordLength = 6

// State is an immutable snapshot handed to readers.
type State struct {
	Status Status
	User   *models.User
	Error  string
}

// IsAuthenticated reports a loaded user with a live session.
func (s State) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// API is the part of the client the session store drives.
type API interface {
	Login(ctx context.Context, req models.UserLoginRequest) (*models.TokenPair, error)
	Register(ctx context.Context, req models.UserCreateRequest) (*models.TokenPair, error)
	GetMe(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error
	HasSession(ctx context.Context) bool
	OnAuthFailure(fn func())
}

// Store holds the signed-in user.
type Store struct {
	api      API
	validate *validator.Validate
	log      logrus.FieldLogger

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int
}

// New builds a store in the anonymous state and registers it as the
// client's auth-failure hook.
func New(client API, logger logrus.FieldLogger) *Store {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	s := &Store{
		api:      client,
		validate: validator.New(),
		log:      logger,
		state:    State{Status: StatusAnonymous},
		subs:     make(map[int]func(State)),
	}
	client.OnAuthFailure(s.handleAuthFailure)
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe calls fn with every new state until the returned func is called.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// ========================================
// Actions
// ========================================

// Login authenticates and loads the profile. On failure the store moves to
// the error state and the error is returned to the caller.
func (s *Store) Login(ctx context.Context, username, password string) error {
	req := models.UserLoginRequest{Username: username, Password: password}
	if err := s.validate.Struct(req); err != nil {
		return s.fail(api.ValidationError("Username and password are required"))
	}

	s.begin()
	if _, err := s.api.Login(ctx, req); err != nil {
		return s.fail(err)
	}
	return s.loadProfile(ctx)
}

// Register creates the account. Password confirmation and minimum length
// are checked first and never reach the network; every other rule is left
// to the server.
func (s *Store) Register(ctx context.Context, req models.UserCreateRequest) error {
	if err := s.preflight(req); err != nil {
		return s.fail(err)
	}

	s.begin()
	if _, err := s.api.Register(ctx, req); err != nil {
		return s.fail(err)
	}
	return s.loadProfile(ctx)
}

// Logout forgets the session immediately. Storage errors are logged only.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.log.WithError(err).Warn("clear tokens on logout")
	}
	s.set(State{Status: StatusAnonymous})
}

// FetchUser restores a persisted session. It never fails: without a token,
// or when the profile cannot be loaded, the store ends anonymous.
func (s *Store) FetchUser(ctx context.Context) {
	if !s.api.HasSession(ctx) {
		s.set(State{Status: StatusAnonymous})
		return
	}

	user, err := s.api.GetMe(ctx)
	if err != nil {
		s.log.WithError(err).Info("session restore failed")
		if err := s.api.Logout(ctx); err != nil {
			s.log.WithError(err).Warn("clear tokens after failed restore")
		}
		s.set(State{Status: StatusAnonymous})
		return
	}
	s.set(State{Status: StatusAuthenticated, User: user})
}

// ClearError drops the error message and leaves the status as it is.
func (s *Store) ClearError() {
	s.mu.Lock()
	next := s.state
	s.mu.Unlock()
	next.Error = ""
	s.set(next)
}

// RefreshUser reloads the profile of an authenticated session, e.g. to
// pick up quota usage after creating a project.
func (s *Store) RefreshUser(ctx context.Context) error {
	if !s.Snapshot().IsAuthenticated() {
		return nil
	}
	user, err := s.api.GetMe(ctx)
	if err != nil {
		return err
	}
	s.set(State{Status: StatusAuthenticated, User: user})
	return nil
}

func (s *Store) loadProfile(ctx context.Context) error {
	user, err := s.api.GetMe(ctx)
	if err != nil {
		// the new tokens are held but belong to no loaded user
		s.set(State{Status: StatusError, Error: api.Message(err, "Something went wrong")})
		return err
	}
	s.set(State{Status: StatusAuthenticated, User: user})
	return nil
}

func (s *Store) preflight(req models.UserCreateRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return api.ValidationError("Invalid registration details")
	}
	// report the most actionable problem
	for _, fe := range fields {
		if fe.Field() == "PasswordConfirm" && fe.Tag() == "eqfield" {
			return api.ValidationError("Passwords do not match")
		}
	}
	for _, fe := range fields {
		if fe.Field() == "Password" && fe.Tag() == "min" {
			return api.ValidationError("Password must be at least %d characters", MinPasswordLength)
		}
	}
	return api.ValidationError("%s is required", fieldLabel(fields[0].Field()))
}

func fieldLabel(field string) string {
	switch field {
	case "PasswordConfirm":
		return "Password confirmation"
	}
	return field
}

// begin enters the authenticating state. A signed-in user stays readable
// while the attempt runs.
func (s *Store) begin() {
	s.set(State{Status: StatusAuthenticating, User: s.Snapshot().User})
}

// fail records a displayable message and returns err. Without a user the
// store moves to the error state; a signed-in user whose new attempt failed
// keeps the session, since its tokens were never replaced.
func (s *Store) fail(err error) error {
	next := State{Status: StatusError, Error: api.Message(err, "Something went wrong")}
	if user := s.Snapshot().User; user != nil {
		next.Status = StatusAuthenticated
		next.User = user
	}
	s.set(next)
	return err
}

func (s *Store) handleAuthFailure() {
	s.log.Info("session invalidated")
	s.set(State{Status: StatusAnonymous})
}

func (s *Store) set(next State) {
	s.mu.Lock()
	s.state = next
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

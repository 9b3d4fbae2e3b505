package auth

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sceneboard/internal/config"
	"github.com/sceneboard/internal/models"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// Claims JWT令牌声明
type Claims struct {
	UserID     int64  `json:"user_id"`
	TokenType  string `json:"token_type"`
	Generation int64  `json:"gen"`
	jwt.RegisteredClaims
}

// Account is a stored user with its password hash and quota limits.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Quota        models.Quota
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository is the account storage the service reads and writes.
type UserRepository interface {
	CreateUser(a *Account) error
	GetByUsername(username string) (*Account, error)
	GetByEmail(email string) (*Account, error)
	GetByID(id int64) (*Account, error)
}

// Service 认证服务
type Service struct {
	users      UserRepository
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	quota      config.QuotaConfig

	// bumping a generation invalidates every token issued before it
	accessGen  atomic.Int64
	refreshGen atomic.Int64
}

// NewService 创建认证服务
func NewService(users UserRepository, cfg config.ServerConfig) *Service {
	return &Service{
		users:      users,
		secret:     []byte(cfg.Auth.JWTSecret),
		accessTTL:  cfg.Auth.TokenExpiry,
		refreshTTL: cfg.Auth.RefreshExpiry,
		quota:      cfg.Quota,
	}
}

// Register validates and stores a new account.
func (s *Service) Register(req models.UserCreateRequest) (*Account, error) {
	fields := map[string][]string{}
	if strings.TrimSpace(req.Username) == "" {
		fields["username"] = []string{"This field is required."}
	}
	if strings.TrimSpace(req.Email) == "" {
		fields["email"] = []string{"This field is required."}
	}
	if len(req.Password) < 6 {
		fields["password"] = []string{"This password is too short. It must contain at least 6 characters."}
	}
	if req.Password != req.PasswordConfirm {
		fields["password_confirm"] = []string{"Passwords do not match."}
	}
	if len(fields) > 0 {
		return nil, &FieldErrors{Fields: fields}
	}

	if _, err := s.users.GetByUsername(req.Username); err == nil {
		return nil, &FieldErrors{Fields: map[string][]string{"username": {"A user with that username already exists."}}}
	}
	if _, err := s.users.GetByEmail(req.Email); err == nil {
		return nil, &FieldErrors{Fields: map[string][]string{"email": {"A user with this email already exists."}}}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	account := &Account{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Quota: models.Quota{
			MaxProjects:        s.quota.MaxProjects,
			MaxBoxesPerProject: s.quota.MaxBoxesPerProject,
			MaxAssetsPerBox:    s.quota.MaxAssetsPerBox,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.CreateUser(account); err != nil {
		return nil, err
	}
	return account, nil
}

// ValidateUser 验证用户凭据
func (s *Service) ValidateUser(username, password string) (*Account, error) {
	account, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// IssuePair signs a fresh access/refresh pair for the account.
func (s *Service) IssuePair(account *Account) (models.TokenPair, error) {
	access, err := s.sign(account.ID, TokenAccess, s.accessTTL, s.accessGen.Load())
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, err := s.sign(account.ID, TokenRefresh, s.refreshTTL, s.refreshGen.Load())
	if err != nil {
		return models.TokenPair{}, err
	}
	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *Service) Refresh(refresh string) (string, error) {
	claims, err := s.parse(refresh, TokenRefresh)
	if err != nil {
		return "", err
	}
	if _, err := s.users.GetByID(claims.UserID); err != nil {
		return "", ErrUserNotFound
	}
	return s.sign(claims.UserID, TokenAccess, s.accessTTL, s.accessGen.Load())
}

// ValidateAccess checks an access token and returns its claims.
func (s *Service) ValidateAccess(token string) (*Claims, error) {
	return s.parse(token, TokenAccess)
}

// GetUserByID 根据ID获取用户
func (s *Service) GetUserByID(id int64) (*Account, error) {
	return s.users.GetByID(id)
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Service) ExpireAccessTokens() {
	s.accessGen.Add(1)
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Service) RevokeRefreshTokens() {
	s.refreshGen.Add(1)
}

func (s *Service) sign(userID int64, kind string, ttl time.Duration, gen int64) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:     userID,
		TokenType:  kind,
		Generation: gen,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parse(tokenString, kind string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != kind {
		return nil, ErrTokenInvalid
	}

	current := s.accessGen.Load()
	if kind == TokenRefresh {
		current = s.refreshGen.Load()
	}
	if claims.Generation < current {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// FieldErrors is a per-field validation failure, rendered as a field map.
type FieldErrors struct {
	Fields map[string][]string
}

func (e *FieldErrors) Error() string {
	return "invalid registration"
}

// 错误定义
var (
	ErrInvalidCredentials = Error("No active account found with the given credentials")
	ErrUserNotFound       = Error("user not found")
	ErrTokenExpired       = Error("Token has expired")
	ErrTokenInvalid       = Error("Token is invalid or expired")
)

type Error string

func (e Error) Error() string {
	return string(e)
}

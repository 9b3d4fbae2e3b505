// Package collection caches the projects of the signed-in user, the boxes
// of the open project and the assets of the open box. Mutations splice the
// server response into the cache; reorders are applied optimistically and
// reconciled by refetching.
package collection

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sceneboard/internal/api"
	"github.com/sceneboard/internal/models"
)

// Error is a sentinel error of the collection store.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrMutationInFlight = Error("A reorder of this list is still being saved")
	ErrNotLoaded        = Error("Nothing is loaded to reorder")
)

// Phase tells whether a slice mirrors the server or holds local guesses.
type Phase string

const (
	PhaseSynced      Phase = "synced"
	PhaseOptimistic  Phase = "optimistic"
	PhaseReconciling Phase = "reconciling"
)

// Slice is one independently fetched list with its load state.
type Slice[T any] struct {
	Data    []T
	Loading bool
	Error   string
	Phase   Phase
}

func emptySlice[T any]() Slice[T] {
	return Slice[T]{Phase: PhaseSynced}
}

// State is a snapshot. Published slices and pointers are never mutated
// after they are handed out.
type State struct {
	Projects       Slice[models.Project]
	CurrentProject *models.Project

	// Boxes of BoxesProject, by order_index.
	Boxes        Slice[models.Box]
	BoxesProject int64
	CurrentBox   *models.Box

	// Assets of AssetsBox, by order_index.
	Assets    Slice[models.Asset]
	AssetsBox int64
}

// API is the part of the client the collection store drives.
type API interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	CreateProject(ctx context.Context, req models.ProjectCreateRequest) (*models.Project, error)
	UpdateProject(ctx context.Context, id int64, patch models.ProjectPatch) (*models.Project, error)
	DeleteProject(ctx context.Context, id int64) error

	ListBoxes(ctx context.Context, projectID int64) ([]models.Box, error)
	GetBox(ctx context.Context, id int64) (*models.Box, error)
	CreateBox(ctx context.Context, req models.BoxCreateRequest) (*models.Box, error)
	UpdateBox(ctx context.Context, id int64, patch models.BoxPatch) (*models.Box, error)
	DeleteBox(ctx context.Context, id int64) error
	ReorderBoxes(ctx context.Context, ids []int64) error
	SetHeadliner(ctx context.Context, boxID int64, assetID *int64) (*models.Box, error)

	ListAssets(ctx context.Context, q models.AssetQuery) ([]models.Asset, error)
	GetAsset(ctx context.Context, id int64) (*models.Asset, error)
	UpdateAsset(ctx context.Context, id int64, patch models.AssetPatch) (*models.Asset, error)
	DeleteAsset(ctx context.Context, id int64) error
	ReorderAssets(ctx context.Context, ids []int64) error
}

// Store holds the projects, boxes and assets the user is looking at.
// Readers take snapshots; every write goes through an action.
type Store struct {
	api API
	log logrus.FieldLogger

	mu       sync.Mutex
	state    State
	inFlight map[string]bool
	subs     map[int]func(State)
	nextSub  int
}

// New creates an empty store over client. A nil logger discards output.
func New(client API, logger logrus.FieldLogger) *Store {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Store{
		api:      client,
		log:      logger,
		state:    initialState(),
		inFlight: make(map[string]bool),
		subs:     make(map[int]func(State)),
	}
}

func initialState() State {
	return State{
		Projects: emptySlice[models.Project](),
		Boxes:    emptySlice[models.Box](),
		Assets:   emptySlice[models.Asset](),
	}
}

// Snapshot returns the current state. Its slices must not be modified.
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

// Reset forgets everything, e.g. after logout.
func (s *Store) Reset() {
	s.update(func(st *State) { *st = initialState() })
}

// update applies fn under the lock and notifies subscribers outside it.
func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	next := s.state
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
}

func projectID(p models.Project) int64 { return p.ID }
func boxID(b models.Box) int64         { return b.ID }
func assetID(a models.Asset) int64     { return a.ID }

// mapProject rewrites the cached copies of one project.
func (st *State) mapProject(id int64, fn func(models.Project) models.Project) {
	data := make([]models.Project, len(st.Projects.Data))
	for i, p := range st.Projects.Data {
		if p.ID == id {
			p = fn(p)
		}
		data[i] = p
	}
	st.Projects.Data = data
	if st.CurrentProject != nil && st.CurrentProject.ID == id {
		p := fn(*st.CurrentProject)
		st.CurrentProject = &p
	}
}

// mapBox rewrites the cached copies of one box.
func (st *State) mapBox(id int64, fn func(models.Box) models.Box) {
	data := make([]models.Box, len(st.Boxes.Data))
	for i, b := range st.Boxes.Data {
		if b.ID == id {
			b = fn(b)
		}
		data[i] = b
	}
	st.Boxes.Data = data
	if st.CurrentBox != nil && st.CurrentBox.ID == id {
		b := fn(*st.CurrentBox)
		st.CurrentBox = &b
	}
}

func (st *State) clearBox() {
	st.CurrentBox = nil
	st.Assets = emptySlice[models.Asset]()
	st.AssetsBox = 0
}

func (st *State) clearProject() {
	st.CurrentProject = nil
	st.Boxes = emptySlice[models.Box]()
	st.BoxesProject = 0
	st.clearBox()
}

// adjustCounts shifts a project's box counters, never below zero and never
// with more approved boxes than boxes.
func adjustCounts(boxes, approved int) func(models.Project) models.Project {
	return func(p models.Project) models.Project {
		p.BoxesCount = floorZero(p.BoxesCount + boxes)
		p.BoxesApprovedCount = floorZero(p.BoxesApprovedCount + approved)
		if p.BoxesApprovedCount > p.BoxesCount {
			p.BoxesApprovedCount = p.BoxesCount
		}
		return p
	}
}

func approvedCount(b models.Box) int {
	if b.Status == models.BoxApproved {
		return 1
	}
	return 0
}

// ========================================
// Projects
// ========================================

// FetchProjects loads the project list.
func (s *Store) FetchProjects(ctx context.Context) error {
	s.update(func(st *State) {
		st.Projects.Loading = true
		st.Projects.Error = ""
	})

	list, err := s.api.ListProjects(ctx)
	s.update(func(st *State) {
		st.Projects.Loading = false
		if err != nil {
			st.Projects.Error = api.Message(err, "Failed to load projects")
			return
		}
		st.Projects.Data = list
		st.Projects.Phase = PhaseSynced
	})
	return err
}

// FetchProject loads one project as the current project.
func (s *Store) FetchProject(ctx context.Context, id int64) (*models.Project, error) {
	project, err := s.api.GetProject(ctx, id)
	if err != nil {
		s.update(func(st *State) { st.Projects.Error = api.Message(err, "Failed to load project") })
		return nil, err
	}
	s.update(func(st *State) {
		p := *project
		st.CurrentProject = &p
		st.Projects.Data, _ = replaceByID(st.Projects.Data, p, projectID)
	})
	return project, nil
}

// CreateProject puts the created project at the top of the list.
func (s *Store) CreateProject(ctx context.Context, req models.ProjectCreateRequest) (*models.Project, error) {
	project, err := s.api.CreateProject(ctx, req)
	if err != nil {
		s.update(func(st *State) { st.Projects.Error = api.Message(err, "Failed to create project") })
		return nil, err
	}
	s.update(func(st *State) {
		st.Projects.Data = prepend(st.Projects.Data, *project)
		st.Projects.Error = ""
	})
	return project, nil
}

// UpdateProject replaces the project with the server copy.
func (s *Store) UpdateProject(ctx context.Context, id int64, patch models.ProjectPatch) (*models.Project, error) {
	project, err := s.api.UpdateProject(ctx, id, patch)
	if err != nil {
		s.update(func(st *State) { st.Projects.Error = api.Message(err, "Failed to update project") })
		return nil, err
	}
	s.update(func(st *State) {
		st.mapProject(project.ID, func(models.Project) models.Project { return *project })
	})
	return project, nil
}

// DeleteProject removes the project and closes it if it was open.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	if err := s.api.DeleteProject(ctx, id); err != nil {
		s.update(func(st *State) { st.Projects.Error = api.Message(err, "Failed to delete project") })
		return err
	}
	s.update(func(st *State) {
		st.Projects.Data, _ = removeByID(st.Projects.Data, id, projectID)
		if (st.CurrentProject != nil && st.CurrentProject.ID == id) || st.BoxesProject == id {
			st.clearProject()
		}
	})
	return nil
}

// ClearCurrentProject leaves the project page: the boxes and assets of the
// project are dropped with it.
func (s *Store) ClearCurrentProject() {
	s.update(func(st *State) { st.clearProject() })
}

// ========================================
// Boxes
// ========================================

// FetchBoxes loads the boxes of a project, replacing boxes of any other
// project. A response that arrives after the user switched project is
// dropped.
func (s *Store) FetchBoxes(ctx context.Context, projectID int64) error {
	s.update(func(st *State) {
		if st.BoxesProject != projectID {
			st.Boxes = emptySlice[models.Box]()
			st.BoxesProject = projectID
		}
		st.Boxes.Loading = true
		st.Boxes.Error = ""
	})

	list, err := s.api.ListBoxes(ctx, projectID)
	s.update(func(st *State) {
		if st.BoxesProject != projectID {
			return
		}
		st.Boxes.Loading = false
		if err != nil {
			st.Boxes.Error = api.Message(err, "Failed to load scenes")
			return
		}
		st.Boxes.Data = list
		st.Boxes.Phase = PhaseSynced
	})
	return err
}

// OpenProject loads a project and its boxes.
func (s *Store) OpenProject(ctx context.Context, id int64) error {
	if _, err := s.FetchProject(ctx, id); err != nil {
		return err
	}
	return s.FetchBoxes(ctx, id)
}

// FetchBox loads one box as the current box.
func (s *Store) FetchBox(ctx context.Context, id int64) (*models.Box, error) {
	box, err := s.api.GetBox(ctx, id)
	if err != nil {
		s.update(func(st *State) { st.Boxes.Error = api.Message(err, "Failed to load scene") })
		return nil, err
	}
	s.update(func(st *State) {
		b := *box
		st.CurrentBox = &b
		st.Boxes.Data, _ = replaceByID(st.Boxes.Data, b, boxID)
	})
	return box, nil
}

// RefreshBox reloads a box wherever it is cached without changing which
// box is current.
func (s *Store) RefreshBox(ctx context.Context, id int64) error {
	box, err := s.api.GetBox(ctx, id)
	if err != nil {
		return err
	}
	s.update(func(st *State) {
		st.mapBox(box.ID, func(models.Box) models.Box { return *box })
	})
	return nil
}

// OpenBox loads a box and its assets.
func (s *Store) OpenBox(ctx context.Context, id int64) error {
	if _, err := s.FetchBox(ctx, id); err != nil {
		return err
	}
	return s.FetchAssets(ctx, id)
}

// ClearCurrentBox leaves the box page.
func (s *Store) ClearCurrentBox() {
	s.update(func(st *State) { st.clearBox() })
}

// CreateBox prepends the new box and counts it on its project.
func (s *Store) CreateBox(ctx context.Context, req models.BoxCreateRequest) (*models.Box, error) {
	box, err := s.api.CreateBox(ctx, req)
	if err != nil {
		s.update(func(st *State) { st.Boxes.Error = api.Message(err, "Failed to create scene") })
		return nil, err
	}
	s.update(func(st *State) {
		if st.BoxesProject == box.Project {
			st.Boxes.Data = prepend(st.Boxes.Data, *box)
			st.Boxes.Error = ""
		}
		st.mapProject(box.Project, adjustCounts(1, approvedCount(*box)))
	})
	return box, nil
}

// UpdateBox replaces the box with the server copy and keeps the
// project's approved count in step with its status.
func (s *Store) UpdateBox(ctx context.Context, id int64, patch models.BoxPatch) (*models.Box, error) {
	box, err := s.api.UpdateBox(ctx, id, patch)
	if err != nil {
		s.update(func(st *State) { st.Boxes.Error = api.Message(err, "Failed to update scene") })
		return nil, err
	}
	s.update(func(st *State) {
		old, known := findByID(st.Boxes.Data, id, boxID)
		if !known && st.CurrentBox != nil && st.CurrentBox.ID == id {
			old, known = *st.CurrentBox, true
		}
		st.mapBox(box.ID, func(models.Box) models.Box { return *box })
		if known {
			if delta := approvedCount(*box) - approvedCount(old); delta != 0 {
				st.mapProject(box.Project, adjustCounts(0, delta))
			}
		}
	})
	return box, nil
}

// DeleteBox removes a box. The project counters move only when the box was
// cached, so a repeated delete never counts twice.
func (s *Store) DeleteBox(ctx context.Context, id int64) error {
	if err := s.api.DeleteBox(ctx, id); err != nil {
		s.update(func(st *State) { st.Boxes.Error = api.Message(err, "Failed to delete scene") })
		return err
	}
	s.update(func(st *State) {
		var removed *models.Box
		st.Boxes.Data, removed = removeByID(st.Boxes.Data, id, boxID)
		if removed == nil && st.CurrentBox != nil && st.CurrentBox.ID == id {
			removed = st.CurrentBox
		}
		if removed != nil {
			st.mapProject(removed.Project, adjustCounts(-1, -approvedCount(*removed)))
		}
		if (st.CurrentBox != nil && st.CurrentBox.ID == id) || st.AssetsBox == id {
			st.clearBox()
		}
	})
	return nil
}

// SetHeadliner sets or, with a nil asset id, clears the box headliner.
func (s *Store) SetHeadliner(ctx context.Context, boxID int64, assetID *int64) (*models.Box, error) {
	box, err := s.api.SetHeadliner(ctx, boxID, assetID)
	if err != nil {
		s.update(func(st *State) { st.Boxes.Error = api.Message(err, "Failed to set headliner") })
		return nil, err
	}
	s.update(func(st *State) {
		st.mapBox(box.ID, func(models.Box) models.Box { return *box })
	})
	return box, nil
}

// ReorderBoxes applies ids to the boxes of the current project at once and
// then persists them. See reorder.
func (s *Store) ReorderBoxes(ctx context.Context, ids []int64) error {
	return reorder(ctx, s, reorderable[models.Box]{
		key:   "boxes",
		what:  "scenes",
		slice: func(st *State) *Slice[models.Box] { return &st.Boxes },
		owner: func(st *State) int64 { return st.BoxesProject },
		id:    boxID,
		reindex: func(b models.Box, i int) models.Box {
			b.OrderIndex = i
			return b
		},
		persist: s.api.ReorderBoxes,
		fetch:   s.api.ListBoxes,
	}, ids)
}

// ========================================
// Assets
// ========================================

// FetchAssets loads the assets of a box. A response that arrives after the
// user switched box is dropped.
func (s *Store) FetchAssets(ctx context.Context, boxID int64) error {
	s.update(func(st *State) {
		if st.AssetsBox != boxID {
			st.Assets = emptySlice[models.Asset]()
			st.AssetsBox = boxID
		}
		st.Assets.Loading = true
		st.Assets.Error = ""
	})

	list, err := s.listAssets(ctx, boxID)
	s.update(func(st *State) {
		if st.AssetsBox != boxID {
			return
		}
		st.Assets.Loading = false
		if err != nil {
			st.Assets.Error = api.Message(err, "Failed to load assets")
			return
		}
		st.Assets.Data = list
		st.Assets.Phase = PhaseSynced
	})
	return err
}

func (s *Store) listAssets(ctx context.Context, boxID int64) ([]models.Asset, error) {
	return s.api.ListAssets(ctx, models.AssetQuery{Box: boxID})
}

// UpdateAsset replaces the asset with the server copy.
func (s *Store) UpdateAsset(ctx context.Context, id int64, patch models.AssetPatch) (*models.Asset, error) {
	asset, err := s.api.UpdateAsset(ctx, id, patch)
	if err != nil {
		s.update(func(st *State) { st.Assets.Error = api.Message(err, "Failed to update asset") })
		return nil, err
	}
	s.update(func(st *State) {
		st.Assets.Data, _ = replaceByID(st.Assets.Data, *asset, assetID)
	})
	return asset, nil
}

// ToggleFavorite flips is_favorite. An asset that is not cached is read
// from the server first.
func (s *Store) ToggleFavorite(ctx context.Context, id int64) (*models.Asset, error) {
	current, ok := findByID(s.Snapshot().Assets.Data, id, assetID)
	if !ok {
		fetched, err := s.api.GetAsset(ctx, id)
		if err != nil {
			s.update(func(st *State) { st.Assets.Error = api.Message(err, "Failed to update asset") })
			return nil, err
		}
		current = *fetched
	}
	favorite := !current.IsFavorite
	return s.UpdateAsset(ctx, id, models.AssetPatch{IsFavorite: &favorite})
}

// DeleteAsset removes an asset, clears the box headliner locally when it
// pointed at it and then refreshes the box for its counters.
func (s *Store) DeleteAsset(ctx context.Context, id int64) error {
	if err := s.api.DeleteAsset(ctx, id); err != nil {
		s.update(func(st *State) { st.Assets.Error = api.Message(err, "Failed to delete asset") })
		return err
	}

	var owner int64
	s.update(func(st *State) {
		var removed *models.Asset
		st.Assets.Data, removed = removeByID(st.Assets.Data, id, assetID)
		owner = st.AssetsBox
		if removed != nil {
			owner = removed.Box
		}
		st.mapBox(owner, func(b models.Box) models.Box {
			if b.Headliner != nil && *b.Headliner == id {
				b.ClearHeadliner()
			}
			if removed != nil {
				b.AssetsCount = floorZero(b.AssetsCount - 1)
			}
			return b
		})
	})

	if owner != 0 {
		if err := s.RefreshBox(ctx, owner); err != nil {
			s.log.WithError(err).WithField("box_id", owner).Warn("refresh box after asset delete")
		}
	}
	return nil
}

// AddAsset appends a freshly uploaded asset to the open box.
func (s *Store) AddAsset(asset models.Asset) {
	s.update(func(st *State) {
		if st.AssetsBox != asset.Box {
			return
		}
		if _, dup := findByID(st.Assets.Data, asset.ID, assetID); dup {
			return
		}
		st.Assets.Data = appendItem(st.Assets.Data, asset)
		st.mapBox(asset.Box, func(b models.Box) models.Box {
			b.AssetsCount++
			return b
		})
	})
}

// ReorderAssets applies ids to the assets of the current box at once and
// then persists them. See reorder.
func (s *Store) ReorderAssets(ctx context.Context, ids []int64) error {
	return reorder(ctx, s, reorderable[models.Asset]{
		key:   "assets",
		what:  "assets",
		slice: func(st *State) *Slice[models.Asset] { return &st.Assets },
		owner: func(st *State) int64 { return st.AssetsBox },
		id:    assetID,
		reindex: func(a models.Asset, i int) models.Asset {
			a.OrderIndex = i
			return a
		},
		persist: s.api.ReorderAssets,
		fetch:   s.listAssets,
	}, ids)
}

// ========================================
// Reorder protocol
// ========================================

type reorderable[T any] struct {
	key     string
	what    string
	slice   func(st *State) *Slice[T]
	owner   func(st *State) int64
	id      func(T) int64
	reindex func(T, int) T
	persist func(ctx context.Context, ids []int64) error
	fetch   func(ctx context.Context, owner int64) ([]T, error)
}

// reorder runs one reorder of a slice:
//  1. the projected order is published before any request (optimistic);
//  2. the projected id list is persisted;
//  3. the slice is refetched either way (reconciling), so a failed save is
//     undone by the server's order rather than by inverting the move.
//
// Only one reorder per slice may be outstanding; later ones fail with
// ErrMutationInFlight and leave the state alone. The save error, if any,
// wins over a refetch error.
func reorder[T any](ctx context.Context, s *Store, r reorderable[T], want []int64) error {
	s.mu.Lock()
	if s.inFlight[r.key] {
		s.mu.Unlock()
		return ErrMutationInFlight
	}
	if r.owner(&s.state) == 0 {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	s.inFlight[r.key] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, r.key)
		s.mu.Unlock()
	}()

	var order []int64
	var owner int64
	s.update(func(st *State) {
		sl := r.slice(st)
		owner = r.owner(st)
		projected := projectOrder(sl.Data, want, r.id)
		for i := range projected {
			projected[i] = r.reindex(projected[i], i)
		}
		sl.Data = projected
		sl.Phase = PhaseOptimistic
		sl.Error = ""
		order = idsOf(projected, r.id)
	})

	saveErr := r.persist(ctx, order)
	if saveErr != nil {
		s.log.WithError(saveErr).WithFields(logrus.Fields{
			"list":  r.key,
			"owner": owner,
		}).Warn("reorder rejected, restoring server order")
	}
	s.update(func(st *State) {
		if r.owner(st) == owner {
			r.slice(st).Phase = PhaseReconciling
		}
	})

	fresh, fetchErr := r.fetch(ctx, owner)
	s.update(func(st *State) {
		if r.owner(st) != owner {
			return
		}
		sl := r.slice(st)
		if fetchErr == nil {
			sl.Data = fresh
			sl.Phase = PhaseSynced
		}
		switch {
		case saveErr != nil:
			sl.Error = api.Message(saveErr, "Failed to reorder "+r.what)
		case fetchErr != nil:
			sl.Error = api.Message(fetchErr, "Failed to load "+r.what)
		}
	})

	if saveErr != nil {
		return saveErr
	}
	return fetchErr
}

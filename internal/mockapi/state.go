package mockapi

import (
	"sort"
	"strings"
	"sync"

	"github.com/sceneboard/internal/auth"
	"github.com/sceneboard/internal/models"
)

// accounts is the auth.UserRepository of the double. It has its own lock
// because auth.Service calls back into it while handlers may hold the
// state lock.
type accounts struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*auth.Account
}

func newAccounts() *accounts {
	return &accounts{byID: make(map[int64]*auth.Account)}
}

func (a *accounts) CreateUser(account *auth.Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	account.ID = a.nextID
	stored := *account
	a.byID[account.ID] = &stored
	return nil
}

func (a *accounts) GetByUsername(username string) (*auth.Account, error) {
	return a.find(func(acc *auth.Account) bool { return acc.Username == username })
}

func (a *accounts) GetByEmail(email string) (*auth.Account, error) {
	return a.find(func(acc *auth.Account) bool { return strings.EqualFold(acc.Email, email) })
}

func (a *accounts) GetByID(id int64) (*auth.Account, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.byID[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	out := *acc
	return &out, nil
}

func (a *accounts) find(match func(*auth.Account) bool) (*auth.Account, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, acc := range a.byID {
		if match(acc) {
			out := *acc
			return &out, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

type projectRow struct {
	models.Project
	owner int64
}

type boxRow struct {
	models.Box
	owner int64
}

type assetRow struct {
	models.Asset
	owner   int64
	blobKey string
}

// state holds projects, boxes and assets. All access goes through the
// Server lock.
type state struct {
	nextProject int64
	nextBox     int64
	nextAsset   int64

	projects map[int64]*projectRow
	boxes    map[int64]*boxRow
	assets   map[int64]*assetRow
}

func newState() *state {
	return &state{
		projects: make(map[int64]*projectRow),
		boxes:    make(map[int64]*boxRow),
		assets:   make(map[int64]*assetRow),
	}
}

func (s *state) projectsOf(owner int64) []*projectRow {
	var out []*projectRow
	for _, p := range s.projects {
		if p.owner == owner {
			out = append(out, p)
		}
	}
	// newest first
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *state) boxesOf(projectID int64) []*boxRow {
	var out []*boxRow
	for _, b := range s.boxes {
		if b.Project == projectID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) assetsOf(boxID int64) []*assetRow {
	var out []*assetRow
	for _, a := range s.assets {
		if a.Box == boxID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// compactBoxes rewrites order_index of a project's boxes to 0..n-1.
func (s *state) compactBoxes(projectID int64) {
	for i, b := range s.boxesOf(projectID) {
		b.OrderIndex = i
	}
}

func (s *state) compactAssets(boxID int64) {
	for i, a := range s.assetsOf(boxID) {
		a.OrderIndex = i
	}
}

// projectView fills the counters derived from the project's boxes.
func (s *state) projectView(p *projectRow) models.Project {
	out := p.Project
	out.BoxesCount = 0
	out.BoxesApprovedCount = 0
	for _, b := range s.boxes {
		if b.Project != p.ID {
			continue
		}
		out.BoxesCount++
		if b.Status == models.BoxApproved {
			out.BoxesApprovedCount++
		}
	}
	return out
}

// boxView fills project_name, assets_count and the headliner media.
func (s *state) boxView(b *boxRow) models.Box {
	out := b.Box
	if p, ok := s.projects[b.Project]; ok {
		out.ProjectName = p.Name
	}
	out.AssetsCount = 0
	for _, a := range s.assets {
		if a.Box == b.ID {
			out.AssetsCount++
		}
	}
	out.HeadlinerURL, out.HeadlinerThumbnailURL, out.HeadlinerType = "", "", ""
	if b.Headliner != nil {
		if a, ok := s.assets[*b.Headliner]; ok {
			out.HeadlinerURL = a.FileURL
			out.HeadlinerThumbnailURL = a.ThumbnailURL
			out.HeadlinerType = a.AssetType
		}
	}
	return out
}

func (s *state) assetView(a *assetRow) models.Asset {
	out := a.Asset
	if b, ok := s.boxes[a.Box]; ok {
		out.BoxName = b.Name
	}
	return out
}

// applyOrder gives ids the positions 0..len(ids)-1 ahead of the other
// members of their container, keeping the others' relative order.
func applyOrder[T any](members []T, id func(T) int64, set func(T, int), ids []int64) {
	pos := make(map[int64]int, len(ids))
	for i, v := range ids {
		pos[v] = i
	}
	next := len(ids)
	for _, m := range members {
		if p, ok := pos[id(m)]; ok {
			set(m, p)
			continue
		}
		set(m, next)
		next++
	}
}

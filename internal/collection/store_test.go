package collection

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sceneboard/internal/api"
	"github.com/sceneboard/internal/mockapi"
	"github.com/sceneboard/internal/models"
	"github.com/sceneboard/internal/tokens"
)

// ========================================
// Helpers
// ========================================

type testEnv struct {
	store  *Store
	client *api.Client
	server *mockapi.Server
}

func setupTestStore(t *testing.T) *testEnv {
	t.Helper()
	srv := mockapi.New(mockapi.Options{Config: mockapi.DefaultConfig()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	_, err := srv.Seed("alice", "secret1")
	require.NoError(t, err)

	client := api.New(api.Options{BaseURL: ts.URL, Store: tokens.NewMemoryStore()})
	_, err = client.Login(context.Background(), models.UserLoginRequest{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	srv.ResetCounts()

	return &testEnv{store: New(client, nil), client: client, server: srv}
}

// openProjectWithBoxes creates a project whose boxes are ordered as names.
func (e *testEnv) openProjectWithBoxes(t *testing.T, names ...string) models.Project {
	t.Helper()
	ctx := context.Background()
	project, err := e.store.CreateProject(ctx, models.ProjectCreateRequest{Name: "Film"})
	require.NoError(t, err)
	require.NoError(t, e.store.OpenProject(ctx, project.ID))

	// the server puts new boxes first
	for i := len(names) - 1; i >= 0; i-- {
		_, err := e.store.CreateBox(ctx, models.BoxCreateRequest{Project: project.ID, Name: names[i]})
		require.NoError(t, err)
	}
	require.NoError(t, e.store.FetchBoxes(ctx, project.ID))
	require.Equal(t, names, boxNames(e.store.Snapshot().Boxes.Data))
	return *project
}

func (e *testEnv) openBoxWithAssets(t *testing.T, n int) models.Box {
	t.Helper()
	ctx := context.Background()
	project, err := e.client.CreateProject(ctx, models.ProjectCreateRequest{Name: "Assets"})
	require.NoError(t, err)
	box, err := e.client.CreateBox(ctx, models.BoxCreateRequest{Project: project.ID, Name: "Scene"})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := e.client.Upload(ctx, box.ID, fmt.Sprintf("shot-%d.png", i), bytes.NewReader([]byte("png")), nil)
		require.NoError(t, err)
	}
	require.NoError(t, e.store.OpenProject(ctx, project.ID))
	require.NoError(t, e.store.OpenBox(ctx, box.ID))
	return *box
}

func boxNames(boxes []models.Box) []string {
	out := make([]string, len(boxes))
	for i, b := range boxes {
		out[i] = b.Name
	}
	return out
}

func boxIDs(boxes []models.Box) []int64 {
	return idsOf(boxes, boxID)
}

// ========================================
// Mock Objects
// ========================================

// gatedAPI holds ReorderBoxes until release is closed.
type gatedAPI struct {
	*api.Client
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAPI) ReorderBoxes(ctx context.Context, ids []int64) error {
	close(g.entered)
	<-g.release
	return g.Client.ReorderBoxes(ctx, ids)
}

// ========================================
// Projects
// ========================================

func TestProjects_CRUD(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()

	first, err := env.store.CreateProject(ctx, models.ProjectCreateRequest{Name: "One"})
	require.NoError(t, err)
	second, err := env.store.CreateProject(ctx, models.ProjectCreateRequest{Name: "Two"})
	require.NoError(t, err)

	data := env.store.Snapshot().Projects.Data
	require.Len(t, data, 2)
	assert.Equal(t, second.ID, data[0].ID, "create prepends")

	name := "Renamed"
	_, err = env.store.UpdateProject(ctx, first.ID, models.ProjectPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", env.store.Snapshot().Projects.Data[1].Name)

	require.NoError(t, env.store.DeleteProject(ctx, second.ID))
	data = env.store.Snapshot().Projects.Data
	require.Len(t, data, 1)
	assert.Equal(t, first.ID, data[0].ID)

	require.NoError(t, env.store.FetchProjects(ctx))
	assert.Len(t, env.store.Snapshot().Projects.Data, 1)
}

func TestFetchProjects_Error(t *testing.T) {
	env := setupTestStore(t)
	env.server.FailNext(http.MethodGet, "/api/projects/", http.StatusInternalServerError, map[string]string{"detail": "Database unavailable"})

	err := env.store.FetchProjects(context.Background())
	assert.ErrorIs(t, err, api.ErrAPI)
	state := env.store.Snapshot()
	assert.False(t, state.Projects.Loading)
	assert.Equal(t, "Database unavailable", state.Projects.Error)
}

func TestClearCurrentProject(t *testing.T) {
	env := setupTestStore(t)
	env.openProjectWithBoxes(t, "A")

	env.store.ClearCurrentProject()
	state := env.store.Snapshot()
	assert.Nil(t, state.CurrentProject)
	assert.Empty(t, state.Boxes.Data)
	assert.Zero(t, state.BoxesProject)
}

// ========================================
// Boxes and counters
// ========================================

func TestBoxCounters(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	project := env.openProjectWithBoxes(t, "A", "B", "C", "D")

	state := env.store.Snapshot()
	assert.Equal(t, 4, state.CurrentProject.BoxesCount)
	assert.Equal(t, 4, state.Projects.Data[0].BoxesCount)

	victim := state.Boxes.Data[1]
	require.NoError(t, env.store.DeleteBox(ctx, victim.ID))

	state = env.store.Snapshot()
	assert.Len(t, state.Boxes.Data, 3)
	assert.Equal(t, 3, state.CurrentProject.BoxesCount)
	assert.Equal(t, 3, state.Projects.Data[0].BoxesCount)
	assert.NotContains(t, boxIDs(state.Boxes.Data), victim.ID)

	// a second delete of the same box fails on the server and counts nothing
	err := env.store.DeleteBox(ctx, victim.ID)
	assert.Error(t, err)
	assert.Equal(t, 3, env.store.Snapshot().CurrentProject.BoxesCount)

	fresh, err := env.client.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.BoxesCount, env.store.Snapshot().CurrentProject.BoxesCount)
}

func TestAdjustCounts_NeverNegative(t *testing.T) {
	p := models.Project{BoxesCount: 0, BoxesApprovedCount: 0}
	p = adjustCounts(-1, -1)(p)
	assert.Zero(t, p.BoxesCount)
	assert.Zero(t, p.BoxesApprovedCount)

	p = models.Project{BoxesCount: 2, BoxesApprovedCount: 2}
	p = adjustCounts(-1, 0)(p)
	assert.Equal(t, 1, p.BoxesCount)
	assert.Equal(t, 1, p.BoxesApprovedCount)
	assert.NoError(t, p.CheckCounters())
}

func TestUpdateBox_ApprovedCount(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	env.openProjectWithBoxes(t, "A", "B")
	box := env.store.Snapshot().Boxes.Data[0]

	approved := models.BoxApproved
	_, err := env.store.UpdateBox(ctx, box.ID, models.BoxPatch{Status: &approved})
	require.NoError(t, err)
	assert.Equal(t, 1, env.store.Snapshot().CurrentProject.BoxesApprovedCount)

	draft := models.BoxDraft
	_, err = env.store.UpdateBox(ctx, box.ID, models.BoxPatch{Status: &draft})
	require.NoError(t, err)
	assert.Zero(t, env.store.Snapshot().CurrentProject.BoxesApprovedCount)
}

func TestFetchBoxes_SwitchProjectDropsOldBoxes(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	env.openProjectWithBoxes(t, "A", "B")

	other, err := env.store.CreateProject(ctx, models.ProjectCreateRequest{Name: "Other"})
	require.NoError(t, err)
	require.NoError(t, env.store.FetchBoxes(ctx, other.ID))

	state := env.store.Snapshot()
	assert.Equal(t, other.ID, state.BoxesProject)
	assert.Empty(t, state.Boxes.Data)
}

// ========================================
// Reorder protocol
// ========================================

func TestReorderBoxes(t *testing.T) {
	env := setupTestStore(t)
	env.openProjectWithBoxes(t, "A", "B", "C")
	boxes := env.store.Snapshot().Boxes.Data
	a, b, c := boxes[0].ID, boxes[1].ID, boxes[2].ID

	require.NoError(t, env.store.ReorderBoxes(context.Background(), []int64{c, a, b}))

	state := env.store.Snapshot()
	assert.Equal(t, []string{"C", "A", "B"}, boxNames(state.Boxes.Data))
	assert.Equal(t, PhaseSynced, state.Boxes.Phase)
	for i, box := range state.Boxes.Data {
		assert.Equal(t, i, box.OrderIndex)
	}
	assert.Equal(t, 1, env.server.Count(http.MethodPost, "/api/boxes/reorder/"))
}

func TestReorderBoxes_Idempotent(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	env.openProjectWithBoxes(t, "A", "B", "C")
	boxes := env.store.Snapshot().Boxes.Data
	order := []int64{boxes[2].ID, boxes[0].ID, boxes[1].ID}

	require.NoError(t, env.store.ReorderBoxes(ctx, order))
	once := env.store.Snapshot().Boxes.Data
	require.NoError(t, env.store.ReorderBoxes(ctx, order))
	assert.Equal(t, once, env.store.Snapshot().Boxes.Data)
}

func TestReorderBoxes_RollbackOnFailure(t *testing.T) {
	env := setupTestStore(t)
	env.openProjectWithBoxes(t, "A", "B", "C")
	boxes := env.store.Snapshot().Boxes.Data
	a, b, c := boxes[0].ID, boxes[1].ID, boxes[2].ID

	type seen struct {
		phase Phase
		names []string
	}
	var mu sync.Mutex
	var history []seen
	unsubscribe := env.store.Subscribe(func(s State) {
		mu.Lock()
		history = append(history, seen{s.Boxes.Phase, boxNames(s.Boxes.Data)})
		mu.Unlock()
	})
	defer unsubscribe()

	env.server.ResetCounts()
	env.server.FailNext(http.MethodPost, "/api/boxes/reorder/", http.StatusInternalServerError, map[string]string{"detail": "Could not save order"})
	err := env.store.ReorderBoxes(context.Background(), []int64{c, a, b})
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrAPI)

	state := env.store.Snapshot()
	assert.Equal(t, []string{"A", "B", "C"}, boxNames(state.Boxes.Data), "server order restored")
	assert.Equal(t, PhaseSynced, state.Boxes.Phase)
	assert.Equal(t, "Could not save order", state.Boxes.Error)

	require.NotEmpty(t, history)
	assert.Equal(t, seen{PhaseOptimistic, []string{"C", "A", "B"}}, history[0], "optimistic order published first")
	assert.Equal(t, 1, env.server.Count(http.MethodGet, "/api/boxes/"), "rollback refetches")
}

func TestReorderBoxes_FiltersUnknownAndDuplicateIDs(t *testing.T) {
	env := setupTestStore(t)
	env.openProjectWithBoxes(t, "A", "B", "C")
	boxes := env.store.Snapshot().Boxes.Data
	a, b, c := boxes[0].ID, boxes[1].ID, boxes[2].ID

	require.NoError(t, env.store.ReorderBoxes(context.Background(), []int64{b, 9999, b, a, c, a}))
	assert.Equal(t, []string{"B", "A", "C"}, boxNames(env.store.Snapshot().Boxes.Data))
}

func TestReorderBoxes_RejectsConcurrentReorder(t *testing.T) {
	env := setupTestStore(t)
	env.openProjectWithBoxes(t, "A", "B", "C")
	boxes := env.store.Snapshot().Boxes.Data
	a, b, c := boxes[0].ID, boxes[1].ID, boxes[2].ID

	gate := &gatedAPI{Client: env.client, entered: make(chan struct{}), release: make(chan struct{})}
	env.store.api = gate

	done := make(chan error, 1)
	go func() { done <- env.store.ReorderBoxes(context.Background(), []int64{c, b, a}) }()
	<-gate.entered

	before := env.store.Snapshot().Boxes.Data
	err := env.store.ReorderBoxes(context.Background(), []int64{b, a, c})
	assert.ErrorIs(t, err, ErrMutationInFlight)
	assert.Equal(t, before, env.store.Snapshot().Boxes.Data, "rejected reorder leaves state alone")

	close(gate.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first reorder never finished")
	}
	assert.Equal(t, []string{"C", "B", "A"}, boxNames(env.store.Snapshot().Boxes.Data))
}

func TestReorder_NotLoaded(t *testing.T) {
	env := setupTestStore(t)
	assert.ErrorIs(t, env.store.ReorderBoxes(context.Background(), []int64{1}), ErrNotLoaded)
	assert.Zero(t, env.server.Total())
}

func TestProjectOrder(t *testing.T) {
	id := func(v int64) int64 { return v }
	tests := []struct {
		name     string
		items    []int64
		ids      []int64
		expected []int64
	}{
		{"permutation", []int64{1, 2, 3}, []int64{3, 1, 2}, []int64{3, 1, 2}},
		{"unknown dropped", []int64{1, 2}, []int64{7, 2, 1}, []int64{2, 1}},
		{"duplicates dropped", []int64{1, 2}, []int64{2, 2, 1}, []int64{2, 1}},
		{"missing kept after", []int64{1, 2, 3}, []int64{3}, []int64{3, 1, 2}},
		{"empty", nil, []int64{1}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, projectOrder(tt.items, tt.ids, id))
		})
	}
}

// ========================================
// Assets
// ========================================

func TestReorderAssets_RollbackOnFailure(t *testing.T) {
	env := setupTestStore(t)
	env.openBoxWithAssets(t, 3)
	assets := env.store.Snapshot().Assets.Data
	original := idsOf(assets, assetID)

	env.server.FailNext(http.MethodPost, "/api/assets/reorder/", http.StatusBadRequest, nil)
	err := env.store.ReorderAssets(context.Background(), []int64{original[2], original[0], original[1]})
	require.Error(t, err)

	state := env.store.Snapshot()
	assert.Equal(t, original, idsOf(state.Assets.Data, assetID))
	assert.Equal(t, PhaseSynced, state.Assets.Phase)
}

func TestToggleFavorite(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	env.openBoxWithAssets(t, 1)
	asset := env.store.Snapshot().Assets.Data[0]

	updated, err := env.store.ToggleFavorite(ctx, asset.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsFavorite)
	assert.True(t, env.store.Snapshot().Assets.Data[0].IsFavorite)

	updated, err = env.store.ToggleFavorite(ctx, asset.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsFavorite)
}

func TestDeleteAsset_ClearsHeadliner(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	box := env.openBoxWithAssets(t, 2)
	assets := env.store.Snapshot().Assets.Data

	_, err := env.store.SetHeadliner(ctx, box.ID, &assets[0].ID)
	require.NoError(t, err)
	require.NotNil(t, env.store.Snapshot().CurrentBox.Headliner)

	env.server.ResetCounts()
	require.NoError(t, env.store.DeleteAsset(ctx, assets[0].ID))

	state := env.store.Snapshot()
	assert.Len(t, state.Assets.Data, 1)
	assert.Nil(t, state.CurrentBox.Headliner)
	assert.Empty(t, state.CurrentBox.HeadlinerURL)
	assert.Equal(t, 1, state.CurrentBox.AssetsCount)
	assert.True(t, state.CurrentBox.HeadlinerIn(state.Assets.Data))
	assert.Equal(t, 1, env.server.Count(http.MethodGet, fmt.Sprintf("/api/boxes/%d/", box.ID)), "box refreshed")
}

func TestDeleteAsset_RefreshFailureIsNotReturned(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	box := env.openBoxWithAssets(t, 1)
	asset := env.store.Snapshot().Assets.Data[0]

	env.server.FailNext(http.MethodGet, fmt.Sprintf("/api/boxes/%d/", box.ID), http.StatusInternalServerError, nil)
	require.NoError(t, env.store.DeleteAsset(ctx, asset.ID))
	assert.Zero(t, env.store.Snapshot().CurrentBox.AssetsCount)
}

func TestAddAsset(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	box := env.openBoxWithAssets(t, 1)

	asset, err := env.client.Upload(ctx, box.ID, "late.mp4", bytes.NewReader([]byte("mp4")), nil)
	require.NoError(t, err)

	env.store.AddAsset(*asset)
	env.store.AddAsset(*asset)

	state := env.store.Snapshot()
	require.Len(t, state.Assets.Data, 2)
	assert.Equal(t, asset.ID, state.Assets.Data[1].ID, "uploads append")
	assert.Equal(t, 2, state.CurrentBox.AssetsCount)

	// assets of a box that is not open are ignored
	env.store.AddAsset(models.Asset{ID: 999, Box: box.ID + 1})
	assert.Len(t, env.store.Snapshot().Assets.Data, 2)
}

package mockapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sceneboard/internal/models"
)

// ========================================
// Helpers
// ========================================

type testEnv struct {
	srv   *Server
	http  *httptest.Server
	token string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	srv := New(Options{Config: DefaultConfig()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	_, err := srv.Seed("alice", "secret1")
	require.NoError(t, err)

	env := &testEnv{srv: srv, http: ts}
	var pair models.TokenPair
	status := env.do(t, http.MethodPost, "/api/auth/login/", map[string]string{
		"username": "alice", "password": "secret1",
	}, &pair)
	require.Equal(t, http.StatusOK, status)
	env.token = pair.Access
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) upload(t *testing.T, boxID int64, name string, data []byte) (int, models.Asset) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, _ = fw.Write(data)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/boxes/%d/upload/", e.http.URL, boxID), &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var asset models.Asset
	if resp.StatusCode == http.StatusCreated {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&asset))
	}
	return resp.StatusCode, asset
}

func (e *testEnv) createProject(t *testing.T, name string) models.Project {
	t.Helper()
	var p models.Project
	status := e.do(t, http.MethodPost, "/api/projects/", map[string]string{"name": name}, &p)
	require.Equal(t, http.StatusCreated, status)
	return p
}

func (e *testEnv) createBox(t *testing.T, projectID int64, name string) models.Box {
	t.Helper()
	var b models.Box
	status := e.do(t, http.MethodPost, "/api/boxes/", models.BoxCreateRequest{Project: projectID, Name: name}, &b)
	require.Equal(t, http.StatusCreated, status)
	return b
}

func boxIDs(boxes []models.Box) []int64 {
	out := make([]int64, len(boxes))
	for i, b := range boxes {
		out[i] = b.ID
	}
	return out
}

// ========================================
// Auth
// ========================================

func TestRegister(t *testing.T) {
	env := setupTestServer(t)
	env.token = ""

	t.Run("success", func(t *testing.T) {
		var pair models.TokenPair
		status := env.do(t, http.MethodPost, "/api/auth/register/", models.UserCreateRequest{
			Username: "bob", Email: "bob@example.com", Password: "secret1", PasswordConfirm: "secret1",
		}, &pair)
		assert.Equal(t, http.StatusCreated, status)
		assert.NotEmpty(t, pair.Access)
		assert.NotEmpty(t, pair.Refresh)
	})

	t.Run("password mismatch", func(t *testing.T) {
		var body map[string][]string
		status := env.do(t, http.MethodPost, "/api/auth/register/", models.UserCreateRequest{
			Username: "carol", Email: "carol@example.com", Password: "secret1", PasswordConfirm: "secret2",
		}, &body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body, "password_confirm")
	})

	t.Run("duplicate username", func(t *testing.T) {
		var body map[string][]string
		status := env.do(t, http.MethodPost, "/api/auth/register/", models.UserCreateRequest{
			Username: "alice", Email: "other@example.com", Password: "secret1", PasswordConfirm: "secret1",
		}, &body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body, "username")
	})
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := setupTestServer(t)
	env.token = ""

	var body map[string]string
	status := env.do(t, http.MethodPost, "/api/auth/login/", map[string]string{
		"username": "alice", "password": "wrong",
	}, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "No active account found with the given credentials", body["detail"])
}

func TestRefreshAndExpiry(t *testing.T) {
	env := setupTestServer(t)

	var pair models.TokenPair
	env.token = ""
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/login/", map[string]string{
		"username": "alice", "password": "secret1",
	}, &pair))

	env.token = pair.Access
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/auth/me/", nil, nil))

	env.srv.ExpireTokens()
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/auth/me/", nil, nil))

	var refreshed models.RefreshResponse
	env.token = ""
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/token/refresh/",
		models.RefreshRequest{Refresh: pair.Refresh}, &refreshed))
	require.NotEmpty(t, refreshed.Access)

	env.token = refreshed.Access
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/auth/me/", nil, nil))

	env.srv.RevokeRefreshTokens()
	env.token = ""
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/auth/token/refresh/",
		models.RefreshRequest{Refresh: pair.Refresh}, nil))
}

func TestMe_ReportsQuota(t *testing.T) {
	env := setupTestServer(t)
	env.createProject(t, "One")

	var user models.User
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/auth/me/", nil, &user))
	assert.Equal(t, "alice", user.Username)
	require.NotNil(t, user.Quota)
	assert.Equal(t, 10, user.Quota.MaxProjects)
	assert.Equal(t, 1, user.Quota.UsedProjects)
}

func TestUnauthenticated(t *testing.T) {
	env := setupTestServer(t)
	env.token = ""

	var body map[string]string
	status := env.do(t, http.MethodGet, "/api/projects/", nil, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.NotEmpty(t, body["detail"])
}

// ========================================
// Projects
// ========================================

func TestProjects_CRUD(t *testing.T) {
	env := setupTestServer(t)

	first := env.createProject(t, "First")
	second := env.createProject(t, "Second")
	assert.Equal(t, models.ProjectActive, first.Status)
	assert.Equal(t, models.Aspect16x9, first.AspectRatio)

	var list []models.Project
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/projects/", nil, &list))
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	status := models.ProjectPaused
	var updated models.Project
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch,
		fmt.Sprintf("/api/projects/%d/", first.ID), models.ProjectPatch{Status: &status}, &updated))
	assert.Equal(t, models.ProjectPaused, updated.Status)
	assert.Equal(t, "First", updated.Name)

	bad := models.ProjectStatus("ARCHIVED")
	var errBody map[string][]string
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch,
		fmt.Sprintf("/api/projects/%d/", first.ID), models.ProjectPatch{Status: &bad}, &errBody))
	assert.Contains(t, errBody, "status")

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, fmt.Sprintf("/api/projects/%d/", first.ID), nil, nil))
	var notFound map[string]string
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/", first.ID), nil, &notFound))
	assert.Equal(t, "Not found.", notFound["detail"])
}

func TestProjects_Isolation(t *testing.T) {
	env := setupTestServer(t)
	other, err := env.srv.Seed("mallory", "secret1")
	require.NoError(t, err)
	p := env.srv.SeedProject(other.ID, "Hidden", models.Aspect9x16)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/", p.ID), nil, nil))

	var list []models.Project
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/projects/", nil, &list))
	assert.Empty(t, list)
}

func TestProjects_QuotaEnforced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quota.MaxProjects = 1
	srv := New(Options{Config: cfg})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	acc, err := srv.Seed("alice", "secret1")
	require.NoError(t, err)
	pair, err := srv.Auth().IssuePair(acc)
	require.NoError(t, err)

	env := &testEnv{srv: srv, http: ts, token: pair.Access}
	env.createProject(t, "Only")

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/projects/", map[string]string{"name": "Two"}, &body))
	assert.Contains(t, body["detail"], "limit")
}

// ========================================
// Boxes
// ========================================

func TestBoxes_CreatePrependsAndCounts(t *testing.T) {
	env := setupTestServer(t)
	p := env.createProject(t, "Film")

	a := env.createBox(t, p.ID, "A")
	b := env.createBox(t, p.ID, "B")
	assert.Equal(t, 0, b.OrderIndex)
	assert.Equal(t, "Film", b.ProjectName)
	assert.Equal(t, models.BoxDraft, b.Status)

	var boxes []models.Box
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/boxes/?project=%d", p.ID), nil, &boxes))
	assert.Equal(t, []int64{b.ID, a.ID}, boxIDs(boxes))
	for i, box := range boxes {
		assert.Equal(t, i, box.OrderIndex)
	}

	approved := models.BoxApproved
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, fmt.Sprintf("/api/boxes/%d/", a.ID), models.BoxPatch{Status: &approved}, nil))

	var project models.Project
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/", p.ID), nil, &project))
	assert.Equal(t, 2, project.BoxesCount)
	assert.Equal(t, 1, project.BoxesApprovedCount)
	assert.NoError(t, project.CheckCounters())
}

func TestBoxes_CreateRejectsForeignProject(t *testing.T) {
	env := setupTestServer(t)
	var body map[string][]string
	status := env.do(t, http.MethodPost, "/api/boxes/", models.BoxCreateRequest{Project: 999, Name: "X"}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "project")
}

func TestBoxes_Reorder(t *testing.T) {
	env := setupTestServer(t)
	p := env.createProject(t, "Film")
	a := env.createBox(t, p.ID, "A")
	b := env.createBox(t, p.ID, "B")
	c := env.createBox(t, p.ID, "C")

	order := []int64{a.ID, b.ID, c.ID}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/boxes/reorder/", models.BoxReorderRequest{BoxIDs: order}, nil))

	var boxes []models.Box
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/boxes/?project=%d", p.ID), nil, &boxes))
	assert.Equal(t, order, boxIDs(boxes))

	// same order again changes nothing
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/boxes/reorder/", models.BoxReorderRequest{BoxIDs: order}, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/boxes/?project=%d", p.ID), nil, &boxes))
	assert.Equal(t, order, boxIDs(boxes))

	var body map[string][]string
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/boxes/reorder/",
		models.BoxReorderRequest{BoxIDs: []int64{a.ID, 12345}}, &body))
	assert.Contains(t, body, "box_ids")
}

func TestBoxes_DeleteCompacts(t *testing.T) {
	env := setupTestServer(t)
	p := env.createProject(t, "Film")
	a := env.createBox(t, p.ID, "A")
	b := env.createBox(t, p.ID, "B")
	c := env.createBox(t, p.ID, "C")

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, fmt.Sprintf("/api/boxes/%d/", b.ID), nil, nil))

	var boxes []models.Box
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/boxes/?project=%d", p.ID), nil, &boxes))
	assert.Equal(t, []int64{c.ID, a.ID}, boxIDs(boxes))
	assert.Equal(t, 0, boxes[0].OrderIndex)
	assert.Equal(t, 1, boxes[1].OrderIndex)
}

// ========================================
// Assets
// ========================================

func TestAssets_UploadListAndHeadliner(t *testing.T) {
	env := setupTestServer(t)
	p := env.createProject(t, "Film")
	box := env.createBox(t, p.ID, "Opening")

	status, img := env.upload(t, box.ID, "frame.png", []byte("png"))
	require.Equal(t, http.StatusCreated, status)
	status, vid := env.upload(t, box.ID, "clip.MP4", []byte("mp4"))
	require.Equal(t, http.StatusCreated, status)

	assert.Equal(t, models.AssetImage, img.AssetType)
	assert.Equal(t, models.AssetVideo, vid.AssetType)
	assert.Equal(t, models.SourceUploaded, img.SourceType)
	assert.Equal(t, 0, img.OrderIndex)
	assert.Equal(t, 1, vid.OrderIndex)

	// media is served back
	resp, err := http.Get(img.FileURL)
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png", string(data))

	var videos []models.Asset
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/assets/?box=%d&asset_type=VIDEO", box.ID), nil, &videos))
	require.Len(t, videos, 1)
	assert.Equal(t, vid.ID, videos[0].ID)

	fav := true
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, fmt.Sprintf("/api/assets/%d/", img.ID), models.AssetPatch{IsFavorite: &fav}, nil))
	var favorites []models.Asset
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/assets/?box=%d&is_favorite=true", box.ID), nil, &favorites))
	require.Len(t, favorites, 1)
	assert.Equal(t, img.ID, favorites[0].ID)

	var withCover models.Box
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, fmt.Sprintf("/api/boxes/%d/set_headliner/", box.ID),
		models.HeadlinerRequest{AssetID: &img.ID}, &withCover))
	require.NotNil(t, withCover.Headliner)
	assert.Equal(t, img.ID, *withCover.Headliner)
	assert.Equal(t, img.FileURL, withCover.HeadlinerURL)
	assert.Equal(t, 2, withCover.AssetsCount)

	// deleting the headliner asset clears it
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, fmt.Sprintf("/api/assets/%d/", img.ID), nil, nil))
	var after models.Box
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/boxes/%d/", box.ID), nil, &after))
	assert.Nil(t, after.Headliner)
	assert.Equal(t, 1, after.AssetsCount)

	var remaining []models.Asset
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/assets/?box=%d", box.ID), nil, &remaining))
	require.Len(t, remaining, 1)
	assert.Equal(t, 0, remaining[0].OrderIndex)
}

func TestAssets_HeadlinerMustBelongToBox(t *testing.T) {
	env := setupTestServer(t)
	p := env.createProject(t, "Film")
	one := env.createBox(t, p.ID, "One")
	two := env.createBox(t, p.ID, "Two")
	_, asset := env.upload(t, one.ID, "a.png", []byte("a"))

	var body map[string][]string
	status := env.do(t, http.MethodPost, fmt.Sprintf("/api/boxes/%d/set_headliner/", two.ID),
		models.HeadlinerRequest{AssetID: &asset.ID}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "asset_id")
}

func TestAssets_Reorder(t *testing.T) {
	env := setupTestServer(t)
	p := env.createProject(t, "Film")
	box := env.createBox(t, p.ID, "Opening")
	_, a := env.upload(t, box.ID, "a.png", []byte("a"))
	_, b := env.upload(t, box.ID, "b.png", []byte("b"))
	_, c := env.upload(t, box.ID, "c.png", []byte("c"))

	order := []int64{c.ID, a.ID, b.ID}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/assets/reorder/", models.AssetReorderRequest{AssetIDs: order}, nil))

	var assets []models.Asset
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/assets/?box=%d", box.ID), nil, &assets))
	require.Len(t, assets, 3)
	for i, id := range order {
		assert.Equal(t, id, assets[i].ID)
		assert.Equal(t, i, assets[i].OrderIndex)
	}
}

func TestAssets_UploadQuota(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quota.MaxAssetsPerBox = 1
	srv := New(Options{Config: cfg})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	acc, err := srv.Seed("alice", "secret1")
	require.NoError(t, err)
	pair, err := srv.Auth().IssuePair(acc)
	require.NoError(t, err)
	env := &testEnv{srv: srv, http: ts, token: pair.Access}

	p := env.createProject(t, "Film")
	box := env.createBox(t, p.ID, "One")
	status, _ := env.upload(t, box.ID, "a.png", []byte("a"))
	require.Equal(t, http.StatusCreated, status)
	status, _ = env.upload(t, box.ID, "b.png", []byte("b"))
	assert.Equal(t, http.StatusBadRequest, status)
}

// ========================================
// Test controls
// ========================================

func TestFailNextAndCounts(t *testing.T) {
	env := setupTestServer(t)

	env.srv.FailNext(http.MethodGet, "/api/projects/", http.StatusInternalServerError, map[string]string{"message": "boom"})

	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, env.do(t, http.MethodGet, "/api/projects/", nil, &body))
	assert.Equal(t, "boom", body["message"])

	// consumed after one use
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/projects/", nil, nil))
	assert.Equal(t, 2, env.srv.Count(http.MethodGet, "/api/projects/"))

	env.srv.ResetCounts()
	assert.Zero(t, env.srv.Total())
}

func TestFailNext_HangUp(t *testing.T) {
	env := setupTestServer(t)
	env.srv.FailNext(http.MethodGet, "/api/projects/", 0, nil)

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/api/projects/", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.token)
	// a fresh transport, so the hung-up GET is not retried on a new connection
	client := &http.Client{Transport: &http.Transport{}}
	_, err = client.Do(req)
	assert.Error(t, err)
}

func TestPaginatedLists(t *testing.T) {
	srv := New(Options{Config: DefaultConfig(), Paginate: true})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	acc, err := srv.Seed("alice", "secret1")
	require.NoError(t, err)
	srv.SeedProject(acc.ID, "Film", models.Aspect16x9)
	pair, err := srv.Auth().IssuePair(acc)
	require.NoError(t, err)
	env := &testEnv{srv: srv, http: ts, token: pair.Access}

	var page struct {
		Count   int              `json:"count"`
		Results []models.Project `json:"results"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/projects/", nil, &page))
	assert.Equal(t, 1, page.Count)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Film", page.Results[0].Name)
}

func TestCORSPreflight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableCORS = true
	ts := httptest.NewServer(New(Options{Config: cfg}).Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/projects/", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PATCH")
}

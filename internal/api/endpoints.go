package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sceneboard/internal/models"
)

// list decodes either a bare JSON array or a paginated {"results": [...]}.
type list[T any] []T

func (l *list[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var page struct {
			Results []T `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return err
		}
		*l = page.Results
		return nil
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// ========================================
// Auth
// ========================================

// Register creates an account and stores the issued token pair.
func (c *Client) Register(ctx context.Context, req models.UserCreateRequest) (*models.TokenPair, error) {
	var pair models.TokenPair
	if err := c.Request(ctx, "/api/auth/register/", RequestOptions{
		Method:   http.MethodPost,
		Body:     req,
		SkipAuth: true,
	}, &pair); err != nil {
		return nil, err
	}
	if err := c.SetTokens(ctx, pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Login exchanges credentials for a token pair and stores it.
func (c *Client) Login(ctx context.Context, req models.UserLoginRequest) (*models.TokenPair, error) {
	var pair models.TokenPair
	if err := c.Request(ctx, "/api/auth/login/", RequestOptions{
		Method:   http.MethodPost,
		Body:     req,
		SkipAuth: true,
	}, &pair); err != nil {
		return nil, err
	}
	if err := c.SetTokens(ctx, pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// GetMe loads the signed-in user with quota usage.
func (c *Client) GetMe(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.Request(ctx, "/api/auth/me/", RequestOptions{}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout forgets the session locally. There is no server call.
func (c *Client) Logout(ctx context.Context) error {
	return c.ClearTokens(ctx)
}

// ========================================
// Projects
// ========================================

// ListProjects returns the projects of the user, newest first.
func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	var out list[models.Project]
	if err := c.Request(ctx, "/api/projects/", RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	var p models.Project
	if err := c.Request(ctx, projectPath(id), RequestOptions{}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CreateProject(ctx context.Context, req models.ProjectCreateRequest) (*models.Project, error) {
	var p models.Project
	if err := c.Request(ctx, "/api/projects/", RequestOptions{Method: http.MethodPost, Body: req}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateProject(ctx context.Context, id int64, patch models.ProjectPatch) (*models.Project, error) {
	var p models.Project
	if err := c.Request(ctx, projectPath(id), RequestOptions{Method: http.MethodPatch, Body: patch}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	return c.Request(ctx, projectPath(id), RequestOptions{Method: http.MethodDelete}, nil)
}

// ========================================
// Boxes
// ========================================

// ListBoxes returns the boxes of a project in order.
func (c *Client) ListBoxes(ctx context.Context, projectID int64) ([]models.Box, error) {
	var out list[models.Box]
	query := url.Values{"project": {strconv.FormatInt(projectID, 10)}}
	if err := c.Request(ctx, "/api/boxes/", RequestOptions{Query: query}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBox(ctx context.Context, id int64) (*models.Box, error) {
	var b models.Box
	if err := c.Request(ctx, boxPath(id), RequestOptions{}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) CreateBox(ctx context.Context, req models.BoxCreateRequest) (*models.Box, error) {
	var b models.Box
	if err := c.Request(ctx, "/api/boxes/", RequestOptions{Method: http.MethodPost, Body: req}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) UpdateBox(ctx context.Context, id int64, patch models.BoxPatch) (*models.Box, error) {
	var b models.Box
	if err := c.Request(ctx, boxPath(id), RequestOptions{Method: http.MethodPatch, Body: patch}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) DeleteBox(ctx context.Context, id int64) error {
	return c.Request(ctx, boxPath(id), RequestOptions{Method: http.MethodDelete}, nil)
}

// ReorderBoxes sends the full ordered id list; the server recomputes
// order_index from it.
func (c *Client) ReorderBoxes(ctx context.Context, ids []int64) error {
	return c.Request(ctx, "/api/boxes/reorder/", RequestOptions{
		Method: http.MethodPost,
		Body:   models.BoxReorderRequest{BoxIDs: nonNil(ids)},
	}, nil)
}

// SetHeadliner assigns assetID as the box cover; nil clears it.
func (c *Client) SetHeadliner(ctx context.Context, boxID int64, assetID *int64) (*models.Box, error) {
	var b models.Box
	if err := c.Request(ctx, boxPath(boxID)+"set_headliner/", RequestOptions{
		Method: http.MethodPost,
		Body:   models.HeadlinerRequest{AssetID: assetID},
	}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ========================================
// Assets
// ========================================

// ListAssets returns the assets matching q in order.
func (c *Client) ListAssets(ctx context.Context, q models.AssetQuery) ([]models.Asset, error) {
	query := url.Values{"box": {strconv.FormatInt(q.Box, 10)}}
	if q.AssetType != "" {
		query.Set("asset_type", string(q.AssetType))
	}
	if q.IsFavorite != nil {
		query.Set("is_favorite", strconv.FormatBool(*q.IsFavorite))
	}

	var out list[models.Asset]
	if err := c.Request(ctx, "/api/assets/", RequestOptions{Query: query}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetAsset(ctx context.Context, id int64) (*models.Asset, error) {
	var a models.Asset
	if err := c.Request(ctx, assetPath(id), RequestOptions{}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) UpdateAsset(ctx context.Context, id int64, patch models.AssetPatch) (*models.Asset, error) {
	var a models.Asset
	if err := c.Request(ctx, assetPath(id), RequestOptions{Method: http.MethodPatch, Body: patch}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) DeleteAsset(ctx context.Context, id int64) error {
	return c.Request(ctx, assetPath(id), RequestOptions{Method: http.MethodDelete}, nil)
}

// ReorderAssets persists the full asset order of one box.
func (c *Client) ReorderAssets(ctx context.Context, ids []int64) error {
	return c.Request(ctx, "/api/assets/reorder/", RequestOptions{
		Method: http.MethodPost,
		Body:   models.AssetReorderRequest{AssetIDs: nonNil(ids)},
	}, nil)
}

func projectPath(id int64) string { return fmt.Sprintf("/api/projects/%d/", id) }
func boxPath(id int64) string     { return fmt.Sprintf("/api/boxes/%d/", id) }
func assetPath(id int64) string   { return fmt.Sprintf("/api/assets/%d/", id) }

// nonNil keeps an empty order encoded as [] rather than null.
func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

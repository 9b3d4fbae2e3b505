package app

import (
	"context"
	"fmt"

	"github.com/sceneboard/internal/models"
	"github.com/sceneboard/internal/quota"
	"github.com/sceneboard/internal/upload"
)

// ========================================
// Session
// ========================================

// Login signs in and greets the user.
func (a *App) Login(ctx context.Context, username, password string) error {
	if err := a.Session.Login(ctx, username, password); err != nil {
		return a.report(err, "")
	}
	return a.report(nil, "Welcome back, %s", a.Session.Snapshot().User.Username)
}

func (a *App) Register(ctx context.Context, req models.UserCreateRequest) error {
	if err := a.Session.Register(ctx, req); err != nil {
		return a.report(err, "")
	}
	return a.report(nil, "Account %s created", req.Username)
}

// Logout ends the session and drops every cached list and upload.
func (a *App) Logout(ctx context.Context) {
	a.Session.Logout(ctx)
	a.Collection.Reset()
	a.Uploads.Clear()
	a.Notifier.Success("Signed out")
}

func (a *App) userQuota() *models.Quota {
	if u := a.Session.Snapshot().User; u != nil {
		return u.Quota
	}
	return nil
}

// refreshUser reloads quota usage after a change of the project count.
func (a *App) refreshUser(ctx context.Context) {
	if err := a.Session.RefreshUser(ctx); err != nil {
		a.Logger.WithError(err).Warn("refresh user quota")
	}
}

// ========================================
// Projects
// ========================================

// CreateProject checks the project quota before creating.
func (a *App) CreateProject(ctx context.Context, req models.ProjectCreateRequest) (*models.Project, error) {
	if err := quota.CheckProjects(a.userQuota()); err != nil {
		return nil, a.report(err, "")
	}
	project, err := a.Collection.CreateProject(ctx, req)
	if err != nil {
		return nil, a.report(err, "")
	}
	a.refreshUser(ctx)
	return project, a.report(nil, "Project %q created", project.Name)
}

func (a *App) UpdateProject(ctx context.Context, id int64, patch models.ProjectPatch) (*models.Project, error) {
	project, err := a.Collection.UpdateProject(ctx, id, patch)
	if err != nil {
		return nil, a.report(err, "")
	}
	return project, a.report(nil, "Project updated")
}

func (a *App) DeleteProject(ctx context.Context, id int64) error {
	if err := a.Collection.DeleteProject(ctx, id); err != nil {
		return a.report(err, "")
	}
	a.refreshUser(ctx)
	return a.report(nil, "Project deleted")
}

// ========================================
// Scenes
// ========================================

// boxCount returns the scene count of a project, reading it from the
// server when the project is not cached.
func (a *App) boxCount(ctx context.Context, projectID int64) (int, error) {
	state := a.Collection.Snapshot()
	if p := state.CurrentProject; p != nil && p.ID == projectID {
		return p.BoxesCount, nil
	}
	for _, p := range state.Projects.Data {
		if p.ID == projectID {
			return p.BoxesCount, nil
		}
	}
	p, err := a.Client.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return p.BoxesCount, nil
}

// CreateBox checks the per-project scene quota before creating.
func (a *App) CreateBox(ctx context.Context, req models.BoxCreateRequest) (*models.Box, error) {
	existing, err := a.boxCount(ctx, req.Project)
	if err != nil {
		return nil, a.report(err, "")
	}
	if err := quota.CheckBoxes(a.userQuota(), existing); err != nil {
		return nil, a.report(err, "")
	}
	box, err := a.Collection.CreateBox(ctx, req)
	if err != nil {
		return nil, a.report(err, "")
	}
	return box, a.report(nil, "Scene %q created", box.Name)
}

func (a *App) UpdateBox(ctx context.Context, id int64, patch models.BoxPatch) (*models.Box, error) {
	box, err := a.Collection.UpdateBox(ctx, id, patch)
	if err != nil {
		return nil, a.report(err, "")
	}
	return box, a.report(nil, "Scene updated")
}

func (a *App) DeleteBox(ctx context.Context, id int64) error {
	return a.report(a.Collection.DeleteBox(ctx, id), "Scene deleted")
}

// SetHeadliner makes assetID the cover of a scene; nil clears it.
func (a *App) SetHeadliner(ctx context.Context, boxID int64, assetID *int64) (*models.Box, error) {
	box, err := a.Collection.SetHeadliner(ctx, boxID, assetID)
	if err != nil {
		return nil, a.report(err, "")
	}
	if assetID == nil {
		return box, a.report(nil, "Headliner cleared")
	}
	return box, a.report(nil, "Headliner set")
}

// MoveBox moves a scene of the open project to position (zero based).
func (a *App) MoveBox(ctx context.Context, id int64, position int) error {
	return a.BoxDrag.MoveTo(ctx, id, position)
}

func (a *App) reorderBoxes(ctx context.Context, ids []int64) error {
	return a.report(a.Collection.ReorderBoxes(ctx, ids), "Scene order saved")
}

// ========================================
// Assets
// ========================================

func (a *App) ToggleFavorite(ctx context.Context, id int64) (*models.Asset, error) {
	asset, err := a.Collection.ToggleFavorite(ctx, id)
	if err != nil {
		return nil, a.report(err, "")
	}
	if asset.IsFavorite {
		return asset, a.report(nil, "Added to favorites")
	}
	return asset, a.report(nil, "Removed from favorites")
}

func (a *App) DeleteAsset(ctx context.Context, id int64) error {
	return a.report(a.Collection.DeleteAsset(ctx, id), "Asset deleted")
}

// MoveAsset moves an asset to position within the filtered view of the
// open box.
func (a *App) MoveAsset(ctx context.Context, id int64, position int) error {
	return a.AssetDrag.MoveTo(ctx, id, position)
}

func (a *App) reorderAssets(ctx context.Context, ids []int64) error {
	return a.report(a.Collection.ReorderAssets(ctx, ids), "Asset order saved")
}

// assetCount returns the asset count of a box, reading it from the server
// when the box is not cached.
func (a *App) assetCount(ctx context.Context, boxID int64) (int, error) {
	state := a.Collection.Snapshot()
	if b := state.CurrentBox; b != nil && b.ID == boxID {
		return b.AssetsCount, nil
	}
	for _, b := range state.Boxes.Data {
		if b.ID == boxID {
			return b.AssetsCount, nil
		}
	}
	b, err := a.Client.GetBox(ctx, boxID)
	if err != nil {
		return 0, err
	}
	return b.AssetsCount, nil
}

// Upload sends files into a box. One notification is emitted per failed
// file and one for the successful ones.
func (a *App) Upload(ctx context.Context, boxID int64, files []upload.File) (upload.Summary, error) {
	existing, err := a.assetCount(ctx, boxID)
	if err != nil {
		return upload.Summary{}, a.report(err, "")
	}
	summary, err := a.Uploads.Run(ctx, boxID, existing, files, a.userQuota())
	if err != nil {
		return summary, a.report(err, "")
	}

	for _, it := range summary.Items {
		if it.Status == upload.StatusError {
			a.Notifier.Error(it.Name + ": " + it.Error)
		}
	}
	switch summary.Completed {
	case 0:
	case 1:
		a.Notifier.Success("1 file uploaded")
	default:
		a.Notifier.Success(fmt.Sprintf("%d files uploaded", summary.Completed))
	}
	return summary, nil
}

// Package app is the composition root of the SceneBoard client. It builds
// every store from the configuration and exposes the user actions, each of
// which reports its outcome through a notifier.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sceneboard/internal/api"
	"github.com/sceneboard/internal/collection"
	"github.com/sceneboard/internal/config"
	"github.com/sceneboard/internal/dragdrop"
	"github.com/sceneboard/internal/models"
	"github.com/sceneboard/internal/notify"
	"github.com/sceneboard/internal/session"
	"github.com/sceneboard/internal/tokens"
	"github.com/sceneboard/internal/upload"
)

// Options overrides parts of the wiring, mainly for tests.
type Options struct {
	HTTPClient *http.Client
	Tokens     tokens.Store
	Notifier   notify.Notifier
	Logger     *logrus.Logger
}

// App owns one client stack: tokens, API client, stores, drag
// interactions and the upload queue.
type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Tokens     tokens.Store
	Client     *api.Client
	Session    *session.Store
	Collection *collection.Store
	Uploads    *upload.Queue
	BoxDrag    *dragdrop.Interaction
	AssetDrag  *dragdrop.Interaction
	Notifier   notify.Notifier

	filterMu sync.RWMutex
	filter   models.AssetFilter
}

// New wires the client stack described by cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = cfg.Logging.NewLogger()
	}

	store := opts.Tokens
	if store == nil {
		var err error
		store, err = tokens.Open(cfg.Tokens)
		if err != nil {
			return nil, fmt.Errorf("open token store: %w", err)
		}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.API.Timeout}
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}

	client := api.New(api.Options{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: httpClient,
		Store:      store,
		Logger:     logger.WithField("component", "api"),
	})

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Tokens:     store,
		Client:     client,
		Session:    session.New(client, logger.WithField("component", "session")),
		Collection: collection.New(client, logger.WithField("component", "collection")),
		Notifier:   notifier,
		filter:     models.FilterAll,
	}
	a.Uploads = upload.New(client, a.Collection, cfg.Upload, logger.WithField("component", "upload"))
	a.BoxDrag = dragdrop.NewInteraction(cfg.Drag.ActivationDistance, a.boxView, a.reorderBoxes)
	a.AssetDrag = dragdrop.NewInteraction(cfg.Drag.ActivationDistance, a.assetView, a.reorderAssets)

	client.OnAuthFailure(a.handleAuthFailure)

	logger.WithFields(logrus.Fields{
		"api":    cfg.API.BaseURL,
		"tokens": cfg.Tokens.Type,
	}).Debug("client initialized")
	return a, nil
}

// Close releases the token store.
func (a *App) Close() error {
	return a.Tokens.Close()
}

// Restore resumes a persisted session and reports whether one is active.
func (a *App) Restore(ctx context.Context) bool {
	a.Session.FetchUser(ctx)
	return a.Session.Snapshot().IsAuthenticated()
}

func (a *App) handleAuthFailure() {
	a.Collection.Reset()
	a.Notifier.Error("Your session has expired. Please sign in again.")
}

// SetAssetFilter changes which assets of the open box are visible and
// draggable.
func (a *App) SetAssetFilter(f models.AssetFilter) {
	a.filterMu.Lock()
	a.filter = f
	a.filterMu.Unlock()
}

func (a *App) AssetFilter() models.AssetFilter {
	a.filterMu.RLock()
	defer a.filterMu.RUnlock()
	return a.filter
}

// VisibleAssets returns the assets of the open box that pass the filter.
func (a *App) VisibleAssets() []models.Asset {
	return a.AssetFilter().Apply(a.Collection.Snapshot().Assets.Data)
}

func (a *App) boxView() (global, visible []int64) {
	boxes := a.Collection.Snapshot().Boxes.Data
	ids := make([]int64, len(boxes))
	for i, b := range boxes {
		ids[i] = b.ID
	}
	return ids, ids
}

func (a *App) assetView() (global, visible []int64) {
	assets := a.Collection.Snapshot().Assets.Data
	for _, asset := range assets {
		global = append(global, asset.ID)
	}
	for _, asset := range a.AssetFilter().Apply(assets) {
		visible = append(visible, asset.ID)
	}
	return global, visible
}

// report notifies the outcome of an action and passes err through.
func (a *App) report(err error, success string, args ...any) error {
	if err != nil {
		a.Notifier.Error(api.Message(err, "Something went wrong"))
		return err
	}
	if success != "" {
		a.Notifier.Success(fmt.Sprintf(success, args...))
	}
	return nil
}

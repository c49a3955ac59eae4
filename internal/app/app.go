package app

import (
	"context"
	"fmt"
	"time"

	"github.com/MartinInglin/da-bubble-sub000/pkg/blob"
	"github.com/MartinInglin/da-bubble-sub000/pkg/channels"
	"github.com/MartinInglin/da-bubble-sub000/pkg/config"
	"github.com/MartinInglin/da-bubble-sub000/pkg/directmsg"
	"github.com/MartinInglin/da-bubble-sub000/pkg/directory"
	"github.com/MartinInglin/da-bubble-sub000/pkg/identity"
	"github.com/MartinInglin/da-bubble-sub000/pkg/ledger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/livesync"
	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
	"github.com/MartinInglin/da-bubble-sub000/pkg/reconcile"
	"github.com/MartinInglin/da-bubble-sub000/pkg/store"
	"github.com/MartinInglin/da-bubble-sub000/pkg/threads"
)

// App wires the messaging data layer together. It is the composition root
// an embedding application (transport, UI) builds on; there is no network
// surface here.
type App struct {
	Directory      *directory.Directory
	Channels       *channels.Store
	DirectMessages *directmsg.Store
	Threads        *threads.Store
	Ledger         *ledger.Ledger
	Sync           *livesync.Fanout
	Reconciler     *reconcile.Reconciler

	db              store.Durable
	cancelReconcile context.CancelFunc
}

// New opens the durable and blob stores and constructs every component.
// idp may be nil when the embedding application does not support
// credential-guarded profile edits.
func New(ctx context.Context, cfg config.Config, idp identity.Provider) (*App, error) {
	logger.InitWithLevel(cfg.Logging.Level)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	maxBlob, err := cfg.MaxBlobSize()
	if err != nil {
		db.Close()
		return nil, err
	}
	blobs, err := blob.NewFS(cfg.Blob.Dir, maxBlob)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	now := func() int64 { return time.Now().UnixMilli() }
	dir := directory.New(db, blobs, idp)
	fan := livesync.New(db)
	posts := ledger.New(db)
	chs := channels.New(db, dir, fan, now)
	dms := directmsg.New(db, dir, posts, fan, now)
	ths := threads.New(db, chs, posts, fan, now)
	rec := reconcile.New(cfg.Reconcile, db, dir)

	a := &App{
		Directory:      dir,
		Channels:       chs,
		DirectMessages: dms,
		Threads:        ths,
		Ledger:         posts,
		Sync:           fan,
		Reconciler:     rec,
		db:             db,
	}
	cancel, err := rec.Start(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.cancelReconcile = cancel
	logger.Info("app_ready", "db", cfg.Store.Path)
	return a, nil
}

// RegisterUser creates the user record and its private self conversation.
func (a *App) RegisterUser(ctx context.Context, u models.User) (models.User, error) {
	reg, err := a.Directory.Register(ctx, u)
	if err != nil {
		return models.User{}, err
	}
	dm, err := a.DirectMessages.EnsureSelf(ctx, reg)
	if err != nil {
		return models.User{}, err
	}
	reg.PrivateConversation = dm.ID
	return reg, nil
}

// Close stops the reconciler and releases the store.
func (a *App) Close() error {
	if a.cancelReconcile != nil {
		a.cancelReconcile()
	}
	return a.db.Close()
}

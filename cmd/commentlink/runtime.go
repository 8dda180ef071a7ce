package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/commentlink/browser"
	"github.com/hazyhaar/commentlink/config"
	"github.com/hazyhaar/commentlink/dbopen"
	"github.com/hazyhaar/commentlink/metrics"
	"github.com/hazyhaar/commentlink/session"
)

// stack is the live runtime shared by open, serve and mcp.
type stack struct {
	store    *config.Store
	db       *sql.DB // nil without a settings database
	metrics  *metrics.Metrics
	browser  *browser.Manager
	sessions *session.Manager
}

func (a *app) newStack(ctx context.Context, withBrowser bool) (*stack, error) {
	st := &stack{
		store:   config.NewStore(a.cfg.Options, a.logger),
		metrics: metrics.New(),
	}

	if path := a.cfg.Settings.DB; path != "" {
		db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(config.SettingsSchema))
		if err != nil {
			return nil, err
		}
		st.db = db
	}

	if !withBrowser {
		return st, nil
	}

	bc := a.cfg.Browser
	st.browser = browser.NewManager(browser.Config{
		RemoteURL:        bc.Remote,
		Bin:              bc.Bin,
		MemoryLimit:      bc.MemoryLimit,
		RecycleInterval:  bc.RecycleInterval,
		ResourceBlocking: bc.ResourceBlocking,
		Mode:             browser.ParseMode(bc.Stealth),
		XvfbDisplay:      bc.XvfbDisplay,
		NavigateTimeout:  bc.NavigateTimeout,
		Logger:           a.logger,
	})
	if err := st.browser.Start(ctx); err != nil {
		st.close()
		return nil, fmt.Errorf("commentlink: start browser: %w", err)
	}

	open := func(ctx context.Context, url string) (session.Page, error) {
		p, err := st.browser.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	st.sessions = session.NewManager(ctx, open, session.Deps{
		Store:      st.store,
		Controller: a.cfg.Resolve,
		Loader:     a.cfg.Loader,
		Watcher:    a.cfg.Watcher,
		Label:      a.cfg.Affordance.Label,
		Metrics:    st.metrics,
		Logger:     a.logger,
	}, a.cfg.API.MaxSessions)
	return st, nil
}

// syncOptions follows the settings database until ctx ends. Without one
// it only waits.
func (a *app) syncOptions(ctx context.Context, st *stack) error {
	if st.db == nil {
		<-ctx.Done()
		return nil
	}
	return config.SyncOptions(ctx, st.db, st.store, a.cfg.Settings, a.logger)
}

func (st *stack) save(ctx context.Context, o config.Options) error {
	return config.SaveOptions(ctx, st.db, o)
}

func (st *stack) close() {
	if st.sessions != nil {
		st.sessions.CloseAll()
	}
	if st.browser != nil {
		st.browser.Close()
	}
	if st.db != nil {
		st.db.Close()
	}
}

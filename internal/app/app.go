// Package app wires configuration, providers and storage into editing
// sessions.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sst/mentions/internal/config"
	"github.com/sst/mentions/internal/logging"
	"github.com/sst/mentions/internal/recents"
	"github.com/sst/mentions/internal/search"
	"github.com/sst/mentions/internal/status"
	"github.com/sst/mentions/internal/suggest"
	"github.com/sst/mentions/internal/token"
	"github.com/sst/mentions/internal/trigger"
	"golang.org/x/sync/errgroup"
)

type App struct {
	Config  *config.Config
	Logs    logging.Service
	Status  status.Service
	Recents recents.Service
	Catalog *search.Catalog

	// Provider answers searches for every configured trigger kind.
	Provider search.Provider

	watcherCancelFuncs []context.CancelFunc
	cancelFuncsMutex   sync.Mutex
	watcherWG          sync.WaitGroup
}

// New loads the catalog and the recents database concurrently and builds
// the provider router from cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	app := &App{
		Config: cfg,
		Logs:   logging.GetService(),
		Status: status.GetService(),
	}

	var wg errgroup.Group
	if path := cfg.CatalogPath(); path != "" {
		wg.Go(func() error {
			catalog, err := search.LoadCatalog(path)
			if err != nil {
				return err
			}
			app.Catalog = catalog
			return nil
		})
	}
	if cfg.Recents.Enabled {
		wg.Go(func() error {
			r, err := recents.Open(ctx, cfg.DataDir())
			if err != nil {
				// Recents are a convenience; run without them.
				slog.Warn("Failed to open recents database", "error", err)
				return nil
			}
			app.Recents = r
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		app.Shutdown()
		return nil, err
	}

	provider, err := app.buildProvider()
	if err != nil {
		app.Shutdown()
		return nil, err
	}
	app.Provider = provider

	if app.Catalog != nil {
		app.watchCatalog(ctx)
	}
	return app, nil
}

func (app *App) buildProvider() (search.Provider, error) {
	cfg := app.Config
	router := search.NewRouter()

	var remote *search.Remote
	if cfg.Search.Remote != "" {
		r, err := search.NewRemote(cfg.Search.Remote, nil)
		if err != nil {
			return nil, err
		}
		remote = r
	}

	catalogKinds := make(map[trigger.Kind]bool)
	if app.Catalog != nil {
		for _, kind := range app.Catalog.Kinds() {
			catalogKinds[kind] = true
		}
	}

	for _, kind := range cfg.TriggerMap() {
		switch {
		case catalogKinds[kind]:
			router.Handle(kind, app.Catalog)
		case remote != nil && kind != trigger.KindFile:
			router.Handle(kind, remote)
		case kind == trigger.KindFile:
			router.Handle(kind, search.NewFiles(cfg.WorkingDir,
				search.WithInclude(cfg.Search.Files.Include),
				search.WithIgnore(cfg.Search.Files.Ignore...),
				search.WithMaxFiles(cfg.Search.Files.Max),
			))
		case kind == trigger.KindCommand:
			router.Handle(kind, BuiltinCommands)
		}
	}
	return search.Limit(router, cfg.Search.MaxResults), nil
}

// Built-in command ids. Choosing one runs the command instead of inserting a
// token.
const (
	CommandClear = "clear"
	CommandHelp  = "help"
	CommandLogs  = "logs"
	CommandQuit  = "quit"
)

// BuiltinCommands serves the command kind when no catalog or remote does.
var BuiltinCommands = search.NewCatalog(map[trigger.Kind][]search.Entry{
	trigger.KindCommand: {
		{ID: CommandClear, Label: "clear", Detail: "clear the document"},
		{ID: CommandHelp, Label: "help", Detail: "show key bindings"},
		{ID: CommandLogs, Label: "logs", Detail: "show recent logs"},
		{ID: CommandQuit, Label: "quit", Detail: "exit"},
	},
})

// IsBuiltinCommand reports whether item names a built-in command.
func IsBuiltinCommand(item suggest.Item) bool {
	if item.Kind != trigger.KindCommand {
		return false
	}
	switch item.ID {
	case CommandClear, CommandHelp, CommandLogs, CommandQuit:
		return true
	}
	return false
}

func (app *App) watchCatalog(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	app.cancelFuncsMutex.Lock()
	app.watcherCancelFuncs = append(app.watcherCancelFuncs, cancel)
	app.cancelFuncsMutex.Unlock()

	app.watcherWG.Add(1)
	go func() {
		defer app.watcherWG.Done()
		defer logging.RecoverPanic("catalog-watcher", nil)
		err := app.Catalog.Watch(watchCtx, func(err error) {
			if err != nil {
				app.Status.Error("catalog reload failed")
				return
			}
			app.Status.Info("catalog reloaded")
		})
		if err != nil {
			slog.Warn("Catalog watcher stopped", "error", err)
		}
	}()
}

// NewSession creates a document session using the configured triggers,
// presets and policies.
func (app *App) NewSession(opts ...SessionOption) *Session {
	cfg := app.Config
	base := []SessionOption{
		WithTriggers(cfg.TriggerMap()),
		WithPresets(cfg.Presets...),
		WithStatus(app.Status),
		WithStoreOptions(
			suggest.WithDebounce(cfg.DebounceDuration()),
			suggest.WithTimeout(cfg.TimeoutDuration()),
			suggest.WithWrap(cfg.Overlay.Wrap),
		),
		WithManagerOptions(
			token.WithDuplicatePolicy(token.DuplicatePolicy(cfg.Tokens.Duplicates)),
			token.WithStrict(cfg.Tokens.Strict),
		),
	}
	if app.Recents != nil {
		base = append(base, WithRecents(app.Recents, cfg.Recents.Limit))
	}
	return NewSession(app.Provider, append(base, opts...)...)
}

// Shutdown performs a clean shutdown of the application
func (app *App) Shutdown() {
	app.cancelFuncsMutex.Lock()
	for _, cancel := range app.watcherCancelFuncs {
		cancel()
	}
	app.watcherCancelFuncs = nil
	app.cancelFuncsMutex.Unlock()
	app.watcherWG.Wait()

	if app.Recents != nil {
		if err := app.Recents.Close(); err != nil {
			slog.Warn("Failed to close recents database", "error", err)
		}
		app.Recents = nil
	}
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"
	"github.com/sst/mentions/internal/app"
	"github.com/sst/mentions/internal/config"
	"github.com/sst/mentions/internal/logging"
	"github.com/sst/mentions/internal/pubsub"
	"github.com/sst/mentions/internal/trigger"
	"github.com/sst/mentions/internal/tui"
	"github.com/sst/mentions/internal/tui/components/overlay"
	"github.com/sst/mentions/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "mentions",
	Short: "Trigger-driven inline autocomplete in the terminal",
	Long: `Mentions is a terminal text editor with inline references.
Typing a trigger character such as # or @ opens a suggestion list under the
cursor; confirming a suggestion turns the typed text into an atomic token.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If the help flag is set, show the help message
		if cmd.Flag("help").Changed {
			cmd.Help()
			return nil
		}
		if cmd.Flag("version").Changed {
			fmt.Println(version.Version)
			return nil
		}

		cfg, closeLog, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeLog()

		// Create main context for the application
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		app, err := app.New(ctx, cfg)
		if err != nil {
			slog.Error("Failed to create app", "error", err)
			return err
		}
		session := app.NewSession()

		// Set up the TUI
		zone.NewGlobal()
		program := tea.NewProgram(
			tui.New(session, tui.WithOverlayOptions(overlayOptions(cfg)...)),
			tea.WithAltScreen(),
			tea.WithMouseCellMotion(),
		)

		// Setup the subscriptions, this will send services events to the TUI
		ch, cancelSubs := setupSubscriptions(app, ctx)

		// Create a context for the TUI message handler
		tuiCtx, tuiCancel := context.WithCancel(ctx)
		var tuiWg sync.WaitGroup
		tuiWg.Add(1)

		// Set up message handling for the TUI
		go func() {
			defer tuiWg.Done()
			defer logging.RecoverPanic("TUI-message-handler", func() {
				attemptTUIRecovery(program)
			})

			for {
				select {
				case <-tuiCtx.Done():
					slog.Info("TUI message handler shutting down")
					return
				case msg, ok := <-ch:
					if !ok {
						slog.Info("TUI message channel closed")
						return
					}
					program.Send(msg)
				}
			}
		}()

		// Cleanup function for when the program exits
		cleanup := func() {
			// Cancel subscriptions first
			cancelSubs()

			session.Close()

			// Then shutdown the app
			app.Shutdown()

			// Then cancel TUI message handler
			tuiCancel()

			// Wait for TUI message handler to finish
			tuiWg.Wait()

			slog.Info("All goroutines cleaned up")
		}

		// Run the TUI
		_, err = program.Run()
		cleanup()

		if err != nil {
			slog.Error("TUI error", "error", err)
			return fmt.Errorf("TUI error: %v", err)
		}

		slog.Info("TUI exited", "value", session.Value())
		return nil
	},
}

// setup configures logging and loads the config for every subcommand. The
// returned func closes the debug log file, if one was opened.
func setup(cmd *cobra.Command) (*config.Config, func(), error) {
	// Setup logging
	if logging.GetService() == nil {
		if err := logging.InitService(logging.DefaultCapacity); err != nil {
			return nil, nil, err
		}
	}
	lvl := new(slog.LevelVar)
	textHandler := slog.NewTextHandler(logging.NewSlogWriter(), &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(textHandler))

	// Load the config
	debug, _ := cmd.Flags().GetBool("debug")
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to change directory: %v", err)
		}
	}
	c, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get current working directory: %v", err)
	}
	cfg, err := config.Load(c, debug, lvl)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Debug {
		return cfg, func() {}, nil
	}

	// In debug mode every record is also kept in the data directory.
	dir, err := config.EnsureDataDir()
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open debug log: %w", err)
	}
	w := io.MultiWriter(f, logging.NewSlogWriter())
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return cfg, func() { f.Close() }, nil
}

func overlayOptions(cfg *config.Config) []overlay.Option {
	opts := []overlay.Option{overlay.WithMaxVisible(cfg.Overlay.MaxVisible)}
	for kind, msg := range cfg.Overlay.EmptyMessages {
		opts = append(opts, overlay.WithEmptyMessage(trigger.Kind(kind), msg))
	}
	return opts
}

// attemptTUIRecovery tries to recover the TUI after a panic
func attemptTUIRecovery(program *tea.Program) {
	slog.Info("Attempting to recover TUI after panic")

	// We could try to restart the TUI or gracefully exit
	// For now, we'll just quit the program to avoid further issues
	program.Quit()
}

func setupSubscriber[T any](
	ctx context.Context,
	wg *sync.WaitGroup,
	name string,
	subscriber func(context.Context) <-chan pubsub.Event[T],
	outputCh chan<- tea.Msg,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer logging.RecoverPanic(fmt.Sprintf("subscription-%s", name), nil)

		subCh := subscriber(ctx)
		if subCh == nil {
			slog.Warn("subscription channel is nil", "name", name)
			return
		}

		for {
			select {
			case event, ok := <-subCh:
				if !ok {
					slog.Debug("subscription channel closed", "name", name)
					return
				}

				var msg tea.Msg = event

				select {
				case outputCh <- msg:
				case <-time.After(2 * time.Second):
					slog.Warn("message dropped due to slow consumer", "name", name)
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func setupSubscriptions(app *app.App, parentCtx context.Context) (chan tea.Msg, func()) {
	ch := make(chan tea.Msg, 100)

	wg := sync.WaitGroup{}
	ctx, cancel := context.WithCancel(parentCtx) // Inherit from parent context

	if app.Logs != nil {
		setupSubscriber(ctx, &wg, "logging", app.Logs.Subscribe, ch)
	}
	setupSubscriber(ctx, &wg, "status", app.Status.Subscribe, ch)

	cleanupFunc := func() {
		slog.Info("Cancelling all subscriptions")
		cancel() // Signal all goroutines to stop

		waitCh := make(chan struct{})
		go func() {
			defer logging.RecoverPanic("subscription-cleanup", nil)
			wg.Wait()
			close(waitCh)
		}()

		select {
		case <-waitCh:
			close(ch) // Only close after all writers are confirmed done
		case <-time.After(5 * time.Second):
			slog.Warn("Timed out waiting for some subscription goroutines to complete")
			close(ch)
		}
	}
	return ch, cleanupFunc
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("version", "v", false, "Version")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")

	rootCmd.AddCommand(replayCmd, serveCmd)
}

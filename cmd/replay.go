package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/sst/mentions/internal/app"
	"github.com/sst/mentions/internal/format"
	"github.com/sst/mentions/internal/pubsub"
	"github.com/sst/mentions/internal/status"
	"github.com/sst/mentions/internal/suggest"
	"github.com/sst/mentions/internal/tui"
	"github.com/sst/mentions/internal/tui/components/overlay"
)

var replayCmd = &cobra.Command{
	Use:   "replay [script]",
	Short: "Type a keystroke script into a fresh document and print the result",
	Long: `Replay feeds a keystroke script through the editor without a terminal and
prints the final document. Text is typed as-is; special keys are written in
angle brackets, e.g. "see #tech<down><enter>". The script is read from the
file argument, or from stdin when it is piped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFormatStr, _ := cmd.Flags().GetString("output-format")
		outputFormat := format.OutputFormat(outputFormatStr)
		if !outputFormat.IsValid() {
			return fmt.Errorf("invalid output format: %s", outputFormatStr)
		}
		quiet, _ := cmd.Flags().GetBool("quiet")
		verbose, _ := cmd.Flags().GetBool("verbose")

		script, err := readScript(args)
		if err != nil {
			return err
		}

		cfg, closeLog, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeLog()

		if verbose {
			charmLogger := charmlog.NewWithOptions(newSyncWriter(os.Stderr), charmlog.Options{
				Level:           charmlog.DebugLevel,
				ReportCaller:    true,
				ReportTimestamp: true,
				TimeFormat:      "15:04:05",
				Prefix:          "mentions",
			})
			slog.SetDefault(slog.New(charmLogger))
		}

		// History would change what the overlay offers, so replays start
		// without it.
		cfg.Recents.Enabled = false

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		if !quiet {
			unlisten := a.Status.Listen(func(e pubsub.Event[status.StatusMessage]) {
				if e.Payload.Level == status.LevelWarn || e.Payload.Level == status.LevelError {
					fmt.Fprintf(os.Stderr, "%s: %s\n", e.Payload.Level, e.Payload.Message)
				}
			})
			defer unlisten()
		}

		session := a.NewSession(app.WithStoreOptions(suggest.WithDebounce(0)))
		defer session.Close()

		result, err := replay(session, script, overlayOptions(cfg)...)
		if err != nil {
			return err
		}
		out, err := format.FormatOutput(result, outputFormat)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

// replay types script into session and collects the final document.
func replay(session *app.Session, script string, opts ...overlay.Option) (format.Result, error) {
	keys, err := tui.ParseScript(script)
	if err != nil {
		return format.Result{}, err
	}
	msgs := make([]tea.Msg, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, k)
	}
	tui.Drive(tui.New(session, tui.WithOverlayOptions(opts...)), msgs...)

	result := format.Result{
		Value: session.Value(),
		Text:  session.Surface.Rendered(),
	}
	for id, sel := range session.ConfirmedSelections() {
		result.Selections = append(result.Selections, format.Selection{
			ID:    string(id),
			Kind:  string(sel.Kind),
			Ref:   sel.Ref,
			Label: sel.Label,
		})
	}
	return result, nil
}

func readScript(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read script: %w", err)
		}
		return string(data), nil
	}
	if data, ok := checkStdinPipe(); ok {
		return data, nil
	}
	return "", fmt.Errorf("no script: pass a file or pipe one on stdin")
}

// checkStdinPipe returns what was piped to stdin, if anything.
func checkStdinPipe() (string, bool) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", false
	}
	if stat.Mode()&os.ModeCharDevice != 0 || stat.Mode()&os.ModeNamedPipe == 0 {
		return "", false
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

// syncWriter is a thread-safe writer that prevents interleaved output
type syncWriter struct {
	w  io.Writer
	mu sync.Mutex
}

// Write implements io.Writer
func (sw *syncWriter) Write(p []byte) (n int, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(p)
}

// newSyncWriter creates a new synchronized writer
func newSyncWriter(w io.Writer) io.Writer {
	return &syncWriter{w: w}
}

func init() {
	replayCmd.Flags().StringP("output-format", "f", "text", "Output format (text, json)")
	replayCmd.Flags().BoolP("quiet", "q", false, "Hide warnings raised while replaying")
	replayCmd.Flags().BoolP("verbose", "", false, "Display logs to stderr")

	// Make quiet and verbose mutually exclusive
	replayCmd.MarkFlagsMutuallyExclusive("quiet", "verbose")
}

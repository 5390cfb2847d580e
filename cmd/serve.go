package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/sst/mentions/internal/app"
	"github.com/sst/mentions/internal/server"
	"github.com/sst/mentions/internal/trigger"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured search providers over HTTP",
	Long: `Serve exposes the local catalog, file and command providers at
GET /search?kind=&q=, the same endpoint "search.remote" points editors at.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closeLog, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeLog()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		// Serving a remote provider back to itself would loop.
		cfg.Search.Remote = ""

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		var kinds []trigger.Kind
		for _, kind := range cfg.TriggerMap() {
			kinds = append(kinds, kind)
		}
		srv := server.New(a.Provider, cfg.Server.Addr, server.WithKinds(kinds...))

		var wg errgroup.Group
		wg.Go(func() error {
			defer stop()
			return srv.Start(ctx)
		})

		<-ctx.Done()

		return wg.Wait()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (defaults to server.addr)")
}

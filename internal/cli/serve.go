package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"optionstream/internal/server"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the option chain server",
		Long: `Start the WebSocket and REST server.

The server periodically recomputes option-chain analytics for every
symbol with at least one subscriber and broadcasts the results. Use
--mock to run against the synthetic quote source without a Kite
session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				app.Config.Server.Addr = addr
			}

			source, err := app.quoteSource(cmd)
			if err != nil {
				return err
			}

			srv, err := server.New(app.Config, source, app.Store, app.Logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app.Logger.Info().
				Str("addr", app.Config.Server.Addr).
				Msg("starting option chain server")
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides config)")
	return cmd
}

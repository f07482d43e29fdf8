package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"optionstream/internal/models"
	"optionstream/internal/quotes"
	"optionstream/pkg/utils"
)

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <symbol> [symbol...]",
		Short: "Stream live spot prices to the terminal",
		Long: `Stream live spot prices over the Kite WebSocket feed.

Requires an active Kite session; the synthetic --mock source has no
streaming feed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			symbols := make([]string, 0, len(args))
			for _, a := range args {
				symbols = append(symbols, strings.ToUpper(a))
			}

			source, err := app.kiteSource(cmd)
			if err != nil {
				return err
			}
			kite := source.(*quotes.KiteSource)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tokens, err := kite.SpotTokens(ctx, symbols)
			if err != nil {
				return err
			}

			creds := app.Config.Credentials.Kite
			accessToken := creds.AccessToken
			if accessToken == "" && app.Store != nil {
				session, err := app.Store.LoadSession(ctx)
				if err != nil {
					return err
				}
				accessToken = session.AccessToken
			}

			ticker := quotes.NewSpotTicker(creds.APIKey, accessToken, app.Logger)
			ticker.RegisterTokens(tokens)
			ticker.OnSpot(func(q models.SpotQuote) {
				arrow := output.Green("+")
				if q.Change < 0 {
					arrow = output.Red("-")
				}
				output.Printf("%s  %-12s %10.2f  %s%.2f (%.2f%%)  vol %s\n",
					q.Timestamp.In(utils.IndiaLocation).Format("15:04:05"),
					q.Symbol, q.LTP, arrow, abs(q.Change), q.ChangePercent,
					utils.FormatQuantity(q.Volume))
			})

			connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := ticker.Connect(connectCtx); err != nil {
				return err
			}
			defer ticker.Disconnect()

			for _, symbol := range symbols {
				if err := ticker.Watch(symbol); err != nil {
					return err
				}
			}

			output.Info("Streaming %s (ctrl-c to stop)", strings.Join(symbols, ", "))
			<-ctx.Done()
			return nil
		},
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

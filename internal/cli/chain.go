package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"optionstream/internal/analytics"
	"optionstream/internal/cache"
	"optionstream/internal/errors"
	"optionstream/internal/models"
	"optionstream/internal/server"
	"optionstream/internal/signals"
	"optionstream/internal/store"
	"optionstream/pkg/utils"
)

// oneShotService builds a throwaway chain service for inspection
// commands.
func (app *App) oneShotService(cmd *cobra.Command) (*server.ChainService, error) {
	source, err := app.quoteSource(cmd)
	if err != nil {
		return nil, err
	}
	return server.NewChainService(
		source,
		analytics.NewEngine(app.Config.Analytics.RiskFreeRate),
		cache.New(cache.Config{
			TTL:                app.Config.Cache.TTL,
			StaleGraceMultiple: app.Config.Cache.StaleGraceMultiple,
		}),
		nil,
		zerolog.Nop(),
	), nil
}

func parseExpiryFlag(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("expiry")
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.NewValidationError("expiry", raw, "expected YYYY-MM-DD")
	}
	return t, nil
}

func newChainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain <symbol>",
		Short: "Display the option chain for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			svc, err := app.oneShotService(cmd)
			if err != nil {
				return err
			}
			requested, err := parseExpiryFlag(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			expiry, err := svc.ResolveExpiry(ctx, symbol, requested)
			if err != nil {
				return err
			}
			view, err := svc.BuildViewAt(ctx, symbol, expiry)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(view)
			}
			renderChain(output, view)
			return nil
		},
	}

	cmd.Flags().String("expiry", "", "expiry date YYYY-MM-DD (default: nearest)")
	return cmd
}

func renderChain(output *Output, view *models.OptionChainView) {
	output.Bold("%s  %s  spot %.2f", view.Symbol, view.Expiry.Format("02 Jan 2006"), view.SpotPrice)
	output.Dim("computed %s", view.ComputedAt.In(utils.IndiaLocation).Format("15:04:05 MST"))
	output.Println()

	table := NewTable(output,
		"CALL OI", "CALL VOL", "CALL LTP", "CALL IV", "DELTA",
		"STRIKE",
		"DELTA", "PUT IV", "PUT LTP", "PUT VOL", "PUT OI")

	for _, row := range view.Rows {
		strike := fmt.Sprintf("%.0f", row.Strike)
		if row.Strike == view.ATMStrike {
			strike = output.Yellow(strike + " *")
		}
		table.AddRow(
			utils.FormatQuantity(row.Call.OI),
			utils.FormatQuantity(row.Call.Volume),
			fmt.Sprintf("%.2f", row.Call.LTP),
			formatIV(row.Call.Greeks),
			formatDelta(row.Call.Greeks),
			strike,
			formatDelta(row.Put.Greeks),
			formatIV(row.Put.Greeks),
			fmt.Sprintf("%.2f", row.Put.LTP),
			utils.FormatQuantity(row.Put.Volume),
			utils.FormatQuantity(row.Put.OI),
		)
	}
	table.Render()

	output.Println()
	renderSummary(output, view)
}

func formatIV(g *models.Greeks) string {
	if g == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", g.IV*100)
}

func formatDelta(g *models.Greeks) string {
	if g == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", g.Delta)
}

func formatPCR(pcr *float64) string {
	if pcr == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *pcr)
}

func renderSummary(output *Output, view *models.OptionChainView) {
	output.Printf("ATM strike:   %.0f\n", view.ATMStrike)
	output.Printf("Max pain:     %.0f\n", view.MaxPainStrike)
	output.Printf("PCR (OI):     %s\n", formatPCR(view.PCROI))
	output.Printf("PCR (volume): %s\n", formatPCR(view.PCRVolume))
	output.Printf("Call OI:      %s   Put OI: %s\n",
		utils.FormatQuantity(view.TotalCallOI), utils.FormatQuantity(view.TotalPutOI))
}

func newAnalyticsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics <symbol>",
		Short: "Show the analytics summary and signal for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			svc, err := app.oneShotService(cmd)
			if err != nil {
				return err
			}
			requested, err := parseExpiryFlag(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			expiry, err := svc.ResolveExpiry(ctx, symbol, requested)
			if err != nil {
				return err
			}
			view, err := svc.BuildViewAt(ctx, symbol, expiry)
			if err != nil {
				return err
			}
			signal := svc.Evaluate(view)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"summary": view.Summarize(),
					"signal":  signal,
				})
			}

			output.Bold("%s  %s", view.Symbol, view.Expiry.Format("02 Jan 2006"))
			output.Println()
			renderSummary(output, view)
			output.Println()
			renderSignal(output, signal)
			return nil
		},
	}

	cmd.Flags().String("expiry", "", "expiry date YYYY-MM-DD (default: nearest)")
	return cmd
}

func renderSignal(output *Output, signal signals.Signal) {
	output.Printf("Sentiment:    %s\n", output.Sentiment(string(signal.Sentiment)))
	output.Printf("Conviction:   %.0f\n", signal.Score)
	output.Printf("Call entry:   %s\n", string(signal.CallEntry))
	output.Printf("Put entry:    %s\n", string(signal.PutEntry))
}

func newExpiriesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "expiries <symbol>",
		Short: "List available expiries for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			svc, err := app.oneShotService(cmd)
			if err != nil {
				return err
			}
			expiries, err := svc.ListExpiries(cmd.Context(), symbol)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				dates := make([]string, 0, len(expiries))
				for _, e := range expiries {
					dates = append(dates, e.Format("2006-01-02"))
				}
				return output.JSON(map[string]interface{}{"symbol": symbol, "expiries": dates})
			}

			output.Bold("%s expiries", symbol)
			for _, e := range expiries {
				output.Printf("  %s  (%s)\n", e.Format("2006-01-02"), e.Format("Mon"))
			}
			return nil
		},
	}
}

func newJournalCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal <symbol>",
		Short: "Show recent analytics journal entries for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			if app.Store == nil {
				output.Error("Store unavailable")
				return errors.ErrConfigInvalid
			}
			if !models.IsKnownSymbol(symbol) {
				return errors.ErrUnknownSymbol
			}

			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := app.Store.GetSnapshots(cmd.Context(), store.SnapshotFilter{
				Symbol: symbol,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(entries)
			}

			if len(entries) == 0 {
				output.Dim("No journal entries for %s.", symbol)
				return nil
			}

			table := NewTable(output, "TIME", "SPOT", "ATM", "MAX PAIN", "PCR OI", "CALL OI", "PUT OI")
			for _, e := range entries {
				table.AddRow(
					e.ComputedAt.In(utils.IndiaLocation).Format("02 Jan 15:04"),
					fmt.Sprintf("%.2f", e.SpotPrice),
					fmt.Sprintf("%.0f", e.ATMStrike),
					fmt.Sprintf("%.0f", e.MaxPainStrike),
					formatPCR(e.PCROI),
					utils.FormatQuantity(e.TotalCallOI),
					utils.FormatQuantity(e.TotalPutOI),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "maximum entries to show")
	return cmd
}

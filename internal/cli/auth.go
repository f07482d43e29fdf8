package cli

import (
	"time"

	"github.com/spf13/cobra"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"optionstream/internal/errors"
	"optionstream/internal/quotes"
	"optionstream/internal/store"
	"optionstream/pkg/utils"
)

// Kite access tokens are invalidated around 06:00 IST the next day.
func sessionExpiry(now time.Time) time.Time {
	ist := now.In(utils.IndiaLocation)
	next := time.Date(ist.Year(), ist.Month(), ist.Day(), 6, 0, 0, 0, utils.IndiaLocation)
	if !ist.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [request-token]",
		Short: "Authenticate with Zerodha Kite",
		Long: `Authenticate with Zerodha Kite Connect.

Run without arguments to print the login URL. After completing the
browser login, rerun with the request token from the redirect URL.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			creds := app.Config.Credentials.Kite
			if creds.APIKey == "" || creds.APISecret == "" {
				output.Error("Kite credentials missing; add api_key and api_secret to credentials.toml")
				return errors.ErrConfigInvalid
			}

			client := kiteconnect.New(creds.APIKey)
			if len(args) == 0 {
				output.Info("Visit the login URL, then rerun with the request token:")
				output.Println(client.GetLoginURL())
				return nil
			}

			session, err := client.GenerateSession(args[0], creds.APISecret)
			if err != nil {
				return errors.Wrap(err, "session exchange failed")
			}

			if app.Store == nil {
				output.Warning("Store unavailable; session not persisted")
				output.Printf("access_token: %s\n", session.AccessToken)
				return nil
			}

			err = app.Store.SaveSession(cmd.Context(), store.Session{
				AccessToken: session.AccessToken,
				UserID:      session.UserID,
				ExpiresAt:   sessionExpiry(time.Now()),
			})
			if err != nil {
				return errors.Wrap(err, "failed to persist session")
			}

			output.Success("Logged in as %s", session.UserID)
			return nil
		},
	}
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored Kite session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				output.Warning("Store unavailable; nothing to clear")
				return nil
			}
			if err := app.Store.ClearSession(cmd.Context()); err != nil {
				return err
			}
			output.Success("Session cleared")
			return nil
		},
	}
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication and market status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			marketStatus := string(utils.GetMarketStatus(time.Now()))
			authenticated := false
			userID := ""
			var expiresAt time.Time

			if app.Store != nil {
				if session, err := app.Store.LoadSession(cmd.Context()); err == nil {
					authenticated = true
					userID = session.UserID
					expiresAt = session.ExpiresAt
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"authenticated": authenticated,
					"user_id":       userID,
					"expires_at":    expiresAt,
					"market_status": marketStatus,
				})
			}

			output.Printf("Market:        %s\n", output.MarketStatus(marketStatus))
			if authenticated {
				output.Printf("Session:       %s\n", output.Green("active"))
				output.Printf("User:          %s\n", userID)
				output.Printf("Valid until:   %s\n", expiresAt.In(utils.IndiaLocation).Format("2006-01-02 15:04 MST"))
			} else {
				output.Printf("Session:       %s\n", output.Red("none"))
				output.Dim("Run 'optionstream login' to authenticate.")
			}
			return nil
		},
	}
}

// kiteSource builds a Kite-backed quote source from the stored session
// or a configured access token.
func (app *App) kiteSource(cmd *cobra.Command) (quotes.QuoteSource, error) {
	creds := app.Config.Credentials.Kite
	if creds.APIKey == "" {
		return nil, errors.Wrap(errors.ErrConfigInvalid, "kite api_key missing")
	}

	accessToken := creds.AccessToken
	if accessToken == "" && app.Store != nil {
		session, err := app.Store.LoadSession(cmd.Context())
		if err != nil {
			return nil, err
		}
		accessToken = session.AccessToken
	}
	if accessToken == "" {
		return nil, errors.ErrNotAuthenticated
	}

	return quotes.NewKiteSource(quotes.KiteConfig{
		APIKey:            creds.APIKey,
		AccessToken:       accessToken,
		RequestsPerSecond: creds.RequestsPerSecond,
	}, app.Logger), nil
}

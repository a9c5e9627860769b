package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/court-autobook/internal/foys"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect [token]",
		Short: "Decode the token's claims and expiry without verifying it (default: the configured token)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			raw := a.settings.Snapshot().Token
			if len(args) == 1 {
				raw = args[0]
			}
			if raw == "" {
				return errors.New("no token configured")
			}
			ti, err := foys.InspectToken(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "subject: %s\nissuer:  %s\n", ti.Subject, ti.Issuer)
			switch {
			case ti.ExpiresAt.IsZero():
				fmt.Fprintln(out, "expires: never")
			case ti.Expired(time.Now()):
				fmt.Fprintf(out, "expires: %s (expired %s ago)\n", ti.ExpiresAt.Format(time.RFC3339), time.Since(ti.ExpiresAt).Round(time.Second))
			default:
				fmt.Fprintf(out, "expires: %s (in %s)\n", ti.ExpiresAt.Format(time.RFC3339), time.Until(ti.ExpiresAt).Round(time.Second))
			}
			return printJSON(out, ti.Claims)
		}),
	})
	return cmd
}

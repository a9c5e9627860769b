package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/court-autobook/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the persisted upstream settings",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var reveal bool
	c := &cobra.Command{
		Use:   "show",
		Short: "Print the settings (token redacted)",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			st := a.settings.Snapshot()
			if !reveal {
				st = st.Redacted()
			}
			return printJSON(cmd.OutOrStdout(), st)
		}),
	}
	c.Flags().BoolVar(&reveal, "reveal", false, "print the token in clear")
	return c
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set key=value...",
		Short: "Merge key=value pairs into the settings file",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			patch, err := config.PatchFromPairs(args)
			if err != nil {
				return err
			}
			st, err := a.settings.Update(patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", a.settings.Path())
			return printJSON(cmd.OutOrStdout(), st.Redacted())
		}),
	}
}

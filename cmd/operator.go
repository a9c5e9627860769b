package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/court-autobook/internal/auth"
)

func newOperatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Control plane operator helpers",
	}

	var password string
	hash := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for CONTROL_PASSWORD_HASH (reads the password from stdin without --password)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("empty password")
			}
			h, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export CONTROL_PASSWORD_HASH='%s'\n", h)
			return nil
		},
	}
	hash.Flags().StringVar(&password, "password", "", "password (visible in shell history; prefer stdin)")
	cmd.AddCommand(hash)
	return cmd
}

package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate COOKIE_HASH_KEY, COOKIE_BLOCK_KEY and SECRET_KEY values (base64)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range []string{"COOKIE_HASH_KEY", "COOKIE_BLOCK_KEY", "SECRET_KEY"} {
				k := make([]byte, 32)
				if _, err := rand.Read(k); err != nil {
					return err
				}
				fmt.Fprintf(out, "export %s=%s\n", name, base64.StdEncoding.EncodeToString(k))
			}
			return nil
		},
	}
}

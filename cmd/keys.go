package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate COOKIE_HASH_KEY, COOKIE_BLOCK_KEY, KV_ENC_KEY and CAPTURE_TOKEN values",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range []string{"COOKIE_HASH_KEY", "COOKIE_BLOCK_KEY", "KV_ENC_KEY"} {
				k, err := randomBytes(32)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "export %s=%s\n", name, base64.StdEncoding.EncodeToString(k))
			}
			tok, err := randomBytes(24)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "export CAPTURE_TOKEN=%s\n", hex.EncodeToString(tok))
			return nil
		},
	}
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

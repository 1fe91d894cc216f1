package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/aove-scheduler/internal/kv"
)

var settableKeys = map[string]func(string) error{
	kv.KeyChunkSize: func(v string) error {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer", kv.KeyChunkSize)
		}
		return nil
	},
	kv.KeyBarkKey:    func(string) error { return nil },
	kv.KeyBarkServer: func(string) error { return nil },
	kv.KeyRecordsID:  func(string) error { return nil },
}

func newStoreCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Read or write notification settings in the key-value store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Print a stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, o.log)
			if err != nil {
				return err
			}
			defer e.close()

			v, ok, err := e.store.Read(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not set", args[0])
			}
			fmt.Fprintln(os.Stdout, v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a setting (" + kv.KeyChunkSize + ", " + kv.KeyBarkKey + ", " + kv.KeyBarkServer + ", " + kv.KeyRecordsID + ")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			check, ok := settableKeys[args[0]]
			if !ok {
				return fmt.Errorf("unknown key %q (use `accounts` for %s)", args[0], kv.KeyAccounts)
			}
			if err := check(args[1]); err != nil {
				return err
			}
			ctx := context.Background()
			e, err := openEnv(ctx, o.log)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.store.Write(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "stored %s\n", args[0])
			return nil
		},
	})

	return cmd
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/aove-scheduler/internal/account"
	"github.com/example/aove-scheduler/internal/kv"
)

func newAccountsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage the stored account list (" + kv.KeyAccounts + ")",
	}
	cmd.AddCommand(newAccountsListCmd(o))
	cmd.AddCommand(newAccountsAddCmd(o))
	cmd.AddCommand(newAccountsSetCmd(o))
	return cmd
}

func readAccounts(ctx context.Context, e *env, o *rootOptions) ([]account.Account, error) {
	raw, ok, err := e.store.Read(ctx, kv.KeyAccounts)
	if err != nil || !ok {
		return nil, err
	}
	return account.Parse(raw, o.log)
}

func writeAccounts(ctx context.Context, e *env, accts []account.Account) error {
	if err := e.store.Write(ctx, kv.KeyAccounts, account.Format(accts)); err != nil {
		return err
	}
	if e.cfg.KVBackend == "env" {
		fmt.Fprintf(os.Stdout, "KV_BACKEND=env only keeps changes for this process; put this in .env:\n%s=%s\n", kv.KeyAccounts, account.Format(accts))
		return nil
	}
	fmt.Fprintf(os.Stdout, "stored %d account(s)\n", len(accts))
	return nil
}

func newAccountsListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with masked tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx, o.log)
			if err != nil {
				return err
			}
			defer e.close()

			accts, err := readAccounts(ctx, e, o)
			if err != nil {
				return err
			}
			if len(accts) == 0 {
				fmt.Fprintln(os.Stdout, "no accounts configured")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tLABEL\tTOKEN")
			for i, a := range accts {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, a.Label, a.Masked())
			}
			return tw.Flush()
		},
	}
}

func newAccountsAddCmd(o *rootOptions) *cobra.Command {
	var token, label string

	c := &cobra.Command{
		Use:   "add",
		Short: "Append one account",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, label = strings.TrimSpace(token), strings.TrimSpace(label)
			if strings.ContainsAny(token+label, "@|") {
				return fmt.Errorf("token and label must not contain @ or |")
			}
			ctx := context.Background()
			e, err := openEnv(ctx, o.log)
			if err != nil {
				return err
			}
			defer e.close()

			accts, err := readAccounts(ctx, e, o)
			if err != nil {
				return err
			}
			return writeAccounts(ctx, e, append(accts, account.Account{Token: token, Label: label}))
		},
	}

	c.Flags().StringVar(&token, "token", "", "member token")
	c.Flags().StringVar(&label, "label", "", "label shown in reports")
	_ = c.MarkFlagRequired("token")
	_ = c.MarkFlagRequired("label")
	return c
}

func newAccountsSetCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set token1|label1@token2|label2",
		Short: "Replace the whole account list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accts, err := account.Parse(args[0], o.log)
			if err != nil {
				return err
			}
			ctx := context.Background()
			e, err := openEnv(ctx, o.log)
			if err != nil {
				return err
			}
			defer e.close()
			return writeAccounts(ctx, e, accts)
		},
	}
}

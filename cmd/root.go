package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/aove-scheduler/internal/config"
	"github.com/example/aove-scheduler/internal/logging"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

type rootOptions struct {
	verbose bool
	log     *zap.Logger
}

func NewRootCmd() *cobra.Command {
	o := &rootOptions{log: zap.NewNop()}

	root := &cobra.Command{
		Use:           "aovesched",
		Short:         "Daily check-in, member-day draws and coupon reports for weaiove accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotEnv()
			level := config.LogLevel()
			if o.verbose {
				level = "debug"
			}
			log, err := logging.New(level)
			if err != nil {
				return err
			}
			o.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = o.log.Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newRunCmd(o))
	root.AddCommand(newAccountsCmd(o))
	root.AddCommand(newStoreCmd(o))
	root.AddCommand(newServerCmd(o))
	root.AddCommand(newUserCmd(o))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

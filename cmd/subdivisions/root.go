package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/subdivisions/config"
	"github.com/Ramsey-B/subdivisions/pkg/logging"
)

// newRootCmd returns the command tree and the app its commands share. The caller closes the app
// once the command returns.
func newRootCmd() (*cobra.Command, *app) {
	var envFile string
	a := &app{}

	cmd := &cobra.Command{
		Use:           "subdivisions",
		Short:         "Versioned registry of French administrative subdivisions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			logger, sync, err := logging.NewLogger(cfg.AppName, cfg.LogLevel, cfg.PrettyLogs)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			a.onClose(func() error {
				sync()
				return nil
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment")

	cmd.AddCommand(
		newServeCmd(a),
		newImportCmd(a),
		newEnrichCmd(a),
		newMigrateCmd(a),
	)
	return cmd, a
}

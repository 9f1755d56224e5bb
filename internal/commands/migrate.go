package commands

import (
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/cmd/api"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := root.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.stop()
			cfg, logger := sess.cfg, sess.logger
			deps, err := api.InitDependencies(cfg, logger, api.Options{RunMigrations: true})
			if err != nil {
				return err
			}
			deps.Cleanup()
			return nil
		},
	}
}

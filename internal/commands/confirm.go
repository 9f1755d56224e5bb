package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/cmd/api"
)

func newConfirmCommand(root *rootOptions) *cobra.Command {
	var owner string
	var in string

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Persist reviewed drafts from a process outcome",
		Long: "Reads the outcome JSON written by process, creates any categories referenced\n" +
			"by name and inserts every draft in a single transaction.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := parseOwner(owner)
			if err != nil {
				return err
			}
			outcome, err := readOutcome(in)
			if err != nil {
				return err
			}

			sess, err := root.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.stop()
			cfg, logger := sess.cfg, sess.logger
			deps, err := api.InitDependencies(cfg, logger, api.Options{})
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			ids, err := deps.ImportService.Confirm(cmd.Context(), ownerID, outcome.Drafts())
			if err != nil {
				return err
			}

			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			logger.Info("import confirmed", "transactions", len(ids))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner (user) id the transactions belong to (required)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().StringVarP(&in, "in", "i", "", "outcome JSON produced by process (required)")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

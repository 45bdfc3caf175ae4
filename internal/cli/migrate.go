package cli

import (
	"github.com/spf13/cobra"

	"diary/internal/db"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if err := db.AutoMigrateAndIndexes(a.db); err != nil {
				return err
			}
			a.log.Info("schema up to date")
			return nil
		},
	}
}

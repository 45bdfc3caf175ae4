package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"diary/internal/jobs"
)

func NewReclaimCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Remove note bodies left behind by failed cleanups",
		Long: `Run every due body reclaim job once and exit.

Jobs are queued when a note body could not be removed right after the note was
deleted or rewritten. The serve command runs the same work periodically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if a.files == nil {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "inline body storage: nothing to reclaim")
				return err
			}

			w := jobs.NewWorker(a.reclaims, a.files, a.cfg.ReclaimInterval, a.log)
			n, err := w.Drain(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d job(s)\n", n)
			return err
		},
	}
}

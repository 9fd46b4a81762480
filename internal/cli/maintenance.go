package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tempshare/internal/server/service"
)

// NewSweepCommand creates the 'sweep' command.
func NewSweepCommand(ctx context.Context, svc *service.FileService) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired files now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := svc.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired %s\n", n, plural(n, "file", "files"))
			return nil
		},
	}
}

// NewReconcileCommand creates the 'reconcile' command.
func NewReconcileCommand(ctx context.Context, svc *service.FileService) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Delete orphaned content past the upload grace period and report records with missing content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := svc.Reconcile(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Orphans removed: %d\n", res.OrphansRemoved)
			fmt.Fprintf(out, "Missing content: %d\n", res.MissingContent)
			if res.Errors > 0 {
				return fmt.Errorf("%d objects could not be removed", res.Errors)
			}
			return nil
		},
	}
}

// NewStatsCommand creates the 'stats' command.
func NewStatsCommand(ctx context.Context, svc *service.FileService) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := svc.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Files:     %s (%s permanent)\n",
				humanize.Comma(int64(stats.TotalFiles)), humanize.Comma(int64(stats.PermanentFiles)))
			fmt.Fprintf(out, "Storage:   %s\n", humanize.IBytes(uint64(stats.StorageUsed)))
			fmt.Fprintf(out, "Retention: %s\n", svc.ExpiryWindow())
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

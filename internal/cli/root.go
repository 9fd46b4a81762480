// Package cli implements the tempshare operator commands. They act on the
// same stores as the server, so they can be run next to it or instead of it.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"tempshare/internal/server/service"
)

const tabPadding = 2

// NewRootCommand returns the root command with all subcommands attached.
// Command output goes to out.
func NewRootCommand(ctx context.Context, svc *service.FileService, out io.Writer) *cobra.Command {
	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "tempshare",
		Short: "Manage files held by a tempshare server.",
		Long: `Tempshare keeps uploaded files for a limited time and serves them by id.
These commands list, upload, fetch and remove files directly against the
configured content and metadata stores.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	rootCmd.AddCommand(NewListCommand(ctx, svc))
	rootCmd.AddCommand(NewPutCommand(ctx, svc))
	rootCmd.AddCommand(NewGetCommand(ctx, svc))
	rootCmd.AddCommand(NewRemoveCommand(ctx, svc))
	rootCmd.AddCommand(NewKeepCommand(ctx, svc))
	rootCmd.AddCommand(NewSweepCommand(ctx, svc))
	rootCmd.AddCommand(NewReconcileCommand(ctx, svc))
	rootCmd.AddCommand(NewStatsCommand(ctx, svc))

	return rootCmd
}

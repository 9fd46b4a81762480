package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"tempshare/internal/bundle"
	"tempshare/internal/server/metadata"
	"tempshare/internal/server/service"
)

// NewListCommand creates the 'ls' command.
func NewListCommand(ctx context.Context, svc *service.FileService) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List stored files",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := svc.List(ctx)
			if err != nil {
				return err
			}
			return printFiles(cmd.OutOrStdout(), files, svc.ExpiryWindow(), time.Now())
		},
	}
}

func printFiles(out io.Writer, files []metadata.FileRecord, expiry time.Duration, now time.Time) error {
	if len(files) == 0 {
		fmt.Fprintln(out, "No files stored.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIZE\tUPLOADED\tEXPIRES")

	for _, f := range files {
		expires := "never"
		if !f.Permanent {
			expires = humanize.RelTime(f.UploadedTime().Add(expiry), now, "ago", "from now")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			f.ID,
			f.OriginalName,
			humanize.IBytes(uint64(f.SizeBytes)),
			humanize.RelTime(f.UploadedTime(), now, "ago", "from now"),
			expires,
		)
	}

	return w.Flush()
}

// NewPutCommand creates the 'put' command. A single file is uploaded as-is;
// several paths or a directory are uploaded as one ZIP archive.
func NewPutCommand(ctx context.Context, svc *service.FileService) *cobra.Command {
	var permanent bool

	cmd := &cobra.Command{
		Use:     "put [paths...]",
		Example: "$ tempshare put report.pdf\n$ tempshare put --permanent ./photos",
		Short:   "Upload files or directories",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(ctx, svc, cmd.OutOrStdout(), args, permanent)
		},
	}
	cmd.Flags().BoolVarP(&permanent, "permanent", "p", false, "Keep the upload until it is removed")

	return cmd
}

func runPut(ctx context.Context, svc *service.FileService, out io.Writer, args []string, permanent bool) error {
	parsed, err := bundle.ParseArgs(args)
	if err != nil {
		return err
	}

	tree, err := bundle.Build(parsed, time.Now())
	if err != nil {
		return err
	}

	content, err := tree.Open(ctx)
	if err != nil {
		return err
	}
	defer content.Close()

	name := tree.ArchiveName()
	mimeType := "application/zip"
	if f, single := tree.SingleFile(); single {
		detected, err := mimetype.DetectFile(f.Path())
		if err != nil {
			return err
		}
		mimeType = detected.String()
	}

	rec, err := svc.Save(ctx, service.Upload{
		Content:      content,
		OriginalName: name,
		MimeType:     mimeType,
		Permanent:    permanent,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Uploaded %s (%s)\n", rec.OriginalName, humanize.IBytes(uint64(rec.SizeBytes)))
	fmt.Fprintf(out, "ID:    %s\n", rec.ID)
	fmt.Fprintf(out, "Share: %s\n", rec.ShareLink)
	return nil
}

// NewGetCommand creates the 'get' command.
func NewGetCommand(ctx context.Context, svc *service.FileService) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Write a stored file to disk or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, content, err := svc.FetchContent(ctx, args[0])
			if err != nil {
				return err
			}
			defer content.Close()

			if output == "-" {
				_, err = io.Copy(cmd.OutOrStdout(), content)
				return err
			}
			if output == "" {
				output = rec.StoredFilename
			}

			f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, content); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s)\n", output, humanize.IBytes(uint64(rec.SizeBytes)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `Destination path, "-" for stdout (default: stored filename)`)

	return cmd
}

// NewRemoveCommand creates the 'rm' command.
func NewRemoveCommand(ctx context.Context, svc *service.FileService) *cobra.Command {
	return &cobra.Command{
		Use:   "rm [ids...]",
		Short: "Remove stored files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, id := range args {
				deleted, err := svc.Delete(ctx, id)
				switch {
				case err != nil:
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
				case !deleted:
					errs = append(errs, fmt.Errorf("%s: %w", id, service.ErrNotFound))
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "Removed", id)
				}
			}
			return errors.Join(errs...)
		},
	}
}

// NewKeepCommand creates the 'keep' command.
func NewKeepCommand(ctx context.Context, svc *service.FileService) *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "keep [id]",
		Short: "Mark a file permanent so it never expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := svc.SetPermanent(ctx, args[0], !off)
			if err != nil {
				return err
			}
			state := "permanent"
			if !rec.Permanent {
				state = fmt.Sprintf("temporary (expires after %s)", svc.ExpiryWindow())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", rec.ID, state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "Make the file temporary again")

	return cmd
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/archive"
	"github.com/spf13/cobra"
)

var errNoArchive = errors.New("no archive directory: set save_dir in the config or pass --dir")

func newArchiveCommand(opts *rootOptions) *cobra.Command {
	var dir string

	store := func() (*archive.Store, error) {
		if dir == "" {
			dir = opts.cfg.SaveDir
		}
		if dir == "" {
			return nil, errNoArchive
		}
		return archive.NewStore(dir), nil
	}

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the PDFs saved by earlier scans",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Archive directory (default save_dir from config)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved resumes and cover letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			entries, err := s.List()
			if err != nil {
				return err
			}
			printArchive(cmd.OutOrStdout(), s.Dir(), entries)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved PDFs",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			removed, err := s.Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) from %s\n", removed, s.Dir())
			return nil
		},
	}

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}

func printArchive(w io.Writer, dir string, entries []archive.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No saved PDFs in %s\n", dir)
		return
	}

	t := newTable("Sender", "Document", "Size")
	for _, e := range entries {
		t.Row(e.Sender, e.Kind, strconv.FormatInt(e.Size/1024, 10)+" KB")
	}
	fmt.Fprintln(w, dimStyle.Render(dir))
	fmt.Fprintln(w, t.String())
}

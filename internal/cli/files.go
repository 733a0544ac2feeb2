package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/wqingest/internal/core"
)

// errNotLoaded makes check and load exit non-zero when the file would not be
// (or was not) loaded.
var errNotLoaded = errors.New("file not loaded")

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Run the validation checks on one file without archiving or loading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := build(cmd.Context(), a.cfg, newNotifier(a.cfg))
			if err != nil {
				return err
			}
			defer comps.Close()

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			out, err := comps.gate(nil).Evaluate(cmd.Context(), path)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: error\n%s\n", filepath.Base(path), core.FormatUserError(err))
				return err
			}
			printOutcome(cmd.OutOrStdout(), filepath.Base(path), out)
			if out.Verdict == core.VerdictRejected {
				return errNotLoaded
			}
			return nil
		},
	}
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Process one file through the full pipeline, archiving it and notifying as the daemon would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := build(cmd.Context(), a.cfg, newNotifier(a.cfg))
			if err != nil {
				return err
			}
			defer comps.Close()

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			res := comps.pipeline(core.NewDirArchiver(a.cfg.Ingest.ArchiveDir)).Process(cmd.Context(), path)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.File, res.Verdict)
			if res.Message != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			}
			if res.Error != "" || res.Verdict != core.VerdictProceed.String() {
				return errNotLoaded
			}
			return nil
		},
	}
}

func printOutcome(w io.Writer, file string, out core.Outcome) {
	fmt.Fprintf(w, "%s: %s\n", file, out.Verdict)
	switch out.Verdict {
	case core.VerdictRejected:
		fmt.Fprintf(w, "reason: %s\n", out.Reason)
		if out.Detail != "" {
			fmt.Fprintf(w, "detail: %s\n", out.Detail)
		}
		fmt.Fprintln(w, core.FormatUserError(out.Err()))
	case core.VerdictProceed:
		fmt.Fprintf(w, "rows: %d\n", out.Records.Len())
	}
}

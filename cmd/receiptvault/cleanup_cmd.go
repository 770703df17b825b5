package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/receiptvault/internal/lifecycle"
)

func newCleanupCommand() *cobra.Command {
	var (
		scanType          string
		userID            int64
		retentionDays     int
		batchSize         int
		gracePeriod       time.Duration
		dryRun            bool
		excludeReferenced bool
		yes               bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Scan stored receipts and delete orphaned, expired or per-user objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mode, err := parseCleanupMode(scanType)
			if err != nil {
				return err
			}
			if mode == lifecycle.ModeUser && userID <= 0 {
				return fmt.Errorf("--user-id is required for --type=user")
			}

			cfg := loadConfig()
			log := newLogger()

			backend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			db, refs, err := openRefStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if mode == lifecycle.ModeUser && !dryRun && !yes {
				ok, err := confirmUserDeletion(cmd.InOrStdin(), cmd.OutOrStdout(), userID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("confirmation did not match, aborting")
				}
			}

			mgr := lifecycle.NewManager(backend, refs, lifecycle.Config{
				GracePeriod:       gracePeriod,
				RetentionDays:     retentionDays,
				BatchSize:         batchSize,
				ExcludeReferenced: excludeReferenced,
			}, log, nil)

			var report *lifecycle.Report
			switch mode {
			case lifecycle.ModeOrphaned:
				report, err = mgr.CleanOrphaned(ctx, dryRun)
			case lifecycle.ModeExpired:
				report, err = mgr.CleanExpired(ctx, retentionDays, dryRun)
			case lifecycle.ModeUser:
				report, err = mgr.CleanUser(ctx, userID, dryRun)
			}
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&scanType, "type", "", "scan type: orphaned, expired or user")
	cmd.Flags().Int64Var(&userID, "user-id", 0, "owner id, required for --type=user")
	cmd.Flags().IntVar(&retentionDays, "retention-days", lifecycle.DefaultRetentionDays, "expiration age in days for --type=expired")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "objects per listing page (0 = backend default)")
	cmd.Flags().DurationVar(&gracePeriod, "grace-period", lifecycle.DefaultGracePeriod, "minimum object age before orphan deletion")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report candidates without deleting")
	cmd.Flags().BoolVar(&excludeReferenced, "exclude-referenced", false, "make --type=expired keep objects that still have an active reference")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the interactive confirmation for --type=user")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func parseCleanupMode(s string) (lifecycle.Mode, error) {
	switch lifecycle.Mode(s) {
	case lifecycle.ModeOrphaned, lifecycle.ModeExpired, lifecycle.ModeUser:
		return lifecycle.Mode(s), nil
	}
	return "", fmt.Errorf("unknown scan type %q (want orphaned, expired or user)", s)
}

// confirmUserDeletion requires the operator to type the exact phrase
// back before an entire user namespace is removed.
func confirmUserDeletion(in io.Reader, out io.Writer, userID int64) (bool, error) {
	phrase := fmt.Sprintf("delete user %d receipts", userID)
	fmt.Fprintf(out, "This permanently deletes ALL receipts of user %d.\nType %q to continue: ", userID, phrase)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	return strings.TrimSpace(line) == phrase, nil
}

func printReport(out io.Writer, r *lifecycle.Report) {
	verb := "deleted"
	if r.DryRun {
		verb = "would delete"
		for _, key := range r.Candidates {
			fmt.Fprintf(out, "  %s\n", key)
		}
	}
	fmt.Fprintf(out, "%s scan: marked %d, %s %d, reclaimed %s\n",
		r.Mode, r.Marked, verb, r.Deleted, humanize.IBytes(uint64(r.BytesReclaimed)))
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
}

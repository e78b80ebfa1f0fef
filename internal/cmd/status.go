package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/masahif/steamharvest/internal/catalog"
	"github.com/masahif/steamharvest/internal/crawler"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show processing status counts and pending parent links",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := maintenanceConfig()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	counts, err := store.StatusCounts(ctx)
	if err != nil {
		return err
	}
	pending, err := store.PendingLinkCount(ctx)
	if err != nil {
		return err
	}
	summary, err := store.GetMeta(ctx, crawler.MetaLastSummary)
	if err != nil {
		return err
	}

	statuses := make([]catalog.Status, 0, len(counts))
	var total int64
	for status, n := range counts {
		statuses = append(statuses, status)
		total += n
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Storage: %s\n\n", describeStore(cfg))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, status := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t\n", status, humanize.Comma(counts[status]))
	}
	fmt.Fprintf(tw, "total\t%s\t\n", humanize.Comma(total))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nPending parent links: %s\n", humanize.Comma(pending))
	if summary != "" {
		fmt.Fprintf(out, "Last session: %s\n", summary)
	}
	return nil
}

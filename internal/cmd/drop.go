package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var dropTablesCmd = &cobra.Command{
	Use:   "drop-tables",
	Short: "Drop every catalog table after confirmation",
	Long: `Drop every catalog table, including the processing status ledger.

The command asks for confirmation and only proceeds when "yes" is typed
(in any letter case).
The schema is recreated empty the next time the store is opened.`,
	Args: cobra.NoArgs,
	RunE: runDropTables,
}

func runDropTables(cmd *cobra.Command, _ []string) error {
	cfg, err := maintenanceConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "This will drop all tables in %s. Type 'yes' to continue: ", describeStore(cfg))

	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(out, "\nCancelled.")
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(answer), "yes") {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	ctx := commandContext(cmd)
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.DropAll(ctx); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	fmt.Fprintln(out, "All tables dropped.")
	return nil
}

package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/kozaktomas/phenotype-matcher/internal/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect persisted analysis reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored report",
	Long:  "Show a stored report. Opening a report counts as an access, like the API does.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportShowCmd)

	reportShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func runReportShow(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openDatastore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Opening needs no generator; the narrative is already stored.
	assembler := report.NewAssembler(store.reports, nil, 0, logger)
	rep, err := assembler.Open(cmd.Context(), args[0])
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("report %s not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("opening report: %w", err)
	}

	if jsonOutput {
		return outputJSON(report.NewDocument(rep))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", rep.ID)
	fmt.Fprintf(w, "Created:\t%s\n", rep.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Accessed:\t%d times\n", rep.AccessCount)
	fmt.Fprintf(w, "Mode:\t%s\n", rep.Mode)
	fmt.Fprintf(w, "Degraded:\t%t\n", rep.Degraded)
	fmt.Fprintf(w, "Primary:\t%s (%.3f)\n", rep.PrimaryEntityID, rep.PrimaryScore)
	for _, s := range rep.Secondary {
		fmt.Fprintf(w, "Secondary:\t%s (%.3f)\n", s.EntityID, s.Score)
	}
	fmt.Fprintf(w, "Narrative source:\t%s\n", rep.NarrativeSource)
	w.Flush()

	fmt.Printf("\n%s\n", rep.Narrative)
	return nil
}

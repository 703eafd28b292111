package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/phenotype-matcher/internal/fusion"
	"github.com/kozaktomas/phenotype-matcher/internal/pipeline"
	"github.com/kozaktomas/phenotype-matcher/internal/report"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Analyze a facial image against the reference corpus",
	Long: `Upload an image, run the analysis pipeline and print the ranked matches.

The report is persisted exactly like an API submission, so it can be opened
again with 'phenotype-matcher report show <id>'.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	imageData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	analysis, err := a.pipeline.Submit(cmd.Context(), imageData)
	if err != nil {
		return fmt.Errorf("analysis failed (%s): %w", pipeline.CodeOf(err), err)
	}

	if jsonOutput {
		return outputJSON(report.NewDocument(analysis.Report))
	}
	printAnalysis(analysis)
	return nil
}

func formatOptionalScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *score)
}

func formatSignals(signals []fusion.Signal) string {
	names := make([]string, len(signals))
	for i, s := range signals {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func printAnalysis(analysis *pipeline.Analysis) {
	res := analysis.Result
	rep := analysis.Report

	fmt.Printf("Report:   %s\n", rep.ID)
	fmt.Printf("Mode:     %s\n", res.Mode)
	fmt.Printf("Signals:  %s\n", formatSignals(res.SignalsUsed))
	if res.Degraded {
		fmt.Println("Degraded: yes")
	}
	if res.VisionProvider != "" {
		fmt.Printf("Vision:   %s ($%.4f)\n", res.VisionProvider, res.VisionCost)
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tENTITY\tFUSED\tTIER\tEMBEDDING\tMEASUREMENT\tVISION")
	for i, m := range res.Matches {
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%s\t%.3f\t%s\t%s\n",
			i+1, m.Entity.Name, m.FusedScore, m.Confidence,
			m.EmbeddingSimilarity,
			formatOptionalScore(m.MeasurementSimilarity),
			formatOptionalScore(m.VisionConfidence),
		)
	}
	w.Flush()

	fmt.Printf("\n%s\n", rep.Narrative)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/kozaktomas/phenotype-matcher/internal/embedding"
	"github.com/kozaktomas/phenotype-matcher/internal/phenotype"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// inlineModel marks references whose vector came from the corpus file
const inlineModel = "inline"

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the reference phenotype corpus",
}

var corpusImportCmd = &cobra.Command{
	Use:   "import <corpus.yaml>",
	Short: "Import reference entities from a YAML corpus file",
	Long: `Import reference entities into PostgreSQL.

Entities with an inline vector are stored as-is. Entities with an image get
their vector from the embedding service; image paths are resolved relative to
the corpus file. Existing entities with the same id are replaced and the
reference HNSW index is rebuilt afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runCorpusImport,
}

var corpusListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reference entities",
	RunE:  runCorpusList,
}

func init() {
	rootCmd.AddCommand(corpusCmd)
	corpusCmd.AddCommand(corpusImportCmd)
	corpusCmd.AddCommand(corpusListCmd)

	corpusImportCmd.Flags().Int("concurrency", 4, "Number of parallel embedding requests")
	corpusImportCmd.Flags().Bool("dry-run", false, "Validate and embed without writing to the database")
	corpusListCmd.Flags().Bool("json", false, "Output as JSON")
}

func loadCorpusFile(path string) ([]phenotype.CorpusEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()
	return phenotype.LoadCorpus(f)
}

func storedFromEntry(entry phenotype.CorpusEntry, vector []float32, model string) database.StoredReference {
	return database.StoredReference{
		ID:          entry.ID,
		Name:        entry.Name,
		Description: entry.Description,
		Regions:     entry.Regions,
		Embedding:   vector,
		Archetype:   entry.Archetype,
		Model:       model,
	}
}

// embedCorpus resolves a vector for every entry, computing the missing ones
// with the embedding client. Returned references keep the corpus order.
func embedCorpus(
	ctx context.Context, entries []phenotype.CorpusEntry, baseDir string,
	embedder *embedding.Client, dim, concurrency int,
) ([]database.StoredReference, []error) {
	refs := make([]database.StoredReference, len(entries))
	var toEmbed []int
	var errs []error

	for i, entry := range entries {
		if len(entry.Vector) > 0 {
			if dim > 0 && len(entry.Vector) != dim {
				errs = append(errs, fmt.Errorf("entity %s: inline vector has %d dimensions, expected %d", entry.ID, len(entry.Vector), dim))
				continue
			}
			refs[i] = storedFromEntry(entry, entry.Vector, inlineModel)
			continue
		}
		toEmbed = append(toEmbed, i)
	}

	if len(toEmbed) == 0 {
		return refs, errs
	}

	bar := progressbar.NewOptions(len(toEmbed),
		progressbar.OptionSetDescription("Embedding references"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)

	for _, i := range toEmbed {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			entry := entries[i]
			imagePath := entry.Image
			if !filepath.IsAbs(imagePath) {
				imagePath = filepath.Join(baseDir, imagePath)
			}

			data, err := os.ReadFile(imagePath)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("entity %s: reading image: %w", entry.ID, err))
				mu.Unlock()
				return
			}

			result, err := embedder.Embed(ctx, data)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("entity %s: computing embedding: %w", entry.ID, err))
				mu.Unlock()
				return
			}

			mu.Lock()
			refs[i] = storedFromEntry(entry, result.Embedding, result.Model)
			mu.Unlock()
		}(i)
	}

	wg.Wait()
	fmt.Println()
	return refs, errs
}

func runCorpusImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	concurrency := mustGetInt(cmd, "concurrency")
	dryRun := mustGetBool(cmd, "dry-run")
	if concurrency < 1 {
		concurrency = 1
	}

	entries, err := loadCorpusFile(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d reference entities from %s\n", len(entries), args[0])

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	embedder := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim, cfg.Embedding.Timeout)
	refs, errs := embedCorpus(ctx, entries, filepath.Dir(args[0]), embedder, cfg.Embedding.Dim, concurrency)
	if len(errs) > 0 {
		for _, e := range errs {
			logger.Error("reference import failed", zap.Error(e))
		}
		return fmt.Errorf("%d of %d entities could not be imported", len(errs), len(entries))
	}

	if dryRun {
		fmt.Printf("Dry run: %d entities validated, nothing written\n", len(refs))
		return nil
	}

	store, err := openDatastore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.references.SaveBatch(ctx, refs); err != nil {
		return fmt.Errorf("saving references: %w", err)
	}
	fmt.Printf("Saved %d reference entities\n", len(refs))

	// The upsert changes the corpus metadata, so a persisted index is stale
	// and gets rebuilt here.
	if err := store.references.EnableHNSW(ctx, cfg.Database.HNSWIndexPath); err != nil {
		return fmt.Errorf("building reference HNSW index: %w", err)
	}
	fmt.Printf("Reference HNSW index rebuilt with %d references\n", store.references.HNSWCount())
	return nil
}

type corpusListItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Regions      []string `json:"regions"`
	Model        string   `json:"model"`
	Dim          int      `json:"dim"`
	HasArchetype bool     `json:"has_archetype"`
}

func runCorpusList(cmd *cobra.Command, args []string) error {
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

	refs, err := store.references.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing references: %w", err)
	}

	items := make([]corpusListItem, len(refs))
	for i, ref := range refs {
		regions := ref.Regions
		if regions == nil {
			regions = []string{}
		}
		items[i] = corpusListItem{
			ID:           ref.ID,
			Name:         ref.Name,
			Regions:      regions,
			Model:        ref.Model,
			Dim:          len(ref.Embedding),
			HasArchetype: len(ref.Archetype) > 0,
		}
	}

	if jsonOutput {
		return outputJSON(items)
	}
	if len(items) == 0 {
		return errors.New("reference corpus is empty")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREGIONS\tMODEL\tDIM")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", item.ID, item.Name, strings.Join(item.Regions, ", "), item.Model, item.Dim)
	}
	w.Flush()
	fmt.Printf("\nTotal: %d references\n", len(items))
	return nil
}

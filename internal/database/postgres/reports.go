package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/lib/pq"
)

const reportColumns = `id, primary_entity_id, primary_score, secondary, narrative, narrative_source,
	upload_key, image_sha256, mode, signals_used, degraded, vision_provider, vision_cost,
	result, access_count, created_at, last_accessed_at`

// ReportRepository stores assembled analysis reports in PostgreSQL
type ReportRepository struct {
	pool *Pool
}

// NewReportRepository creates a new PostgreSQL report repository
func NewReportRepository(pool *Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

func scanReport(row rowScanner) (*database.StoredReport, error) {
	var report database.StoredReport
	var secondary, result []byte
	var lastAccessed sql.NullTime

	err := row.Scan(
		&report.ID,
		&report.PrimaryEntityID,
		&report.PrimaryScore,
		&secondary,
		&report.Narrative,
		&report.NarrativeSource,
		&report.UploadKey,
		&report.ImageSHA256,
		&report.Mode,
		pq.Array(&report.SignalsUsed),
		&report.Degraded,
		&report.VisionProvider,
		&report.VisionCost,
		&result,
		&report.AccessCount,
		&report.CreatedAt,
		&lastAccessed,
	)
	if err != nil {
		return nil, err
	}

	if len(secondary) > 0 {
		if err := json.Unmarshal(secondary, &report.Secondary); err != nil {
			return nil, fmt.Errorf("decode secondary matches: %w", err)
		}
	}
	report.Result = json.RawMessage(result)
	if lastAccessed.Valid {
		t := lastAccessed.Time
		report.LastAccessedAt = &t
	}
	return &report, nil
}

// SaveReport inserts a new report. Inserting an id twice is an error.
func (r *ReportRepository) SaveReport(ctx context.Context, report *database.StoredReport) error {
	secondary := report.Secondary
	if secondary == nil {
		secondary = []database.SecondaryMatch{}
	}
	secondaryJSON, err := json.Marshal(secondary)
	if err != nil {
		return fmt.Errorf("encode secondary matches: %w", err)
	}
	result := report.Result
	if len(result) == 0 {
		result = json.RawMessage(`{}`)
	}
	signals := report.SignalsUsed
	if signals == nil {
		signals = []string{}
	}

	query := `
		INSERT INTO reports (id, primary_entity_id, primary_score, secondary, narrative, narrative_source,
			upload_key, image_sha256, mode, signals_used, degraded, vision_provider, vision_cost, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`
	err = r.pool.QueryRow(ctx, query,
		report.ID,
		report.PrimaryEntityID,
		report.PrimaryScore,
		secondaryJSON,
		report.Narrative,
		report.NarrativeSource,
		report.UploadKey,
		report.ImageSHA256,
		report.Mode,
		pq.Array(signals),
		report.Degraded,
		report.VisionProvider,
		report.VisionCost,
		[]byte(result),
	).Scan(&report.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by id
func (r *ReportRepository) GetReport(ctx context.Context, id string) (*database.StoredReport, error) {
	report, err := scanReport(r.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	return report, nil
}

// IncrementAccess bumps the access counter and returns the updated report
func (r *ReportRepository) IncrementAccess(ctx context.Context, id string) (*database.StoredReport, error) {
	query := `
		UPDATE reports
		SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE id = $1
		RETURNING ` + reportColumns
	report, err := scanReport(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update report access: %w", err)
	}
	return report, nil
}

var _ database.ReportWriter = (*ReportRepository)(nil)

// Package report assembles analysis results into persisted, shareable reports.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"github.com/kozaktomas/phenotype-matcher/internal/database"
	"github.com/kozaktomas/phenotype-matcher/internal/fusion"
	"github.com/kozaktomas/phenotype-matcher/internal/narrative"
	"go.uber.org/zap"
)

// ErrEmptyResult is returned when there is no primary match to report on
var ErrEmptyResult = errors.New("analysis result has no matches")

// Source identifies the image a report was built from
type Source struct {
	UploadKey   string
	ImageSHA256 string
}

// Assembler builds and stores reports. The generator is optional; without one
// every report uses the template narrative.
type Assembler struct {
	reports   database.ReportWriter
	generator narrative.Generator
	timeout   time.Duration
	logger    *zap.Logger
}

func NewAssembler(reports database.ReportWriter, generator narrative.Generator, timeout time.Duration, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = constants.DefaultNarrativeTimeout
	}
	return &Assembler{
		reports:   reports,
		generator: generator,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "report")),
	}
}

// Assemble writes a report for the result. Nothing is persisted once ctx is
// done, even if the narrative has already been generated.
func (a *Assembler) Assemble(ctx context.Context, result *fusion.AnalysisResult, src Source) (*database.StoredReport, error) {
	primary := result.Primary()
	if primary == nil {
		return nil, ErrEmptyResult
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, source := a.narrate(ctx, result)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	secondary := result.Secondary(constants.DefaultSecondaryCount)
	rep := &database.StoredReport{
		ID:              uuid.NewString(),
		PrimaryEntityID: primary.Entity.ID,
		PrimaryScore:    primary.FusedScore,
		Secondary:       make([]database.SecondaryMatch, len(secondary)),
		Narrative:       text,
		NarrativeSource: source,
		UploadKey:       src.UploadKey,
		ImageSHA256:     src.ImageSHA256,
		Mode:            string(result.Mode),
		SignalsUsed:     make([]string, len(result.SignalsUsed)),
		Degraded:        result.Degraded,
		VisionProvider:  result.VisionProvider,
		VisionCost:      result.VisionCost,
		Result:          payload,
	}
	for i, m := range secondary {
		rep.Secondary[i] = database.SecondaryMatch{EntityID: m.Entity.ID, Score: m.FusedScore}
	}
	for i, s := range result.SignalsUsed {
		rep.SignalsUsed[i] = string(s)
	}

	if err := a.reports.SaveReport(ctx, rep); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	a.logger.Info("report saved",
		zap.String("report_id", rep.ID),
		zap.String("primary", rep.PrimaryEntityID),
		zap.String("narrative_source", source),
	)
	return rep, nil
}

// narrate asks the generator under the assembler timeout and falls back to
// the template on any failure.
func (a *Assembler) narrate(ctx context.Context, result *fusion.AnalysisResult) (string, string) {
	if a.generator == nil {
		return narrative.Template(result), narrative.TemplateSource
	}

	genCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.generator.Generate(genCtx, result)
	if err != nil {
		a.logger.Warn("narrative generation failed, using template",
			zap.String("generator", a.generator.Name()),
			zap.Error(err),
		)
		return narrative.Template(result), narrative.TemplateSource
	}
	return text, a.generator.Name()
}

// Open returns a stored report and records the access.
func (a *Assembler) Open(ctx context.Context, id string) (*database.StoredReport, error) {
	rep, err := a.reports.IncrementAccess(ctx, id)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

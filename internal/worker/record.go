package worker

import (
	"context"
	"time"

	"github.com/SystemGuard-official/docparse/internal/models"
)

func (p *Pool) markProcessing(ctx context.Context, desc *models.JobDescriptor) {
	rec, err := p.store.Get(ctx, desc.ID)
	if err != nil || rec == nil {
		p.logger.Warn().Str("job_id", desc.ID).Msg("job record missing at dequeue time")
		return
	}
	rec.Status = models.StatusProcessing
	rec.StartedAt = time.Now()
	if err := p.store.Put(ctx, rec); err != nil {
		p.logger.Warn().Str("job_id", desc.ID).Err(err).Msg("failed to record processing status")
	}
}

func (p *Pool) updateProgress(ctx context.Context, jobID string, pct int) {
	rec, err := p.store.Get(ctx, jobID)
	if err != nil || rec == nil {
		return
	}
	rec.Progress = pct
	if err := p.store.Put(ctx, rec); err != nil {
		p.logger.Warn().Str("job_id", jobID).Err(err).Msg("failed to record progress")
	}
}

func (p *Pool) markCompleted(ctx context.Context, desc *models.JobDescriptor, result any) {
	rec, err := p.store.Get(ctx, desc.ID)
	if err != nil || rec == nil {
		return
	}
	rec.Status = models.StatusCompleted
	rec.Progress = 100
	rec.CompletedAt = time.Now()
	switch v := result.(type) {
	case *models.OCRResult:
		rec.OCRResult = v
	case *models.FormParseResult:
		rec.FormResult = v
	}
	if err := p.store.Put(ctx, rec); err != nil {
		p.logger.Warn().Str("job_id", desc.ID).Err(err).Msg("failed to record completion")
	}
}

func (p *Pool) markError(ctx context.Context, desc *models.JobDescriptor, message string) {
	rec, err := p.store.Get(ctx, desc.ID)
	if err != nil || rec == nil {
		return
	}
	rec.Status = models.StatusError
	rec.Error = message
	rec.CompletedAt = time.Now()
	if err := p.store.Put(ctx, rec); err != nil {
		p.logger.Warn().Str("job_id", desc.ID).Err(err).Msg("failed to record error")
	}
}

package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jmarchand/boamp-extractor/internal/extract"
	"github.com/jmarchand/boamp-extractor/internal/progress"
)

// PageClient issues one page request at the given offset.
type PageClient interface {
	FetchPage(ctx context.Context, offset int) ([]extract.Record, error)
}

// FetcherConfig tunes the date-window fetch loop.
type FetcherConfig struct {
	// PageSize is the offset stride; it must match the client's page size.
	PageSize int
	// OffsetCeiling stops pagination unconditionally once the offset
	// exceeds it, protecting against an unbounded remote source.
	OffsetCeiling int
	// DefaultMaxRecords caps the loop when a request leaves MaxRecords unset.
	DefaultMaxRecords int
}

// Fetcher accumulates all records published on a target date, walking the
// descending-sorted catalog page by page.
type Fetcher struct {
	client  PageClient
	cfg     FetcherConfig
	emitter progress.Emitter
	logger  *zap.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(client PageClient, cfg FetcherConfig, emitter progress.Emitter, logger *zap.Logger) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.OffsetCeiling <= 0 {
		cfg.OffsetCeiling = 10000
	}
	if cfg.DefaultMaxRecords <= 0 {
		cfg.DefaultMaxRecords = 5000
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, cfg: cfg, emitter: emitter, logger: logger}
}

// Fetch returns the ordered sequence of records whose publication date
// equals req.TargetDate. MaxRecords caps the loop trigger, not the final
// count: filtering happens after each page lands, so the loop may fetch
// past MaxRecords raw items and the returned length is governed by the
// date filter.
//
// A page request failure aborts the fetch and returns whatever has been
// accumulated with a nil error; the warning log and PAGE_ERROR event are
// the only trace of the degradation.
func (f *Fetcher) Fetch(ctx context.Context, req extract.FetchRequest) ([]extract.Record, error) {
	maxRecords := req.MaxRecords
	if maxRecords <= 0 {
		maxRecords = f.cfg.DefaultMaxRecords
	}

	var accumulated []extract.Record
	offset := 0
	for len(accumulated) < maxRecords {
		start := time.Now()
		page, err := f.client.FetchPage(ctx, offset)
		if err != nil {
			f.logger.Warn("catalog page fetch failed, keeping partial results",
				zap.String("job_id", req.JobID),
				zap.String("target_date", req.TargetDate),
				zap.Int("offset", offset),
				zap.Int("accumulated", len(accumulated)),
				zap.Error(err),
			)
			f.emitter.Emit(progress.Event{
				JobID:  req.JobID,
				TS:     time.Now().UTC(),
				Stage:  progress.StagePageError,
				Offset: offset,
				Note:   err.Error(),
			})
			break
		}
		f.emitter.Emit(progress.Event{
			JobID:   req.JobID,
			TS:      time.Now().UTC(),
			Stage:   progress.StagePageFetched,
			Offset:  offset,
			Records: len(page),
			Dur:     time.Since(start),
		})

		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			if rec.PublicationDate() == req.TargetDate {
				accumulated = append(accumulated, rec)
			}
		}
		// Results are sorted descending, so once the last record on the
		// page predates the target no later page can contain it.
		if page[len(page)-1].PublicationDate() < req.TargetDate {
			break
		}
		offset += f.cfg.PageSize
		if offset > f.cfg.OffsetCeiling {
			break
		}
	}
	return accumulated, nil
}

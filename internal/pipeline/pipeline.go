package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/crypto-crawler/internal/api"
	"github.com/rickgao/crypto-crawler/internal/model"
	"github.com/rickgao/crypto-crawler/internal/normalize"
)

// Fetcher returns one page of raw market snapshots.
type Fetcher interface {
	GetCoinMarkets(ctx context.Context, opts api.CoinMarketsOptions) ([]api.RawSnapshot, error)
}

// Persister stores a batch atomically and returns symbol to identity id.
type Persister interface {
	Persist(ctx context.Context, records []model.CoinRecord) (map[string]int64, error)
}

// Publisher sends events downstream.
type Publisher interface {
	Publish(ctx context.Context, events []model.PublishedEvent) error
}

// SnapshotSaver stores the dashboard snapshot.
type SnapshotSaver interface {
	Save(ctx context.Context, s model.Snapshot) error
}

// Recorder receives cycle metrics. *metrics.Crawler satisfies it.
type Recorder interface {
	ObserveCycle(outcome string, ok bool, d time.Duration, end time.Time)
	AddRecords(stage string, n int)
}

// Record stages reported to the Recorder.
const (
	StageFetched   = "fetched"
	StageRejected  = "rejected"
	StageSaved     = "saved"
	StagePublished = "published"
)

// Cycle outcomes.
const (
	OutcomeOK          = "ok"
	OutcomePartial     = "partial"
	OutcomeEmpty       = "empty"
	OutcomeFetchFailed = "fetch_failed"
)

// Config wires a Pipeline. Snapshots, Metrics and Logger are optional.
type Config struct {
	Fetcher   Fetcher
	Options   api.CoinMarketsOptions
	Persister Persister
	Publisher Publisher
	Snapshots SnapshotSaver
	Metrics   Recorder
	Logger    *slog.Logger
}

// Result summarizes one cycle.
type Result struct {
	CycleID   string
	Fetched   int
	Parsed    int
	Rejected  int
	Saved     int
	Published int
	Duration  time.Duration

	FetchErr    error
	PersistErr  error
	PublishErr  error
	SnapshotErr error
}

// Outcome classifies the result.
func (r Result) Outcome() string {
	switch {
	case r.FetchErr != nil:
		return OutcomeFetchFailed
	case r.Parsed == 0:
		return OutcomeEmpty
	case r.PersistErr != nil || r.PublishErr != nil || r.SnapshotErr != nil:
		return OutcomePartial
	default:
		return OutcomeOK
	}
}

// Err joins every failure of the cycle, or nil.
func (r Result) Err() error {
	return errors.Join(r.FetchErr, r.PersistErr, r.PublishErr, r.SnapshotErr)
}

// Pipeline runs crawl cycles.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Run runs one cycle, discarding the result. It satisfies poller.Job.
func (p *Pipeline) Run(ctx context.Context) {
	p.RunCycle(ctx)
}

// RunCycle runs one fetch, normalize, persist, publish, snapshot cycle.
func (p *Pipeline) RunCycle(ctx context.Context) (res Result) {
	start := p.now()
	res = Result{CycleID: uuid.NewString()}
	logger := p.logger.With("cycle_id", res.CycleID)

	defer func() {
		end := p.now()
		res.Duration = end.Sub(start)
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.ObserveCycle(res.Outcome(), res.FetchErr == nil, res.Duration, end)
		}
	}()

	raws, err := p.cfg.Fetcher.GetCoinMarkets(ctx, p.cfg.Options)
	if err != nil {
		res.FetchErr = err
		logFetchError(logger, err)
		return res
	}
	res.Fetched = len(raws)
	logger.Info("fetched market data", "count", res.Fetched)

	records := normalize.Batch(raws, logger)
	res.Parsed = len(records)
	res.Rejected = res.Fetched - res.Parsed
	p.addRecords(StageFetched, res.Fetched)
	p.addRecords(StageRejected, res.Rejected)

	if res.Parsed == 0 {
		logger.Warn("no valid records in batch, skipping cycle", "fetched", res.Fetched)
		return res
	}
	logger.Info("normalized market data", "parsed", res.Parsed, "rejected", res.Rejected)

	ids, err := p.cfg.Persister.Persist(ctx, records)
	if err != nil {
		res.PersistErr = err
		logger.Error("failed to persist batch", "count", len(records), "error", err)
	} else {
		res.Saved = len(records)
		p.addRecords(StageSaved, res.Saved)
		logger.Info("persisted batch", "saved", res.Saved)
	}

	// ids is nil after a persist failure, so events carry id 0.
	events := model.NewPublishedEvents(records, ids)
	if err := p.cfg.Publisher.Publish(ctx, events); err != nil {
		res.PublishErr = err
		logger.Error("failed to publish events", "count", len(events), "error", err)
	} else {
		res.Published = len(events)
		p.addRecords(StagePublished, res.Published)
		logger.Info("published events", "published", res.Published)
	}

	if p.cfg.Snapshots != nil {
		if err := p.cfg.Snapshots.Save(ctx, model.NewSnapshot(records, p.now())); err != nil {
			res.SnapshotErr = err
			logger.Error("failed to save snapshot", "error", err)
		}
	}

	logger.Info("cycle complete",
		"outcome", res.Outcome(),
		"fetched", res.Fetched,
		"parsed", res.Parsed,
		"saved", res.Saved,
		"published", res.Published,
		"duration", p.now().Sub(start),
	)
	return res
}

func (p *Pipeline) addRecords(stage string, n int) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.AddRecords(stage, n)
	}
}

// logFetchError logs a fetch failure with the upstream response when there
// is one.
func logFetchError(logger *slog.Logger, err error) {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		logger.Error("failed to fetch market data, skipping cycle",
			"status", apiErr.StatusCode,
			"headers", apiErr.Header,
			"body", string(apiErr.Body),
			"error", err,
		)
		return
	}
	logger.Error("failed to fetch market data, skipping cycle", "error", err)
}

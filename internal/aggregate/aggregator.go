package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammcore/internal/model"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	// RecomputeFrom, when set, restarts aggregation at this unix timestamp.
	RecomputeFrom uint64
	StateStore    StateStore
}

// OperationSource streams journal records with a timestamp above afterTs, in sequence order.
type OperationSource interface {
	Operations(ctx context.Context, afterTs uint64, fn func(model.OperationRecord) error) error
}

// StatsSink receives finished pool windows.
type StatsSink interface {
	UpsertPoolStats(ctx context.Context, stats []model.PoolStats) error
}

// Aggregator folds journal records into per-pool window stats.
type Aggregator struct {
	cfg          Config
	sink         StatsSink
	logger       *zap.Logger
	accumulators map[common.Address]*Accumulator
}

func NewAggregator(cfg Config, sink StatsSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[common.Address]*Accumulator),
	}
}

// Run aggregates every record the source yields after the stored progress.
// Windows still open at the end are written and will be recomputed on the next run.
func (a *Aggregator) Run(ctx context.Context, source OperationSource) error {
	if a.sink == nil {
		return fmt.Errorf("stats sink is nil")
	}
	if source == nil {
		return fmt.Errorf("operation source is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolStats, 0, a.cfg.BatchSize)
	maxTs := startTs
	var total, flushed, skipped, failed int

	err = source.Operations(ctx, startTs, func(record model.OperationRecord) error {
		total++
		if record.Timestamp <= startTs || record.Pool == (common.Address{}) {
			skipped++
			return nil
		}

		if !supportedOp(record.Op) {
			failed++
			a.logger.Warn("aggregate record", zap.String("reason", "unsupported op"), zap.Uint64("seq", record.Seq), zap.String("op", record.Op))
			return nil
		}

		start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		acc := a.accumulators[record.Pool]
		if acc == nil {
			acc = NewAccumulator(record, start, start+a.cfg.WindowSeconds)
			a.accumulators[record.Pool] = acc
		} else if acc.WindowStart != start {
			batch = append(batch, acc.Stats(a.cfg.WindowSeconds))
			flushed++
			acc = NewAccumulator(record, start, start+a.cfg.WindowSeconds)
			a.accumulators[record.Pool] = acc
		}

		if err := acc.AddRecord(record); err != nil {
			failed++
			a.logger.Warn("aggregate record", zap.Error(err), zap.Uint64("seq", record.Seq), zap.String("op", record.Op))
			return nil
		}
		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.sink.UpsertPoolStats(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			if err := a.saveState(ctx, maxTs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read operations: %w", err)
	}

	for _, acc := range a.sortedAccumulators() {
		batch = append(batch, acc.Stats(a.cfg.WindowSeconds))
		flushed++
	}
	if len(batch) > 0 {
		if err := a.sink.UpsertPoolStats(ctx, batch); err != nil {
			return err
		}
	}
	if err := a.saveState(ctx, maxTs); err != nil {
		return err
	}
	a.accumulators = make(map[common.Address]*Accumulator)

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", flushed),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Uint64("last_ts", maxTs),
	)
	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState stores the last timestamp before the oldest open window, so open
// windows are recomputed in full on the next run.
func (a *Aggregator) saveState(ctx context.Context, maxTs uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	safe := maxTs
	for _, acc := range a.accumulators {
		var open uint64
		if acc.WindowStart > 0 {
			open = acc.WindowStart - 1
		}
		if open < safe {
			safe = open
		}
	}
	return a.cfg.StateStore.Save(ctx, safe)
}

func (a *Aggregator) sortedAccumulators() []*Accumulator {
	out := make([]*Accumulator, 0, len(a.accumulators))
	for _, acc := range a.accumulators {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WindowStart != out[j].WindowStart {
			return out[i].WindowStart < out[j].WindowStart
		}
		return out[i].Pool.Hex() < out[j].Pool.Hex()
	})
	return out
}

// Summarize folds records into pool windows without any persistence.
func Summarize(records []model.OperationRecord, windowSeconds uint64) ([]model.PoolStats, error) {
	sink := &collectSink{}
	agg := NewAggregator(Config{WindowSeconds: windowSeconds}, sink, nil)
	if err := agg.Run(context.Background(), sliceSource(records)); err != nil {
		return nil, err
	}
	return sink.stats, nil
}

type sliceSource []model.OperationRecord

func (s sliceSource) Operations(ctx context.Context, afterTs uint64, fn func(model.OperationRecord) error) error {
	for _, record := range s {
		if record.Timestamp <= afterTs {
			continue
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

type collectSink struct {
	stats []model.PoolStats
}

func (c *collectSink) UpsertPoolStats(ctx context.Context, stats []model.PoolStats) error {
	c.stats = append(c.stats, stats...)
	return nil
}

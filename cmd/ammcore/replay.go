package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/config"
	"ammcore/internal/exchange"
	"ammcore/internal/ledger"
	"ammcore/internal/model"
	"ammcore/internal/storage"
	"ammcore/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.Inputs) == 0 {
		return fmt.Errorf("input path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store   storage.StateStore
		journal storage.Journal
		seq     storage.Sequencer
	)
	switch {
	case cfg.PGDSN != "":
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if cfg.EnsureSchema {
			if err := pg.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		store, journal, seq = pg, pg, pg
	default:
		if cfg.Journal == "" {
			return fmt.Errorf("journal path is required")
		}
		jsonl := storage.NewJsonlJournal(cfg.Journal)
		journal, seq = jsonl, jsonl
		if cfg.StateFile != "" {
			fileStore, err := storage.OpenFileStore(cfg.StateFile)
			if err != nil {
				return err
			}
			store = fileStore
		} else {
			store = storage.NewMemoryStore()
		}
	}

	lastSeq, err := seq.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("load last sequence: %w", err)
	}

	ex, err := exchange.New(exchange.Config{StartSeq: lastSeq}, ledger.NewMemory(logger), store, journal, logger)
	if err != nil {
		return err
	}
	dispatcher := exchange.NewDispatcher(ex)

	logger.Info("replay start",
		zap.Strings("inputs", cfg.Inputs),
		zap.String("journal", cfg.Journal),
		zap.String("state_file", cfg.StateFile),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("start_seq", lastSeq),
		zap.Strings("ops", dispatcher.Ops()),
	)

	result, err := replay(ctx, cfg.Inputs, dispatcher, logger)
	if err != nil {
		return err
	}

	logger.Info("replay done",
		zap.Int("applied", result.Applied),
		zap.Int("rejected", result.Rejected),
	)

	return writePools(ctx, os.Stdout, ex, store, logger)
}

type replayResult struct {
	Applied  int
	Rejected int
}

// replay dispatches every command of every input in order. Rejected commands
// are logged and counted. Input errors, cancellation and operations the store
// or journal failed to record stop the run.
func replay(ctx context.Context, inputs []string, dispatcher *exchange.Dispatcher, logger *zap.Logger) (replayResult, error) {
	var result replayResult
	for _, input := range inputs {
		line := 0
		err := storage.ScanJSONL(ctx, input, func(cmd model.Command) error {
			line++
			if _, err := dispatcher.Dispatch(ctx, cmd); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				if errors.Is(err, exchange.ErrNotRecorded) {
					result.Applied++
					return err
				}
				result.Rejected++
				logger.Warn("command rejected",
					zap.String("input", input),
					zap.Int("command", line),
					zap.String("op", cmd.Op),
					zap.Error(err),
				)
				return nil
			}
			result.Applied++
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("replay %s: %w", input, err)
		}
	}
	return result, nil
}

type poolSummary struct {
	Pool     amm.Pool     `json:"pool"`
	Reserves amm.Reserves `json:"reserves"`
}

// writePools prints one JSON line per stored pool. Pools persisted by an earlier
// run have no balances in this run's ledger and are skipped.
func writePools(ctx context.Context, w io.Writer, ex *exchange.Exchange, store storage.StateStore, logger *zap.Logger) error {
	pools, err := store.Pools(ctx)
	if err != nil {
		return fmt.Errorf("list pools: %w", err)
	}

	enc := json.NewEncoder(w)
	for _, pool := range pools {
		reserves, err := ex.Reserves(ctx, pool.ID)
		if err != nil {
			logger.Warn("skip pool", zap.String("pool", pool.ID.Hex()), zap.Error(err))
			continue
		}
		if err := enc.Encode(poolSummary{Pool: pool, Reserves: reserves}); err != nil {
			return fmt.Errorf("write pool summary: %w", err)
		}
	}
	return nil
}

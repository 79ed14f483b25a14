package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/chain"
	"ammcore/internal/config"
)

type quoteOutput struct {
	ChainID   string             `json:"chain_id,omitempty"`
	Block     uint64             `json:"block"`
	DecimalsA uint8              `json:"decimals_a"`
	DecimalsB uint8              `json:"decimals_b"`
	Reserves  amm.Reserves       `json:"reserves"`
	Swap      *amm.SwapQuote     `json:"swap,omitempty"`
	Deposit   *amm.DepositQuote  `json:"deposit,omitempty"`
	Withdraw  *amm.WithdrawQuote `json:"withdraw,omitempty"`
	Errors    map[string]string  `json:"errors,omitempty"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	fee := amm.Fraction{Num: cfg.FeeNum, Denom: cfg.FeeDenom}
	if !fee.Valid() {
		return fmt.Errorf("%w: fee %s", amm.ErrInvalidFee, fee)
	}
	tip := amm.Fraction{Num: cfg.TipNum, Denom: cfg.TipDenom}
	if !tip.Valid() {
		return fmt.Errorf("%w: tip %s", amm.ErrInvalidFee, tip)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	block := cfg.Block
	if block == 0 {
		if block, err = chainClient.LatestBlockNumber(ctx); err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
	}

	reader, err := chain.NewReader(chainClient, cfg.MaxRetries, cfg.RetryBackoff, new(big.Int).SetUint64(block), logger)
	if err != nil {
		return err
	}

	out := quoteOutput{Block: block}
	if chainID, err := chainClient.GetChainID(ctx); err != nil {
		logger.Warn("chain id unavailable", zap.Error(err))
	} else {
		out.ChainID = chainID.String()
	}
	if out.DecimalsA, err = chain.Decimals(ctx, chainClient, cfg.MintA); err != nil {
		return fmt.Errorf("decimals of mint a: %w", err)
	}
	if out.DecimalsB, err = chain.Decimals(ctx, chainClient, cfg.MintB); err != nil {
		return fmt.Errorf("decimals of mint b: %w", err)
	}

	out.Reserves, err = reader.Reserves(ctx, chain.PoolAccounts{
		MintA:    cfg.MintA,
		MintB:    cfg.MintB,
		ReserveA: cfg.ReserveA,
		ReserveB: cfg.ReserveB,
		PoolMint: cfg.PoolMint,
	})
	if err != nil {
		return err
	}

	logger.Info("quote reserves",
		zap.Uint64("block", block),
		zap.Uint64("reserve_a", out.Reserves.A),
		zap.Uint64("reserve_b", out.Reserves.B),
		zap.Uint64("shares", out.Reserves.Shares),
	)

	buildQuotes(&out, fee, tip, cfg)
	return writeQuote(os.Stdout, out)
}

// buildQuotes prices every requested operation against out.Reserves. A failed
// quote is reported next to the others instead of aborting the command.
func buildQuotes(out *quoteOutput, fee, tip amm.Fraction, cfg config.QuoteConfig) {
	fail := func(op string, err error) {
		if out.Errors == nil {
			out.Errors = make(map[string]string)
		}
		out.Errors[op] = err.Error()
	}

	if cfg.AmountIn > 0 {
		if q, err := amm.QuoteSwap(fee, out.Reserves, cfg.AmountIn); err != nil {
			fail("swap", err)
		} else {
			out.Swap = &q
		}
	}
	if cfg.AmountA > 0 || cfg.AmountB > 0 {
		if q, err := amm.QuoteDeposit(out.Reserves, cfg.AmountA, cfg.AmountB); err != nil {
			fail("deposit", err)
		} else {
			out.Deposit = &q
		}
	}
	if cfg.Burn > 0 {
		if q, err := amm.QuoteWithdraw(tip, out.Reserves, cfg.Burn); err != nil {
			fail("withdraw", err)
		} else {
			out.Withdraw = &q
		}
	}
}

func writeQuote(w io.Writer, out quoteOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write quote: %w", err)
	}
	return nil
}

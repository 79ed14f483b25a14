package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

func TestLoadReplayFromFlags(t *testing.T) {
	flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	flags.StringSlice("in", nil, "")
	flags.String("journal", "./data/operations.jsonl", "")
	flags.String("log-level", "info", "")
	if err := flags.Parse([]string{"--in", "a.jsonl, b.jsonl", "--log-level", "debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadReplay("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Inputs, []string{"a.jsonl", "b.jsonl"}) {
		t.Fatalf("unexpected inputs: %v", cfg.Inputs)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
	if cfg.Journal != "./data/operations.jsonl" {
		t.Fatalf("unexpected journal: %s", cfg.Journal)
	}
	if !cfg.EnsureSchema {
		t.Fatalf("expected ensure-schema default true")
	}
}

func TestLoadReplayFromEnv(t *testing.T) {
	t.Setenv("AMM_PG_DSN", "postgres://localhost/amm")

	cfg, err := LoadReplay("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PGDSN != "postgres://localhost/amm" {
		t.Fatalf("unexpected dsn: %s", cfg.PGDSN)
	}
}

func TestLoadStatsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amm.yaml")
	content := "in: ops.jsonl\nwindow: 5m\nbatch-size: 10\nrecompute-from: \"1700000000\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadStats(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Input != "ops.jsonl" || cfg.Window != "5m" || cfg.BatchSize != 10 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Out != "./data/pool_stats.jsonl" {
		t.Fatalf("unexpected out default: %s", cfg.Out)
	}
	ts, err := ParseTimestamp(cfg.RecomputeFrom)
	if err != nil || ts != 1_700_000_000 {
		t.Fatalf("unexpected recompute-from: %d %v", ts, err)
	}
}

func TestLoadStatsMissingFile(t *testing.T) {
	if _, err := LoadStats(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoadQuote(t *testing.T) {
	flags := pflag.NewFlagSet("quote", pflag.ContinueOnError)
	flags.String("mint-a", "", "")
	flags.String("mint-b", "", "")
	flags.String("reserve-a", "", "")
	flags.String("reserve-b", "", "")
	flags.String("pool-mint", "", "")
	flags.Uint64("fee-num", 0, "")
	flags.Uint64("fee-denom", 1, "")
	flags.Uint64("amount-in", 0, "")
	args := []string{
		"--mint-a", "0x00000000000000000000000000000000000000a1",
		"--mint-b", "0x00000000000000000000000000000000000000b2",
		"--reserve-a", "0x00000000000000000000000000000000000000c3",
		"--reserve-b", "0x00000000000000000000000000000000000000d4",
		"--pool-mint", "0x00000000000000000000000000000000000000e5",
		"--fee-num", "3",
		"--fee-denom", "1000",
		"--amount-in", "500",
	}
	if err := flags.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadQuote("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MintA != common.HexToAddress("0x00000000000000000000000000000000000000a1") {
		t.Fatalf("unexpected mint a: %s", cfg.MintA.Hex())
	}
	if cfg.PoolMint != common.HexToAddress("0x00000000000000000000000000000000000000e5") {
		t.Fatalf("unexpected pool mint: %s", cfg.PoolMint.Hex())
	}
	if cfg.FeeNum != 3 || cfg.FeeDenom != 1000 || cfg.AmountIn != 500 {
		t.Fatalf("unexpected amounts: %+v", cfg)
	}
	if cfg.TipDenom != 1 || cfg.MaxRetries != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadQuoteRequiresAddresses(t *testing.T) {
	if _, err := LoadQuote("", nil); err == nil {
		t.Fatalf("expected error without addresses")
	}
}

func TestParseAddress(t *testing.T) {
	if _, err := ParseAddress("not-an-address"); err == nil {
		t.Fatalf("expected invalid address error")
	}
	addr, err := ParseAddress(" 0x00000000000000000000000000000000000000a1 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr != common.HexToAddress("0xa1") {
		t.Fatalf("unexpected address: %s", addr.Hex())
	}
}

func TestWindowSeconds(t *testing.T) {
	cases := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "1h", want: 3600},
		{in: "90s", want: 90},
		{in: "500ms", wantErr: true},
		{in: "-1m", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tc := range cases {
		got, err := WindowSeconds(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %d err %v", tc.in, got, err)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2023-11-14T22:13:20Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ts != 1_700_000_000 {
		t.Fatalf("unexpected timestamp: %d", ts)
	}
	if ts, err := ParseTimestamp(""); err != nil || ts != 0 {
		t.Fatalf("expected zero for empty input, got %d %v", ts, err)
	}
}

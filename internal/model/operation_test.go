package model

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/amm"
)

func TestOperationRecordJSONStringAmounts(t *testing.T) {
	record := OperationRecord{
		Seq:         3,
		Op:          OpSwap,
		Pool:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Caller:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		AmountInA:   18446744073709551615,
		AmountOutB:  90,
		RetainedFee: 1,
		Reserves:    amm.Reserves{A: 1100, B: 910, Shares: 1000},
		Timestamp:   1700000000,
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"amount_in_a", "amount_out_b", "retained_fee", "shares_minted"} {
		if _, ok := decoded[key].(string); !ok {
			t.Fatalf("%s should be string", key)
		}
	}
	if decoded["amount_in_a"] != "18446744073709551615" {
		t.Fatalf("amount_in_a mismatch: %v", decoded["amount_in_a"])
	}
	if decoded["pool"] != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("pool should be hex encoded: %v", decoded["pool"])
	}
	if _, ok := decoded["instructions"]; ok {
		t.Fatalf("empty instructions should be omitted")
	}
}

func TestCommandDecodesHexAddresses(t *testing.T) {
	line := `{"op":"swap","owner":"0x1000000000000000000000000000000000000001","mint_a":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","amount":100,"min":90}`

	var cmd Command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if cmd.Op != OpSwap || cmd.Amount != 100 || cmd.Min != 90 {
		t.Fatalf("command mismatch: %+v", cmd)
	}
	if cmd.Owner != common.HexToAddress("0x1000000000000000000000000000000000000001") {
		t.Fatalf("owner mismatch: %s", cmd.Owner.Hex())
	}
	if cmd.Pool != (common.Address{}) {
		t.Fatalf("missing pool should stay zero: %s", cmd.Pool.Hex())
	}
}

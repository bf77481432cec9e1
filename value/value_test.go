package value

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/metaid/utxoquery/chain"
)

func TestBuildAddressBalanceValueNetsFundedMinusSpent(t *testing.T) {
	chainStats := chain.ScriptStats{FundedTxoSum: 1_000_000_00, SpentTxoSum: 400_000_00}
	mempoolStats := chain.ScriptStats{FundedTxoSum: 50_000_00}

	v := BuildAddressBalanceValue(chainStats, mempoolStats)

	if v.ConfirmAmount != "0.60000000" {
		t.Fatalf("ConfirmAmount = %q, want 0.60000000", v.ConfirmAmount)
	}
	if v.PendingAmount != "0.05000000" {
		t.Fatalf("PendingAmount = %q, want 0.05000000", v.PendingAmount)
	}
	if v.Amount != "0.65000000" {
		t.Fatalf("Amount = %q, want 0.65000000", v.Amount)
	}
	if v.CoinAmount != v.Amount || v.ConfirmCoinAmount != v.ConfirmAmount || v.PendingCoinAmount != v.PendingAmount {
		t.Fatalf("coin_amount fields should duplicate their amount counterparts: %+v", v)
	}
}

func TestBuildUtxoValueUnconfirmed(t *testing.T) {
	u := chain.Utxo{Txid: chain.Txid{0x01}, Vout: 2, Value: 5000}
	v := BuildUtxoValue(u)
	if v.Status.Confirmed {
		t.Fatalf("expected unconfirmed status for a nil-block utxo")
	}
	if v.Value != 5000 || v.Vout != 2 {
		t.Fatalf("unexpected utxo value: %+v", v)
	}
}

func TestBuildUtxoValueConfirmed(t *testing.T) {
	block := &chain.BlockId{Hash: chain.Txid{0x02}, Height: 700000, Time: 1700000000}
	u := chain.Utxo{Txid: chain.Txid{0x01}, Vout: 0, Value: 1, Confirmed: block}
	v := BuildUtxoValue(u)
	if !v.Status.Confirmed {
		t.Fatalf("expected confirmed status")
	}
	if v.Status.BlockHeight == nil || *v.Status.BlockHeight != 700000 {
		t.Fatalf("unexpected block height in status: %+v", v.Status)
	}
}

func TestBuildSpendingValueUnspent(t *testing.T) {
	v := BuildSpendingValue(nil)
	if v.Spent {
		t.Fatalf("expected Spent=false for a nil spending input")
	}
}

func TestBuildSpendingValueSpent(t *testing.T) {
	in := &chain.SpendingInput{Txid: chain.Txid{0x03}, Vin: 1}
	v := BuildSpendingValue(in)
	if !v.Spent || v.Txid == nil || *v.Vin != 1 {
		t.Fatalf("unexpected spending value: %+v", v)
	}
}

func TestBuildFeeEstimatesValueStringifiesTargets(t *testing.T) {
	est := chain.FeeEstimates{6: 5.5, 144: 1.0}
	v := BuildFeeEstimatesValue(est)
	if v["6"] != 5.5 || v["144"] != 1.0 {
		t.Fatalf("unexpected fee estimates value: %+v", v)
	}
}

func TestBuildTransactionValuePrefersComputedFeeOverFallback(t *testing.T) {
	parent := chain.Txid{0x01}
	op := chain.OutPoint{Hash: parent, Index: 0}
	prevouts := map[chain.OutPoint]chain.TxOut{
		op: {Value: 1000, PkScript: []byte{0x51}},
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: op})
	tx.AddTxOut(&wire.TxOut{Value: 900, PkScript: []byte{0x51}})

	fallback := uint64(999999)
	blockStatus := chain.NewTransactionStatus(&chain.BlockId{Height: 100})
	v := BuildTransactionValue(tx, prevouts, &chaincfg.MainNetParams, &fallback, &blockStatus)

	if v.Fee == nil || *v.Fee != 100 {
		t.Fatalf("expected computed fee 100 even for a confirmed tx, got %v", v.Fee)
	}
}

func TestBuildTransactionValueFallsBackToReportedFeeWhenPrevoutsUnresolved(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: chain.OutPoint{Hash: chain.Txid{0x02}, Index: 0}})
	tx.AddTxOut(&wire.TxOut{Value: 900, PkScript: []byte{0x51}})

	fallback := uint64(555)
	v := BuildTransactionValue(tx, nil, &chaincfg.MainNetParams, &fallback, nil)

	if v.Fee == nil || *v.Fee != 555 {
		t.Fatalf("expected fallback fee when prevouts can't resolve the sum, got %v", v.Fee)
	}
}

func TestBuildTxInValueDerivesInnerScriptsForP2SHWrappedP2WSH(t *testing.T) {
	witnessScript := []byte{txscript.OP_1, txscript.OP_CHECKSIG}
	redeemScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_0).
		AddData(chainhash.Hash{}.CloneBytes()).Script()
	if err != nil {
		t.Fatalf("build redeem script: %v", err)
	}
	p2shScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_HASH160).
		AddData(txscript.Hash160(redeemScript)).AddOp(txscript.OP_EQUAL).Script()
	if err != nil {
		t.Fatalf("build p2sh script: %v", err)
	}
	scriptSig, err := txscript.NewScriptBuilder().AddData(redeemScript).Script()
	if err != nil {
		t.Fatalf("build scriptsig: %v", err)
	}

	in := &wire.TxIn{
		PreviousOutPoint: chain.OutPoint{Hash: chain.Txid{0x03}, Index: 0},
		SignatureScript:  scriptSig,
		Witness:          wire.TxWitness{witnessScript},
	}
	prevouts := map[chain.OutPoint]chain.TxOut{
		in.PreviousOutPoint: {Value: 1000, PkScript: p2shScript},
	}

	v := BuildTxInValue(in, prevouts, &chaincfg.MainNetParams)
	if v.InnerRedeemscriptAsm == "" {
		t.Fatalf("expected a derived redeem script asm, got empty")
	}
	if v.InnerWitnessscriptAsm == "" {
		t.Fatalf("expected a derived witness script asm for the wrapped p2wsh, got empty")
	}
}

func TestBuildTotalCoinSupplyValueFormatsAmount(t *testing.T) {
	v := BuildTotalCoinSupplyValue(21000000.12345678, 800000, "abc")
	if v.TotalAmount != "21000000.12345678" {
		t.Fatalf("TotalAmount = %q", v.TotalAmount)
	}
	if v.Height != 800000 || v.BlockHash != "abc" {
		t.Fatalf("unexpected supply value: %+v", v)
	}
}

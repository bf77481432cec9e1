// Package value holds the JSON presentation shapes returned by the
// REST surface — pure data, no query logic.
package value

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/metaid/utxoquery/chain"
)

// BlockValue is a block header's REST presentation.
type BlockValue struct {
	Id                string  `json:"id"`
	Height            uint32  `json:"height"`
	Version           int32   `json:"version"`
	Timestamp         uint32  `json:"timestamp"`
	TxCount           uint32  `json:"tx_count"`
	Size              uint32  `json:"size"`
	Weight            uint32  `json:"weight"`
	MerkleRoot        string  `json:"merkle_root"`
	PreviousBlockHash *string `json:"previousblockhash,omitempty"`
	Mediantime        uint32  `json:"mediantime"`
	Nonce             uint32  `json:"nonce"`
	Bits              uint32  `json:"bits"`
	Difficulty        float64 `json:"difficulty"`
}

// BuildBlockValue renders a block header. Version through Difficulty
// read as zero until the external indexer populates the full header;
// that's an accepted gap here since this core only consumes what's
// already stored, it doesn't ingest blocks itself.
func BuildBlockValue(b chain.BlockId) BlockValue {
	v := BlockValue{
		Id:         b.Hash.String(),
		Height:     b.Height,
		Version:    b.Version,
		Timestamp:  b.Time,
		TxCount:    b.TxCount,
		Size:       b.Size,
		Weight:     b.Weight,
		MerkleRoot: b.MerkleRoot.String(),
		Mediantime: b.Time,
		Nonce:      b.Nonce,
		Bits:       b.Bits,
		Difficulty: b.Difficulty,
	}
	if b.PreviousBlockHash != nil {
		h := b.PreviousBlockHash.String()
		v.PreviousBlockHash = &h
	}
	return v
}

// TxOutValue is one transaction output's REST presentation.
type TxOutValue struct {
	ScriptPubKey        string  `json:"scriptpubkey"`
	ScriptPubKeyAsm     string  `json:"scriptpubkey_asm"`
	ScriptPubKeyType    string  `json:"scriptpubkey_type"`
	ScriptPubKeyAddress *string `json:"scriptpubkey_address,omitempty"`
	Value               uint64  `json:"value"`
}

// BuildTxOutValue classifies and renders a single output.
func BuildTxOutValue(out *chain.TxOut, params *chaincfg.Params) TxOutValue {
	v := TxOutValue{
		ScriptPubKey:     hex.EncodeToString(out.PkScript),
		ScriptPubKeyAsm:  chain.DisasmScript(out.PkScript),
		ScriptPubKeyType: string(chain.ClassifyScript(out.PkScript)),
		Value:            uint64(out.Value),
	}
	if addr, ok := chain.ExtractAddress(out.PkScript, params); ok {
		v.ScriptPubKeyAddress = &addr
	}
	return v
}

// TxInValue is one transaction input's REST presentation.
type TxInValue struct {
	Txid                   string      `json:"txid"`
	Vout                   uint32      `json:"vout"`
	Prevout                *TxOutValue `json:"prevout,omitempty"`
	ScriptSig              string      `json:"scriptsig"`
	ScriptSigAsm           string      `json:"scriptsig_asm"`
	InnerRedeemscriptAsm   string      `json:"inner_redeemscript_asm,omitempty"`
	InnerWitnessscriptAsm  string      `json:"inner_witnessscript_asm,omitempty"`
	Witness                []string    `json:"witness,omitempty"`
	IsCoinbase             bool        `json:"is_coinbase"`
	Sequence               uint32      `json:"sequence"`
}

// innerScripts derives a P2SH input's redeem script (the last push in
// its scriptSig) and, for a native or P2SH-wrapped P2WSH prevout, the
// witness script (the last witness stack item).
func innerScripts(prevoutType chain.ScriptType, in *chain.TxIn) (redeemAsm, witnessAsm string) {
	witnessType := prevoutType
	if prevoutType == chain.ScriptP2SH {
		if redeemScript, ok := chain.ExtractRedeemScript(in.SignatureScript); ok {
			redeemAsm = chain.DisasmScript(redeemScript)
			witnessType = chain.ClassifyScript(redeemScript)
		}
	}
	if witnessType == chain.ScriptV0P2WSH && len(in.Witness) > 0 {
		witnessAsm = chain.DisasmScript(in.Witness[len(in.Witness)-1])
	}
	return redeemAsm, witnessAsm
}

// BuildTxInValue renders one input, resolving its prevout from
// prevouts if present (prevouts is built once per batch by the REST
// layer via a single LookupTxos call, not per-input).
func BuildTxInValue(in *chain.TxIn, prevouts map[chain.OutPoint]chain.TxOut, params *chaincfg.Params) TxInValue {
	v := TxInValue{
		Txid:         in.PreviousOutPoint.Hash.String(),
		Vout:         in.PreviousOutPoint.Index,
		ScriptSig:    hex.EncodeToString(in.SignatureScript),
		ScriptSigAsm: chain.DisasmScript(in.SignatureScript),
		IsCoinbase:   chain.IsCoinbase(in),
		Sequence:     in.Sequence,
	}
	if len(in.Witness) > 0 {
		w := make([]string, len(in.Witness))
		for i, item := range in.Witness {
			w[i] = hex.EncodeToString(item)
		}
		v.Witness = w
	}
	if out, ok := prevouts[in.PreviousOutPoint]; ok && !v.IsCoinbase {
		tv := BuildTxOutValue(&out, params)
		v.Prevout = &tv
		v.InnerRedeemscriptAsm, v.InnerWitnessscriptAsm = innerScripts(chain.ClassifyScript(out.PkScript), in)
	}
	return v
}

// TransactionStatusValue is a transaction's confirmation status.
type TransactionStatusValue struct {
	Confirmed   bool    `json:"confirmed"`
	BlockHeight *uint32 `json:"block_height,omitempty"`
	BlockHash   *string `json:"block_hash,omitempty"`
	BlockTime   *uint32 `json:"block_time,omitempty"`
}

// BuildTransactionStatusValue renders a confirmation status.
func BuildTransactionStatusValue(s chain.TransactionStatus) TransactionStatusValue {
	v := TransactionStatusValue{Confirmed: s.Confirmed}
	if s.Confirmed {
		v.BlockHeight = s.BlockHeight
		v.BlockTime = s.BlockTime
		if s.BlockHash != nil {
			h := s.BlockHash.String()
			v.BlockHash = &h
		}
	}
	return v
}

// TransactionValue is a transaction's REST presentation.
type TransactionValue struct {
	Txid     string                  `json:"txid"`
	Version  int32                   `json:"version"`
	Locktime uint32                  `json:"locktime"`
	Vin      []TxInValue             `json:"vin"`
	Vout     []TxOutValue            `json:"vout"`
	Size     int                     `json:"size"`
	Weight   int                     `json:"weight"`
	Fee      *uint64                 `json:"fee,omitempty"`
	Status   *TransactionStatusValue `json:"status,omitempty"`
}

// txFee sums prevout values minus output values: the standard fee
// computation, possible whenever every non-coinbase input's prevout
// resolved. Coinbase transactions have no fee.
func txFee(tx *chain.Transaction, prevouts map[chain.OutPoint]chain.TxOut) (uint64, bool) {
	if len(tx.TxIn) == 0 || chain.IsCoinbase(tx.TxIn[0]) {
		return 0, false
	}
	var sumIn, sumOut int64
	for _, in := range tx.TxIn {
		out, ok := prevouts[in.PreviousOutPoint]
		if !ok {
			return 0, false
		}
		sumIn += out.Value
	}
	for _, out := range tx.TxOut {
		sumOut += out.Value
	}
	if sumIn < sumOut {
		return 0, false
	}
	return uint64(sumIn - sumOut), true
}

// BuildTransactionValue renders a full transaction. prevouts should
// come from one batched LookupTxos call covering every input, not a
// lookup per input; fee is computed from prevouts/vout value sums
// whenever every input resolved, confirmed or not. fallbackFee is used
// only when the sum can't be computed (e.g. a coinbase transaction, or
// prevouts not fetched at all) — typically the node-reported mempool
// entry fee for an unconfirmed tx. status is nil when the caller
// doesn't need it.
func BuildTransactionValue(tx *chain.Transaction, prevouts map[chain.OutPoint]chain.TxOut, params *chaincfg.Params, fallbackFee *uint64, status *chain.TransactionStatus) TransactionValue {
	vin := make([]TxInValue, len(tx.TxIn))
	for i, in := range tx.TxIn {
		vin[i] = BuildTxInValue(in, prevouts, params)
	}
	vout := make([]TxOutValue, len(tx.TxOut))
	for i, out := range tx.TxOut {
		vout[i] = BuildTxOutValue(out, params)
	}
	stripped := tx.SerializeSizeStripped()
	total := tx.SerializeSize()
	v := TransactionValue{
		Txid:     tx.TxHash().String(),
		Version:  tx.Version,
		Locktime: tx.LockTime,
		Vin:      vin,
		Vout:     vout,
		Size:     total,
		Weight:   stripped*3 + total,
	}
	if fee, ok := txFee(tx, prevouts); ok {
		v.Fee = &fee
	} else {
		v.Fee = fallbackFee
	}
	if status != nil {
		sv := BuildTransactionStatusValue(*status)
		v.Status = &sv
	}
	return v
}

// AddressStatsValue aggregates one script's funded/spent activity.
type AddressStatsValue struct {
	FundedTxoCount uint64 `json:"funded_txo_count"`
	FundedTxoSum   uint64 `json:"funded_txo_sum"`
	SpentTxoCount  uint64 `json:"spent_txo_count"`
	SpentTxoSum    uint64 `json:"spent_txo_sum"`
	TxCount        uint64 `json:"tx_count"`
}

// BuildAddressStatsValue converts domain stats to their presentation.
func BuildAddressStatsValue(s chain.ScriptStats) AddressStatsValue {
	return AddressStatsValue{
		FundedTxoCount: s.FundedTxoCount,
		FundedTxoSum:   s.FundedTxoSum,
		SpentTxoCount:  s.SpentTxoCount,
		SpentTxoSum:    s.SpentTxoSum,
		TxCount:        s.TxCount,
	}
}

// AddressValue wraps an address/scripthash query's bare response: the
// identifier plus chain and mempool stats, never flattened.
type AddressValue struct {
	Address     string            `json:"address,omitempty"`
	ScriptHash  string            `json:"scripthash,omitempty"`
	ChainStats  AddressStatsValue `json:"chain_stats"`
	MempoolStats AddressStatsValue `json:"mempool_stats"`
}

// AddressBalanceValue is the formatted balance breakdown, BTC-formatted
// strings duplicated as coin_amount/amount for client compatibility,
// matching the source's deliberate redundancy.
type AddressBalanceValue struct {
	ConfirmAmount      string `json:"confirm_amount"`
	PendingAmount      string `json:"pending_amount"`
	Amount             string `json:"amount"`
	ConfirmCoinAmount  string `json:"confirm_coin_amount"`
	PendingCoinAmount  string `json:"pending_coin_amount"`
	CoinAmount         string `json:"coin_amount"`
}

func formatBTC(sats int64) string {
	return fmt.Sprintf("%.8f", float64(sats)/1e8)
}

// BuildAddressBalanceValue nets funded minus spent for both chain and
// mempool stats into the three displayed amounts.
func BuildAddressBalanceValue(chainStats, mempoolStats chain.ScriptStats) AddressBalanceValue {
	confirmed := int64(chainStats.FundedTxoSum) - int64(chainStats.SpentTxoSum)
	pending := int64(mempoolStats.FundedTxoSum) - int64(mempoolStats.SpentTxoSum)
	total := confirmed + pending
	s := formatBTC(confirmed)
	p := formatBTC(pending)
	a := formatBTC(total)
	return AddressBalanceValue{
		ConfirmAmount: s, PendingAmount: p, Amount: a,
		ConfirmCoinAmount: s, PendingCoinAmount: p, CoinAmount: a,
	}
}

// UtxoValue is one UTXO's REST presentation.
type UtxoValue struct {
	Txid   string                 `json:"txid"`
	Vout   uint32                 `json:"vout"`
	Status TransactionStatusValue `json:"status"`
	Value  uint64                 `json:"value"`
}

// BuildUtxoValue renders a single UTXO.
func BuildUtxoValue(u chain.Utxo) UtxoValue {
	return UtxoValue{
		Txid:   u.Txid.String(),
		Vout:   u.Vout,
		Status: BuildTransactionStatusValue(chain.NewTransactionStatus(u.Confirmed)),
		Value:  u.Value,
	}
}

// SpendingValue describes whether (and by what) an output was spent.
type SpendingValue struct {
	Spent  bool                    `json:"spent"`
	Txid   *string                 `json:"txid,omitempty"`
	Vin    *uint32                 `json:"vin,omitempty"`
	Status *TransactionStatusValue `json:"status,omitempty"`
}

// BuildSpendingValue renders a spend lookup result.
func BuildSpendingValue(in *chain.SpendingInput) SpendingValue {
	if in == nil {
		return SpendingValue{Spent: false}
	}
	txid := in.Txid.String()
	vin := in.Vin
	status := BuildTransactionStatusValue(chain.NewTransactionStatus(in.Confirmed))
	return SpendingValue{Spent: true, Txid: &txid, Vin: &vin, Status: &status}
}

// TotalCoinSupplyValue is the /blockchain/getsupply response.
type TotalCoinSupplyValue struct {
	TotalAmount      string  `json:"total_amount"`
	TotalAmountFloat float64 `json:"total_amount_float"`
	Height           int64   `json:"height"`
	BlockHash        string  `json:"block_hash"`
}

// BuildTotalCoinSupplyValue formats the daemon's gettxoutsetinfo
// result.
func BuildTotalCoinSupplyValue(amount float64, height int64, blockHash string) TotalCoinSupplyValue {
	return TotalCoinSupplyValue{
		TotalAmount:      fmt.Sprintf("%.8f", amount),
		TotalAmountFloat: amount,
		Height:           height,
		BlockHash:        blockHash,
	}
}

// FeeEstimatesValue renders FeeEstimates with string target keys, the
// JSON-friendly form of a map[uint16]float64.
type FeeEstimatesValue map[string]float64

// BuildFeeEstimatesValue converts target keys to their string form.
func BuildFeeEstimatesValue(est chain.FeeEstimates) FeeEstimatesValue {
	out := make(FeeEstimatesValue, len(est))
	for target, rate := range est {
		out[fmt.Sprintf("%d", target)] = rate
	}
	return out
}

// Package chain holds the domain types shared by the chain index, the
// mempool view and the query engine: hashes, outpoints, UTXOs and the
// small set of presentation-agnostic value objects the rest of the
// tree builds on.
package chain

import (
	"bytes"
	"crypto/sha256"
	"math"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Txid is a transaction id. Ordering follows raw byte sequence, not
// the reversed hex string used for display.
type Txid = chainhash.Hash

// OutPoint identifies a single transaction output.
type OutPoint = wire.OutPoint

// ScriptHash addresses a scriptPubKey. It is sha256(script), not the
// Electrum reversed-display form; the reversal only happens when (and
// if) a presentation layer needs Electrum-compatible text.
type ScriptHash [32]byte

// ComputeScriptHash derives the lookup key used to group UTXOs and
// history by script.
func ComputeScriptHash(script []byte) ScriptHash {
	return sha256.Sum256(script)
}

// TxidLess reports whether a sorts before b by raw byte sequence.
func TxidLess(a, b Txid) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// OutPointLess orders by (txid, vout), the order UTXO listings and
// cursors rely on for stability.
func OutPointLess(a, b OutPoint) bool {
	if a.Hash != b.Hash {
		return TxidLess(a.Hash, b.Hash)
	}
	return a.Index < b.Index
}

// BlockId identifies a confirmed block a transaction or output is
// anchored to. Version through Difficulty are only populated when the
// external indexer stores a full header; readers must treat them as
// optional (zero) otherwise.
type BlockId struct {
	Hash              chainhash.Hash
	Height            uint32
	Time              uint32
	Version           int32
	TxCount           uint32
	Size              uint32
	Weight            uint32
	MerkleRoot        chainhash.Hash
	PreviousBlockHash *chainhash.Hash
	Nonce             uint32
	Bits              uint32
	Difficulty        float64
}

// Utxo is a single unspent transaction output, confirmed or not.
type Utxo struct {
	Txid      Txid
	Vout      uint32
	Value     uint64
	Confirmed *BlockId
}

// OutPointVal returns the (txid, vout) pair identifying this output.
func (u Utxo) OutPointVal() OutPoint {
	return OutPoint{Hash: u.Txid, Index: u.Vout}
}

// SpendingInput describes the input that spends some output, if any.
type SpendingInput struct {
	Txid      Txid
	Vin       uint32
	Confirmed *BlockId
}

// ScriptStats aggregates funded/spent activity for one script.
type ScriptStats struct {
	FundedTxoCount uint64
	FundedTxoSum   uint64
	SpentTxoCount  uint64
	SpentTxoSum    uint64
	TxCount        uint64
}

// Add merges the counts of other into s in place.
func (s *ScriptStats) Add(other ScriptStats) {
	s.FundedTxoCount += other.FundedTxoCount
	s.FundedTxoSum += other.FundedTxoSum
	s.SpentTxoCount += other.SpentTxoCount
	s.SpentTxoSum += other.SpentTxoSum
	s.TxCount += other.TxCount
}

// TransactionStatus reports a transaction's confirmation state.
type TransactionStatus struct {
	Confirmed   bool
	BlockHeight *uint32
	BlockHash   *chainhash.Hash
	BlockTime   *uint32
}

// NewTransactionStatus builds a status from an optional anchoring
// block: nil means unconfirmed.
func NewTransactionStatus(b *BlockId) TransactionStatus {
	if b == nil {
		return TransactionStatus{Confirmed: false}
	}
	h, t := b.Height, b.Time
	hash := b.Hash
	return TransactionStatus{
		Confirmed:   true,
		BlockHeight: &h,
		BlockHash:   &hash,
		BlockTime:   &t,
	}
}

// ConfTargets are the fee-estimate confirmation targets recognized by
// the fee cache, in ascending order.
var ConfTargets = []uint16{
	1, 2, 3, 4, 5, 6, 7, 8, 9, 10,
	11, 12, 13, 14, 15, 16, 17, 18, 19, 20,
	21, 22, 23, 24, 25, 144, 504, 1008,
}

// FeeEstimates maps a confirmation target (in blocks) to a fee rate in
// sat/vByte.
type FeeEstimates map[uint16]float64

// Transaction is a decoded transaction, reused directly from the wire
// package rather than re-modeled.
type Transaction = wire.MsgTx

// TxIn and TxOut are the wire package's input/output types.
type TxIn = wire.TxIn
type TxOut = wire.TxOut

// BuildHeader reconstructs the 80-byte block header wire type from a
// BlockId's stored header fields, for serving /block/{hash}/header and
// /block/{hash}/raw without keeping a second copy of every header.
func BuildHeader(b BlockId) wire.BlockHeader {
	var prev chainhash.Hash
	if b.PreviousBlockHash != nil {
		prev = *b.PreviousBlockHash
	}
	return wire.BlockHeader{
		Version:    b.Version,
		PrevBlock:  prev,
		MerkleRoot: b.MerkleRoot,
		Timestamp:  time.Unix(int64(b.Time), 0),
		Bits:       b.Bits,
		Nonce:      b.Nonce,
	}
}

// IsCoinbase reports whether in spends the coinbase "null" outpoint.
func IsCoinbase(in *wire.TxIn) bool {
	return in.PreviousOutPoint.Index == math.MaxUint32 &&
		in.PreviousOutPoint.Hash == chainhash.Hash{}
}

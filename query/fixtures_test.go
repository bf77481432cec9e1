package query

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/metaid/utxoquery/chain"
)

// fakeTxWithOneOutput builds a coinbase-shaped transaction with a
// single spendable output, used where the test only needs some
// transaction to occupy a mempool slot.
func fakeTxWithOneOutput(value int64) *chain.Transaction {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0xffffffff}})
	tx.AddTxOut(&wire.TxOut{Value: value, PkScript: []byte{0x51}})
	return tx
}

// fakeTxSpending builds a transaction whose sole input spends
// (parent, vout).
func fakeTxSpending(parent chain.Txid, vout uint32) *chain.Transaction {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: parent, Index: vout}})
	tx.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{0x51}})
	return tx
}

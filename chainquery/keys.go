package chainquery

import (
	"encoding/binary"
	"math"

	"github.com/metaid/utxoquery/chain"
)

// Key prefixes. Single bytes keep iteration prefixes short and the
// upper-bound trick in prefixUpperBound cheap.
const (
	prefixTip      = 'T'
	prefixBlockByH = 'b' // height(4BE) -> hash(32) || time(4BE)
	prefixHeightBy = 'h' // hash(32) -> height(4BE)
	prefixUtxo     = 'u' // scripthash(32) || txid(32) || vout(4BE) -> value(8BE) || height(4BE) || time(4BE)
	prefixHistory  = 'H' // scripthash(32) || invheight(4BE) || txid(32) -> height(4BE) || time(4BE)
	prefixTxRaw    = 'x' // txid(32) -> raw tx bytes
	prefixTxBlock  = 'X' // txid(32) -> height(4BE) || time(4BE) || hash(32)
	prefixSpend    = 'p' // txid(32) || vout(4BE) -> spend_txid(32) || vin(4BE) || height(4BE) || time(4BE) || hash(32)
	prefixStats    = 'c' // scripthash(32) -> 5 x uint64(BE)
	prefixBlockTxs = 'k' // height(4BE) -> txid(32) || txid(32) || ... in block order
	prefixAddrText = 'a' // address_string -> empty; keys sort lexically for prefix search
)

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func be64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func invHeight(h uint32) uint32 { return math.MaxUint32 - h }

func utxoKey(sh chain.ScriptHash, txid chain.Txid, vout uint32) []byte {
	k := make([]byte, 0, 1+32+32+4)
	k = append(k, prefixUtxo)
	k = append(k, sh[:]...)
	k = append(k, txid[:]...)
	k = append(k, be32(vout)...)
	return k
}

func utxoScriptPrefix(sh chain.ScriptHash) []byte {
	k := make([]byte, 0, 1+32)
	k = append(k, prefixUtxo)
	k = append(k, sh[:]...)
	return k
}

func historyScriptPrefix(sh chain.ScriptHash) []byte {
	k := make([]byte, 0, 1+32)
	k = append(k, prefixHistory)
	k = append(k, sh[:]...)
	return k
}

func historyKey(sh chain.ScriptHash, height uint32, txid chain.Txid) []byte {
	k := make([]byte, 0, 1+32+4+32)
	k = append(k, prefixHistory)
	k = append(k, sh[:]...)
	k = append(k, be32(invHeight(height))...)
	k = append(k, txid[:]...)
	return k
}

func blockByHeightKey(height uint32) []byte {
	k := make([]byte, 0, 1+4)
	k = append(k, prefixBlockByH)
	k = append(k, be32(height)...)
	return k
}

func heightByHashKey(hash chain.Txid) []byte {
	k := make([]byte, 0, 1+32)
	k = append(k, prefixHeightBy)
	k = append(k, hash[:]...)
	return k
}

func txRawKey(txid chain.Txid) []byte {
	k := make([]byte, 0, 1+32)
	k = append(k, prefixTxRaw)
	k = append(k, txid[:]...)
	return k
}

func txBlockKey(txid chain.Txid) []byte {
	k := make([]byte, 0, 1+32)
	k = append(k, prefixTxBlock)
	k = append(k, txid[:]...)
	return k
}

func spendKey(txid chain.Txid, vout uint32) []byte {
	k := make([]byte, 0, 1+32+4)
	k = append(k, prefixSpend)
	k = append(k, txid[:]...)
	k = append(k, be32(vout)...)
	return k
}

func statsKey(sh chain.ScriptHash) []byte {
	k := make([]byte, 0, 1+32)
	k = append(k, prefixStats)
	k = append(k, sh[:]...)
	return k
}

func blockTxidsKey(height uint32) []byte {
	k := make([]byte, 0, 1+4)
	k = append(k, prefixBlockTxs)
	k = append(k, be32(height)...)
	return k
}

func addrTextKey(addr string) []byte {
	k := make([]byte, 0, 1+len(addr))
	k = append(k, prefixAddrText)
	k = append(k, addr...)
	return k
}

func addrTextPrefix(prefix string) []byte {
	return addrTextKey(prefix)
}

// prefixUpperBound computes the exclusive upper bound for a prefix
// scan: the prefix with its last non-0xff byte incremented.
func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

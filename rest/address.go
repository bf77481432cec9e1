package rest

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// parseAddress decodes a base58/bech32 address string for params.
func parseAddress(addr string, params *chaincfg.Params) (btcutil.Address, error) {
	return btcutil.DecodeAddress(addr, params)
}

// addressToScript derives the scriptPubKey an address pays to, the
// same key the UTXO/history/stats lookups are indexed by.
func addressToScript(addr btcutil.Address) ([]byte, error) {
	return txscript.PayToAddrScript(addr)
}

// Package daemon is the gateway to the backing full node: broadcasting
// transactions, estimating fees, and reading chain-wide aggregates the
// query engine can't derive from its own stores.
package daemon

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/metaid/utxoquery/chain"
)

// Gateway talks to the node's JSON-RPC interface.
type Gateway struct {
	client *rpcclient.Client
	params *chaincfg.Params
}

// Config holds the RPC connection parameters, mirroring the node
// adapter's own connection config shape.
type Config struct {
	Host     string
	User     string
	Password string
	Params   *chaincfg.Params
}

// New dials the node. Connectivity is verified with a GetBlockCount
// call, matching the adapter's own Connect behavior.
func New(cfg Config) (*Gateway, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("daemon: connect: %w", err)
	}
	g := &Gateway{client: client, params: cfg.Params}
	if _, err := g.client.GetBlockCount(); err != nil {
		return nil, fmt.Errorf("daemon: verify connection: %w", err)
	}
	log.Printf("daemon: connected to node at %s", cfg.Host)
	return g, nil
}

// Shutdown releases the RPC client.
func (g *Gateway) Shutdown() {
	g.client.Shutdown()
}

// BroadcastRaw submits a raw transaction and returns its txid.
func (g *Gateway) BroadcastRaw(rawHex string) (chain.Txid, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return chain.Txid{}, fmt.Errorf("daemon: decode raw tx: %w", err)
	}
	tx, err := decodeTx(raw)
	if err != nil {
		return chain.Txid{}, err
	}
	hash, err := g.client.SendRawTransaction(tx, false)
	if err != nil {
		log.Printf("daemon: broadcast rejected: %v", err)
		return chain.Txid{}, err
	}
	return *hash, nil
}

// EstimateSmartFeeBatch calls estimatesmartfee once per target, the
// same shape bitcoind's own RPC exposes (no native batch call).
func (g *Gateway) EstimateSmartFeeBatch(targets []uint16) chain.FeeEstimates {
	out := make(chain.FeeEstimates, len(targets))
	for _, target := range targets {
		result, err := g.client.EstimateSmartFee(int64(target), nil)
		if err != nil || result.FeeRate == nil {
			continue
		}
		// FeeRate is BTC/kvB; convert to sat/vByte.
		out[target] = *result.FeeRate * 1e8 / 1000
	}
	return out
}

// RelayFee returns the node's minimum relay fee, in sat/vByte.
func (g *Gateway) RelayFee() (float64, error) {
	info, err := g.client.GetNetworkInfo()
	if err != nil {
		return 0, fmt.Errorf("daemon: getnetworkinfo: %w", err)
	}
	return info.RelayFee * 1e8 / 1000, nil
}

// txOutSetInfo mirrors the gettxoutsetinfo RPC response fields we use.
type txOutSetInfo struct {
	Height      int64   `json:"height"`
	BestBlock   string  `json:"bestblock"`
	TotalAmount float64 `json:"total_amount"`
}

// TotalCoinSupply calls gettxoutsetinfo and returns the chain's total
// unspent value, matching the adapter's RawRequest idiom for calls
// rpcclient has no typed wrapper for.
func (g *Gateway) TotalCoinSupply() (amount float64, height int64, blockHash string, err error) {
	resp, err := g.client.RawRequest("gettxoutsetinfo", nil)
	if err != nil {
		log.Printf("daemon: gettxoutsetinfo failed: %v", err)
		return 0, 0, "", err
	}
	var info txOutSetInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return 0, 0, "", fmt.Errorf("daemon: decode gettxoutsetinfo: %w", err)
	}
	return info.TotalAmount, info.Height, info.BestBlock, nil
}

// RawMempoolTxids lists every txid currently in the node's mempool.
func (g *Gateway) RawMempoolTxids() ([]chain.Txid, error) {
	ids, err := g.client.GetRawMempool()
	if err != nil {
		return nil, fmt.Errorf("daemon: getrawmempool: %w", err)
	}
	out := make([]chain.Txid, len(ids))
	for i, h := range ids {
		out[i] = *h
	}
	return out, nil
}

// MempoolEntry is the subset of getmempoolentry this gateway exposes.
type MempoolEntry struct {
	Fee   uint64
	VSize uint32
}

type mempoolEntryResult struct {
	VSize uint32 `json:"vsize"`
	Fees  struct {
		Base float64 `json:"base"`
	} `json:"fees"`
}

// MempoolEntryFor fetches fee/vsize for a mempool transaction, used by
// the external mempool sync task (out of scope here) to populate the
// in-process mempool view. Uses RawRequest the same way the node
// adapter does for calls without a typed rpcclient wrapper.
func (g *Gateway) MempoolEntryFor(txid chain.Txid) (MempoolEntry, error) {
	param, err := json.Marshal(txid.String())
	if err != nil {
		return MempoolEntry{}, err
	}
	resp, err := g.client.RawRequest("getmempoolentry", []json.RawMessage{param})
	if err != nil {
		return MempoolEntry{}, err
	}
	var entry mempoolEntryResult
	if err := json.Unmarshal(resp, &entry); err != nil {
		return MempoolEntry{}, fmt.Errorf("daemon: decode getmempoolentry: %w", err)
	}
	return MempoolEntry{
		Fee:   uint64(entry.Fees.Base * 1e8),
		VSize: entry.VSize,
	}, nil
}

// GetRawTransactionHex fetches a transaction's raw hex from the node,
// used as a fallback when neither the chain store nor the mempool
// view has it cached locally.
func (g *Gateway) GetRawTransactionHex(txid chain.Txid) (string, error) {
	raw, err := g.client.GetRawTransactionVerbose(&txid)
	if err != nil {
		return "", err
	}
	return raw.Hex, nil
}

func decodeTx(raw []byte) (*chain.Transaction, error) {
	msgTx := &chain.Transaction{}
	if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("daemon: deserialize tx: %w", err)
	}
	return msgTx, nil
}

package rest

import (
	"bytes"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/gin-gonic/gin"
	"github.com/metaid/utxoquery/apierr"
	"github.com/metaid/utxoquery/chain"
	"github.com/metaid/utxoquery/mempool"
	"github.com/metaid/utxoquery/value"
)

func fail(c *gin.Context, err error) {
	c.Error(err)
}

func parseTxid(s string) (chain.Txid, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chain.Txid{}, apierr.BadRequestf("invalid txid: %s", s)
	}
	return *h, nil
}

func parseHash(s string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, apierr.BadRequestf("invalid hash: %s", s)
	}
	return *h, nil
}

// resolveScriptHash accepts either an address or a bare scripthash,
// depending on kind, and returns the lookup key the query engine uses.
func (s *Server) resolveScriptHash(kind, id string) (chain.ScriptHash, error) {
	if kind == "scripthash" {
		raw, err := hex.DecodeString(id)
		if err != nil || len(raw) != 32 {
			return chain.ScriptHash{}, apierr.BadRequestf("invalid scripthash: %s", id)
		}
		var sh chain.ScriptHash
		copy(sh[:], raw)
		return sh, nil
	}
	addr, err := parseAddress(id, s.Params)
	if err != nil {
		return chain.ScriptHash{}, apierr.BadRequestf("invalid address: %s", id)
	}
	script, err := addressToScript(addr)
	if err != nil {
		return chain.ScriptHash{}, apierr.BadRequestf("invalid address: %s", id)
	}
	return chain.ComputeScriptHash(script), nil
}

func cacheControl(c *gin.Context, confirmedDepth int, hasTip bool) {
	ttl := TTLShort
	if hasTip && confirmedDepth >= ConfFinal {
		ttl = TTLLong
	}
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(ttl))
}

// --- blocks ---

func (s *Server) getTipHash(c *gin.Context) {
	tip, ok := s.Engine.Chain.Tip()
	if !ok {
		fail(c, apierr.NotFoundf("no blocks indexed"))
		return
	}
	c.String(http.StatusOK, tip.Hash.String())
}

func (s *Server) getTipHeight(c *gin.Context) {
	height, ok := s.Engine.Chain.TipHeight()
	if !ok {
		fail(c, apierr.NotFoundf("no blocks indexed"))
		return
	}
	c.String(http.StatusOK, strconv.FormatUint(uint64(height), 10))
}

func (s *Server) getBlockHeightToHash(c *gin.Context) {
	height, err := strconv.ParseUint(c.Param("height"), 10, 32)
	if err != nil {
		fail(c, apierr.BadRequestf("invalid height"))
		return
	}
	b, ok := s.Engine.Chain.BlockId(uint32(height))
	if !ok {
		fail(c, apierr.NotFoundf("block not found"))
		return
	}
	c.String(http.StatusOK, b.Hash.String())
}

func (s *Server) lookupBlock(c *gin.Context) (chain.BlockId, bool) {
	hash, err := parseHash(c.Param("hash"))
	if err != nil {
		fail(c, err)
		return chain.BlockId{}, false
	}
	b, ok := s.Engine.Chain.BlockIdByHash(hash)
	if !ok {
		fail(c, apierr.NotFoundf("block not found"))
		return chain.BlockId{}, false
	}
	return b, true
}

func (s *Server) getBlock(c *gin.Context) {
	b, ok := s.lookupBlock(c)
	if !ok {
		return
	}
	s.setBlockCache(c, b)
	c.JSON(http.StatusOK, value.BuildBlockValue(b))
}

func (s *Server) setBlockCache(c *gin.Context, b chain.BlockId) {
	tip, hasTip := s.Engine.Chain.TipHeight()
	depth := 0
	if hasTip && tip >= b.Height {
		depth = int(tip-b.Height) + 1
	}
	cacheControl(c, depth, hasTip)
}

func (s *Server) getBlockStatus(c *gin.Context) {
	b, ok := s.lookupBlock(c)
	if !ok {
		return
	}
	tip, hasTip := s.Engine.Chain.TipHeight()
	inBestChain := hasTip && tip >= b.Height
	s.setBlockCache(c, b)
	c.JSON(http.StatusOK, gin.H{
		"in_best_chain": inBestChain,
		"height":        b.Height,
	})
}

func (s *Server) getBlockTxids(c *gin.Context) {
	b, ok := s.lookupBlock(c)
	if !ok {
		return
	}
	txids, err := s.Engine.Chain.BlockTxids(b.Height)
	if err != nil {
		fail(c, apierr.New(apierr.Internal, err.Error()))
		return
	}
	out := make([]string, len(txids))
	for i, t := range txids {
		out[i] = t.String()
	}
	s.setBlockCache(c, b)
	c.JSON(http.StatusOK, out)
}

func (s *Server) getBlockTxidAt(c *gin.Context) {
	b, ok := s.lookupBlock(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		fail(c, apierr.BadRequestf("invalid index"))
		return
	}
	txids, err := s.Engine.Chain.BlockTxids(b.Height)
	if err != nil {
		fail(c, apierr.New(apierr.Internal, err.Error()))
		return
	}
	if index >= len(txids) {
		fail(c, apierr.NotFoundf("index out of range"))
		return
	}
	s.setBlockCache(c, b)
	c.String(http.StatusOK, txids[index].String())
}

// getBlocks lists up to BlockLimit block summaries walking backward
// from start_height (or the chain tip, if absent).
func (s *Server) getBlocks(c *gin.Context) {
	var height uint32
	if v := c.Param("start_height"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			fail(c, apierr.BadRequestf("invalid start_height"))
			return
		}
		height = uint32(n)
	} else {
		tip, ok := s.Engine.Chain.TipHeight()
		if !ok {
			fail(c, apierr.NotFoundf("no blocks indexed"))
			return
		}
		height = tip
	}

	out := make([]value.BlockValue, 0, BlockLimit)
	for i := 0; i < BlockLimit; i++ {
		if height < uint32(i) {
			break
		}
		h := height - uint32(i)
		b, ok := s.Engine.Chain.BlockId(h)
		if !ok {
			break
		}
		out = append(out, value.BuildBlockValue(b))
	}
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(TTLShort))
	c.JSON(http.StatusOK, out)
}

func (s *Server) getBlockHeader(c *gin.Context) {
	b, ok := s.lookupBlock(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	header := chain.BuildHeader(b)
	if err := header.Serialize(&buf); err != nil {
		fail(c, apierr.New(apierr.Internal, err.Error()))
		return
	}
	s.setBlockCache(c, b)
	c.String(http.StatusOK, hex.EncodeToString(buf.Bytes()))
}

// getBlockRaw serves the raw block: header, tx count, and every
// transaction's raw bytes in block order. It depends on the external
// indexer having stored both the block's txid list (PutBlockTxids)
// and each transaction's raw bytes (PutTx); a tx that isn't found
// there is a fatal inconsistency, the same way a missing prevout is.
func (s *Server) getBlockRaw(c *gin.Context) {
	b, ok := s.lookupBlock(c)
	if !ok {
		return
	}
	txids, err := s.Engine.Chain.BlockTxids(b.Height)
	if err != nil {
		fail(c, apierr.New(apierr.Internal, err.Error()))
		return
	}

	var buf bytes.Buffer
	header := chain.BuildHeader(b)
	if err := header.Serialize(&buf); err != nil {
		fail(c, apierr.New(apierr.Internal, err.Error()))
		return
	}
	if err := wire.WriteVarInt(&buf, wire.ProtocolVersion, uint64(len(txids))); err != nil {
		fail(c, apierr.New(apierr.Internal, err.Error()))
		return
	}
	for _, txid := range txids {
		raw, _, ok := s.Engine.Chain.LookupRawTxn(txid)
		if !ok {
			fail(c, apierr.Internalf("block raw: missing tx %s for block %s", txid, b.Hash))
			return
		}
		buf.Write(raw)
	}

	s.setBlockCache(c, b)
	c.Data(http.StatusOK, "application/octet-stream", buf.Bytes())
}

// getBlockTxs renders a page of a block's transactions, ChainTxsPerPage
// at a time starting at the given offset.
func (s *Server) getBlockTxs(c *gin.Context) {
	start := 0
	if v := c.Param("start_index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n%ChainTxsPerPage != 0 {
			fail(c, apierr.BadRequestf("start index must be a multiple of %d", ChainTxsPerPage))
			return
		}
		start = n
	}
	b, ok := s.lookupBlock(c)
	if !ok {
		return
	}

	txids, err := s.Engine.Chain.BlockTxids(b.Height)
	if err != nil {
		fail(c, apierr.New(apierr.Internal, err.Error()))
		return
	}
	if start > len(txids) {
		start = len(txids)
	}
	end := start + ChainTxsPerPage
	if end > len(txids) {
		end = len(txids)
	}

	snap := s.Engine.Snapshot()
	out := make([]value.TransactionValue, 0, end-start)
	for _, txid := range txids[start:end] {
		tv, err, ok := s.renderTx(snap, txid)
		if err != nil {
			fail(c, err)
			return
		}
		if !ok {
			continue
		}
		out = append(out, tv)
	}
	s.setBlockCache(c, b)
	c.JSON(http.StatusOK, out)
}

// --- address / scripthash ---

// getAddressPrefix returns known address strings beginning with the
// given prefix, gated on Cfg.AddressSearch the same way the source
// gates its own text-search index behind a config flag.
func (s *Server) getAddressPrefix(c *gin.Context) {
	if !s.Cfg.AddressSearch {
		fail(c, apierr.NotFoundf("address search is disabled"))
		return
	}
	prefix := c.Param("prefix")
	if prefix == "" {
		fail(c, apierr.BadRequestf("missing prefix"))
		return
	}
	results, err := s.Engine.Chain.AddressSearch(prefix, AddressSearchLimit)
	if err != nil {
		fail(c, apierr.New(apierr.Internal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) getAddressOrScripthash(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh, err := s.resolveScriptHash(kind, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		snap := s.Engine.Snapshot()
		chainStats, mempoolStats, err := s.Engine.ScriptStats(snap, sh)
		if err != nil {
			fail(c, apierr.New(apierr.Internal, err.Error()))
			return
		}
		v := value.AddressValue{
			ChainStats:   value.BuildAddressStatsValue(chainStats),
			MempoolStats: value.BuildAddressStatsValue(mempoolStats),
		}
		if kind == "address" {
			v.Address = c.Param("id")
		} else {
			v.ScriptHash = c.Param("id")
		}
		c.Header("Cache-Control", "public, max-age="+strconv.Itoa(TTLShort))
		c.JSON(http.StatusOK, v)
	}
}

func (s *Server) getBalance(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh, err := s.resolveScriptHash(kind, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		snap := s.Engine.Snapshot()
		chainStats, mempoolStats, err := s.Engine.ScriptStats(snap, sh)
		if err != nil {
			fail(c, apierr.New(apierr.Internal, err.Error()))
			return
		}
		c.Header("Cache-Control", "public, max-age="+strconv.Itoa(TTLShort))
		c.JSON(http.StatusOK, value.BuildAddressBalanceValue(chainStats, mempoolStats))
	}
}

func (s *Server) getStats(kind string) gin.HandlerFunc {
	return s.getBalance(kind)
}

func parsePaging(c *gin.Context) (startIndex, limit int, cursor *chain.OutPoint, err error) {
	limit = ChainTxsPerPage
	if v := c.Query("limit"); v != "" {
		n, e := strconv.Atoi(v)
		if e != nil || n <= 0 {
			return 0, 0, nil, apierr.BadRequestf("invalid limit")
		}
		limit = n
	}
	if v := c.Query("start_index"); v != "" {
		n, e := strconv.Atoi(v)
		if e != nil || n < 0 {
			return 0, 0, nil, apierr.BadRequestf("invalid start_index")
		}
		startIndex = n
	}
	if v := c.Query("after_txid"); v != "" {
		txid, e := parseTxid(v)
		if e != nil {
			return 0, 0, nil, e
		}
		vout := uint32(0)
		if vv := c.Query("after_vout"); vv != "" {
			n, e2 := strconv.ParseUint(vv, 10, 32)
			if e2 != nil {
				return 0, 0, nil, apierr.BadRequestf("invalid after_vout")
			}
			vout = uint32(n)
		}
		cursor = &chain.OutPoint{Hash: txid, Index: vout}
	}
	return startIndex, limit, cursor, nil
}

func (s *Server) getUtxo(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh, err := s.resolveScriptHash(kind, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		startIndex, limit, cursor, err := parsePaging(c)
		if err != nil {
			fail(c, err)
			return
		}
		snap := s.Engine.Snapshot()
		var utxos []chain.Utxo
		var total int
		var next *chain.OutPoint
		if cursor != nil {
			utxos, total, next, err = s.Engine.UtxoCursor(snap, sh, cursor, limit)
		} else {
			utxos, total, err = s.Engine.UtxoPaginated(snap, sh, startIndex, limit)
		}
		if err != nil {
			fail(c, apierr.New(apierr.Internal, err.Error()))
			return
		}
		out := make([]value.UtxoValue, len(utxos))
		for i, u := range utxos {
			out[i] = value.BuildUtxoValue(u)
		}
		resp := gin.H{"utxos": out, "total": total}
		if next != nil {
			resp["next_txid"] = next.Hash.String()
			resp["next_vout"] = next.Index
		}
		c.Header("Cache-Control", "public, max-age="+strconv.Itoa(TTLMempoolRecent))
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) getUtxoLegacy(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh, err := s.resolveScriptHash(kind, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		snap := s.Engine.Snapshot()
		utxos, err := s.Engine.Utxo(snap, sh)
		if err != nil {
			fail(c, apierr.New(apierr.Internal, err.Error()))
			return
		}
		out := make([]value.UtxoValue, len(utxos))
		for i, u := range utxos {
			out[i] = value.BuildUtxoValue(u)
		}
		c.Header("Cache-Control", "public, max-age="+strconv.Itoa(TTLMempoolRecent))
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) txsPage(kind string, onlyChain, onlyMempool bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh, err := s.resolveScriptHash(kind, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		var lastSeen *chain.Txid
		if v := c.Query("last_seen_txid"); v != "" {
			txid, e := parseTxid(v)
			if e != nil {
				fail(c, e)
				return
			}
			lastSeen = &txid
		}
		snap := s.Engine.Snapshot()
		entries, err := s.Engine.HistoryTxids(snap, sh, lastSeen, ChainTxsPerPage)
		if err != nil {
			fail(c, apierr.New(apierr.Internal, err.Error()))
			return
		}
		out := make([]value.TransactionValue, 0, len(entries))
		for _, e := range entries {
			if onlyChain && e.Block == nil {
				continue
			}
			if onlyMempool && e.Block != nil {
				continue
			}
			tv, err, ok := s.renderTx(snap, e.Txid)
			if err != nil {
				fail(c, err)
				return
			}
			if !ok {
				continue
			}
			out = append(out, tv)
		}
		c.Header("Cache-Control", "public, max-age="+strconv.Itoa(TTLShort))
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) getTxs(kind string) gin.HandlerFunc         { return s.txsPage(kind, false, false) }
func (s *Server) getTxsChain(kind string) gin.HandlerFunc    { return s.txsPage(kind, true, false) }
func (s *Server) getTxsMempool(kind string) gin.HandlerFunc  { return s.txsPage(kind, false, true) }

// --- transactions ---

// renderTx builds a transaction's full presentation, batching prevout
// resolution in one LookupTxos call across every input.
func (s *Server) renderTx(snap *mempool.Snapshot, txid chain.Txid) (value.TransactionValue, error, bool) {
	tx, block, ok := s.Engine.LookupTxn(snap, txid)
	if !ok {
		return value.TransactionValue{}, nil, false
	}
	ops := make([]chain.OutPoint, 0, len(tx.TxIn))
	for _, in := range tx.TxIn {
		if chain.IsCoinbase(in) {
			continue
		}
		ops = append(ops, in.PreviousOutPoint)
	}
	prevouts, err := s.Engine.LookupTxos(snap, ops)
	if err != nil {
		return value.TransactionValue{}, err, false
	}
	var feePtr *uint64
	if block == nil {
		if fee, ok := s.Engine.GetMempoolTxFee(snap, txid); ok {
			feePtr = &fee
		}
	}
	status := chain.NewTransactionStatus(block)
	return value.BuildTransactionValue(tx, prevouts, s.Params, feePtr, &status), nil, true
}

func (s *Server) getTx(c *gin.Context) {
	txid, err := parseTxid(c.Param("txid"))
	if err != nil {
		fail(c, err)
		return
	}
	snap := s.Engine.Snapshot()
	tv, err, ok := s.renderTx(snap, txid)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		fail(c, apierr.NotFoundf("transaction not found"))
		return
	}
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(TTLShort))
	c.JSON(http.StatusOK, tv)
}

func (s *Server) getTxHex(c *gin.Context) {
	txid, err := parseTxid(c.Param("txid"))
	if err != nil {
		fail(c, err)
		return
	}
	snap := s.Engine.Snapshot()
	raw, _, ok := s.Engine.LookupRawTxn(snap, txid)
	if !ok {
		hexStr, err := s.Engine.Daemon.GetRawTransactionHex(txid)
		if err != nil {
			fail(c, apierr.NotFoundf("transaction not found"))
			return
		}
		c.String(http.StatusOK, hexStr)
		return
	}
	c.String(http.StatusOK, hex.EncodeToString(raw))
}

func (s *Server) getTxRaw(c *gin.Context) {
	txid, err := parseTxid(c.Param("txid"))
	if err != nil {
		fail(c, err)
		return
	}
	snap := s.Engine.Snapshot()
	raw, _, ok := s.Engine.LookupRawTxn(snap, txid)
	if !ok {
		fail(c, apierr.NotFoundf("transaction not found"))
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", raw)
}

func (s *Server) getTxStatus(c *gin.Context) {
	txid, err := parseTxid(c.Param("txid"))
	if err != nil {
		fail(c, err)
		return
	}
	snap := s.Engine.Snapshot()
	status, ok := s.Engine.GetTxStatus(snap, txid)
	if !ok {
		fail(c, apierr.NotFoundf("transaction not found"))
		return
	}
	c.JSON(http.StatusOK, value.BuildTransactionStatusValue(status))
}

// txBlockTxids locates the confirmed block a tx belongs to and its
// ordered txid list, the common setup for both merkle proof routes.
func (s *Server) txBlockTxids(c *gin.Context, txid chain.Txid) (chain.BlockId, []chain.Txid, bool) {
	snap := s.Engine.Snapshot()
	_, block, ok := s.Engine.LookupTxn(snap, txid)
	if !ok || block == nil {
		fail(c, apierr.NotFoundf("transaction not found in a confirmed block"))
		return chain.BlockId{}, nil, false
	}
	txids, err := s.Engine.Chain.BlockTxids(block.Height)
	if err != nil {
		fail(c, apierr.New(apierr.Internal, err.Error()))
		return chain.BlockId{}, nil, false
	}
	if len(txids) == 0 {
		fail(c, apierr.NotFoundf("block transaction index not available"))
		return chain.BlockId{}, nil, false
	}
	return *block, txids, true
}

func (s *Server) getTxMerkleProof(c *gin.Context) {
	txid, err := parseTxid(c.Param("txid"))
	if err != nil {
		fail(c, err)
		return
	}
	block, txids, ok := s.txBlockTxids(c, txid)
	if !ok {
		return
	}
	branch, pos, ok := chain.MerkleProof(txids, txid)
	if !ok {
		fail(c, apierr.Internalf("merkle proof: txid %s not found in its own block's txid list", txid))
		return
	}
	merkle := make([]string, len(branch))
	for i, h := range branch {
		merkle[i] = h.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"block_height": block.Height,
		"merkle":       merkle,
		"pos":          pos,
	})
}

func (s *Server) getTxMerkleBlockProof(c *gin.Context) {
	txid, err := parseTxid(c.Param("txid"))
	if err != nil {
		fail(c, err)
		return
	}
	block, txids, ok := s.txBlockTxids(c, txid)
	if !ok {
		return
	}
	hashes, flags, ok := chain.BuildMerkleBlockProof(txids, txid)
	if !ok {
		fail(c, apierr.Internalf("merkleblock proof: txid %s not found in its own block's txid list", txid))
		return
	}
	header := chain.BuildHeader(block)
	raw, err := chain.SerializeMerkleBlock(header, uint32(len(txids)), hashes, flags)
	if err != nil {
		fail(c, apierr.New(apierr.Internal, err.Error()))
		return
	}
	c.String(http.StatusOK, hex.EncodeToString(raw))
}

func (s *Server) getOutspend(c *gin.Context) {
	txid, err := parseTxid(c.Param("txid"))
	if err != nil {
		fail(c, err)
		return
	}
	index, err := strconv.ParseUint(c.Param("index"), 10, 32)
	if err != nil {
		fail(c, apierr.BadRequestf("invalid index"))
		return
	}
	snap := s.Engine.Snapshot()
	in, _ := s.Engine.LookupSpend(snap, chain.OutPoint{Hash: txid, Index: uint32(index)})
	c.JSON(http.StatusOK, value.BuildSpendingValue(&in))
}

func (s *Server) getOutspends(c *gin.Context) {
	txid, err := parseTxid(c.Param("txid"))
	if err != nil {
		fail(c, err)
		return
	}
	snap := s.Engine.Snapshot()
	tx, _, ok := s.Engine.LookupTxn(snap, txid)
	if !ok {
		fail(c, apierr.NotFoundf("transaction not found"))
		return
	}
	spends := s.Engine.LookupTxSpends(snap, txid, tx.TxOut)
	out := make([]value.SpendingValue, len(spends))
	for i, sp := range spends {
		out[i] = value.BuildSpendingValue(sp)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) postTx(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		fail(c, apierr.BadRequestf("failed to read body"))
		return
	}
	rawHex := string(body)
	txid, err := s.Engine.BroadcastRaw(rawHex)
	if err != nil {
		fail(c, apierr.FromUpstream(err))
		return
	}
	c.String(http.StatusOK, txid.String())
}

func (s *Server) getBroadcast(c *gin.Context) {
	rawHex := c.Query("tx")
	if rawHex == "" {
		fail(c, apierr.BadRequestf("missing tx parameter"))
		return
	}
	txid, err := s.Engine.BroadcastRaw(rawHex)
	if err != nil {
		fail(c, apierr.FromUpstream(err))
		return
	}
	c.String(http.StatusOK, txid.String())
}

type txsTestRequest struct {
	Txs []string `json:"txs"`
}

func (s *Server) postTxsTest(c *gin.Context) {
	var req txsTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierr.BadRequestf("invalid request body"))
		return
	}
	if len(req.Txs) > MaxTestTxs {
		fail(c, apierr.BadRequestf("too many transactions, max %d", MaxTestTxs))
		return
	}
	// Mempool-acceptance simulation (testmempoolaccept) belongs to the
	// daemon, not this query core; report structurally valid decode
	// only.
	out := make([]gin.H, len(req.Txs))
	for i, rawHex := range req.Txs {
		raw, err := hex.DecodeString(rawHex)
		if err != nil {
			out[i] = gin.H{"allowed": false, "reject-reason": "invalid hex"}
			continue
		}
		if len(raw) < 120 || len(raw) > 800_000 {
			fail(c, apierr.BadRequestf("Invalid transaction size for item %d", i))
			return
		}
		tx := chain.Transaction{}
		if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
			out[i] = gin.H{"allowed": false, "reject-reason": "decode failed"}
			continue
		}
		out[i] = gin.H{"txid": tx.TxHash().String(), "allowed": true}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) postTxsPackage(c *gin.Context) {
	var req txsTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierr.BadRequestf("invalid request body"))
		return
	}
	if len(req.Txs) > MaxTestTxs {
		fail(c, apierr.BadRequestf("too many transactions, max %d", MaxTestTxs))
		return
	}
	for i, rawHex := range req.Txs {
		if n := len(rawHex) / 2; n < 120 || n > 800_000 {
			fail(c, apierr.BadRequestf("Invalid transaction size for item %d", i))
			return
		}
	}
	txids := make([]string, 0, len(req.Txs))
	for _, rawHex := range req.Txs {
		txid, err := s.Engine.BroadcastRaw(rawHex)
		if err != nil {
			fail(c, apierr.FromUpstream(err))
			return
		}
		txids = append(txids, txid.String())
	}
	c.JSON(http.StatusOK, gin.H{"txids": txids})
}

func (s *Server) getTxsOutspends(c *gin.Context) {
	const maxOutspendsTxids = 50
	var txidsParam []string
	if v := c.Query("txids"); v != "" {
		txidsParam = strings.Split(v, ",")
	}
	if len(txidsParam) > maxOutspendsTxids {
		fail(c, apierr.BadRequestf("too many txids, max %d", maxOutspendsTxids))
		return
	}
	snap := s.Engine.Snapshot()
	out := make([]gin.H, 0, len(txidsParam))
	for _, raw := range txidsParam {
		txid, err := parseTxid(raw)
		if err != nil {
			out = append(out, gin.H{"txid": raw, "error": "invalid txid"})
			continue
		}
		tx, _, ok := s.Engine.LookupTxn(snap, txid)
		if !ok {
			out = append(out, gin.H{"txid": raw, "error": "not found"})
			continue
		}
		spends := s.Engine.LookupTxSpends(snap, txid, tx.TxOut)
		vals := make([]value.SpendingValue, len(spends))
		for i, sp := range spends {
			vals[i] = value.BuildSpendingValue(sp)
		}
		out = append(out, gin.H{"txid": raw, "spends": vals})
	}
	c.JSON(http.StatusOK, out)
}

// --- mempool ---

func (s *Server) getMempool(c *gin.Context) {
	snap := s.Engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{"count": snap.TxCount()})
}

func (s *Server) getMempoolTxids(c *gin.Context) {
	snap := s.Engine.Snapshot()
	ids := snap.Txids()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(TTLMempoolRecent))
	c.JSON(http.StatusOK, out)
}

func (s *Server) getMempoolRecent(c *gin.Context) {
	snap := s.Engine.Snapshot()
	recent := snap.Recent()
	out := make([]gin.H, len(recent))
	for i, r := range recent {
		out[i] = gin.H{
			"txid":  r.Txid.String(),
			"fee":   r.Fee,
			"vsize": r.VSize,
			"value": r.Value,
		}
	}
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(TTLMempoolRecent))
	c.JSON(http.StatusOK, out)
}

// --- fee estimates / supply ---

func (s *Server) getFeeEstimates(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(TTLMempoolRecent))
	c.JSON(http.StatusOK, value.BuildFeeEstimatesValue(s.Engine.EstimateFeeMap()))
}

func (s *Server) getSupply(c *gin.Context) {
	amount, height, blockHash, err := s.Engine.GetTotalCoinSupply()
	if err != nil {
		fail(c, apierr.FromUpstream(err))
		return
	}
	c.JSON(http.StatusOK, value.BuildTotalCoinSupplyValue(amount, height, blockHash))
}

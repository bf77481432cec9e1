// Package rest exposes the query engine over HTTP, matching the route
// surface, pagination conventions and cache-control policy of the
// block-explorer REST API this was distilled from.
package rest

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/gin-gonic/gin"
	"github.com/metaid/utxoquery/apierr"
	"github.com/metaid/utxoquery/config"
	"github.com/metaid/utxoquery/query"
	"github.com/metaid/utxoquery/syslogs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pagination and cache-control constants, matching the source's own.
const (
	ChainTxsPerPage   = 25
	MaxMempoolTxs     = 50
	BlockLimit        = 10
	AddressSearchLimit = 10
	TTLLong           = 157_784_630
	TTLShort          = 10
	TTLMempoolRecent  = 5
	ConfFinal         = 10
	MaxTestTxs        = 25
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "utxoquery_http_requests_total",
		Help: "Total REST requests by route and status.",
	}, []string{"route", "status"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "utxoquery_http_request_duration_seconds",
		Help: "REST request latency by route.",
	}, []string{"route"})
)

// Server wires the query engine into a gin router.
type Server struct {
	Engine *query.Engine
	Cfg    *config.Config
	Params *chaincfg.Params
	Router *gin.Engine
}

// NewServer builds the router and registers every route. Matches the
// teacher's gin setup: release mode, discarded default writer, no
// reflection-based route registration.
func NewServer(engine *query.Engine, cfg *config.Config, params *chaincfg.Params) *Server {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard

	s := &Server{Engine: engine, Cfg: cfg, Params: params, Router: gin.Default()}
	s.Router.Use(s.cors(), s.metrics(), s.recovery())
	s.setupRoutes()
	return s
}

func (s *Server) cors() gin.HandlerFunc {
	origins := s.Cfg.CORSOrigins
	return func(c *gin.Context) {
		origin := "*"
		if len(origins) > 0 {
			origin = origins[0]
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		status := c.Writer.Status()
		requestsTotal.WithLabelValues(route, http.StatusText(status)).Inc()
		if status >= 400 {
			logFailure(c, status)
		}
	}
}

func logFailure(c *gin.Context, status int) {
	msg := ""
	if len(c.Errors) > 0 {
		msg = c.Errors.String()
	}
	err := syslogs.InsertErrLog(syslogs.ErrLog{
		Method:       c.Request.Method,
		Path:         c.Request.URL.Path,
		Status:       status,
		Timestamp:    time.Now().Unix(),
		ErrorMessage: msg,
	})
	if err != nil {
		log.Printf("rest: failed to record error log: %v", err)
	}
}

// recovery turns a handler-attached apierr.Error (or panic) into the
// right HTTP status, the single translation point the rest of the
// handlers funnel through.
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("rest: panic handling %s %s: %v", c.Request.Method, c.Request.URL.Path, r)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				c.Abort()
			}
		}()
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		apiErr, ok := err.(*apierr.Error)
		if !ok {
			apiErr = apierr.New(apierr.Internal, err.Error())
		}
		c.JSON(apiErr.Kind.Status(), gin.H{"error": apiErr.Message})
	}
}

func (s *Server) setupRoutes() {
	r := s.Router
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/blocks/tip/hash", s.getTipHash)
	r.GET("/blocks/tip/height", s.getTipHeight)
	r.GET("/block-height/:height", s.getBlockHeightToHash)
	r.GET("/blocks", s.getBlocks)
	r.GET("/blocks/:start_height", s.getBlocks)
	r.GET("/block/:hash", s.getBlock)
	r.GET("/block/:hash/status", s.getBlockStatus)
	r.GET("/block/:hash/header", s.getBlockHeader)
	r.GET("/block/:hash/raw", s.getBlockRaw)
	r.GET("/block/:hash/txids", s.getBlockTxids)
	r.GET("/block/:hash/txid/:index", s.getBlockTxidAt)
	r.GET("/block/:hash/txs", s.getBlockTxs)
	r.GET("/block/:hash/txs/:start_index", s.getBlockTxs)

	r.GET("/address-prefix/:prefix", s.getAddressPrefix)

	for _, kind := range []string{"address", "scripthash"} {
		r.GET("/"+kind+"/:id", s.getAddressOrScripthash(kind))
		r.GET("/"+kind+"/:id/balance", s.getBalance(kind))
		r.GET("/"+kind+"/:id/stats", s.getStats(kind))
		r.GET("/"+kind+"/:id/txs", s.getTxs(kind))
		r.GET("/"+kind+"/:id/txs/chain", s.getTxsChain(kind))
		r.GET("/"+kind+"/:id/txs/mempool", s.getTxsMempool(kind))
		r.GET("/"+kind+"/:id/utxo", s.getUtxo(kind))
		r.GET("/"+kind+"/:id/utxo-legacy", s.getUtxoLegacy(kind))
	}

	r.GET("/tx/:txid", s.getTx)
	r.GET("/tx/:txid/hex", s.getTxHex)
	r.GET("/tx/:txid/raw", s.getTxRaw)
	r.GET("/tx/:txid/status", s.getTxStatus)
	r.GET("/tx/:txid/outspend/:index", s.getOutspend)
	r.GET("/tx/:txid/outspends", s.getOutspends)
	r.GET("/tx/:txid/merkle-proof", s.getTxMerkleProof)
	r.GET("/tx/:txid/merkleblock-proof", s.getTxMerkleBlockProof)
	r.POST("/tx", s.postTx)
	r.GET("/broadcast", s.getBroadcast)
	r.POST("/txs/test", s.postTxsTest)
	r.POST("/txs/package", s.postTxsPackage)
	r.GET("/txs/outspends", s.getTxsOutspends)

	r.GET("/mempool", s.getMempool)
	r.GET("/mempool/txids", s.getMempoolTxids)
	r.GET("/mempool/recent", s.getMempoolRecent)

	r.GET("/fee-estimates", s.getFeeEstimates)
	r.GET("/blockchain/getsupply", s.getSupply)
}

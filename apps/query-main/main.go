package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/mattn/go-colorable"
	"github.com/metaid/utxoquery/chainquery"
	"github.com/metaid/utxoquery/config"
	"github.com/metaid/utxoquery/daemon"
	"github.com/metaid/utxoquery/feecache"
	"github.com/metaid/utxoquery/mempool"
	"github.com/metaid/utxoquery/query"
	"github.com/metaid/utxoquery/rest"
	"github.com/metaid/utxoquery/syslogs"
)

func main() {
	fmt.Println("Starting UTXO query core...")
	defer func() {
		if r := recover(); r != nil {
			log.Printf("==============>global panic: %v", r)
		}
	}()

	log.SetOutput(colorable.NewColorableStdout())

	cfg, params := initConfig()

	if err := syslogs.InitEventLogDB(cfg.EventLogPath); err != nil {
		log.Fatalf("Failed to initialize error-log database: %v", err)
	}
	defer syslogs.Close()

	chainStore, err := chainquery.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open chain index: %v", err)
	}
	defer chainStore.Close()

	gw, err := daemon.New(daemon.Config{
		Host:     cfg.RPC.Host + ":" + cfg.RPC.Port,
		User:     cfg.RPC.User,
		Password: cfg.RPC.Password,
		Params:   params,
	})
	if err != nil {
		log.Fatalf("Failed to connect to node: %v", err)
	}
	defer gw.Shutdown()

	pool := mempool.New()
	fees := feecache.New(gw, cfg.IsRegtest())
	engine := query.New(chainStore, pool, gw, fees, cfg.IsRegtest())

	server := rest.NewServer(engine, cfg, params)

	stopCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Received stop signal, preparing to shutdown...")
		close(stopCh)
	}()

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router}
	go func() {
		log.Printf("Starting REST API on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("REST API stopped: %v", err)
		}
	}()

	<-stopCh
	log.Println("Program is shutting down...")
	if err := httpServer.Close(); err != nil {
		log.Printf("Failed to close REST API: %v", err)
	}
	log.Println("Shutdown complete")
}

func initConfig() (*config.Config, *chaincfg.Params) {
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	params, err := cfg.GetChainParams()
	if err != nil {
		log.Fatalf("Failed to resolve chain params: %v", err)
	}
	return cfg, params
}

// Command fireagg runs the full crypto market-data aggregation pipeline:
// per-exchange producers, the true-mid aggregator, the DB sink workers,
// the client feed gateway, the read API, and the trade archiver, all
// launched onto one orchestrator.Core. Connect and migrate the store
// first, build every worker, hand them to the orchestrator, then wait on
// an OS signal and shut down the HTTP servers gracefully.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cryptoagg/fireagg/internal/aggregator"
	"github.com/cryptoagg/fireagg/internal/api"
	"github.com/cryptoagg/fireagg/internal/archive"
	"github.com/cryptoagg/fireagg/internal/bus"
	"github.com/cryptoagg/fireagg/internal/config"
	"github.com/cryptoagg/fireagg/internal/exchange"

	// Import side effect: registers the "simulated" adapter factory.
	_ "github.com/cryptoagg/fireagg/internal/exchange/simulated"

	"github.com/cryptoagg/fireagg/internal/gateway"
	"github.com/cryptoagg/fireagg/internal/metrics"
	"github.com/cryptoagg/fireagg/internal/orchestrator"
	"github.com/cryptoagg/fireagg/internal/producer"
	"github.com/cryptoagg/fireagg/internal/registry"
	"github.com/cryptoagg/fireagg/internal/sink"
	"github.com/cryptoagg/fireagg/internal/storage"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("fireagg starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	store, err := storage.NewStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer store.Close()

	reg := registry.New(store.Pool())

	go storage.RunRetention(ctx, store.Pool(), cfg.TradeRetentionDays)

	b, err := newBus(ctx, cfg)
	if err != nil {
		log.Fatalf("bus init failed: %v", err)
	}

	core := orchestrator.New(b, cfg.LaunchWorkers)

	if err := launchProducers(ctx, core, cfg, reg, b); err != nil {
		log.Fatalf("producer setup failed: %v", err)
	}

	agg := aggregator.New(b)
	core.PutWorker(agg)

	tradesPool, err := storage.NewPriorityPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("trades sink pool: %v", err)
	}
	defer tradesPool.Close()
	spreadsPool, err := storage.NewPriorityPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("spreads sink pool: %v", err)
	}
	defer spreadsPool.Close()
	truePricesPool, err := storage.NewPriorityPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("true-mid sink pool: %v", err)
	}
	defer truePricesPool.Close()

	core.PutWorker(sink.NewTradesSink(b, tradesPool, cfg.SinkMaxFlushAttempts))
	core.PutWorker(sink.NewSpreadsSink(b, spreadsPool, cfg.SinkMaxFlushAttempts))
	core.PutWorker(sink.NewTruePricesSink(b, truePricesPool, cfg.SinkMaxFlushAttempts))

	gwMgr := gateway.NewManager(b, cfg.GatewaySendBuffer)
	core.PutWorker(gwMgr)

	archiver, err := newArchiver(ctx, cfg, store)
	if err != nil {
		log.Fatalf("archiver setup failed: %v", err)
	}
	core.PutWorker(archiver)

	go func() {
		if err := metrics.Serve(fmt.Sprintf("%s:%d", cfg.Host, cfg.MetricsPort)); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	gwMux := http.NewServeMux()
	gwMux.HandleFunc("/feed", gateway.Handler(gwMgr, cfg.GatewaySendBuffer))
	gwMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","clients":%d}`, gwMgr.ClientCount())
	})
	gwAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.GatewayPort)
	gwSrv := &http.Server{Addr: gwAddr, Handler: gwMux}

	apiMux := http.NewServeMux()
	apiServer := api.NewServer(reg, storage.NewPgTradeReader(store.Pool()), gwMgr)
	apiServer.Register(apiMux)
	apiAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.APIPort)
	apiSrv := &http.Server{Addr: apiAddr, Handler: apiMux}

	coreDone := make(chan error, 1)
	go func() { coreDone <- core.Run(ctx) }()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		gwSrv.Shutdown(shutdownCtx)
		apiSrv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Printf("read API listening on http://%s", apiAddr)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("api server error: %v", err)
		}
	}()

	log.Printf("client feed gateway listening on ws://%s/feed", gwAddr)
	if err := gwSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("gateway server error: %v", err)
	}

	<-ctx.Done()
	if err := <-coreDone; err != nil {
		log.Printf("orchestrator stopped: %v", err)
	}
	log.Println("fireagg stopped")
}

func newBus(ctx context.Context, cfg *config.Config) (bus.MessageBus, error) {
	if cfg.BusMode == "redis" {
		client := bus.NewRedisClient(cfg.RedisURL, "", 0)
		return bus.NewRedisStreamsBus(client), nil
	}
	return bus.NewInProcessBus(), nil
}

// splitLogicalSymbol breaks "BTC/USD" into ("BTC", "USD"). Falls back to
// treating the whole string as the base asset if there's no separator.
func splitLogicalSymbol(logicalSymbol string) (base, quote string) {
	parts := strings.SplitN(logicalSymbol, "/", 2)
	if len(parts) != 2 {
		return logicalSymbol, ""
	}
	return parts[0], parts[1]
}

// launchProducers builds one Adapter per configured exchange and one
// Producer per (logical symbol, Kind) pair drawn from that exchange's
// market listing, seeding the registry along the way.
func launchProducers(ctx context.Context, core *orchestrator.Core, cfg *config.Config, reg *registry.Registry, b bus.MessageBus) error {
	for _, name := range cfg.Exchanges {
		adapter, err := exchange.New(name)
		if err != nil {
			return fmt.Errorf("exchange %q: %w", name, err)
		}

		if err := reg.SeedMarkets(ctx, adapter, name, splitLogicalSymbol); err != nil {
			return fmt.Errorf("seed markets for %q: %w", name, err)
		}

		markets, err := adapter.ListMarkets(ctx)
		if err != nil {
			return fmt.Errorf("list markets for %q: %w", name, err)
		}

		for logicalSymbol := range markets {
			core.PutWorker(producer.New(name, logicalSymbol, producer.KindTrades, adapter, reg, b, splitLogicalSymbol, true))
			core.PutWorker(producer.New(name, logicalSymbol, producer.KindSpreads, adapter, reg, b, splitLogicalSymbol, true))
		}

		log.Printf("exchange %q: launched producers for %d symbols", name, len(markets))
	}
	return nil
}

// newArchiver builds the S3 client (if cfg.S3Bucket is set) and constructs
// the Archiver worker. Leaving S3Bucket empty falls back to local-file
// archiving only.
func newArchiver(ctx context.Context, cfg *config.Config, store *storage.Store) (*archive.Archiver, error) {
	var s3Client *s3.Client
	if cfg.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
	}
	return archive.New(store.Pool(), s3Client, cfg.ArchiveDir, cfg.S3Bucket, cfg.ArchiveMaxGB, cfg.ArchiveIntervalHours, cfg.ArchiveAfterHours), nil
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/offline-asset-cache/internal/assets"
	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
	_ "github.com/mohammed-shakir/offline-asset-cache/internal/cache/memstore"
	_ "github.com/mohammed-shakir/offline-asset-cache/internal/cache/redisstore"
	_ "github.com/mohammed-shakir/offline-asset-cache/internal/cache/sqlitestore"
	"github.com/mohammed-shakir/offline-asset-cache/internal/classify"
	"github.com/mohammed-shakir/offline-asset-cache/internal/clients"
	"github.com/mohammed-shakir/offline-asset-cache/internal/controller"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/observability"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/server"
	"github.com/mohammed-shakir/offline-asset-cache/internal/kafkacontrol"
	"github.com/mohammed-shakir/offline-asset-cache/internal/logger"
	"github.com/mohammed-shakir/offline-asset-cache/internal/metrics"
	"github.com/mohammed-shakir/offline-asset-cache/internal/network"
	"github.com/mohammed-shakir/offline-asset-cache/internal/strategy"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	// overriding the generation via flag makes a rollout a restart with -generation=v2
	genFlag := flag.String("generation", "", "cache generation tag (overrides CACHE_VERSION)")
	flag.Parse()

	cfg := config.FromEnv()
	if *genFlag != "" {
		cfg.CacheVersion = strings.TrimSpace(*genFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Cache:     cfg.CacheName(),
		Component: "assetcache",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting asset cache",
		"addr", cfg.Addr,
		"version", Version,
		"origin", cfg.OriginURL,
		"namespace", cfg.CacheName(),
		"store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{}
	if strings.ToLower(os.Getenv("METRICS_ENABLED")) == "true" {
		p := metrics.Init(metrics.Config{
			Build:       metrics.BuildFromEnv(Version),
			StoreDriver: cfg.StoreDriver,
			Codec:       cfg.EntryCodec,
		})
		observability.Init(p.Registerer(), true)
		deps.Metrics = p.Handler()
	} else {
		observability.Init(nil, false)
	}

	rawStore, err := cache.New(cfg.StoreDriver, cfg, appLog)
	if err != nil {
		appLog.Error("cache store setup failed", "driver", cfg.StoreDriver, "err", err)
		return 1
	}
	store := cache.Instrument(rawStore, cfg.CacheOpTimeout)
	defer func() {
		if err := store.Close(); err != nil {
			appLog.Warn("cache store close failed", "err", err)
		}
	}()

	src, err := assets.NewSource(cfg.ManifestPath, appLog)
	if err != nil {
		appLog.Error("asset manifest load failed", "path", cfg.ManifestPath, "err", err)
		return 1
	}
	if cfg.ManifestPath != "" && cfg.ManifestWatch {
		go func() {
			if err := src.Watch(ctx); err != nil {
				appLog.Warn("manifest watch stopped", "err", err)
			}
		}()
	}

	httpClient := httpclient.NewOutbound(cfg.FetchTimeout)
	origin, err := network.NewOrigin(appLog, httpClient, cfg.OriginURL, cfg.FetchMaxBody)
	if err != nil {
		appLog.Error("failed to initialize origin fetcher", "err", err)
		return 1
	}

	var hubOpts []clients.Option
	var publisher *kafkacontrol.Publisher
	if cfg.Kafka.Enabled && cfg.Kafka.NotifyTopic != "" {
		publisher, err = kafkacontrol.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic, 0, appLog)
		if err != nil {
			appLog.Error("kafka publisher setup failed", "err", err)
			return 1
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				appLog.Warn("kafka publisher close failed", "err", err)
			}
		}()
		hubOpts = append(hubOpts, clients.WithSink(publisher))
	}
	hub := clients.NewHub(appLog, hubOpts...)

	bg := strategy.NewBackground(ctx, appLog, strategy.CountFailure)
	ctrl, err := controller.New(controller.Config{
		Logger:           appLog,
		Store:            store,
		Network:          origin,
		Clients:          hub,
		Manifest:         src,
		Origin:           origin.Base(),
		Classifier:       classify.New(cfg.StaticManifestSuffix),
		Background:       bg,
		Generation:       cfg.CacheVersion,
		Prefix:           cfg.CachePrefix,
		OfflineNamespace: cfg.OfflineCache,
		Workers:          cfg.PrecacheWorkers,
	})
	if err != nil {
		appLog.Error("controller setup failed", "err", err)
		return 1
	}
	defer ctrl.Wait()

	// requests pass through to the origin until install has activated the generation
	go ctrl.Dispatch(ctx, controller.Install{})

	if cfg.Kafka.Enabled {
		consumer := kafkacontrol.New(kafkacontrol.FromApp(cfg), appLog, &zl, ctrl)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("kafka control consumer stopped", "err", err)
			}
		}()
	}

	deps.Controller = ctrl
	deps.Clients = hub
	deps.PassThrough = network.NewPassThrough(appLog, httpClient, origin)
	deps.OnShutdown = hub.CloseAll

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/s3proxy/api/handlers"
	"github.com/ruteri/s3proxy/common"
	"github.com/ruteri/s3proxy/config"
	"github.com/ruteri/s3proxy/httpserver"
	"github.com/ruteri/s3proxy/storage"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Value:   "",
		Usage:   "path to TOML config file",
		EnvVars: []string{"S3PROXY_CONFIG_FILE"},
	},
	&cli.StringFlag{
		Name:  "env-file",
		Value: "",
		Usage: "path to .env file loaded before config resolution",
	},
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "",
		Usage: "address to listen on for the S3 API (overrides config)",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "",
		Usage: "address to listen on for Prometheus metrics (overrides config)",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: common.PackageName,
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func main() {
	app := &cli.App{
		Name:  "s3proxy",
		Usage: "Serve an S3-compatible API backed by one configured cloud object store",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			logJSON := cCtx.Bool("log-json")
			logDebug := cCtx.Bool("log-debug")
			logUID := cCtx.Bool("log-uid")
			logService := cCtx.String("log-service")
			enablePprof := cCtx.Bool("pprof")
			drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   logDebug,
				JSON:    logJSON,
				Service: logService,
				Version: common.Version,
			})

			cfg, err := config.Load(cCtx.String("config"), cCtx.String("env-file"))
			if err != nil {
				logger.Error("Failed to load configuration", "err", err)
				return err
			}

			if cfg.LogLevel == "debug" && !logDebug {
				logger = common.SetupLogger(&common.LoggingOpts{
					Debug:   true,
					JSON:    logJSON,
					Service: logService,
					Version: common.Version,
				})
			}

			if logUID {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			if addr := cCtx.String("listen-addr"); addr != "" {
				cfg.Server.ListenAddr = addr
			}
			if addr := cCtx.String("metrics-addr"); addr != "" {
				cfg.Server.MetricsAddr = addr
			}

			logger.Info("Constructing storage backend",
				"type", string(cfg.Backend.Type),
				"bucket", cfg.Backend.Bucket,
				"prefix", cfg.Backend.Prefix)

			factory := storage.NewStorageBackendFactory(logger)
			backend, err := factory.BackendFor(context.Background(), &cfg.Backend)
			if err != nil {
				logger.Error("Failed to construct storage backend", "err", err)
				return err
			}
			logger.Info("Storage backend ready", "backend", backend.Name())

			serverCfg := &httpserver.HTTPServerConfig{
				ListenAddr:               cfg.Server.ListenAddr,
				MetricsAddr:              cfg.Server.MetricsAddr,
				Log:                      logger,
				EnablePprof:              enablePprof,
				RequestTimeout:           time.Duration(cfg.Server.TimeoutSecs) * time.Second,
				MaxBodySize:              cfg.Server.MaxBodySize,
				DrainDuration:            drainDuration,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             time.Duration(cfg.Server.TimeoutSecs) * time.Second,
			}

			handler := handlers.NewHandler(backend, nil, logger)
			server, err := httpserver.New(serverCfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			// The metrics registry is owned by the server, so the storage
			// observer can only be wired once the server exists.
			handler.SetObserver(server.Metrics())
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"github.com/utilitywarehouse/git-puller/internal/lock"
	"github.com/utilitywarehouse/git-puller/pullpool"
	"github.com/utilitywarehouse/git-puller/repository"
)

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Sources: cli.EnvVars("GIT_PULLER_CONFIG"),
			Value:   "/etc/git-puller/config.yaml",
			Usage:   "Absolute path to the config file.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   "info",
			Usage:   "Log level",
		},
		&cli.BoolFlag{
			Name:    "watch-config",
			Sources: cli.EnvVars("GIT_PULLER_WATCH_CONFIG"),
			Value:   true,
			Usage:   "Watch the config file and apply changes without a restart.",
		},
		&cli.StringFlag{
			Name:    "listen-address",
			Sources: cli.EnvVars("GIT_PULLER_LISTEN_ADDRESS"),
			Value:   ":9350",
			Usage:   "Address on which to expose metrics.",
		},
	}
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

func main() {
	cmd := &cli.Command{
		Name:  "git-puller",
		Usage: "git-puller is a daemon to periodically pull remote repositories into local working copies.",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {

			// set log level according to argument
			if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
				loggerLevel.Set(v)
			}

			// deadlock detection is only worth its overhead while debugging
			if loggerLevel.Level() > slog.LevelDebug {
				lock.Disable()
			}

			conf, err := parseConfigFile(c.String("config"))
			if err != nil {
				logger.Error("unable to parse config file", "err", err)
				os.Exit(1)
			}

			applyPullDefaults(conf)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			repository.EnableMetrics(metricsNamespace, prometheus.DefaultRegisterer)
			pullpool.EnableMetrics(metricsNamespace, prometheus.DefaultRegisterer)
			prometheus.MustRegister(configSuccess, configSuccessTime)

			pool, err := pullpool.New(ctx, *conf, logger.With("logger", "git-puller"))
			if err != nil {
				logger.Error("could not create repository pool", "err", err)
				os.Exit(1)
			}

			cleanupOrphanedRepos(conf, pool)

			// start update loop
			pool.StartLoop()

			go WatchConfig(ctx, c.String("config"), c.Bool("watch-config"), 10*time.Second,
				func(newConf *pullpool.Config) bool {
					return ensureConfig(pool, newConf)
				})

			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(c.String("listen-address"), mux); err != nil {
					logger.Error("metrics server terminated", "err", err)
				}
			}()

			// listenForShutdown
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			logger.Info("shutting down")
			cancel()

			// wait for in-flight updates to drain
			select {
			case <-pool.Stopped:
			case <-time.After(30 * time.Second):
				logger.Error("timed out waiting for in-flight updates")
			}

			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("failed to run app", "err", err)
		os.Exit(1)
	}
}

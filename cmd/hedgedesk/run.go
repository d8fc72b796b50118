package main

import (
	"context"
	"fmt"
	"strings"

	"hedgedesk/internal/alert"
	"hedgedesk/internal/analysis"
	"hedgedesk/internal/auth"
	"hedgedesk/internal/bootstrap"
	"hedgedesk/internal/config"
	"hedgedesk/internal/core"
	"hedgedesk/internal/dashboard"
	"hedgedesk/internal/exchange"
	"hedgedesk/internal/exchange/delta"
	"hedgedesk/internal/infrastructure/health"
	"hedgedesk/internal/session"
	"hedgedesk/internal/settings"
	"hedgedesk/pkg/concurrency"
	apphttp "hedgedesk/pkg/http"
	"hedgedesk/pkg/liveserver"
	pkgws "hedgedesk/pkg/websocket"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the market and payoff streams and serve the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap.NewApp(configPath, envFile)
		if err != nil {
			return err
		}
		return run(app)
	},
}

func run(app *bootstrap.App) error {
	cfg, logger := app.Cfg, app.Logger

	logger.Info("Starting hedgedesk", "version", version, "exchange", cfg.App.DefaultExchange, "coin", cfg.App.DefaultCoin)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "lookup",
		MaxWorkers:  cfg.Concurrency.LookupPoolSize,
		MaxCapacity: cfg.Concurrency.LookupPoolBuffer,
	}, logger)
	defer pool.Stop()

	var analysisClient *analysis.Client
	if cfg.Analysis.BaseURL != "" {
		analysisClient = analysis.NewClient(cfg.Analysis.BaseURL, apphttp.Options{Timeout: cfg.Analysis.Timeout}, logger)
	}

	sess := session.New(session.Config{
		Market:               streamConfig(session.EndpointMarket, cfg.Streams.MarketURL, cfg.Streams),
		Payoff:               streamConfig(session.EndpointPayoff, cfg.Streams.PayoffURL, cfg.Streams),
		Initial:              settings.Values{Exchange: cfg.App.DefaultExchange, Coin: cfg.App.DefaultCoin, Expiry: cfg.App.DefaultExpiry},
		LotSize:              cfg.App.LotSize,
		PriceRangePercentage: cfg.App.PriceRangePercentage,
		LookupTimeout:        cfg.Concurrency.LookupTimeout,
		EventQueueSize:       cfg.Concurrency.EventQueueSize,
	}, session.Deps{
		Catalogue: settings.Catalogue(cfg.Catalogue()),
		Resolver:  buildRegistry(cfg, logger),
		Pool:      pool,
		Analysis:  analysisClient,
	}, logger)

	hm := health.NewHealthManager(logger)
	for _, stream := range sess.Streams() {
		hm.RegisterStream(stream.Name()+"_stream", stream)
	}
	hm.Register("lookup_pool", pool.Check)

	if cfg.Alerts.Enabled() {
		watcher := alert.NewStreamWatcher(newAlertManager(cfg.Alerts, logger), cfg.Alerts.OutageThreshold, nil, logger)
		for _, stream := range sess.Streams() {
			defer watcher.Watch(stream.Name(), stream)()
		}
	}

	runners := []bootstrap.Runner{sess}

	if cfg.Dashboard.Enabled {
		hub := liveserver.NewHub(logger)
		server := liveserver.NewServer(hub, logger, liveserver.Options{
			AllowedOrigins: cfg.Dashboard.AllowedOrigins,
			MaxConnections: cfg.Dashboard.MaxConnections,
			RateLimit:      cfg.Dashboard.UpgradeRateLimit,
			RateBurst:      cfg.Dashboard.UpgradeBurst,
			Production:     len(cfg.Dashboard.APIKeys) > 0,
			DisableMetrics: !cfg.Telemetry.EnableMetrics,
		})
		server.SetHealthCheck(dashboard.HealthFunc(hm))

		validator := auth.NewAPIKeyValidator(secretValues(cfg.Dashboard.APIKeys), cfg.Dashboard.APIRateLimit, logger)
		dashboard.NewAPI(sess, validator, logger).Register(server.Router())

		stop := dashboard.Bridge(sess, hub)
		defer stop()

		runners = append(runners,
			bootstrap.RunnerFunc(func(ctx context.Context) error {
				hub.Run(ctx)
				return nil
			}),
			bootstrap.RunnerFunc(func(ctx context.Context) error {
				return server.Start(ctx, cfg.Dashboard.ListenAddr)
			}),
		)
	}

	return app.Run(runners...)
}

func streamConfig(name, url string, sc config.StreamsConfig) pkgws.Config {
	return pkgws.Config{
		Name:           name,
		URL:            url,
		ReconnectDelay: sc.ReconnectDelay,
		PingInterval:   sc.PingInterval,
		PingWait:       sc.PingWait,
		PongWait:       sc.PongWait,
	}
}

// buildRegistry registers a contract lookup for every exchange that has one.
// Catalogue-only exchanges resolve to ErrUnsupportedExchange.
func buildRegistry(cfg *config.Config, logger core.ILogger) *exchange.Registry {
	registry := exchange.NewRegistry()
	for _, name := range cfg.ExchangeNames() {
		ex := cfg.Exchanges[name]
		switch strings.ToLower(ex.Lookup) {
		case "delta":
			baseURL := ex.BaseURL
			if baseURL == "" {
				baseURL = delta.DefaultBaseURL
			}
			registry.Register(name, delta.NewProductsClient(baseURL, apphttp.Options{
				Timeout:    ex.Timeout,
				MaxRetries: ex.MaxRetries,
			}, logger))
		case "":
			logger.Debug("Exchange has no contract lookup", "exchange", name)
		default:
			logger.Warn("Unknown contract lookup", "exchange", name, "lookup", ex.Lookup)
		}
	}
	return registry
}

func newAlertManager(cfg config.AlertsConfig, logger core.ILogger) *alert.AlertManager {
	am := alert.NewAlertManager(logger, nil)
	if cfg.SlackWebhookURL != "" {
		am.AddChannel(alert.NewSlackChannel(cfg.SlackWebhookURL.Value()))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		am.AddChannel(alert.NewTelegramChannel(cfg.TelegramBotToken.Value(), cfg.TelegramChatID))
	}
	return am
}

func secretValues(secrets []config.Secret) []string {
	out := make([]string, 0, len(secrets))
	for _, s := range secrets {
		out = append(out, s.Value())
	}
	return out
}

func loadCLIConfig() (*config.Config, core.ILogger, error) {
	cfg, err := bootstrap.LoadConfig(configPath, envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := newCLILogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pegwatch/internal/alerting"
	"pegwatch/internal/analyzer"
	"pegwatch/internal/config"
	"pegwatch/internal/fetcher"
	"pegwatch/internal/logging"
	"pegwatch/internal/scheduler"
	"pegwatch/internal/service"
	"pegwatch/internal/store"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) newStore() *store.Store {
	return store.New(a.Config.Symbols(), store.Options{
		MaxSamples: a.Config.Retention.MaxSamples,
		MaxAge:     a.Config.Retention.MaxAge,
	})
}

func (a *App) newCoingecko() *fetcher.Coingecko {
	cg := a.Config.Providers.Coingecko
	return fetcher.NewCoingecko(fetcher.CoingeckoOptions{
		BaseURL:         cg.BaseURL,
		APIKey:          cg.APIKey,
		Timeout:         cg.RequestTimeout,
		MaxRetries:      cg.MaxRetries,
		RateLimitPerMin: cg.RateLimitPerMin,
		UserAgent:       cg.UserAgent,
	}, a.Logger)
}

func (a *App) newSupplyProvider() fetcher.SupplyProvider {
	providers := a.Config.Providers
	if providers.SupplySource == config.SupplySourceRPC {
		return fetcher.NewOnChain(fetcher.OnChainOptions{
			RPCURL:  providers.Chain.RPCURL,
			Timeout: providers.Chain.RequestTimeout,
		}, a.Logger)
	}

	es := providers.Etherscan
	if es.APIKey == "" {
		a.Logger.Warn().Msg("etherscan api key not configured; supply and holder data disabled")
		return nil
	}
	return fetcher.NewEtherscan(fetcher.EtherscanOptions{
		BaseURL:      es.BaseURL,
		APIKey:       es.APIKey,
		Timeout:      es.RequestTimeout,
		MaxRetries:   es.MaxRetries,
		HolderCounts: es.HolderCounts,
	}, a.Logger)
}

func (a *App) newTVLProvider() fetcher.TVLProvider {
	dl := a.Config.Providers.Defillama
	if !dl.Enabled {
		return nil
	}
	return fetcher.NewDefillama(fetcher.DefillamaOptions{
		BaseURL: dl.BaseURL,
		Chain:   dl.Chain,
		Timeout: dl.RequestTimeout,
	}, a.Logger)
}

func (a *App) newFetcher() *fetcher.Fetcher {
	return fetcher.New(a.newCoingecko(), a.newSupplyProvider(), a.newTVLProvider(), a.Logger)
}

func (a *App) newAnalyzer(st *store.Store) *analyzer.Analyzer {
	pegs := make(map[string]decimal.Decimal, len(a.Config.Assets))
	for _, asset := range a.Config.Assets {
		pegs[asset.Symbol] = decimal.NewFromFloat(asset.Peg)
	}
	return analyzer.New(analyzer.Options{
		Window:              a.Config.Analyzer.Window,
		StddevMultiplier:    a.Config.Analyzer.StddevMultiplier,
		AnomalyThresholdPct: a.Config.Analyzer.AnomalyThresholdPct,
	}, st, pegs, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newService(sched *scheduler.Scheduler, st *store.Store) *service.Service {
	return service.New(a.Config, sched, a.newFetcher(), st, a.newAnalyzer(st), a.newNotifier(), a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	st := a.newStore()
	svc := a.newService(sched, st)

	a.Logger.Info().
		Strs("assets", a.Config.Symbols()).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting peg monitoring service")

	err := svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("peg monitoring service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	History int
}

// ExportOptions hold parameters for exporting historical prices.
type ExportOptions struct {
	Asset     string
	Days      int
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions feed a synthetic price through the analyzer/alert path.
type SimulateOptions struct {
	Asset string
	Price float64
}

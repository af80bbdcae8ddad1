package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/spreadarb/internal/alert"
	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/internal/execution"
	"github.com/betbot/spreadarb/internal/fx"
	"github.com/betbot/spreadarb/internal/health"
	"github.com/betbot/spreadarb/internal/inventory"
	"github.com/betbot/spreadarb/internal/journal"
	"github.com/betbot/spreadarb/internal/metrics"
	"github.com/betbot/spreadarb/internal/orchestrator"
	"github.com/betbot/spreadarb/internal/pnl"
	"github.com/betbot/spreadarb/internal/ports"
	"github.com/betbot/spreadarb/internal/positions"
	"github.com/betbot/spreadarb/internal/risk"
	"github.com/betbot/spreadarb/internal/signals"
	"github.com/betbot/spreadarb/internal/venue/paper"
	"github.com/betbot/spreadarb/pkg/config"
	"github.com/betbot/spreadarb/pkg/kvstore"
	"github.com/betbot/spreadarb/pkg/logger"
	"github.com/betbot/spreadarb/pkg/persistence"
	"github.com/betbot/spreadarb/pkg/shutdown"
)

// app 进程内所有组件
type app struct {
	cfg *config.Config

	kv       kvstore.Store
	store    *positions.Store
	board    *health.Board
	venueA   *paper.Venue
	venueB   *paper.Venue
	gate     *risk.Gate
	executor *execution.Executor
	journal  *journal.Journal
	recorder *metrics.Recorder
	signals  *signals.Queue
	orch     *orchestrator.Orchestrator
}

func newPaperVenue(vc config.VenueConfig) (*paper.Venue, error) {
	mode, err := paper.ParseFillMode(vc.FillMode)
	if err != nil {
		return nil, fmt.Errorf("venue %s: %w", vc.ID, err)
	}
	return paper.New(paper.Config{
		ID:           vc.ID,
		FillMode:     mode,
		PartialRatio: vc.PartialRatio,
		Credentials:  vc.Credentials,
		BaseBalance:  vc.BaseBalance,
		QuoteBalance: vc.QuoteBalance,
	}), nil
}

func riskConfig(cfg *config.Config) risk.Config {
	return risk.Config{
		VenueA:        cfg.Venues.A.ID,
		VenueB:        cfg.Venues.B.ID,
		DefaultFXRate: cfg.FX.DefaultRate,
		Venue:         risk.VenueTierConfig(cfg.Risk.Venue),
		Route:         risk.RouteTierConfig(cfg.Risk.Route),
		Symbol:        risk.SymbolTierConfig(cfg.Risk.Symbol),
		Portfolio:     risk.PortfolioTierConfig(cfg.Risk.Portfolio),
		CrossVenue:    risk.CrossVenueTierConfig(cfg.Risk.CrossVenue),
	}
}

// rateTable 配置中的换算表，并补上 B 计价 -> A 计价的默认汇率
func rateTable(cfg *config.Config) *fx.Table {
	rates := make(map[string]decimal.Decimal, len(cfg.FX.Rates)+1)
	if cfg.Venues.A.Quote != "" && cfg.Venues.B.Quote != "" {
		rates[strings.ToUpper(cfg.Venues.B.Quote+"/"+cfg.Venues.A.Quote)] = decimal.NewFromFloat(cfg.FX.DefaultRate)
	}
	for pair, r := range cfg.FX.Rates {
		rates[pair] = decimal.NewFromFloat(r)
	}
	return fx.NewTable(rates)
}

// buildApp 按依赖顺序组装组件；每打开一个需要释放的资源就注册关闭回调
func buildApp(cfg *config.Config, sm *shutdown.Manager) (*app, error) {
	a := &app{cfg: cfg}

	kv, err := kvstore.Open(kvstore.Options{
		Backend:        cfg.Storage.Backend,
		RedisAddr:      cfg.Storage.Redis.Addr,
		RedisDB:        cfg.Storage.Redis.DB,
		RedisUsername:  cfg.Storage.Redis.Username,
		RedisPassword:  cfg.Storage.Redis.Password,
		BadgerPath:     cfg.Storage.Badger.Path,
		BadgerInMemory: cfg.Storage.Badger.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("打开仓位存储失败: %w", err)
	}
	a.kv = kv
	sm.OnShutdown("kvstore", func(context.Context) error { return kv.Close() })

	a.store = positions.NewStore(kv, positions.Config{
		KeyPrefix:    cfg.Positions.KeyPrefix,
		TTL:          cfg.Positions.TTL,
		NotionalBase: cfg.Positions.NotionalBase,
	})

	if a.venueA, err = newPaperVenue(cfg.Venues.A); err != nil {
		return nil, err
	}
	if a.venueB, err = newPaperVenue(cfg.Venues.B); err != nil {
		return nil, err
	}

	a.board = health.NewBoard()
	a.board.SetStatus(cfg.Venues.A.ID, domain.VenueHealthy)
	a.board.SetStatus(cfg.Venues.B.ID, domain.VenueHealthy)

	fxRate := fx.NewStatic(decimal.NewFromFloat(cfg.FX.DefaultRate))
	pnlTracker := pnl.NewTracker(cfg.PnL.SettlementCurrency, rateTable(cfg))
	invTracker := inventory.NewTracker(inventory.Config{
		ImbalanceThreshold: cfg.Inventory.ImbalanceThreshold,
		ExposureThreshold:  cfg.Inventory.ExposureThreshold,
	})

	a.recorder = metrics.NewRecorder()

	var sender ports.AlertSender = alert.Nop{}
	if cfg.Alert.WebhookURL != "" {
		sender = alert.NewThrottled(alert.NewWebhookNotifier(cfg.Alert.WebhookURL, cfg.Alert.Source), 3, 10*time.Minute)
	}

	a.gate = risk.NewGate(riskConfig(cfg), risk.Deps{
		Health:    a.board,
		Positions: a.store,
		Inventory: invTracker,
		PnL:       pnlTracker,
		FX:        fxRate,
		Metrics:   a.recorder,
		Alerts:    sender,
	})

	if cfg.State.Dir != "" {
		restoreCooldowns(a.gate, persistence.NewJSONFileService(cfg.State.Dir), sm)
	}

	a.executor, err = execution.NewExecutor(execution.Config{
		VenueA:            cfg.Venues.A.ID,
		VenueB:            cfg.Venues.B.ID,
		DefaultFXRate:     cfg.FX.DefaultRate,
		FillTimeout:       cfg.Executor.FillTimeout,
		PollInterval:      cfg.Executor.PollInterval,
		CancelTimeout:     cfg.Executor.CancelTimeout,
		Epsilon:           cfg.Executor.Epsilon,
		OrderType:         domain.OrderType(strings.ToLower(cfg.Executor.OrderType)),
		QuantityPrecision: cfg.Executor.QuantityPrecision,
		MinQuantity:       cfg.Executor.MinQuantity,
	}, execution.Deps{
		VenueA:      a.venueA,
		VenueB:      a.venueB,
		Positions:   a.store,
		Gate:        a.gate,
		Health:      a.board,
		FX:          fxRate,
		Metrics:     a.recorder,
		LegObserver: a.gate,
	})
	if err != nil {
		return nil, err
	}

	var jr orchestrator.Journal
	if cfg.Journal.Path != "" {
		a.journal, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("打开执行流水失败: %w", err)
		}
		jr = a.journal
		sm.OnShutdown("journal", func(context.Context) error { return a.journal.Close() })
	}

	a.signals = signals.NewQueue()
	a.orch, err = orchestrator.New(orchestrator.Config{
		EntryInterval:    cfg.Ticks.Entry,
		ExitInterval:     cfg.Ticks.Exit,
		PositionCurrency: cfg.Venues.A.Quote,
		DefaultFXRate:    cfg.FX.DefaultRate,
	}, orchestrator.Deps{
		Signals:   a.signals,
		Executor:  a.executor,
		Gate:      a.gate,
		Positions: a.store,
		PnL:       pnlTracker,
		Inventory: invTracker,
		BalancesA: a.venueA,
		BalancesB: a.venueB,
		FX:        fxRate,
		Journal:   jr,
		Alerts:    sender,
		Gauge:     a.recorder,
		VenueA:    cfg.Venues.A.ID,
		VenueB:    cfg.Venues.B.ID,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// restoreCooldowns 启动时恢复上次保存的 symbol 冷却，退出时保存
func restoreCooldowns(gate *risk.Gate, svc persistence.Service, sm *shutdown.Manager) {
	st := svc.NewStore("state", "gate", "cooldowns")
	var saved map[string]risk.Cooldown
	switch err := st.Load(&saved); {
	case err == nil:
		if n := gate.RestoreCooldowns(saved); n > 0 {
			logger.Infof("[risk] 恢复 %d 个 symbol 冷却", n)
		}
	case errors.Is(err, persistence.ErrNotExists):
	default:
		logger.Warnf("[risk] 读取冷却状态失败: %v", err)
	}
	sm.OnShutdown("cooldowns", func(context.Context) error {
		return st.Save(gate.Cooldowns())
	})
}

// statusSources 状态服务的数据来源
func (a *app) statusSources() metrics.StatusSources {
	src := metrics.StatusSources{
		Registry: a.recorder.Registry(),
		Metrics:  a.orch.GetMetrics,
		Positions: func(ctx context.Context) any {
			return a.store.ListActive(ctx)
		},
	}
	if a.journal != nil {
		src.Executions = func(ctx context.Context, limit int) (any, error) {
			return a.journal.Recent(ctx, limit)
		}
	}
	return src
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/spreadarb/internal/metrics"
	"github.com/betbot/spreadarb/internal/signals"
	"github.com/betbot/spreadarb/pkg/config"
	"github.com/betbot/spreadarb/pkg/logger"
	"github.com/betbot/spreadarb/pkg/shutdown"
	"github.com/betbot/spreadarb/pkg/syncgroup"
)

const gracefulShutdownPeriod = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	decisionsPath := flag.String("decisions", "", "决策回放文件（YAML 列表，可选）")
	flag.Parse()

	if err := logger.InitDefault(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	config.SetConfigPath(*configPath)
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"venue_a": cfg.Venues.A.ID,
		"venue_b": cfg.Venues.B.ID,
		"storage": cfg.Storage.Backend,
		"dry_run": cfg.DryRun,
	}).Info("arbcore 启动")

	sm := shutdown.NewManager()
	a, err := buildApp(cfg, sm)
	if err != nil {
		logger.Errorf("组件初始化失败: %v", err)
		sm.Shutdown(context.Background())
		os.Exit(1)
	}

	if *decisionsPath != "" {
		ds, err := signals.LoadFile(*decisionsPath)
		if err != nil {
			logger.Errorf("加载决策文件失败: %v", err)
			sm.Shutdown(context.Background())
			os.Exit(1)
		}
		a.signals.Push(ds...)
		logger.Infof("已载入 %d 条回放决策", len(ds))
	}

	ctx, cancel := context.WithCancel(context.Background())
	group := syncgroup.NewSyncGroup()

	if cfg.Metrics.ListenAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.Metrics.ListenAddr, a.statusSources()); err != nil {
			logger.Warnf("状态服务启动失败（继续运行）: %v", err)
		}
	}

	group.Add("orchestrator", a.orch.Run)
	group.Run(ctx)
	sm.OnShutdown("orchestrator", func(context.Context) error {
		cancel()
		group.Wait()
		return nil
	})

	// SIGHUP 立即执行一轮 tick，其余信号退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			logger.Info("收到 SIGHUP，立即执行一轮 tick")
			a.orch.Trigger()
			continue
		}
		logger.Infof("收到信号 %s，开始退出", sig)
		break
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer shutdownCancel()
	sm.Shutdown(shutdownCtx)
	logger.Info("arbcore 已退出")
}

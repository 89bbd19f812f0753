package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taoyao-code/scan-scale/internal/api"
	"github.com/taoyao-code/scan-scale/internal/api/middleware"
	"github.com/taoyao-code/scan-scale/internal/app"
	"github.com/taoyao-code/scan-scale/internal/calibration"
	"github.com/taoyao-code/scan-scale/internal/catalog"
	cfgpkg "github.com/taoyao-code/scan-scale/internal/config"
	"github.com/taoyao-code/scan-scale/internal/display"
	"github.com/taoyao-code/scan-scale/internal/health"
	"github.com/taoyao-code/scan-scale/internal/loadcell"
	"github.com/taoyao-code/scan-scale/internal/scansession"
	"github.com/taoyao-code/scan-scale/internal/upload"
)

const shutdownTimeout = 10 * time.Second

// Run 统一启动流程，阻塞直到 ctx 取消或任一后台任务失败
// 顺序：称重模块上电去皮 → 上传管道 → 控制循环 → HTTP
func Run(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting scan scale", zap.String("env", cfg.App.Env))

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics(cfg.App.DeviceID)
	ready := health.New()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Error("load catalog failed", zap.Error(err))
		return err
	}
	log.Info("catalog loaded", zap.String("path", cfg.Catalog.Path), zap.Int("items", cat.Len()))

	board := display.NewBoard(display.WithInvert(cfg.LoadCell.Invert))
	var screen display.Display = board
	if cfg.Display.Log {
		screen = display.Multi(board, display.NewLog(log.Named("display"), cfg.LoadCell.Invert))
	}

	// ========== 阶段2: 上传管道 ==========
	uploader, err := app.NewUploader(cfg, log, appm, board.SetLink)
	if err != nil {
		log.Error("upload initialization failed", zap.Error(err))
		return err
	}
	var submitter app.Submitter
	if uploader != nil {
		defer uploader.Close()
		submitter = uploader
	}

	// ========== 阶段3: 称重模块（失败直接返回）==========
	sampler, err := app.NewLoadCell(cfg.LoadCell, log, appm,
		loadcell.WithSampleHook(screen.ShowWeight),
		loadcell.WithTareHook(func(err error) {
			if err == nil && submitter != nil {
				submitter.Submit(upload.NewTareEvent(cfg.App.DeviceID, time.Now()))
			}
		}),
	)
	if err != nil {
		log.Error("load cell initialization failed", zap.Error(err))
		return err
	}
	if err := app.PrepareScale(ctx, sampler, cfg.LoadCell.TareOnStart); err != nil {
		// 去皮失败不阻止启动，保留零偏移
		log.Warn("scale not tared at startup", zap.Error(err))
	}
	ready.SetScaleReady(true)
	calib := calibration.New(sampler, cfg.Session.SentinelTag, log.Named("calibration"))

	// ========== 阶段4: 读卡器与会话状态机 ==========
	rd, err := app.NewReader(cfg.Reader, log, appm)
	if err != nil {
		log.Error("reader initialization failed", zap.Error(err))
		return err
	}

	sink := app.NewScanSink(cfg.App.DeviceID, cfg.LoadCell.Invert, cat, screen, submitter, log.Named("scan"))
	machine := scansession.NewMachine(
		scansession.WithWindow(cfg.Session.Window),
		scansession.WithDebounce(cfg.Session.Debounce),
		scansession.WithSentinel(cfg.Session.SentinelTag),
		scansession.WithSink(sink),
		scansession.WithTarer(calib),
		scansession.WithWeightSource(sampler),
		scansession.WithObserver(app.NewSessionObserver(appm, log.Named("session"))),
		scansession.WithTransitionHook(app.NewTransitionHook(screen, log.Named("session"))),
	)
	loop := app.NewController(rd.Source, machine,
		app.WithPollInterval(cfg.App.PollInterval),
		app.WithLogger(log.Named("loop")),
		app.WithMetrics(appm),
	)
	screen.ShowState(scansession.Idle)

	// ========== 阶段5: 健康检查与 HTTP ==========
	healthAgg := app.NewHealthAggregator(cfg, sampler, rd.Status, uploader)

	var httpSrv interface {
		Start() error
		Shutdown(context.Context) error
	}
	if cfg.HTTP.Enable {
		handler := &api.Handler{
			DeviceID: cfg.App.DeviceID,
			Session:  machine,
			Scale:    sampler,
			Reader:   rd.Status,
			Board:    board,
			Tarer:    calib,
			Logger:   log.Named("api"),
		}
		authCfg := middleware.AuthConfig{APIKeys: cfg.HTTP.Auth.APIKeys, Enabled: cfg.HTTP.Auth.Enabled}
		tareLimit := middleware.RateLimitConfig{
			Enabled:        cfg.HTTP.TareRatePerMin > 0,
			RequestsPerMin: cfg.HTTP.TareRatePerMin,
			BurstSize:      1,
		}
		httpSrv = app.NewHTTPServer(cfg, reg, ready, log,
			func(r *gin.Engine) {
				api.RegisterRoutes(r, handler, authCfg, tareLimit, log)
				health.RegisterHTTPRoutes(r, healthAgg)
			})
	}

	// ========== 阶段6: 启动后台任务 ==========
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(sampler.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(rd.Run(gctx)) })
	if uploader != nil {
		g.Go(func() error { return ignoreCanceled(uploader.Dispatcher.Run(gctx)) })
		g.Go(func() error { return ignoreCanceled(uploader.RunQueue(gctx)) })
	}
	g.Go(func() error {
		ready.SetLoopReady(true)
		defer ready.SetLoopReady(false)
		return ignoreCanceled(loop.Run(gctx))
	})
	if httpSrv != nil {
		g.Go(func() error {
			log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))
			return httpSrv.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err := httpSrv.Shutdown(sctx)
			log.Info("http server stopped")
			return err
		})
	}
	log.Info("all services ready, waiting for tags")

	// ========== 阶段7: 等待关闭 ==========
	err = g.Wait()
	if err != nil {
		log.Error("service stopped with error", zap.Error(err))
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// ignoreCanceled 正常关闭时 ctx 取消不算错误
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

package metrics

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/betbot/spreadarb/pkg/logger"
)

// StatusSources 状态页的数据来源；为空的来源对应接口返回 404
type StatusSources struct {
	Registry   *prometheus.Registry
	Metrics    func() map[string]any
	Positions  func(ctx context.Context) any
	Executions func(ctx context.Context, limit int) (any, error)
}

// Router 状态服务路由：
// - /healthz
// - /metrics (Prometheus)
// - /debug/vars (expvar), /debug/pprof
// - /api/metrics, /api/positions, /api/executions?limit=N
func Router(src StatusSources) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	if src.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(src.Registry, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		})))
	}

	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	// pprof 显式挂到本路由，避免依赖 DefaultServeMux
	debug := r.Group("/debug/pprof")
	debug.GET("/", gin.WrapF(pprof.Index))
	debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	debug.GET("/profile", gin.WrapF(pprof.Profile))
	debug.GET("/symbol", gin.WrapF(pprof.Symbol))
	debug.GET("/trace", gin.WrapF(pprof.Trace))
	for _, name := range []string{"heap", "goroutine", "allocs", "block", "mutex", "threadcreate"} {
		debug.GET("/"+name, gin.WrapH(pprof.Handler(name)))
	}

	api := r.Group("/api")
	api.GET("/metrics", func(c *gin.Context) {
		if src.Metrics == nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, src.Metrics())
	})
	api.GET("/positions", func(c *gin.Context) {
		if src.Positions == nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, src.Positions(c.Request.Context()))
	})
	api.GET("/executions", func(c *gin.Context) {
		if src.Executions == nil {
			c.Status(http.StatusNotFound)
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 || limit > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be in 1..1000"})
			return
		}
		out, err := src.Executions(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, out)
	})
	return r
}

// StartAsync 启动状态服务（非阻塞），ctx.Done() 时优雅关闭。
// 建议只监听 localhost 或内网。
func StartAsync(ctx context.Context, listenAddr string, src StatusSources) (*http.Server, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	s := &http.Server{
		Addr:              listenAddr,
		Handler:           Router(src),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("[metrics] 状态服务异常退出: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	logger.Infof("[metrics] 状态服务监听 %s", ln.Addr())
	return s, nil
}

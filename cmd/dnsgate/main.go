// Command dnsgate runs the auth and session gateway in front of the
// Cloudflare API.
//
// Run against a local Redis:
//
//	JWT_SECRET=... ADMIN_PASSWORD=... dnsgate -config dnsgate.toml
//
// Or fully in memory for manual testing:
//
//	JWT_SECRET=dev ADMIN_PASSWORD=admin dnsgate -dev
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/dnsgate"
	"github.com/MrEthical07/dnsgate/api"
	"github.com/MrEthical07/dnsgate/internal/logging"
	"github.com/MrEthical07/dnsgate/metrics/export/prometheus"
	"github.com/MrEthical07/dnsgate/middleware"
	"github.com/MrEthical07/dnsgate/upstream"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		dev        = flag.Bool("dev", false, "use an in-memory Redis instead of server.redis_addr")
	)
	flag.Parse()

	if err := run(*configPath, *dev); err != nil {
		fmt.Fprintln(os.Stderr, "dnsgate:", err)
		os.Exit(1)
	}
}

func run(configPath string, dev bool) error {
	cfg, err := dnsgate.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("%w: JWT_SECRET is not set", dnsgate.ErrServerMisconfigured)
	}

	logger := logging.NewJSON(os.Stdout, cfg.Server.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisAddr := cfg.Server.RedisAddr
	if dev {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start in-memory redis: %w", err)
		}
		defer mr.Close()
		redisAddr = mr.Addr()
		logger.Warn(ctx, "running with in-memory redis; all state is lost on exit")
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", redisAddr, err)
	}

	client := upstream.NewClient(
		upstream.WithBaseURL(cfg.Server.UpstreamBaseURL),
		upstream.WithHTTPClient(&http.Client{Timeout: cfg.Server.UpstreamTimeout}),
	)

	builder := dnsgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithUpstream(client)
	if cfg.Audit.Enabled {
		sinks := dnsgate.MultiSink{dnsgate.NewJSONWriterSink(os.Stdout)}
		if cfg.Audit.Stream != "" {
			sinks = append(sinks, dnsgate.NewStreamSink(rdb, cfg.Audit.Stream, cfg.Audit.StreamMaxLen))
		}
		builder = builder.WithAuditSink(sinks)
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	handler, err := newHandler(cfg, engine)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", cfg.Server.ListenAddr, "upstream", cfg.Server.UpstreamBaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newHandler assembles the request chain. /metrics and /healthz sit
// outside the resolver; everything else runs CORS, the JSON check, client
// address extraction and the resolver before reaching either the
// gateway's own handlers or the upstream proxy.
func newHandler(cfg dnsgate.Config, engine *dnsgate.Engine) (http.Handler, error) {
	routes := middleware.NewRouteTable(middleware.DefaultRoutes)

	proxy, err := upstream.NewProxy(cfg.Server.UpstreamBaseURL, func(r *http.Request) (upstream.Credential, bool) {
		id, ok := dnsgate.IdentityFromContext(r.Context())
		if !ok || id.Credential == nil {
			return upstream.Credential{}, false
		}
		return *id.Credential, true
	})
	if err != nil {
		return nil, fmt.Errorf("upstream proxy: %w", err)
	}
	own := api.New(engine)

	dispatch := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if routes.Lookup(r.URL.Path) == middleware.AccessProxied {
			proxy.ServeHTTP(w, r)
			return
		}
		own.ServeHTTP(w, r)
	})

	chain := middleware.CORS(cfg.CORS)(
		middleware.CSRF(cfg.CORS.UploadSuffixes)(
			middleware.ClientIP(
				middleware.Guard(engine, routes)(dispatch))))

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", prometheus.New(engine).Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/api/", chain)
	return mux, nil
}

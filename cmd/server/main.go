package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/apphttp"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/health"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/keyring"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/pipeline"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/prof"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/session"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/sitehandler"
	v "github.com/keithlinneman/linnemanlabs-webapp/internal/version"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/webassets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// .env is a local dev convenience, real deployments set the environment
	if err := cfg.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "dotenv:", err)
		os.Exit(1)
	}

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi)
		os.Exit(0)
	}

	// flags set on the command line win over WEBAPP_* env vars
	cfg.FillFromEnv(flag.CommandLine, "WEBAPP_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		BuildId:           vi.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"session_store", conf.SessionStore,
		"session_ttl", conf.SessionTTL,
		"cookie_secure", conf.CookieSecure,
		"hsts", conf.HSTS,
		"cors_allowed_origins", conf.AllowedOrigins(),
		"rate_limit_rps", conf.RateLimitRPS,
		"rate_limit_burst", conf.RateLimitBurst,
		"trusted_hops", conf.TrustedHops,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// collector runs on localhost, no tls
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	key, err := loadSessionKey(ctx, conf)
	if err != nil {
		L.Error(ctx, err, "failed to load session signing key")
		os.Exit(1)
	}
	if key.Source == keyring.SourceEphemeral {
		L.Warn(ctx, "no session key configured, using an ephemeral key; sessions will not survive a restart")
	} else {
		L.Info(ctx, "loaded session signing key", "source", key.Source)
	}

	store, closeStore, err := newSessionStore(ctx, conf)
	if err != nil {
		L.Error(ctx, err, "failed to create session store", "session_store", conf.SessionStore)
		os.Exit(1)
	}
	defer closeStore()
	if ms, ok := store.(*session.MemoryStore); ok {
		if err := m.RegisterActiveSessions(ms.Len); err != nil {
			L.Warn(ctx, "failed to register sessions_active gauge", "error", err)
		}
	}

	var static fs.FS = webassets.StaticFS()
	if conf.StaticDir != "" {
		static = os.DirFS(conf.StaticDir)
		L.Info(ctx, "serving static assets from disk", "dir", conf.StaticDir)
	}
	site, err := sitehandler.New(sitehandler.Options{
		Logger:   L,
		Static:   static,
		Fallback: webassets.FallbackFS(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	app, err := apphttp.New(apphttp.Options{
		Logger:    L,
		Site:      site,
		Templates: webassets.TemplatesFS(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create app routes")
		os.Exit(1)
	}

	origins := conf.AllowedOrigins()
	if len(origins) == 0 {
		L.Warn(ctx, "no cors allow-list configured, every request origin will be echoed with credentials allowed")
	}

	var gate health.ShutdownGate

	readiness := health.All(
		gate.Probe(),
		health.Named("session store", health.WithTimeout(health.CheckFunc(store.Ping), 2*time.Second)),
	)

	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
		ratelimit.WithMaxVisitors(conf.MaxVisitors),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// logged once per ip until it is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		MaxBodyBytes: conf.MaxBodyBytes,
		Pipeline: pipeline.Options{
			Store: store,
			Key:   key.Bytes,
			Cookie: pipeline.CookieOptions{
				Name:   conf.SessionCookie,
				Secure: conf.CookieSecure,
			},
			PoweredBy:             conf.PoweredBy,
			ContentSecurityPolicy: conf.CSP,
			HSTS:                  conf.HSTS,
			SiteName:              conf.SiteName,
			AllowedOrigins:        origins,
			Logger:                L.With("component", "pipeline"),
			Sink:                  pipeline.NewLogSink(L.With("component", "pipeline"), m.IncPipelineFault),
			OnSessionCreated:      m.IncSessionCreated,
			OnCSRFRejected:        m.IncCSRFRejection,
			OnStoreError:          m.IncSessionStoreError,
		},
		Routes: func(r chi.Router) { app.RegisterRoutes(r) },
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// admin listener for metrics, probes and pprof; guarded against public and proxied traffic
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// systemd kills us after its timeout if this really mattered
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops routing to us
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining for 30s")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(30 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	closeStore()
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

// loadSessionKey only builds AWS clients when a remote key source is configured.
func loadSessionKey(ctx context.Context, conf cfg.App) (keyring.Key, error) {
	opts := keyring.Options{
		SSMParam: conf.SessionKeySSMParam,
		KMSBlob:  conf.SessionKeyKMSBlob,
		Static:   conf.SessionKey,
	}
	if opts.SSMParam != "" || opts.KMSBlob != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return keyring.Key{}, fmt.Errorf("load aws config: %w", err)
		}
		if opts.SSMParam != "" {
			opts.SSM = ssm.NewFromConfig(awsCfg)
		}
		if opts.KMSBlob != "" {
			opts.KMS = kms.NewFromConfig(awsCfg)
		}
	}
	return keyring.Load(ctx, opts)
}

// newSessionStore returns the configured store and a close func that is safe to call twice.
func newSessionStore(ctx context.Context, conf cfg.App) (session.Store, func(), error) {
	switch conf.SessionStore {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", conf.RedisAddr, err)
		}
		closed := false
		return session.NewRedisStore(rdb, conf.RedisPrefix, conf.SessionTTL), func() {
			if !closed {
				closed = true
				_ = rdb.Close()
			}
		}, nil
	default:
		return session.NewMemoryStore(ctx, conf.SessionTTL), func() {}, nil
	}
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}

package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/access"
	"github.com/earshotfm/earshot/internal/blob"
	"github.com/earshotfm/earshot/internal/events"
	"github.com/earshotfm/earshot/internal/kv"
	"github.com/earshotfm/earshot/internal/pipeline"
	"github.com/earshotfm/earshot/internal/ratelimit"
	"github.com/earshotfm/earshot/internal/runtime"
	"github.com/earshotfm/earshot/internal/search"
	"github.com/earshotfm/earshot/internal/store"
	"github.com/earshotfm/earshot/internal/synth"
	"github.com/earshotfm/earshot/internal/voicecache"
)

// Run wires the whole service and serves HTTP on addr. An empty addr falls
// back to the configured listen address.
func Run(addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	registerDocs(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Unified config (single source of truth)
	cfg := config.LoadConfig("")
	ctx := context.Background()

	dsn := cfg.Databases.Postgres.DSN()
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("postgres connection failed: %w", err)
	}

	// Redis is optional: without it the service runs single-instance with
	// process-local budgets and no outbound events.
	var rdb *redis.Client
	var kvStore kv.Store
	var sink pipeline.EventSink
	if cfg.Databases.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Databases.Redis.Addr(),
			Password: cfg.Databases.Redis.Password,
			DB:       cfg.Databases.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
		}
		kvStore = kv.NewRedis(rdb)
		sink = events.NewPublisher(rdb)
	} else {
		log.Printf("redis not configured: rate limits and the revocation cache are process-local, outbound events are disabled")
		kvStore = kv.NewMemory()
	}

	limiter := ratelimit.New(kvStore)
	revocation := runtime.NewRevocationCache(st, kvStore)
	searchIndex := search.New(st)

	// Synthesis and storage degrade independently: without them the
	// affected endpoints return 503 while the rest of the API keeps working.
	var blobs blob.Store
	if cfg.Storage.GCS.Bucket != "" {
		blobs, err = blob.NewGCS(ctx, cfg.Storage.GCS.Bucket, cfg.Storage.GCS.CredentialsFile, cfg.Storage.GCS.PublicBaseURL)
		if err != nil {
			return fmt.Errorf("gcs: %w", err)
		}
	} else {
		log.Printf("gcs bucket not configured: episode generation and voice samples are disabled")
	}

	var generator *pipeline.Generator
	var voices *voicecache.Cache
	if cfg.Providers.OpenAI.APIKey == "" {
		log.Printf("openai api key not configured: episode generation and voice samples are disabled")
	} else if blobs != nil {
		content := synth.NewOpenAIContent(cfg.Providers.OpenAI)
		speech := synth.NewOpenAISpeech(cfg.Providers.OpenAI)
		generator = pipeline.NewGenerator(st, content, speech, blobs, sink, cfg.Pipeline, nil)
		voices = voicecache.New(blobs, speech, cfg.Voice, nil)
	}
	reaper := pipeline.NewReaper(st, sink, cfg.Pipeline, nil)

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}
	authed := runtime.EchoAuthMiddleware(secret, revocation)
	adminOnly := runtime.RequireScopes(runtime.ScopeAdmin)

	api := e.Group("/api")
	ah := &AuthHandler{Store: st, Secret: secret, Env: cfg.General.Env}
	ah.Register(api.Group("/auth"))

	protected := api.Group("", authed)
	protected.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, MeResponse{UserID: runtime.UserID(c), Admin: runtime.IsAdmin(c)})
	})

	sh := &SignalsHandler{
		Store:   st,
		Search:  searchIndex,
		Limits:  limiter,
		Capture: cfg.RateLimit.Capture.Or(60, time.Minute),
		Logger:  log.New(log.Writer(), "[SIGNALS] ", log.LstdFlags),
	}
	sh.Register(protected.Group("/signals"))

	eh := &EpisodesHandler{Store: st}
	if generator != nil {
		eh.Generator = generator
	}
	eh.Register(protected.Group("/episodes"))

	vh := &VoiceHandler{Limits: limiter, Rate: cfg.RateLimit.Voice.Or(10, time.Minute)}
	if voices != nil {
		vh.Cache = voices
	}
	vh.Register(protected.Group("/voice"))

	fh := &FeedbackHandler{Store: st, Limits: limiter, Rate: cfg.RateLimit.Feedback.Or(10, time.Minute)}
	fh.Register(protected)

	adh := &AdminHandler{
		Store:      st,
		Search:     searchIndex,
		Access:     access.New(cfg.Concierge, nil),
		Events:     sink,
		Revocation: revocation,
		Limits:     limiter,
		Rate:       cfg.RateLimit.Admin.Or(30, time.Minute),
		Logger:     log.New(log.Writer(), "[ADMIN] ", log.LstdFlags),
	}
	adh.Register(protected.Group("/admin", adminOnly))

	oh := &OpsHandler{
		Store:  st,
		Reaper: reaper,
		Stuck:  cfg.Pipeline.StuckAfter,
		Window: cfg.Pipeline.IssueWindow,
		Logger: log.New(log.Writer(), "[OPS] ", log.LstdFlags),
	}
	oh.Register(protected.Group("/ops", adminOnly))

	// Outbound webhook delivery rides the Redis stream; both are optional.
	if rdb != nil && cfg.Notifier.WebhookURL != "" {
		const group = "earshot-notifier"
		if err := events.EnsureGroup(ctx, rdb, group); err != nil {
			return fmt.Errorf("event group: %w", err)
		}
		host, _ := os.Hostname()
		consumer := events.NewConsumer(rdb, group, fmt.Sprintf("%s-%d", host, os.Getpid()))
		notifier := events.NewNotifier(consumer, cfg.Notifier, nil)
		go notifier.Run(ctx)
	}

	sched := &Scheduler{
		Store:           st,
		Reaper:          reaper,
		Rdb:             rdb,
		Interval:        cfg.Scheduler.Interval,
		MaintenanceCron: cfg.Scheduler.MaintenanceCron,
		Stop:            make(chan struct{}),
		Logger:          log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
	}
	sched.Start()

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":10010"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// Package http serves the shared household ledger as JSON over HTTP.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"household/internal/amqp"
	"household/internal/cache"
	"household/internal/core"
	applog "household/internal/log"
	"household/internal/middleware/ratelimit"
	"household/internal/middleware/trace"
	"household/internal/remote"
)

// Ledger is the persistence the server fronts.
type Ledger interface {
	remote.Gateway
	remote.BudgetStore
	remote.Pinger
	Get(ctx context.Context, id string) (core.ExpenseRecord, bool, error)
}

// Publisher announces accepted writes to other devices.
type Publisher interface {
	PublishChange(ctx context.Context, n amqp.ChangeNotice) error
}

type Config struct {
	Addr               string
	RateLimitPerMinute int
	MonthCacheSize     int
	MonthCacheTTL      time.Duration
	CacheSweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:               ":8081",
		RateLimitPerMinute: 120,
		MonthCacheSize:     24,
		MonthCacheTTL:      5 * time.Minute,
		CacheSweepInterval: 10 * time.Minute,
	}
}

type Server struct {
	http.Server
	ledger    Ledger
	publisher Publisher
	schemas   *validators
	now       func() time.Time

	limiter    *ratelimit.Limiter
	months     *cache.LRUCache[[]remote.Record]
	cacheSweep *cache.Manager

	// monthsGen counts ledger writes; a listing read before a write is
	// never cached after it.
	monthsMu  sync.Mutex
	monthsGen uint64

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. A nil publisher disables change
// notices.
func NewServer(cfg Config, ledger Ledger, publisher Publisher, logger *applog.Logger) (*Server, error) {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MonthCacheSize <= 0 {
		cfg.MonthCacheSize = def.MonthCacheSize
	}
	if cfg.MonthCacheTTL <= 0 {
		cfg.MonthCacheTTL = def.MonthCacheTTL
	}
	if cfg.CacheSweepInterval <= 0 {
		cfg.CacheSweepInterval = def.CacheSweepInterval
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("compile request schemas: %w", err)
	}

	s := &Server{
		ledger:     ledger,
		publisher:  publisher,
		schemas:    schemas,
		now:        time.Now,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		months:     cache.NewLRUCache[[]remote.Record](cfg.MonthCacheSize, cfg.MonthCacheTTL),
		cacheSweep: cache.NewManager(),
	}
	s.cacheSweep.Register(s.months)
	s.cacheSweep.StartCleanup(cfg.CacheSweepInterval)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/expenses", s.handleUpsertExpense)
	api.HandleFunc("GET /api/expenses", s.handleListExpenses)
	api.HandleFunc("PATCH /api/expenses/{id}", s.handleUpdateExpense)
	api.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	api.HandleFunc("GET /api/budgets/{month}", s.handleGetBudget)
	api.HandleFunc("PUT /api/budgets/{month}", s.handlePutBudget)

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, extractClientIP(r),
			applog.FieldPath, r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", s.limiter.Middleware(extractClientIP, onLimit)(api))
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	var h http.Handler = mux
	h = applog.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })(h)
	h = applog.Middleware(logger.WithComponent(applog.ComponentHTTP))(h)
	h = trace.NewMiddleware(extractClientIP).Middleware(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Shutdown stops background sweepers and then the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheSweep.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// invalidateMonths drops every cached listing. Call it after a ledger write.
func (s *Server) invalidateMonths() {
	s.monthsMu.Lock()
	defer s.monthsMu.Unlock()
	s.monthsGen++
	s.months.Purge()
}

func (s *Server) monthsGeneration() uint64 {
	s.monthsMu.Lock()
	defer s.monthsMu.Unlock()
	return s.monthsGen
}

// cacheMonth stores a listing read at generation gen, unless a write has
// invalidated the cache since. Reports whether it was stored.
func (s *Server) cacheMonth(gen uint64, key string, out []remote.Record) bool {
	s.monthsMu.Lock()
	defer s.monthsMu.Unlock()
	if s.monthsGen != gen {
		return false
	}
	s.months.Set(key, out)
	return true
}

// announce publishes n, logging failures. Notices are best effort.
func (s *Server) announce(ctx context.Context, n amqp.ChangeNotice) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, n); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Change notice not published",
			applog.FieldRecordID, n.ID,
			applog.FieldOperation, n.Op,
			applog.FieldError, err)
	}
}

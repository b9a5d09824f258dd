package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"fluxo/internal/cache"
	"fluxo/internal/config"
	"fluxo/internal/log"
	"fluxo/internal/services"
)

// SnapshotSource yields the snapshot a request should be served from.
type SnapshotSource interface {
	Current() *services.Snapshot
}

// RefreshPublisher forwards a refresh request to the worker.
type RefreshPublisher interface {
	PublishRefreshRequest(ctx context.Context, reason, requestedBy string) error
}

// rateLimiter tracks request counts per client IP within a sliding window.
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	kept := rl.requests[clientIP][:0]
	for _, t := range rl.requests[clientIP] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.limit {
		rl.requests[clientIP] = kept
		return false
	}
	rl.requests[clientIP] = append(kept, now)
	return true
}

// CleanExpired drops clients whose whole window has elapsed, so idle IPs do
// not accumulate. Implements cache.Cleaner.
func (rl *rateLimiter) CleanExpired() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-rl.window)
	for ip, times := range rl.requests {
		kept := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(rl.requests, ip)
			removed++
			continue
		}
		rl.requests[ip] = kept
	}
	return removed
}

// Server is the JSON API over the current snapshot.
type Server struct {
	http.Server

	snapshots SnapshotSource
	refresher RefreshPublisher
	limiter   *rateLimiter
	logger    *log.Logger

	// dupCache memoizes the quadratic duplicate scan per snapshot.
	dupCache *cache.LRUCache[[][]occurrenceDTO]
	caches   *cache.Manager

	shutdownOnce sync.Once
}

// NewServer builds the API server. refresher may be nil when the message bus
// is disabled; the refresh endpoint then answers 503.
func NewServer(cfg *config.Config, snapshots SnapshotSource, refresher RefreshPublisher, logger *log.Logger) *Server {
	s := &Server{
		snapshots: snapshots,
		refresher: refresher,
		limiter:   newRateLimiter(60, time.Minute),
		logger:    logger.WithComponent(log.ComponentHTTP),
		dupCache:  cache.NewLRUCache[[][]occurrenceDTO](4, 15*time.Minute),
		caches:    cache.NewManager(),
	}

	s.Server = http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.caches.Register(s.limiter)
	s.caches.Register(s.dupCache)
	s.caches.StartCleanup(5 * time.Minute)

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/api/occurrences", s.wrap(s.handleOccurrences))
	mux.HandleFunc("/api/summary/months", s.wrap(s.handleMonthSummary))
	mux.HandleFunc("/api/summary/weeks", s.wrap(s.handleWeekSummary))
	mux.HandleFunc("/api/summary/remaining", s.wrap(s.handleRemaining))
	mux.HandleFunc("/api/duplicates", s.wrap(s.handleDuplicates))
	mux.HandleFunc("/api/invoices", s.wrap(s.handleInvoices))
	mux.HandleFunc("/api/providers", s.wrap(s.handleProviders))
	mux.HandleFunc("/api/providers/compare", s.wrap(s.handleCompareProviders))
	mux.HandleFunc("/api/tax-estimate", s.wrap(s.handleTaxEstimate))
	mux.HandleFunc("/api/accounts", s.wrap(s.handleAccounts))
	mux.HandleFunc("/api/meta", s.wrap(s.handleMeta))
	mux.HandleFunc("/api/refresh", s.wrap(s.handleRefresh))

	return mux
}

// Shutdown stops the cache sweeper, then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
	})
	return s.Server.Shutdown(ctx)
}

// statusWriter captures the status code for request logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// wrap applies the shared request pipeline: request ID, security headers,
// POST rate limiting and completion logging.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()
		ip := clientIP(r)

		reqLogger := s.logger.With(log.FieldRequestID, requestID, log.FieldClientIP, ip)
		ctx := context.WithValue(r.Context(), log.LoggerContextKey, reqLogger)
		r = r.WithContext(ctx)

		if r.Method == http.MethodPost && !s.limiter.allow(ip) {
			reqLogger.WarnContext(ctx, "rate limit exceeded",
				log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Request-ID", requestID)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)

		log.RequestLogger(ctx, reqLogger, r, sw.status, time.Since(start).Milliseconds())
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// handleReady answers 503 until the first snapshot is available.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.snapshots.Current() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "no snapshot")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ready")
}

// middleware.go provides an HTTP middleware stack for the JSON-RPC server.
// It includes CORS, authentication, logging, and gzip compression middleware
// that can be composed into a chain wrapping any http.Handler.
package rpc

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/rs/cors"
)

// HTTPMiddleware is a function that wraps an http.Handler.
type HTTPMiddleware func(http.Handler) http.Handler

// MiddlewareChain composes multiple middleware into a single handler chain.
// Middleware are applied in order: the first middleware in the slice is the
// outermost (executes first). Returns the inner handler if no middleware.
func MiddlewareChain(handler http.Handler, middlewares ...HTTPMiddleware) http.Handler {
	// Apply in reverse so first middleware is outermost.
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// --- CORS Middleware ---

// CORSConfig holds the configuration for CORS middleware.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int // seconds
}

// DefaultCORSConfig returns a permissive CORS config suitable for
// development. Production deployments should restrict origins.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         3600,
	}
}

// CORSMiddleware returns middleware that sets CORS headers on responses,
// built on rs/cors. Preflight OPTIONS requests are handled automatically.
func CORSMiddleware(config CORSConfig) HTTPMiddleware {
	c := cors.New(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		MaxAge:           config.MaxAge,
		AllowCredentials: false,
	})
	return c.Handler
}

// --- Auth Middleware ---

// AuthConfig holds configuration for authentication middleware.
type AuthConfig struct {
	// JWTSecret is the shared secret for JWT token validation.
	// If empty, JWT auth is disabled.
	JWTSecret string

	// APIKeys is a set of valid API keys. If empty, API key auth
	// is disabled.
	APIKeys map[string]bool

	// AllowUnauthenticated controls whether requests without any
	// auth credentials are allowed through.
	AllowUnauthenticated bool
}

// AuthMiddleware returns middleware that validates authentication tokens.
// It checks for Bearer tokens and API keys in the Authorization header.
func AuthMiddleware(config AuthConfig) HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")

			// No auth header present.
			if authHeader == "" {
				if config.AllowUnauthenticated {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "unauthorized: missing credentials", http.StatusUnauthorized)
				return
			}

			// Check Bearer token (JWT, HS256, signed with JWTSecret).
			if strings.HasPrefix(authHeader, "Bearer ") {
				tokenStr := authHeader[7:]
				if config.JWTSecret != "" {
					if validateJWT(tokenStr, config.JWTSecret) {
						next.ServeHTTP(w, r)
						return
					}
					http.Error(w, "unauthorized: invalid token", http.StatusUnauthorized)
					return
				}
			}

			// Check API key.
			if strings.HasPrefix(authHeader, "ApiKey ") {
				key := authHeader[7:]
				if config.APIKeys != nil && config.APIKeys[key] {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "unauthorized: invalid API key", http.StatusUnauthorized)
				return
			}

			if config.AllowUnauthenticated {
				next.ServeHTTP(w, r)
				return
			}

			http.Error(w, "unauthorized: unrecognized auth scheme", http.StatusUnauthorized)
		})
	}
}

// validateJWT parses and verifies an HS256 JWT against secret, rejecting
// any token signed with a different algorithm.
func validateJWT(tokenStr, secret string) bool {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigningMethod
		}
		return []byte(secret), nil
	})
	return err == nil && token.Valid
}

// IssueJWT creates an HS256-signed JWT asserting the given subject, valid
// for the given duration, signed with secret.
func IssueJWT(subject, secret string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

var errUnexpectedSigningMethod = errors.New("rpc: unexpected JWT signing method")

// --- Logging Middleware ---

// LogEntry captures a single request/response log record.
type LogEntry struct {
	Method     string
	Path       string
	StatusCode int
	Duration   time.Duration
	RemoteAddr string
	Timestamp  time.Time
}

// LogStore is a simple in-memory log store for testing. Thread-safe.
type LogStore struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewLogStore creates a new empty log store.
func NewLogStore() *LogStore {
	return &LogStore{}
}

// Add appends a log entry.
func (ls *LogStore) Add(entry LogEntry) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.entries = append(ls.entries, entry)
}

// Entries returns a copy of all log entries.
func (ls *LogStore) Entries() []LogEntry {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	cp := make([]LogEntry, len(ls.entries))
	copy(cp, ls.entries)
	return cp
}

// Len returns the number of stored entries.
func (ls *LogStore) Len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.entries)
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware returns middleware that logs request/response metadata
// to the provided LogStore.
func LoggingMiddleware(store *LogStore) HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r)

			entry := LogEntry{
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: rec.statusCode,
				Duration:   time.Since(start),
				RemoteAddr: r.RemoteAddr,
				Timestamp:  start,
			}
			store.Add(entry)
		})
	}
}

// --- Compression Middleware ---

// gzipResponseWriter wraps http.ResponseWriter with gzip compression.
type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (grw *gzipResponseWriter) Write(b []byte) (int, error) {
	return grw.writer.Write(b)
}

// CompressionMiddleware returns middleware that gzip-compresses responses
// when the client advertises Accept-Encoding: gzip support.
func CompressionMiddleware() HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only compress if client supports gzip.
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Del("Content-Length")

			gz := gzip.NewWriter(w)
			defer gz.Close()

			grw := &gzipResponseWriter{
				ResponseWriter: w,
				writer:         gz,
			}

			next.ServeHTTP(grw, r)
		})
	}
}

// --- Rate Limiting ---
//
// Per-client/per-method rate limiting with banning and statistics is
// provided by RPCRateLimiter (rate_limiter.go) via its Middleware method,
// rather than a separate bare-bones limiter here.

// extractClientIP extracts the client IP from a request, checking
// X-Forwarded-For and X-Real-IP headers first.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr, strip port.
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		return addr[:idx]
	}
	return addr
}

// Ensure gzipResponseWriter implements io.Writer.
var _ io.Writer = (*gzipResponseWriter)(nil)

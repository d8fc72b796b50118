// Package auth guards the dashboard control API with API keys
package auth

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"

	"hedgedesk/internal/core"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// HeaderAPIKey is the header carrying the API key
	HeaderAPIKey = "X-API-Key"

	// HeaderRequestID echoes the per-request id back to the caller
	HeaderRequestID = "X-Request-ID"

	// DefaultRateLimitPerKey is the default number of requests per second allowed per API key
	DefaultRateLimitPerKey = 100
)

// APIKeyValidator validates API keys and manages rate limiting
type APIKeyValidator struct {
	validKeys     map[string]bool
	rateLimiters  map[string]*rate.Limiter
	rateLimit     int
	logger        core.ILogger
	mu            sync.RWMutex
	failureLogger core.ILogger
}

// NewAPIKeyValidator creates a new API key validator with rate limiting.
// With no keys the validator admits every request.
func NewAPIKeyValidator(apiKeys []string, rateLimit int, logger core.ILogger) *APIKeyValidator {
	validKeys := make(map[string]bool)
	for _, key := range apiKeys {
		if key != "" {
			validKeys[key] = true
		}
	}

	if rateLimit <= 0 {
		rateLimit = DefaultRateLimitPerKey
	}

	return &APIKeyValidator{
		validKeys:     validKeys,
		rateLimiters:  make(map[string]*rate.Limiter),
		rateLimit:     rateLimit,
		logger:        logger.WithField("component", "auth"),
		failureLogger: logger.WithField("component", "auth_failure"),
	}
}

// Enabled reports whether any key is configured
func (v *APIKeyValidator) Enabled() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.validKeys) > 0
}

// AddAPIKey adds a new API key to the validator (for key rotation)
func (v *APIKeyValidator) AddAPIKey(apiKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.validKeys[apiKey] = true
	v.logger.Info("API key added")
}

// RemoveAPIKey removes an API key from the validator (for key rotation)
func (v *APIKeyValidator) RemoveAPIKey(apiKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.validKeys, apiKey)
	delete(v.rateLimiters, apiKey)
	v.logger.Info("API key removed")
}

// ValidateAPIKey checks if the API key is valid
func (v *APIKeyValidator) ValidateAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	for key := range v.validKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return true
		}
	}
	return false
}

// CheckRateLimit checks if the request is within rate limit for the API key
func (v *APIKeyValidator) CheckRateLimit(apiKey string) bool {
	v.mu.Lock()
	limiter, exists := v.rateLimiters[apiKey]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(v.rateLimit), v.rateLimit)
		v.rateLimiters[apiKey] = limiter
	}
	v.mu.Unlock()

	return limiter.Allow()
}

type requestIDKey struct{}

// withRequestID adds a request ID to the context
func withRequestID(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestIDKey{}, uuid.New().String())
}

// RequestID extracts the request ID from the context
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return "unknown"
}

// ClientIP returns the remote host of r without the port
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// extractAPIKey reads X-API-Key, falling back to a bearer token
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// Middleware tags each request with an id and, when keys are configured,
// rejects requests without a valid key or over the per-key rate.
func (v *APIKeyValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := withRequestID(r.Context())
		requestID := RequestID(ctx)
		w.Header().Set(HeaderRequestID, requestID)

		if !v.Enabled() {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		fail := func(status int, reason string) {
			v.failureLogger.Warn("Authentication failed: "+reason,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", requestID,
				"client_ip", ClientIP(r))
			http.Error(w, reason, status)
		}

		apiKey := extractAPIKey(r)
		if apiKey == "" {
			fail(http.StatusUnauthorized, "missing API key")
			return
		}

		if !v.ValidateAPIKey(apiKey) {
			fail(http.StatusUnauthorized, "invalid API key")
			return
		}

		if !v.CheckRateLimit(apiKey) {
			fail(http.StatusTooManyRequests, "rate limit exceeded for API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

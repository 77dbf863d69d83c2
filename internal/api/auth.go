package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"shareit/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	clientKeyUnknown    = "unknown"
	healthPath          = "/healthz"
	grpcHealthPrefix    = "/grpc.health.v1.Health/"
)

var (
	errMissingAPIKey = errors.New("missing api key")
	errInvalidAPIKey = errors.New("invalid api key")
)

// keyring validates API keys in constant time per candidate.
type keyring struct {
	header  string
	clients []config.APIClientKey
}

func newKeyring(cfg config.APIAuthConfig) keyring {
	header := strings.ToLower(strings.TrimSpace(cfg.HeaderAPIKey))
	if header == "" {
		header = apiKeyHeaderDefault
	}
	return keyring{header: header, clients: cfg.APIKeys}
}

func (k keyring) lookup(apiKey string) (config.APIClientKey, error) {
	if apiKey == "" {
		return config.APIClientKey{}, errMissingAPIKey
	}
	for _, c := range k.clients {
		if subtle.ConstantTimeCompare([]byte(c.Key), []byte(apiKey)) == 1 {
			return c, nil
		}
	}
	return config.APIClientKey{}, errInvalidAPIKey
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
// Health probes bypass both.
type HTTPAuth struct {
	authEnabled bool
	keys        keyring
	limiter     *keyedLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		authEnabled: cfg.Auth.Enabled,
		keys:        newKeyring(cfg.Auth),
		limiter:     newKeyedLimiter(cfg.RateLimit),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == healthPath {
			next.ServeHTTP(w, r)
			return
		}

		if a.authEnabled {
			if _, err := a.keys.lookup(strings.TrimSpace(r.Header.Get(a.keys.header))); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.header)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// AuthInterceptor is the gRPC counterpart of HTTPAuth.
type AuthInterceptor struct {
	authEnabled bool
	keys        keyring
	limiter     *keyedLimiter
}

func NewAuthInterceptor(cfg config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{
		authEnabled: cfg.Auth.Enabled,
		keys:        newKeyring(cfg.Auth),
		limiter:     newKeyedLimiter(cfg.RateLimit),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if a.authEnabled && !strings.HasPrefix(info.FullMethod, grpcHealthPrefix) {
			if _, err := a.keys.lookup(a.apiKey(ctx)); err != nil {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
		}
		if !a.limiter.allow(a.clientKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) apiKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	return first(md.Get(a.keys.header))
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	if apiKey := a.apiKey(ctx); apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

// Package grpc gates gRPC services with the same access tokens the HTTP
// routes use. Clients send "authorization: Bearer <token>" metadata; the
// interceptors verify it and place the verified claims on the context.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/panyam/webauth"
)

type contextKey string

const claimsContextKey = contextKey("webauth.grpc.claims")

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Issuer verifies the presented access tokens.
	Issuer *webauth.TokenIssuer

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but ClaimsFromContext returns nil.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys are full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config requiring auth for every method
// except the listed ones.
func NewInterceptorConfig(issuer *webauth.TokenIssuer, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Issuer:        issuer,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(issuer *webauth.TokenIssuer) *InterceptorConfig {
	return &InterceptorConfig{Issuer: issuer, PublicMethods: make(map[string]bool)}
}

// ClaimsFromContext returns the verified token claims, or nil when the
// request carried no valid token.
func ClaimsFromContext(ctx context.Context) *webauth.TokenClaims {
	claims, _ := ctx.Value(claimsContextKey).(*webauth.TokenClaims)
	return claims
}

// UnaryAuthInterceptor returns a gRPC unary interceptor verifying the
// bearer token in request metadata.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, config, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns the stream-side equivalent.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), config, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, config *InterceptorConfig, fullMethod string) (context.Context, error) {
	claims := verifyMetadata(ctx, config.Issuer)
	if claims == nil && config.RequireAuth && !config.PublicMethods[fullMethod] {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	if claims != nil {
		ctx = context.WithValue(ctx, claimsContextKey, claims)
	}
	return ctx, nil
}

// verifyMetadata pulls the bearer token from the authorization metadata and
// verifies it. Any failure comes back as nil claims; the caller decides
// whether that is fatal.
func verifyMetadata(ctx context.Context, issuer *webauth.TokenIssuer) *webauth.TokenClaims {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
	if token == "" {
		return nil
	}
	claims, err := issuer.VerifyAccessToken(token)
	if err != nil {
		return nil
	}
	return claims
}

// wrappedStream overrides the stream context so handlers see the claims.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

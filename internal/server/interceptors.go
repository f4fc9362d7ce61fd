package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// healthServicePrefix is the gRPC health service, exempt from auth so probes
// work without credentials.
const healthServicePrefix = "/grpc.health.v1.Health/"

// accessTokenParam carries the token on GET /events for clients that cannot
// set headers, such as a browser EventSource.
const accessTokenParam = "access_token"

var (
	errMissingAuth   = errors.New("missing authorization header")
	errInvalidScheme = errors.New("invalid authorization scheme")
	errInvalidToken  = errors.New("invalid token")
)

// checkBearer validates an Authorization header value against token.
func checkBearer(header, token string) error {
	if header == "" {
		return errMissingAuth
	}
	provided, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return errInvalidScheme
	}
	return checkToken(provided, token)
}

func checkToken(provided, token string) error {
	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		return errInvalidToken
	}
	return nil
}

// LoggingInterceptor logs every unary RPC at debug, or at error when it fails.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logRPC(logger, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamLoggingInterceptor logs each streaming RPC when it ends.
func StreamLoggingInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logRPC(logger, info.FullMethod, start, err)
		return err
	}
}

func logRPC(logger *slog.Logger, method string, start time.Time, err error) {
	if err != nil && status.Code(err) != codes.Canceled {
		logger.Error("rpc failed", "method", method, "duration", time.Since(start), "code", status.Code(err), "error", err)
		return
	}
	logger.Debug("rpc completed", "method", method, "duration", time.Since(start))
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(info.FullMethod, r)
		}
	}()
	return handler(ctx, req)
}

// StreamRecoveryInterceptor is RecoveryInterceptor for streaming RPCs.
func StreamRecoveryInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(info.FullMethod, r)
		}
	}()
	return handler(srv, ss)
}

func panicError(method string, r any) error {
	slog.Error("panic recovered in gRPC handler",
		"method", method,
		"panic", fmt.Sprint(r),
		"stack", string(debug.Stack()),
	)
	return status.Error(codes.Internal, "internal server error")
}

// AuthInterceptor requires "authorization: Bearer <token>" metadata on every
// unary RPC except the health service. An empty token disables auth.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := authorize(ctx, token, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is AuthInterceptor for streaming RPCs.
func StreamAuthInterceptor(token string) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := authorize(ss.Context(), token, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func authorize(ctx context.Context, token, method string) error {
	if token == "" || strings.HasPrefix(method, healthServicePrefix) {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	var header string
	if vals := md.Get("authorization"); len(vals) > 0 {
		header = vals[0]
	}
	if err := checkBearer(header, token); err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	return nil
}

// AuthMiddleware requires a bearer token on every request except GET
// /v1/health. GET /events also accepts the token as ?access_token=. An
// empty token disables auth.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}
		err := checkBearer(r.Header.Get("Authorization"), token)
		if errors.Is(err, errMissingAuth) && r.Method == http.MethodGet && r.URL.Path == "/events" {
			if q := r.URL.Query().Get(accessTokenParam); q != "" {
				err = checkToken(q, token)
			}
		}
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="shingolive"`)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

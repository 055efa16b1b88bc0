package api

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"innkeeper/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const requestIDMetadataKey = "x-request-id"

type AuthInterceptor struct {
	cfg *config.APIConfig

	clientsByAPIKey map[string]config.APIClientKey
	limiters        *clientLimiters
	keyHeader       string
	extraHeader     string
	actorHeader     string
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	return &AuthInterceptor{
		cfg:             cfg,
		clientsByAPIKey: m,
		limiters:        newClientLimiters(cfg.RateLimit),
		keyHeader:       headerName(cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault),
		extraHeader:     headerName(cfg.Auth.HeaderExtra, apiExtraHeaderDefault),
		actorHeader:     headerName(cfg.Auth.HeaderActor, actorHeaderDefault),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		actor := first(md.Get(a.actorHeader))

		if a.cfg.Auth.Enabled {
			client, err := a.checkAuth(md, info.FullMethod)
			if err != nil {
				return nil, err
			}
			if actor == "" {
				actor = client.Name
			}
		}
		if !a.limiters.Allow(a.clientKey(ctx, md)) {
			return nil, status.Error(codes.ResourceExhausted, errRateLimit.Error())
		}

		if actor != "" {
			ctx = context.WithValue(ctx, actorKey{}, actor)
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) checkAuth(md metadata.MD, fullMethod string) (config.APIClientKey, error) {
	if md == nil {
		return config.APIClientKey{}, status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKey := first(md.Get(a.keyHeader))
	extra := first(md.Get(a.extraHeader))
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, status.Error(codes.Unauthenticated, errMissingKey.Error())
	}

	client, ok := a.clientsByAPIKey[apiKey]
	if !ok {
		return config.APIClientKey{}, status.Error(codes.Unauthenticated, errInvalidKey.Error())
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, status.Error(codes.Unauthenticated, errInvalidExtra.Error())
	}

	if err := checkPermission(client, requiredPermission(fullMethod)); err != nil {
		return config.APIClientKey{}, status.Error(codes.PermissionDenied, err.Error())
	}
	return client, nil
}

func requiredPermission(fullMethod string) string {
	switch fullMethod {
	case methodCheckAvailability, methodListRooms:
		return permReadAvailability
	case methodGetBooking:
		return permReadBookings
	case methodSweepOverdue:
		return permReception
	default:
		return ""
	}
}

func (a *AuthInterceptor) clientKey(ctx context.Context, md metadata.MD) string {
	if apiKey := first(md.Get(a.keyHeader)); apiKey != "" {
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

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		dur := time.Since(start)

		code := status.Code(err)
		remote := clientKeyUnknown
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		ev := base.Info()
		if code == codes.Internal || code == codes.Unknown {
			ev = base.Error().Err(err)
		}
		ev.Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Str("remote", remote).
			Dur("duration", dur).
			Msg("grpc request")

		return resp, err
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if id := first(md.Get(requestIDMetadataKey)); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

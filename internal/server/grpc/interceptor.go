package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/mycloud/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// publicPrefixes lists services callable without a session.
var publicPrefixes = []string{
	"/" + healthpb.Health_ServiceDesc.ServiceName + "/",
}

// UserIDFromContext returns the user id stored by the session interceptor.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func isPublic(method string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(method, p) {
			return true
		}
	}
	return false
}

func (s *GRPCServer) sessionInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if isPublic(info.FullMethod) {
		return handler(ctx, req)
	}

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.SessionMetadataKey); len(values) > 0 {
			token = values[0]
		}
	}
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing session")
	}

	userID, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "invalid session")
		}
		s.logger.Error(ctx, "session lookup failed", "method", info.FullMethod, "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	return handler(context.WithValue(ctx, userIDKey, userID), req)
}

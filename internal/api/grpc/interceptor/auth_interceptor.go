package interceptor

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"rentloop-backend/internal/config"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/security"
)

const userIDHeader = "user-id"

type AuthInterceptor struct {
	tokenManager security.TokenManager
}

func NewAuthInterceptor(tm security.TokenManager) *AuthInterceptor {
	return &AuthInterceptor{tokenManager: tm}
}

// Unary returns a server interceptor function to authenticate unary RPCs
func (i *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if config.GetSecurityLevel(info.FullMethod) == config.SecurityPublic {
			return handler(ctx, req)
		}

		newCtx, err := i.authenticate(ctx)
		if err != nil {
			logger.Debug("Rejected unauthenticated call", "method", info.FullMethod, "error", err)
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// Stream applies the same rules to streaming RPCs such as health Watch and reflection.
func (i *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if config.GetSecurityLevel(info.FullMethod) == config.SecurityPublic {
			return handler(srv, ss)
		}
		newCtx, err := i.authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: newCtx})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}

// authenticate validates the bearer token and replaces any client-sent user id with the
// token subject.
func (i *AuthInterceptor) authenticate(ctx context.Context) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	token, err := bearerToken(md)
	if err != nil {
		return nil, err
	}

	claims, err := i.tokenManager.ValidateToken(token)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}

	md = md.Copy()
	md.Set(userIDHeader, claims.UserID())
	return metadata.NewIncomingContext(ctx, md), nil
}

func bearerToken(md metadata.MD) (string, error) {
	values := md.Get("authorization")
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", status.Error(codes.Unauthenticated, "authorization token is not provided")
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !found {
		return scheme, nil
	}
	if !strings.EqualFold(scheme, "bearer") {
		return "", status.Errorf(codes.Unauthenticated, "unsupported authorization scheme %q", scheme)
	}
	return strings.TrimSpace(token), nil
}

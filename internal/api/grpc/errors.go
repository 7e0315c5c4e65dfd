package grpc

import (
	"context"
	"errors"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusFromError converts a lifecycle error into a gRPC status. Business
// errors keep their message; anything else becomes a bare Internal.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var de *domain.Error
	if !errors.As(err, &de) {
		return status.Error(codes.Internal, "internal error")
	}
	msg := de.Message
	if msg == "" {
		msg = string(de.Kind)
	}
	return status.Error(codeFor(de.Kind), msg)
}

func codeFor(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindInvalidInput:
		return codes.InvalidArgument
	case domain.KindNotAuthorized, domain.KindSelfBorrowNotAllowed, domain.KindSelfVerification:
		return codes.PermissionDenied
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindConflict, domain.KindAlreadyRated, domain.KindAlreadyHeld, domain.KindAlreadySettled:
		return codes.AlreadyExists
	case domain.KindInvalidTransition, domain.KindToolUnavailable, domain.KindNoActiveCode,
		domain.KindMismatch, domain.KindExpired:
		return codes.FailedPrecondition
	case domain.KindTooManyAttempts:
		return codes.ResourceExhausted
	case domain.KindPaymentProvider:
		return codes.Unavailable
	}
	return codes.Internal
}

// ErrorUnary logs every failed call and maps its error to a status.
func ErrorUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if domain.IsBusiness(err) {
			logger.FromContext(ctx).Warn("RPC rejected", "method", info.FullMethod, "error", err)
		} else {
			logger.FromContext(ctx).Error("RPC failed", "method", info.FullMethod, "error", err)
		}
		return nil, StatusFromError(err)
	}
}

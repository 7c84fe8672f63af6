package grpc

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/logger"
)

const errorDomain = "rentloop"

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrRoleMismatch):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotEligible):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrDuplicateTransaction):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrConcurrentModification):
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// toStatus converts a service error into a gRPC status. The stable error code travels
// as ErrorInfo.Reason; a validation error adds the failing field to its metadata.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codeFor(err)
	msg := err.Error()
	if code == codes.Internal {
		logger.Error("RPC failed", "error", err)
		msg = "internal error"
	}

	info := &errdetails.ErrorInfo{Reason: domain.ErrorCode(err), Domain: errorDomain}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		info.Metadata = map[string]string{"field": verr.Field}
	}

	st, detailErr := status.New(code, msg).WithDetails(info)
	if detailErr != nil {
		return status.Error(code, msg)
	}
	return st.Err()
}

// ErrorReason returns the stable error code attached to a status error, or "".
func ErrorReason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.Reason
		}
	}
	return ""
}

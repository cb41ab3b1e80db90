package store

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Classify maps any backend error onto the fixed failure taxonomy. It is
// the single place backend-specific error shapes are interpreted; the
// rest of the system depends only on the Class it returns.
//
// Errors the classifier does not recognize are treated as transient:
// the backends this store fronts report invalid requests with typed
// errors, so an unrecognized failure is most likely infrastructure.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}

	// Adapter pre-classification wins.
	var te *TransientError
	if errors.As(err, &te) {
		return ClassTransient
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return ClassPermanent
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ClassConflict
	}

	if errors.Is(err, ErrNotFound) {
		return ClassPermanent
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		return classifyGRPCCode(st.Code())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}

	return ClassTransient
}

// classifyGRPCCode maps gRPC status codes for gRPC-transported document
// backends (Firestore-compatible stores and similar).
func classifyGRPCCode(code codes.Code) Class {
	switch code {
	case codes.Unavailable,
		codes.DeadlineExceeded,
		codes.ResourceExhausted,
		codes.Internal,
		codes.Unknown,
		codes.Canceled:
		return ClassTransient
	case codes.NotFound,
		codes.InvalidArgument,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.FailedPrecondition,
		codes.OutOfRange,
		codes.Unimplemented:
		return ClassPermanent
	case codes.AlreadyExists, codes.Aborted:
		return ClassConflict
	default:
		return ClassTransient
	}
}

// ClassifyStatusCode maps HTTP-style status codes for REST-transported
// backends. 408, 429 and 5xx are transient; 409 is a conflict; other
// 4xx are permanent.
func ClassifyStatusCode(code int) Class {
	switch {
	case code == 408 || code == 429 || code >= 500:
		return ClassTransient
	case code == 409:
		return ClassConflict
	case code >= 400:
		return ClassPermanent
	default:
		return ClassTransient
	}
}

// IsAmbiguous reports whether a transient failure leaves the outcome of
// a delivered request unknown. Timeouts and mid-stream disconnects are
// ambiguous: the request may have been applied before the response was
// lost. Refused connections and rate-limit responses are not, since the
// backend never processed the request.
func IsAmbiguous(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.DeadlineExceeded, codes.Canceled:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

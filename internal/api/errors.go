package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/leadchat/internal/dispatch"
	"github.com/matheus3301/leadchat/internal/history"
	"github.com/matheus3301/leadchat/internal/inbox"
	"github.com/matheus3301/leadchat/internal/provider/remote"
	"github.com/matheus3301/leadchat/internal/recipients"
	"github.com/matheus3301/leadchat/internal/registry"
	"github.com/matheus3301/leadchat/internal/wa"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

var codeBySentinel = []struct {
	err  error
	code codes.Code
}{
	{dispatch.ErrNoItems, codes.InvalidArgument},
	{dispatch.ErrEmptyMessage, codes.InvalidArgument},
	{dispatch.ErrNoRecipients, codes.InvalidArgument},
	{dispatch.ErrInvalidTiming, codes.InvalidArgument},
	{inbox.ErrEmptyText, codes.InvalidArgument},
	{recipients.ErrNoSource, codes.InvalidArgument},
	{recipients.ErrAmbiguousSource, codes.InvalidArgument},
	{registry.ErrUnknownConversation, codes.NotFound},
	{recipients.ErrUnknownGroup, codes.NotFound},
	{wa.ErrMessageNotFound, codes.NotFound},
	{inbox.ErrNoSession, codes.FailedPrecondition},
	{dispatch.ErrNoSession, codes.FailedPrecondition},
	{history.ErrNotActive, codes.FailedPrecondition},
	{wa.ErrNoQueue, codes.FailedPrecondition},
	{history.ErrInFlight, codes.Aborted},
	{history.ErrStale, codes.Canceled},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// toStatus maps engine errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	for _, s := range codeBySentinel {
		if errors.Is(err, s.err) {
			return grpcstatus.Error(s.code, err.Error())
		}
	}
	var se *remote.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusUnauthorized:
			return grpcstatus.Error(codes.Unauthenticated, err.Error())
		case http.StatusForbidden:
			return grpcstatus.Error(codes.PermissionDenied, err.Error())
		case http.StatusNotFound:
			return grpcstatus.Error(codes.NotFound, err.Error())
		case http.StatusTooManyRequests:
			return grpcstatus.Error(codes.ResourceExhausted, err.Error())
		}
	}
	return grpcstatus.Error(codes.Internal, err.Error())
}

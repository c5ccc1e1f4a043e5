package monitor

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/logger"
	svc "github.com/oshokin/deadman/internal/service/monitor"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	CheckIn(ctx context.Context, subjectID string, at time.Time, location string) (svc.CheckInResult, error)
	Status(ctx context.Context, subjectID string) (svc.StatusView, error)
	History(ctx context.Context, subjectID string) ([]liveness.CheckIn, error)
	Notifications(ctx context.Context, subjectID string) ([]*liveness.Notification, error)
	FindByEmail(ctx context.Context, email string) (*liveness.Subject, error)
	Deactivate(ctx context.Context, subjectID string) error
	Reactivate(ctx context.Context, subjectID string) error
	Delete(ctx context.Context, subjectID string) error
	ListContacts(ctx context.Context, subjectID string) ([]*liveness.Contact, error)
	AddContact(ctx context.Context, subjectID string, params liveness.ContactParams) (*liveness.Contact, error)
	RemoveContact(ctx context.Context, subjectID, contactID string) error
	DeactivateContact(ctx context.Context, subjectID, contactID string) error
	ReactivateContact(ctx context.Context, subjectID, contactID string) error
	SetContactPriority(ctx context.Context, subjectID, contactID string, priority int) error
	Watching(ctx context.Context, email string) ([]*liveness.Contact, error)
}

// Server implements the MonitorService gRPC API.
type Server struct {
	// service provides the business logic for monitor operations.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// CheckIn records a liveness confirmation for the subject.
func (s *Server) CheckIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	subjectID, err := subjectIDOf(req)
	if err != nil {
		return nil, err
	}

	at, err := timeField(req, FieldAt)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	location, err := stringField(req, FieldLocation)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.service.CheckIn(ctx, subjectID, at, location)
	if err != nil {
		return nil, toStatus(ctx, "check in", err)
	}

	return encoded(checkInResponse(subjectID, result))
}

// GetStatus returns the subject status derived at the current time.
func (s *Server) GetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	subjectID, err := subjectIDOf(req)
	if err != nil {
		return nil, err
	}

	view, err := s.service.Status(ctx, subjectID)
	if err != nil {
		return nil, toStatus(ctx, "get status", err)
	}

	return encoded(statusResponse(view))
}

// ListHistory returns the retained check-ins of the subject.
func (s *Server) ListHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	subjectID, err := subjectIDOf(req)
	if err != nil {
		return nil, err
	}

	history, err := s.service.History(ctx, subjectID)
	if err != nil {
		return nil, toStatus(ctx, "list history", err)
	}

	return encoded(historyResponse(subjectID, history))
}

// subjectIDOf validates the request and extracts the mandatory subject id.
func subjectIDOf(req *structpb.Struct) (string, error) {
	if req == nil {
		return "", status.Error(codes.InvalidArgument, "request is required")
	}

	subjectID, err := stringField(req, FieldSubjectID)
	if err != nil {
		return "", status.Error(codes.InvalidArgument, err.Error())
	}

	if subjectID == "" {
		return "", status.Error(codes.InvalidArgument, "subject_id is required")
	}

	return subjectID, nil
}

// requiredString extracts a mandatory non-empty string field.
func requiredString(req *structpb.Struct, key string) (string, error) {
	value, err := stringField(req, key)
	if err != nil {
		return "", status.Error(codes.InvalidArgument, err.Error())
	}

	if value == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}

	return value, nil
}

// toStatus maps domain error kinds to gRPC codes. Unclassified errors are
// logged and hidden behind Internal.
func toStatus(ctx context.Context, operation string, err error) error {
	switch liveness.KindOf(err) {
	case liveness.KindInvalidInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case liveness.KindInvariantViolation:
		return status.Error(codes.FailedPrecondition, err.Error())
	case liveness.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	default:
		logger.ErrorKV(ctx, "Monitor request failed", "operation", operation, "error", err)

		return status.Errorf(codes.Internal, "unable to %s", operation)
	}
}

// encoded turns a response building failure into Internal.
func encoded(resp *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode response")
	}

	return resp, nil
}

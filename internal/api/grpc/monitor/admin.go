package monitor

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/deadman/internal/domain/liveness"
)

// ListNotifications returns the notifications raised for the subject.
func (s *Server) ListNotifications(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	subjectID, err := subjectIDOf(req)
	if err != nil {
		return nil, err
	}

	notifications, err := s.service.Notifications(ctx, subjectID)
	if err != nil {
		return nil, toStatus(ctx, "list notifications", err)
	}

	return encoded(notificationsResponse(subjectID, notifications))
}

// FindSubject looks a subject up by email.
func (s *Server) FindSubject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email, err := emailOf(req)
	if err != nil {
		return nil, err
	}

	subject, err := s.service.FindByEmail(ctx, email)
	if err != nil {
		return nil, toStatus(ctx, "find subject", err)
	}

	return encoded(subjectResponse(subject))
}

// DeactivateSubject switches monitoring off. The reply is the new status.
func (s *Server) DeactivateSubject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.changeSubject(ctx, req, "deactivate subject", s.service.Deactivate)
}

// ReactivateSubject switches monitoring back on with a fresh cycle.
func (s *Server) ReactivateSubject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.changeSubject(ctx, req, "reactivate subject", s.service.Reactivate)
}

// DeleteSubject removes the subject and everything attached to it.
func (s *Server) DeleteSubject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	subjectID, err := subjectIDOf(req)
	if err != nil {
		return nil, err
	}

	if err = s.service.Delete(ctx, subjectID); err != nil {
		return nil, toStatus(ctx, "delete subject", err)
	}

	return encoded(structpb.NewStruct(map[string]any{
		FieldSubjectID: subjectID,
		FieldDeleted:   true,
	}))
}

// ListContacts returns the roster of the subject.
func (s *Server) ListContacts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	subjectID, err := subjectIDOf(req)
	if err != nil {
		return nil, err
	}

	return s.roster(ctx, subjectID, "list contacts")
}

// AddContact attaches a new emergency contact. Priority defaults to 1.
func (s *Server) AddContact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	subjectID, err := subjectIDOf(req)
	if err != nil {
		return nil, err
	}

	params := liveness.ContactParams{}

	for key, target := range map[string]*string{
		FieldName:  &params.Name,
		FieldEmail: &params.Email,
		FieldPhone: &params.Phone,
	} {
		if *target, err = stringField(req, key); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	if params.Priority, err = intField(req, FieldPriority); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if params.Priority == 0 {
		params.Priority = 1
	}

	contact, err := s.service.AddContact(ctx, subjectID, params)
	if err != nil {
		return nil, toStatus(ctx, "add contact", err)
	}

	return encoded(contactResponse(subjectID, contact))
}

// RemoveContact deletes a contact. The reply is the remaining roster.
func (s *Server) RemoveContact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.changeContact(ctx, req, "remove contact", s.service.RemoveContact)
}

// DeactivateContact excludes a contact from escalation.
func (s *Server) DeactivateContact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.changeContact(ctx, req, "deactivate contact", s.service.DeactivateContact)
}

// ReactivateContact includes a contact in escalation again.
func (s *Server) ReactivateContact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.changeContact(ctx, req, "reactivate contact", s.service.ReactivateContact)
}

// SetContactPriority changes the campaign order of a contact.
func (s *Server) SetContactPriority(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	priority, err := intField(req, FieldPriority)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return s.changeContact(ctx, req, "set contact priority", func(ctx context.Context, subjectID, contactID string) error {
		return s.service.SetContactPriority(ctx, subjectID, contactID, priority)
	})
}

// ListWatching returns the contact entries registered with an email
// across all subjects.
func (s *Server) ListWatching(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email, err := emailOf(req)
	if err != nil {
		return nil, err
	}

	contacts, err := s.service.Watching(ctx, email)
	if err != nil {
		return nil, toStatus(ctx, "list watching", err)
	}

	return encoded(contactsResponse(FieldEmail, email, contacts))
}

// changeSubject applies a subject-level switch and replies with the status.
func (s *Server) changeSubject(
	ctx context.Context,
	req *structpb.Struct,
	operation string,
	change func(ctx context.Context, subjectID string) error,
) (*structpb.Struct, error) {
	subjectID, err := subjectIDOf(req)
	if err != nil {
		return nil, err
	}

	if err = change(ctx, subjectID); err != nil {
		return nil, toStatus(ctx, operation, err)
	}

	view, err := s.service.Status(ctx, subjectID)
	if err != nil {
		return nil, toStatus(ctx, operation, err)
	}

	return encoded(statusResponse(view))
}

// changeContact applies a roster change and replies with the roster.
func (s *Server) changeContact(
	ctx context.Context,
	req *structpb.Struct,
	operation string,
	change func(ctx context.Context, subjectID, contactID string) error,
) (*structpb.Struct, error) {
	subjectID, err := subjectIDOf(req)
	if err != nil {
		return nil, err
	}

	contactID, err := requiredString(req, FieldContactID)
	if err != nil {
		return nil, err
	}

	if err = change(ctx, subjectID, contactID); err != nil {
		return nil, toStatus(ctx, operation, err)
	}

	return s.roster(ctx, subjectID, operation)
}

func (s *Server) roster(ctx context.Context, subjectID, operation string) (*structpb.Struct, error) {
	contacts, err := s.service.ListContacts(ctx, subjectID)
	if err != nil {
		return nil, toStatus(ctx, operation, err)
	}

	return encoded(contactsResponse(FieldSubjectID, subjectID, contacts))
}

// emailOf validates the request and extracts the mandatory email.
func emailOf(req *structpb.Struct) (string, error) {
	if req == nil {
		return "", status.Error(codes.InvalidArgument, "request is required")
	}

	return requiredString(req, FieldEmail)
}

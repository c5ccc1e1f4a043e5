package monitor

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/deadman/internal/domain/liveness"
	svc "github.com/oshokin/deadman/internal/service/monitor"
)

// Request and response field keys.
const (
	FieldSubjectID              = "subject_id"
	FieldAt                     = "at"
	FieldLocation               = "location"
	FieldCheckInID              = "check_in_id"
	FieldStatus                 = "status"
	FieldName                   = "name"
	FieldLastCheckInAt          = "last_check_in_at"
	FieldNextDeadlineAt         = "next_deadline_at"
	FieldHoursLeft              = "hours_left"
	FieldRemaining              = "remaining"
	FieldActiveContacts         = "active_contacts"
	FieldCancelledNotifications = "cancelled_notifications"
	FieldCheckedAt              = "checked_at"
	FieldCheckIns               = "check_ins"
	FieldID                     = "id"
	FieldEmail                  = "email"
	FieldPhone                  = "phone"
	FieldPriority               = "priority"
	FieldActive                 = "active"
	FieldContactID              = "contact_id"
	FieldContact                = "contact"
	FieldContacts               = "contacts"
	FieldNotifications          = "notifications"
	FieldKind                   = "kind"
	FieldChannel                = "channel"
	FieldTier                   = "tier"
	FieldCycleDeadline          = "cycle_deadline"
	FieldCreatedAt              = "created_at"
	FieldNextResendAt           = "next_resend_at"
	FieldError                  = "error"
	FieldAttempts               = "attempts"
	FieldDeleted                = "deleted"
)

// TimeLayout formats every timestamp on the wire.
const TimeLayout = time.RFC3339Nano

// stringField returns a string field of req, empty when absent.
func stringField(req *structpb.Struct, key string) (string, error) {
	value, ok := req.GetFields()[key]
	if !ok {
		return "", nil
	}

	s, ok := value.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", key)
	}

	return s.StringValue, nil
}

// intField returns a whole-number field of req, zero when absent.
func intField(req *structpb.Struct, key string) (int, error) {
	value, ok := req.GetFields()[key]
	if !ok {
		return 0, nil
	}

	n, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("field %q must be a whole number", key)
	}

	return int(n.NumberValue), nil
}

// timeField parses an optional timestamp field. Absent or empty means zero time.
func timeField(req *structpb.Struct, key string) (time.Time, error) {
	raw, err := stringField(req, key)
	if err != nil || raw == "" {
		return time.Time{}, err
	}

	t, err := time.Parse(TimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q: %w", key, err)
	}

	return t.UTC(), nil
}

// formatTime renders a timestamp, empty for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(TimeLayout)
}

// checkInResponse builds the CheckIn reply.
func checkInResponse(subjectID string, result svc.CheckInResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldSubjectID:              subjectID,
		FieldCheckInID:              result.CheckIn.ID(),
		FieldAt:                     formatTime(result.CheckIn.At()),
		FieldLocation:               result.CheckIn.Location(),
		FieldStatus:                 result.Status.String(),
		FieldNextDeadlineAt:         formatTime(result.NextDeadlineAt),
		FieldCancelledNotifications: result.Cancelled,
	})
}

// statusResponse builds the GetStatus reply.
func statusResponse(view svc.StatusView) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldSubjectID:      view.SubjectID,
		FieldName:           view.Name,
		FieldStatus:         view.Status.String(),
		FieldLastCheckInAt:  formatTime(view.LastCheckInAt),
		FieldNextDeadlineAt: formatTime(view.NextDeadlineAt),
		FieldHoursLeft:      view.HoursLeft,
		FieldRemaining:      view.Remaining,
		FieldActiveContacts: view.ActiveContacts,
		FieldCheckedAt:      formatTime(view.CheckedAt),
	})
}

// historyResponse builds the ListHistory reply, oldest check-in first.
func historyResponse(subjectID string, history []liveness.CheckIn) (*structpb.Struct, error) {
	items := make([]any, 0, len(history))
	for _, c := range history {
		items = append(items, map[string]any{
			FieldID:       c.ID(),
			FieldAt:       formatTime(c.At()),
			FieldLocation: c.Location(),
		})
	}

	return structpb.NewStruct(map[string]any{
		FieldSubjectID: subjectID,
		FieldCheckIns:  items,
	})
}

// notificationsResponse builds the ListNotifications reply, oldest first.
func notificationsResponse(subjectID string, notifications []*liveness.Notification) (*structpb.Struct, error) {
	items := make([]any, 0, len(notifications))
	for _, n := range notifications {
		item := map[string]any{
			FieldID:            n.ID(),
			FieldKind:          n.Kind().String(),
			FieldChannel:       n.Channel().String(),
			FieldStatus:        n.Status().String(),
			FieldContactID:     n.ContactID(),
			FieldCycleDeadline: formatTime(n.CycleDeadline()),
			FieldCreatedAt:     formatTime(n.CreatedAt()),
			FieldAttempts:      n.Attempts(),
			FieldError:         n.ErrorDetail(),
		}

		if tier := n.Tier(); tier > 0 {
			item[FieldTier] = tier.String()
		}

		if at, ok := n.NextResendAt(); ok {
			item[FieldNextResendAt] = formatTime(at)
		}

		items = append(items, item)
	}

	return structpb.NewStruct(map[string]any{
		FieldSubjectID:     subjectID,
		FieldNotifications: items,
	})
}

// subjectResponse builds the FindSubject reply.
func subjectResponse(subject *liveness.Subject) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldSubjectID:      subject.ID(),
		FieldName:           subject.Name(),
		FieldEmail:          subject.Email().String(),
		FieldStatus:         subject.Status().String(),
		FieldLastCheckInAt:  formatTime(subject.LastCheckInAt()),
		FieldNextDeadlineAt: formatTime(subject.NextDeadlineAt()),
		FieldCreatedAt:      formatTime(subject.CreatedAt()),
	})
}

// contactItem renders one contact, owner included.
func contactItem(c *liveness.Contact) map[string]any {
	return map[string]any{
		FieldID:        c.ID(),
		FieldSubjectID: c.SubjectID(),
		FieldName:      c.Name(),
		FieldEmail:     c.Email().String(),
		FieldPhone:     c.Phone().String(),
		FieldPriority:  c.Priority(),
		FieldActive:    c.Active(),
		FieldCreatedAt: formatTime(c.CreatedAt()),
	}
}

// contactResponse builds the AddContact reply.
func contactResponse(subjectID string, c *liveness.Contact) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldSubjectID: subjectID,
		FieldContact:   contactItem(c),
	})
}

// contactsResponse builds the roster replies. key is the subject id or the
// watched email the list was looked up by.
func contactsResponse(key, value string, contacts []*liveness.Contact) (*structpb.Struct, error) {
	items := make([]any, 0, len(contacts))
	for _, c := range contacts {
		items = append(items, contactItem(c))
	}

	return structpb.NewStruct(map[string]any{
		key:           value,
		FieldContacts: items,
	})
}

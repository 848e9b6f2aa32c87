package models

import (
	"regexp"
	"strings"
	"time"

	dErrors "contacthub/pkg/domain-errors"
)

// Status tracks where a contact sits in the follow-up workflow.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusReplied   Status = "replied"
	StatusClosed    Status = "closed"
)

// Statuses lists the valid workflow states in display order.
var Statuses = []Status{StatusNew, StatusContacted, StatusReplied, StatusClosed}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid status %q", raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusReplied, StatusClosed:
		return true
	}
	return false
}

// Display normalizes unknown values to "new" for presentation. Stored data is
// never rewritten; only the rendered value falls back.
func (s Status) Display() Status {
	if !s.Valid() {
		return StatusNew
	}
	return s
}

// IPUnknown is the sentinel recorded when the best-effort client IP lookup
// fails. It must never block a submission.
const IPUnknown = "unknown"

// ContactRecord is one contact-form submission as held in the store. The
// store assigns ID and CreatedAt; UpdatedAt is stamped on status edits.
type ContactRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Service   string    `json:"service,omitempty"`
	Message   string    `json:"message,omitempty"`
	Status    Status    `json:"status"`
	Read      bool      `json:"read"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Submission carries the raw contact form fields before validation. Optional
// fields pass through verbatim.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
	Service string `json:"service"`
	Message string `json:"message"`
}

// emailPattern is intentionally permissive: one @, no whitespace, a dot in
// the domain part.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate enforces the required-field and email-shape rules. It reports the
// first failed rule; no further normalization happens here.
func (s Submission) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if strings.TrimSpace(s.Email) == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(s.Email)) {
		return dErrors.New(dErrors.CodeValidation, "email is malformed")
	}
	return nil
}

// ChangeType discriminates store change events.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// ChangeEvent describes one document mutation delivered by the store's
// subscription. Removed events carry only the ID.
type ChangeEvent struct {
	Type   ChangeType
	ID     string
	Record ContactRecord
}

// ParseDocument converts a schemaless store document into a ContactRecord,
// rejecting wrongly-typed fields instead of trusting the incoming shape.
// A missing timestamp defaults to the current instant, which covers records
// that have not yet round-tripped through the store.
func ParseDocument(id string, doc map[string]any) (ContactRecord, error) {
	rec := ContactRecord{ID: id}

	var err error
	if rec.Name, err = stringField(doc, "name"); err != nil {
		return ContactRecord{}, err
	}
	if rec.Email, err = stringField(doc, "email"); err != nil {
		return ContactRecord{}, err
	}
	if rec.Company, err = stringField(doc, "company"); err != nil {
		return ContactRecord{}, err
	}
	if rec.Phone, err = stringField(doc, "phone"); err != nil {
		return ContactRecord{}, err
	}
	if rec.Service, err = stringField(doc, "service"); err != nil {
		return ContactRecord{}, err
	}
	if rec.Message, err = stringField(doc, "message"); err != nil {
		return ContactRecord{}, err
	}
	if rec.IP, err = stringField(doc, "ip"); err != nil {
		return ContactRecord{}, err
	}
	if rec.UserAgent, err = stringField(doc, "userAgent"); err != nil {
		return ContactRecord{}, err
	}

	status, err := stringField(doc, "status")
	if err != nil {
		return ContactRecord{}, err
	}
	// Unknown statuses are preserved; Display() falls back to "new".
	rec.Status = Status(status)
	if status == "" {
		rec.Status = StatusNew
	}

	if raw, ok := doc["read"]; ok {
		b, ok := raw.(bool)
		if !ok {
			return ContactRecord{}, dErrors.New(dErrors.CodeValidation, `document field "read" is not a boolean`)
		}
		rec.Read = b
	}

	if rec.CreatedAt, err = timeField(doc, "timestamp"); err != nil {
		return ContactRecord{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.UpdatedAt, err = timeField(doc, "updatedAt"); err != nil {
		return ContactRecord{}, err
	}

	return rec, nil
}

// Document renders the record in the schemaless shape the store persists.
// Zero-valued optional fields are omitted so documents stay sparse.
func (r ContactRecord) Document() map[string]any {
	doc := map[string]any{
		"name":   r.Name,
		"email":  r.Email,
		"status": string(r.Status),
		"read":   r.Read,
	}
	setIfPresent(doc, "company", r.Company)
	setIfPresent(doc, "phone", r.Phone)
	setIfPresent(doc, "service", r.Service)
	setIfPresent(doc, "message", r.Message)
	setIfPresent(doc, "ip", r.IP)
	setIfPresent(doc, "userAgent", r.UserAgent)
	if !r.CreatedAt.IsZero() {
		doc["timestamp"] = r.CreatedAt.Format(time.RFC3339Nano)
	}
	if !r.UpdatedAt.IsZero() {
		doc["updatedAt"] = r.UpdatedAt.Format(time.RFC3339Nano)
	}
	return doc
}

func setIfPresent(doc map[string]any, key, value string) {
	if value != "" {
		doc[key] = value
	}
}

func stringField(doc map[string]any, key string) (string, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "document field %q is not a string", key)
	}
	return s, nil
}

func timeField(doc map[string]any, key string) (time.Time, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return time.Time{}, nil
	}
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "document field %q is not a timestamp", key)
		}
		return t, nil
	default:
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "document field %q is not a timestamp", key)
	}
}

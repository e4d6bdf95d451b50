package model

import (
	"time"

	"github.com/zeegates/minig/internal/identity"
)

// Address is a single mail address with an optional display name.
type Address struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Display returns the display name when present, the email otherwise.
func (a Address) Display() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Email
}

// Body holds the plain and HTML renditions of a message body.
type Body struct {
	Plain string `json:"plain"`
	HTML  string `json:"html"`
}

// AttachmentRef is the addressable reference to one attachment: its
// composite token and the decoded filename.
type AttachmentRef struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
}

// MailMessage is the flat, REST-facing representation of a message.
// Instances live for one request: built from inbound JSON or projected
// from a fetched wire message, never cached server-side.
//
// The nine flag fields are tri-state: nil means "unspecified, do not
// change", which is distinct from false and is what lets a client
// toggle a single flag without resending the full message state.
type MailMessage struct {
	ID        string `json:"id"`
	Folder    string `json:"folder"`
	MessageID string `json:"messageId"`

	Subject     string          `json:"subject"`
	Body        Body            `json:"body"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`

	Sender                  *Address  `json:"sender,omitempty"`
	To                      []Address `json:"to,omitempty"`
	Cc                      []Address `json:"cc,omitempty"`
	Bcc                     []Address `json:"bcc,omitempty"`
	DispositionNotification []Address `json:"dispositionNotification,omitempty"`

	Date   *time.Time `json:"date,omitempty"`
	Mailer string     `json:"mailer,omitempty"`

	InReplyTo          string `json:"inReplyTo,omitempty"`
	ForwardedMessageID string `json:"forwardedMessageId,omitempty"`

	Read                          *bool `json:"read,omitempty"`
	Starred                       *bool `json:"starred,omitempty"`
	Answered                      *bool `json:"answered,omitempty"`
	Forwarded                     *bool `json:"forwarded,omitempty"`
	HighPriority                  *bool `json:"highPriority,omitempty"`
	AskForDispositionNotification *bool `json:"askForDispositionNotification,omitempty"`
	Receipt                       *bool `json:"receipt,omitempty"`
	MDNSent                       *bool `json:"mdnSent,omitempty"`
	Deleted                       *bool `json:"deleted,omitempty"`
}

// CompositeID returns the message's coordinate. A zero coordinate means
// the record has not been resolved against the store yet.
func (m *MailMessage) CompositeID() identity.ID {
	return identity.New(m.Folder, m.MessageID)
}

// SetCompositeID stamps the coordinate and its serialized token onto
// the record.
func (m *MailMessage) SetCompositeID(id identity.ID) {
	m.Folder = id.Folder
	m.MessageID = id.MessageID
	m.ID = id.String()
}

// GetDate returns a copy of the message date; mutating the returned
// value never affects the stored one.
func (m *MailMessage) GetDate() *time.Time {
	if m.Date == nil {
		return nil
	}
	d := *m.Date
	return &d
}

// SetDate stores a copy of the given date; later mutation of the
// caller's value is not observable. A nil date leaves the stored value
// unchanged.
func (m *MailMessage) SetDate(date *time.Time) {
	if date == nil {
		return
	}
	d := *date
	m.Date = &d
}

// MessageList is one page of a folder listing.
type MessageList struct {
	MailList   []*MailMessage `json:"mailList"`
	Page       int            `json:"page"`
	FullLength int            `json:"fullLength"`
}

// BoolPtr returns a pointer to b; shorthand for building tri-state flag
// values.
func BoolPtr(b bool) *bool {
	return &b
}

package wire

import (
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/zeegates/minig/internal/identity"
)

// Header names this system reads and writes. Every one of them is
// treated as single-valued.
const (
	HeaderDraftInfo          = "X-Mozilla-Draft-Info"
	HeaderPriority           = "X-Priority"
	HeaderInReplyTo          = "In-Reply-To"
	HeaderReferences         = "References"
	HeaderForwardedMessageID = "X-Forwarded-Message-Id"
	HeaderMailer             = "X-Mailer"
	HeaderDispositionTo      = "Disposition-Notification-To"
)

// Draft-info header literals. Read-back is by substring containment, so
// these exact tokens must survive serialization byte for byte.
const (
	draftInfoReceipt = "receipt=1"
	draftInfoDSN     = "DSN=1"
)

// Message is the domain-facing façade over a Transformer. It owns the
// underlying MIME tree exclusively; callers must not share one Message
// across concurrent operations.
type Message struct {
	t       *Transformer
	receipt bool
	dsn     bool
}

// NewMessage creates an empty message addressed by the given
// coordinate. A coordinate without a Message-ID gets a generated one.
func NewMessage(id identity.ID) *Message {
	if id.MessageID == "" {
		id.MessageID = GenerateMessageID()
	}
	return &Message{t: NewTransformer(id)}
}

// Parse decodes raw message bytes fetched from the given folder.
func Parse(folder string, raw []byte) *Message {
	m := &Message{t: ParseTransformer(folder, raw)}
	info := m.t.Header(HeaderDraftInfo)
	m.receipt = strings.Contains(info, draftInfoReceipt)
	m.dsn = strings.Contains(info, draftInfoDSN)
	return m
}

// GenerateMessageID produces a fresh RFC 822 Message-ID, angle brackets
// included.
func GenerateMessageID() string {
	return "<" + uuid.NewString() + "@minig>"
}

// ID returns the composite coordinate of the message.
func (m *Message) ID() identity.ID { return m.t.ID() }

// Bytes materializes the message into transmittable form. It must be
// called after all mutations so pending parts are flushed into the
// tree.
func (m *Message) Bytes() ([]byte, error) { return m.t.Bytes() }

// Plain returns the text/plain body, "" when absent.
func (m *Message) Plain() string { return m.t.Text() }

// SetPlain replaces the text/plain body.
func (m *Message) SetPlain(s string) { m.t.SetText(s) }

// HTML returns the raw text/html body, "" when absent.
func (m *Message) HTML() string { return m.t.HTML() }

// SetHTML replaces the text/html body.
func (m *Message) SetHTML(s string) { m.t.SetHTML(s) }

// HTMLWithInlineURLs returns the HTML body with every cid: and mid:
// reference to an inline attachment rewritten to an externally
// resolvable URL: the escaped composite token appended to baseURL as a
// path segment. Content-IDs are unique within one message, so the
// replacement order does not matter.
func (m *Message) HTMLWithInlineURLs(baseURL string) string {
	html := m.t.HTML()
	base := strings.TrimRight(baseURL, "/")

	for _, att := range m.t.InlineAttachments() {
		if att.ContentID == "" {
			continue
		}
		contentURL := base + "/" + identity.EscapeURLSegment(m.AttachmentID(att))
		html = strings.ReplaceAll(html, "cid:"+att.ContentID, contentURL)
		html = strings.ReplaceAll(html, "mid:"+att.ContentID, contentURL)
	}
	return html
}

// Subject returns the decoded subject.
func (m *Message) Subject() string { return m.t.Subject() }

// SetSubject overwrites the subject.
func (m *Message) SetSubject(s string) { m.t.SetSubject(s) }

// Sender returns the first From address, "" when absent.
func (m *Message) Sender() string { return m.t.From() }

// SetFrom overwrites the sender address.
func (m *Message) SetFrom(email string) { m.t.SetFrom(email) }

// Date returns the Date header, zero when absent.
func (m *Message) Date() time.Time { return m.t.Date() }

// SetDate overwrites the Date header.
func (m *Message) SetDate(date time.Time) { m.t.SetDate(date) }

// Mailer returns the composing client, preferring X-Mailer over
// User-Agent.
func (m *Message) Mailer() string {
	if v := m.t.Header(HeaderMailer); v != "" {
		return v
	}
	return m.t.Header("User-Agent")
}

// To returns the To recipients.
func (m *Message) To() []*mail.Address { return m.t.To() }

// Cc returns the Cc recipients.
func (m *Message) Cc() []*mail.Address { return m.t.Cc() }

// Bcc returns the Bcc recipients.
func (m *Message) Bcc() []*mail.Address { return m.t.Bcc() }

// DispositionNotificationTo returns the addresses that requested a
// disposition notification.
func (m *Message) DispositionNotificationTo() []*mail.Address {
	return m.t.AddressList(HeaderDispositionTo)
}

// ClearRecipients removes all To recipients.
func (m *Message) ClearRecipients() { m.t.ClearTo() }

// ClearCc removes all Cc recipients.
func (m *Message) ClearCc() { m.t.ClearCc() }

// ClearBcc removes all Bcc recipients.
func (m *Message) ClearBcc() { m.t.ClearBcc() }

// AddRecipient appends a To recipient.
func (m *Message) AddRecipient(email, name string) { m.t.AddTo(email, name) }

// AddCc appends a Cc recipient.
func (m *Message) AddCc(email, name string) { m.t.AddCc(email, name) }

// AddBcc appends a Bcc recipient.
func (m *Message) AddBcc(email, name string) { m.t.AddBcc(email, name) }

// Attachments returns the ordinary attachments in stable order.
func (m *Message) Attachments() []*Attachment { return m.t.Attachments() }

// InlineAttachments returns the inline attachments.
func (m *Message) InlineAttachments() []*Attachment { return m.t.InlineAttachments() }

// AllAttachments returns every non-body part.
func (m *Message) AllAttachments() []*Attachment { return m.t.AllAttachments() }

// AddAttachment appends a new attachment part.
func (m *Message) AddAttachment(a Attachment) { m.t.AddAttachment(a) }

// DeleteAttachment removes an attachment by filename; removing an
// absent one is a no-op.
func (m *Message) DeleteAttachment(fileName string) { m.t.DeleteAttachment(fileName) }

// AttachmentID derives the composite identifier of one of this
// message's attachments.
func (m *Message) AttachmentID(a *Attachment) identity.AttachmentID {
	id := m.ID()
	return identity.NewAttachment(id.Folder, id.MessageID, a.FileName)
}

// Attachment finds an attachment by its composite identifier.
func (m *Message) Attachment(id identity.AttachmentID) (*Attachment, bool) {
	for _, a := range m.t.AllAttachments() {
		if m.AttachmentID(a) == id {
			return a, true
		}
	}
	return nil, false
}

// InlineAttachment finds an inline attachment by Content-ID.
func (m *Message) InlineAttachment(contentID string) (*Attachment, bool) {
	for _, a := range m.t.InlineAttachments() {
		if a.ContentID == contentID {
			return a, true
		}
	}
	return nil, false
}

// Header returns a raw header value.
func (m *Message) Header(name string) string { return m.t.Header(name) }

// SetHeader overwrites a raw header.
func (m *Message) SetHeader(name, value string) { m.t.SetHeader(name, value) }

// IsDSN reports whether a disposition notification was requested.
func (m *Message) IsDSN() bool {
	return strings.Contains(m.t.Header(HeaderDraftInfo), draftInfoDSN)
}

// IsReturnReceipt reports whether a return receipt was requested.
func (m *Message) IsReturnReceipt() bool {
	return strings.Contains(m.t.Header(HeaderDraftInfo), draftInfoReceipt)
}

// HasDispositionNotifications reports whether either draft-info flag is
// set.
func (m *Message) HasDispositionNotifications() bool {
	return m.IsDSN() || m.IsReturnReceipt()
}

// SetReceipt updates the return-receipt draft flag. A nil value means
// false, not "leave unchanged": the draft-info header is always
// recomposed from both flags.
func (m *Message) SetReceipt(receipt *bool) {
	m.receipt = receipt != nil && *receipt
	m.updateDraftInfo()
}

// SetAskForDispositionNotification updates the disposition-notification
// draft flag. A nil value means false.
func (m *Message) SetAskForDispositionNotification(ask *bool) {
	m.dsn = ask != nil && *ask
	m.updateDraftInfo()
}

// updateDraftInfo recomposes the draft-info header from the two flags:
//
//	receipt only  -> "receipt=1"
//	DSN only      -> "DSN=1"
//	both          -> "receipt=1; DSN=1"
//	neither       -> header removed
func (m *Message) updateDraftInfo() {
	switch {
	case m.receipt && m.dsn:
		m.t.SetHeader(HeaderDraftInfo, draftInfoReceipt+"; "+draftInfoDSN)
	case m.receipt:
		m.t.SetHeader(HeaderDraftInfo, draftInfoReceipt)
	case m.dsn:
		m.t.SetHeader(HeaderDraftInfo, draftInfoDSN)
	default:
		m.t.RemoveHeader(HeaderDraftInfo)
	}
}

// IsHighPriority reports whether the message carries the high-priority
// marker.
func (m *Message) IsHighPriority() bool {
	return m.t.Header(HeaderPriority) == "1"
}

// SetHighPriority sets or removes the X-Priority header. Only the high
// level is modeled; false and nil both remove the header.
func (m *Message) SetHighPriority(high *bool) {
	if high != nil && *high {
		m.t.SetHeader(HeaderPriority, "1")
		return
	}
	m.t.RemoveHeader(HeaderPriority)
}

// InReplyTo returns the In-Reply-To header value.
func (m *Message) InReplyTo() string {
	return m.t.Header(HeaderInReplyTo)
}

// SetInReplyTo writes both In-Reply-To and References to the immediate
// parent's Message-ID. References is never accumulated into a thread
// chain here.
func (m *Message) SetInReplyTo(messageID string) {
	m.t.SetHeader(HeaderInReplyTo, messageID)
	m.t.SetHeader(HeaderReferences, messageID)
}

// ForwardedMessageID returns the Message-ID of the forwarded original,
// "" when the message is not a forward draft.
func (m *Message) ForwardedMessageID() string {
	return m.t.Header(HeaderForwardedMessageID)
}

// SetForwardedMessageID records the forwarded original's Message-ID,
// independent of In-Reply-To.
func (m *Message) SetForwardedMessageID(messageID string) {
	m.t.SetHeader(HeaderForwardedMessageID, messageID)
}

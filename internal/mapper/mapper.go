// Package mapper translates between the flat REST-facing mail record
// and the wire MIME representation. No other component understands both
// shapes at once.
package mapper

import (
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message/mail"

	"github.com/zeegates/minig/internal/identity"
	"github.com/zeegates/minig/internal/model"
	"github.com/zeegates/minig/internal/store"
	"github.com/zeegates/minig/internal/wire"
)

// Full projects a fetched raw message into a complete domain record:
// identity, bodies, attachment references, addresses, date, mailer, and
// every flag. Store-level flags come from the fetch metadata, never
// from MIME headers.
func Full(raw *store.RawMessage) *model.MailMessage {
	msg := wire.Parse(raw.Folder, raw.Raw)
	out := projectEnvelope(raw, msg)

	out.Body = model.Body{
		Plain: msg.Plain(),
		HTML:  msg.HTML(),
	}

	id := out.CompositeID()
	for _, att := range msg.Attachments() {
		attID := identity.NewAttachment(id.Folder, id.MessageID, att.FileName)
		out.Attachments = append(out.Attachments, model.AttachmentRef{
			ID:       attID.String(),
			FileName: att.FileName,
		})
	}

	out.To = toAddresses(msg.To())
	out.Cc = toAddresses(msg.Cc())
	out.Bcc = toAddresses(msg.Bcc())
	out.DispositionNotification = toAddresses(msg.DispositionNotificationTo())

	out.Mailer = msg.Mailer()
	out.InReplyTo = msg.InReplyTo()
	out.ForwardedMessageID = msg.ForwardedMessageID()

	out.HighPriority = model.BoolPtr(msg.IsHighPriority())
	out.Receipt = model.BoolPtr(msg.IsReturnReceipt())
	out.AskForDispositionNotification = model.BoolPtr(msg.IsDSN())

	return out
}

// Summary is the reduced-cost projection for folder listings: identity,
// flags, subject, sender, and date only. The raw bytes are expected to
// hold just the header section; the body is never decoded.
func Summary(raw *store.RawMessage) *model.MailMessage {
	return projectEnvelope(raw, wire.Parse(raw.Folder, raw.Raw))
}

// projectEnvelope fills the fields shared by both projections.
func projectEnvelope(raw *store.RawMessage, msg *wire.Message) *model.MailMessage {
	out := &model.MailMessage{}

	id := msg.ID()
	if id.MessageID == "" {
		id.MessageID = raw.MessageID
	}
	out.SetCompositeID(id)

	out.Subject = msg.Subject()
	if sender := msg.Sender(); sender != "" {
		out.Sender = &model.Address{Email: sender}
	}

	date := msg.Date()
	if date.IsZero() {
		date = raw.InternalDate
	}
	if !date.IsZero() {
		out.Date = &date
	}

	out.Read = model.BoolPtr(hasFlag(raw.Flags, imap.FlagSeen))
	out.Starred = model.BoolPtr(hasFlag(raw.Flags, imap.FlagFlagged))
	out.Answered = model.BoolPtr(hasFlag(raw.Flags, imap.FlagAnswered))
	out.Deleted = model.BoolPtr(hasFlag(raw.Flags, imap.FlagDeleted))
	out.Forwarded = model.BoolPtr(hasFlag(raw.Flags, imap.FlagForwarded))
	out.MDNSent = model.BoolPtr(hasFlag(raw.Flags, imap.FlagMDNSent))

	return out
}

// ToWire builds a new wire message from a domain record (create path).
// A record without a Message-ID gets a generated one; a record without
// a folder is a draft that receives its folder on persist.
func ToWire(m *model.MailMessage) *wire.Message {
	msg := wire.NewMessage(m.CompositeID())
	ApplyToWire(m, msg)
	return msg
}

// ApplyToWire mutates an existing wire message from a domain record
// (update path). Recipient lists are cleared and re-added, never
// merged: the domain record is authoritative and complete for those
// fields. Store-level flags (read, starred, answered, deleted) are not
// touched here; they travel through the store's flag-update path.
func ApplyToWire(m *model.MailMessage, msg *wire.Message) {
	msg.ClearRecipients()
	msg.ClearCc()
	msg.ClearBcc()

	for _, a := range m.To {
		msg.AddRecipient(a.Email, a.DisplayName)
	}
	for _, a := range m.Cc {
		msg.AddCc(a.Email, a.DisplayName)
	}
	for _, a := range m.Bcc {
		msg.AddBcc(a.Email, a.DisplayName)
	}

	msg.SetSubject(m.Subject)
	msg.SetHTML(m.Body.HTML)
	msg.SetPlain(m.Body.Plain)

	if m.Sender != nil {
		msg.SetFrom(m.Sender.Email)
	}
	if m.Date != nil {
		msg.SetDate(*m.GetDate())
	}
	if m.InReplyTo != "" {
		msg.SetInReplyTo(m.InReplyTo)
	}
	if m.ForwardedMessageID != "" {
		msg.SetForwardedMessageID(m.ForwardedMessageID)
	}

	msg.SetAskForDispositionNotification(m.AskForDispositionNotification)
	msg.SetHighPriority(m.HighPriority)
	msg.SetReceipt(m.Receipt)
}

// FlagDelta maps a domain record's store-level tri-state flags onto a
// store delta; nil fields stay nil and leave the stored flag unchanged.
// Deletion is not a flag update here, it goes through the delete and
// move operations.
func FlagDelta(m *model.MailMessage) store.FlagDelta {
	return store.FlagDelta{
		Seen:      m.Read,
		Flagged:   m.Starred,
		Answered:  m.Answered,
		Forwarded: m.Forwarded,
		MDNSent:   m.MDNSent,
	}
}

func toAddresses(addrs []*mail.Address) []model.Address {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]model.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.Address{
			Email:       a.Address,
			DisplayName: a.Name,
		})
	}
	return out
}

func hasFlag(flags []imap.Flag, want imap.Flag) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

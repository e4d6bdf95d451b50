// Package wire holds the MIME-tree representation of a mail message and
// the operations the rest of the system performs on it. A Transformer
// owns exactly one decoded tree; a Message wraps a Transformer with the
// domain-shaped draft and rendering semantics. Instances are never
// shared between concurrent operations.
package wire

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/zeegates/minig/internal/identity"
)

// Attachment is a single non-body MIME part, fully decoded.
type Attachment struct {
	// FileName is the decoded filename from the part header. Inline
	// parts without a filename fall back to their Content-ID.
	FileName string

	// ContentType is the media type without parameters.
	ContentType string

	// ContentID is the Content-ID token without angle brackets; empty
	// for ordinary attachments.
	ContentID string

	// Inline reports whether the part is referenced from the HTML body
	// rather than listed as a download.
	Inline bool

	// Data is the decoded payload.
	Data []byte
}

// Transformer owns one MIME message tree: the top-level headers, the
// plain and HTML body parts, and the remaining parts in depth-first
// traversal order.
type Transformer struct {
	folder string
	header mail.Header
	text   string
	html   string
	parts  []*Attachment
}

// NewTransformer creates an empty message tree addressed by the given
// coordinate. The Message-ID header is taken from the coordinate when
// present.
func NewTransformer(id identity.ID) *Transformer {
	t := &Transformer{folder: id.Folder}
	if id.MessageID != "" {
		t.header.Set("Message-Id", id.MessageID)
	}
	return t
}

// ParseTransformer decodes raw message bytes fetched from the given
// folder. Malformed messages degrade to empty bodies and malformed
// individual parts are skipped; listing and read paths stay usable for
// legacy content.
func ParseTransformer(folder string, raw []byte) *Transformer {
	t := &Transformer{folder: folder}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		slog.Warn("unparseable message, treating as empty",
			"folder", folder,
			"error", err,
		)
		return t
	}
	t.header = mr.Header

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("aborting part traversal",
				"folder", folder,
				"message_id", t.MessageID(),
				"error", err,
			)
			break
		}
		t.consumePart(part)
	}

	return t
}

// consumePart routes one decoded part into the body or attachment slots.
// Read failures skip the part without aborting the remaining ones.
func (t *Transformer) consumePart(part *mail.Part) {
	switch h := part.Header.(type) {
	case *mail.InlineHeader:
		contentType, _, _ := h.ContentType()
		data, err := io.ReadAll(part.Body)
		if err != nil {
			slog.Warn("skipping unreadable inline part",
				"message_id", t.MessageID(),
				"content_type", contentType,
				"error", err,
			)
			return
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			if t.text == "" {
				t.text = string(data)
			}
		case strings.HasPrefix(contentType, "text/html"):
			if t.html == "" {
				t.html = string(data)
			}
		default:
			t.parts = append(t.parts, inlineAttachment(h, contentType, data))
		}

	case *mail.AttachmentHeader:
		fileName, _ := h.Filename()
		contentType, _, _ := h.ContentType()
		data, err := io.ReadAll(part.Body)
		if err != nil {
			slog.Warn("skipping unreadable attachment",
				"message_id", t.MessageID(),
				"filename", fileName,
				"error", err,
			)
			return
		}

		cid := contentID(h.Get("Content-Id"))
		if fileName == "" {
			fileName = cid
		}
		t.parts = append(t.parts, &Attachment{
			FileName:    fileName,
			ContentType: contentType,
			ContentID:   cid,
			// A Content-ID means the part is referenced from the HTML
			// body, whatever its disposition claims.
			Inline: cid != "",
			Data:   data,
		})
	}
}

func inlineAttachment(h *mail.InlineHeader, contentType string, data []byte) *Attachment {
	cid := contentID(h.Get("Content-Id"))

	fileName := ""
	if cd := h.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			fileName = params["filename"]
		}
	}
	if fileName == "" {
		fileName = cid
	}

	return &Attachment{
		FileName:    fileName,
		ContentType: contentType,
		ContentID:   cid,
		Inline:      true,
		Data:        data,
	}
}

// contentID strips the angle brackets from a Content-ID header value.
func contentID(v string) string {
	return strings.Trim(strings.TrimSpace(v), "<>")
}

// Folder returns the store folder this message was fetched from or is
// addressed to.
func (t *Transformer) Folder() string {
	return t.folder
}

// MessageID returns the raw Message-ID header value, angle brackets
// included.
func (t *Transformer) MessageID() string {
	return t.header.Get("Message-Id")
}

// ID returns the composite coordinate of the message.
func (t *Transformer) ID() identity.ID {
	return identity.New(t.folder, t.MessageID())
}

// Text returns the text/plain body, or "" when the message has none.
func (t *Transformer) Text() string {
	return t.text
}

// SetText replaces the text/plain body without touching an existing
// HTML body.
func (t *Transformer) SetText(s string) {
	t.text = s
}

// HTML returns the text/html body, or "" when the message has none.
func (t *Transformer) HTML() string {
	return t.html
}

// SetHTML replaces the text/html body without touching an existing
// plain body.
func (t *Transformer) SetHTML(s string) {
	t.html = s
}

// Attachments returns the ordinary (non-inline) attachments in stable
// traversal order.
func (t *Transformer) Attachments() []*Attachment {
	var out []*Attachment
	for _, p := range t.parts {
		if !p.Inline {
			out = append(out, p)
		}
	}
	return out
}

// InlineAttachments returns the parts referenced from the HTML body via
// a Content-ID.
func (t *Transformer) InlineAttachments() []*Attachment {
	var out []*Attachment
	for _, p := range t.parts {
		if p.Inline {
			out = append(out, p)
		}
	}
	return out
}

// AllAttachments returns every non-body part in traversal order.
func (t *Transformer) AllAttachments() []*Attachment {
	return append([]*Attachment(nil), t.parts...)
}

// AddAttachment appends a new part to the tree.
func (t *Transformer) AddAttachment(a Attachment) {
	if a.ContentType == "" {
		a.ContentType = "application/octet-stream"
	}
	t.parts = append(t.parts, &a)
}

// DeleteAttachment removes every part with the given filename. Deleting
// an absent attachment is a no-op; delete is idempotent throughout the
// system.
func (t *Transformer) DeleteAttachment(fileName string) {
	kept := t.parts[:0]
	for _, p := range t.parts {
		if p.FileName != fileName {
			kept = append(kept, p)
		}
	}
	t.parts = kept
}

// Header returns the first value of the named header, or "" when the
// header is absent.
func (t *Transformer) Header(name string) string {
	return t.header.Get(name)
}

// SetHeader overwrites all occurrences of the named header with a
// single value. Every header this system touches is single-valued.
func (t *Transformer) SetHeader(name, value string) {
	t.header.Set(name, value)
}

// RemoveHeader deletes all occurrences of the named header.
func (t *Transformer) RemoveHeader(name string) {
	t.header.Del(name)
}

// From returns the first sender address, or "" when absent.
func (t *Transformer) From() string {
	addrs, err := t.header.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].Address
}

// SetFrom overwrites the sender address.
func (t *Transformer) SetFrom(email string) {
	t.header.SetAddressList("From", []*mail.Address{{Address: email}})
}

// Subject returns the decoded subject, or "" when absent.
func (t *Transformer) Subject() string {
	subject, err := t.header.Subject()
	if err != nil {
		return ""
	}
	return subject
}

// SetSubject overwrites the subject.
func (t *Transformer) SetSubject(subject string) {
	t.header.SetSubject(subject)
}

// Date returns the Date header, or the zero time when absent or
// unparseable.
func (t *Transformer) Date() time.Time {
	date, err := t.header.Date()
	if err != nil {
		return time.Time{}
	}
	return date
}

// SetDate overwrites the Date header.
func (t *Transformer) SetDate(date time.Time) {
	t.header.SetDate(date)
}

// AddressList returns the decoded addresses of the named header.
func (t *Transformer) AddressList(name string) []*mail.Address {
	addrs, err := t.header.AddressList(name)
	if err != nil {
		return nil
	}
	return addrs
}

// To returns the To recipients.
func (t *Transformer) To() []*mail.Address { return t.AddressList("To") }

// Cc returns the Cc recipients.
func (t *Transformer) Cc() []*mail.Address { return t.AddressList("Cc") }

// Bcc returns the Bcc recipients.
func (t *Transformer) Bcc() []*mail.Address { return t.AddressList("Bcc") }

// ClearTo removes all To recipients. Address headers do not support
// positional update; replacing a recipient list is always clear then
// re-add.
func (t *Transformer) ClearTo() { t.header.Del("To") }

// ClearCc removes all Cc recipients.
func (t *Transformer) ClearCc() { t.header.Del("Cc") }

// ClearBcc removes all Bcc recipients.
func (t *Transformer) ClearBcc() { t.header.Del("Bcc") }

// AddTo appends a To recipient.
func (t *Transformer) AddTo(email, name string) { t.addAddress("To", email, name) }

// AddCc appends a Cc recipient.
func (t *Transformer) AddCc(email, name string) { t.addAddress("Cc", email, name) }

// AddBcc appends a Bcc recipient.
func (t *Transformer) AddBcc(email, name string) { t.addAddress("Bcc", email, name) }

func (t *Transformer) addAddress(header, email, name string) {
	addrs, _ := t.header.AddressList(header)
	addrs = append(addrs, &mail.Address{Name: name, Address: email})
	t.header.SetAddressList(header, addrs)
}

// Bytes materializes the current tree into transmittable RFC 822 bytes,
// rebuilding the multipart shape the content calls for: a single part
// for one body, multipart/alternative for both bodies, multipart/mixed
// when attachments are present.
func (t *Transformer) Bytes() ([]byte, error) {
	var buf bytes.Buffer

	header := t.header.Copy()
	header.Del("Content-Type")
	header.Del("Content-Transfer-Encoding")

	if len(t.parts) == 0 {
		if err := t.writeBodies(&buf, header); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	w, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	if err := t.writeBodyParts(w); err != nil {
		return nil, err
	}

	for _, p := range t.parts {
		if err := writeAttachment(w, p); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}
	return buf.Bytes(), nil
}

// writeBodies serializes a message without attachments.
func (t *Transformer) writeBodies(buf *bytes.Buffer, header mail.Header) error {
	if t.html == "" || t.text == "" {
		contentType := "text/plain"
		body := t.text
		if t.html != "" {
			contentType = "text/html"
			body = t.html
		}
		header.Set("Content-Type", contentType+"; charset=utf-8")
		header.Set("Content-Transfer-Encoding", "quoted-printable")

		w, err := mail.CreateSingleInlineWriter(buf, header)
		if err != nil {
			return fmt.Errorf("creating body writer: %w", err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			return fmt.Errorf("writing body: %w", err)
		}
		return w.Close()
	}

	w, err := mail.CreateInlineWriter(buf, header)
	if err != nil {
		return fmt.Errorf("creating alternative writer: %w", err)
	}
	if err := writeAlternatives(w, t.text, t.html); err != nil {
		return err
	}
	return w.Close()
}

// writeBodyParts serializes the body parts inside a multipart/mixed
// message.
func (t *Transformer) writeBodyParts(w *mail.Writer) error {
	if t.html == "" || t.text == "" {
		contentType := "text/plain"
		body := t.text
		if t.html != "" {
			contentType = "text/html"
			body = t.html
		}

		var h mail.InlineHeader
		h.Set("Content-Type", contentType+"; charset=utf-8")
		h.Set("Content-Transfer-Encoding", "quoted-printable")

		pw, err := w.CreateSingleInline(h)
		if err != nil {
			return fmt.Errorf("creating body part: %w", err)
		}
		if _, err := io.WriteString(pw, body); err != nil {
			return fmt.Errorf("writing body part: %w", err)
		}
		return pw.Close()
	}

	iw, err := w.CreateInline()
	if err != nil {
		return fmt.Errorf("creating alternative part: %w", err)
	}
	if err := writeAlternatives(iw, t.text, t.html); err != nil {
		return err
	}
	return iw.Close()
}

func writeAlternatives(w *mail.InlineWriter, text, html string) error {
	for _, alt := range []struct {
		contentType string
		body        string
	}{
		{"text/plain", text},
		{"text/html", html},
	} {
		var h mail.InlineHeader
		h.Set("Content-Type", alt.contentType+"; charset=utf-8")
		h.Set("Content-Transfer-Encoding", "quoted-printable")

		pw, err := w.CreatePart(h)
		if err != nil {
			return fmt.Errorf("creating %s part: %w", alt.contentType, err)
		}
		if _, err := io.WriteString(pw, alt.body); err != nil {
			return fmt.Errorf("writing %s part: %w", alt.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return err
		}
	}
	return nil
}

func writeAttachment(w *mail.Writer, p *Attachment) error {
	var h mail.AttachmentHeader
	h.SetFilename(p.FileName)
	h.Set("Content-Type", p.ContentType)
	h.Set("Content-Transfer-Encoding", "base64")
	if p.ContentID != "" {
		h.Set("Content-Id", "<"+p.ContentID+">")
	}
	if p.Inline {
		h.Set("Content-Disposition", mime.FormatMediaType(
			"inline", map[string]string{"filename": p.FileName},
		))
	}

	pw, err := w.CreateAttachment(h)
	if err != nil {
		return fmt.Errorf("creating attachment %q: %w", p.FileName, err)
	}
	if _, err := pw.Write(p.Data); err != nil {
		return fmt.Errorf("writing attachment %q: %w", p.FileName, err)
	}
	return pw.Close()
}

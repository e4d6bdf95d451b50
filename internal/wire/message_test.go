package wire

import (
	"strings"
	"testing"

	"github.com/zeegates/minig/internal/identity"
)

func rawMessage(headers []string, body string) []byte {
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body + "\r\n")
}

func TestParseDraftInfoReadback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		receipt bool
		dsn     bool
	}{
		{"receipt only", "receipt=1", true, false},
		{"dsn only", "DSN=1", false, true},
		{"both", "receipt=1; DSN=1", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			raw := rawMessage([]string{
				"Message-Id: <draft@example.com>",
				"X-Mozilla-Draft-Info: " + tt.header,
				"Content-Type: text/plain",
			}, "body")

			msg := Parse("Drafts", raw)
			if got := msg.IsReturnReceipt(); got != tt.receipt {
				t.Errorf("IsReturnReceipt: got %v, want %v", got, tt.receipt)
			}
			if got := msg.IsDSN(); got != tt.dsn {
				t.Errorf("IsDSN: got %v, want %v", got, tt.dsn)
			}
		})
	}
}

func TestDraftInfoComposition(t *testing.T) {
	t.Parallel()

	yes, no := true, false

	tests := []struct {
		name    string
		receipt *bool
		dsn     *bool
		want    string
	}{
		{"both set", &yes, &yes, "receipt=1; DSN=1"},
		{"receipt only", &yes, &no, "receipt=1"},
		{"dsn only", &no, &yes, "DSN=1"},
		{"neither", &no, &no, ""},
		{"nil means false", nil, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg := NewMessage(identity.New("Drafts", "<d@example.com>"))
			msg.SetReceipt(tt.receipt)
			msg.SetAskForDispositionNotification(tt.dsn)

			if got := msg.Header(HeaderDraftInfo); got != tt.want {
				t.Errorf("draft info: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDraftInfoTransitions(t *testing.T) {
	t.Parallel()

	yes, no := true, false
	msg := NewMessage(identity.New("Drafts", "<d@example.com>"))

	msg.SetReceipt(&yes)
	if got, want := msg.Header(HeaderDraftInfo), "receipt=1"; got != want {
		t.Fatalf("after receipt: got %q, want %q", got, want)
	}

	msg.SetAskForDispositionNotification(&yes)
	if got, want := msg.Header(HeaderDraftInfo), "receipt=1; DSN=1"; got != want {
		t.Fatalf("after dsn: got %q, want %q", got, want)
	}

	msg.SetReceipt(&no)
	if got, want := msg.Header(HeaderDraftInfo), "DSN=1"; got != want {
		t.Fatalf("after receipt off: got %q, want %q", got, want)
	}

	msg.SetAskForDispositionNotification(&no)
	if got := msg.Header(HeaderDraftInfo); got != "" {
		t.Fatalf("after both off: header still present, got %q", got)
	}
	if msg.HasDispositionNotifications() {
		t.Error("HasDispositionNotifications: got true, want false")
	}
}

func TestHighPriority(t *testing.T) {
	t.Parallel()

	yes, no := true, false
	msg := NewMessage(identity.New("Drafts", "<p@example.com>"))

	if msg.IsHighPriority() {
		t.Error("new message reports high priority")
	}

	msg.SetHighPriority(&yes)
	if got, want := msg.Header(HeaderPriority), "1"; got != want {
		t.Errorf("X-Priority: got %q, want %q", got, want)
	}
	if !msg.IsHighPriority() {
		t.Error("IsHighPriority: got false, want true")
	}

	msg.SetHighPriority(&no)
	if got := msg.Header(HeaderPriority); got != "" {
		t.Errorf("X-Priority after reset: got %q, want removed", got)
	}

	msg.SetHighPriority(&yes)
	msg.SetHighPriority(nil)
	if msg.IsHighPriority() {
		t.Error("nil did not remove the priority header")
	}
}

func TestSetInReplyToWritesBothHeaders(t *testing.T) {
	t.Parallel()

	msg := NewMessage(identity.New("Drafts", "<r@example.com>"))
	msg.SetInReplyTo("<parent@example.com>")

	if got, want := msg.InReplyTo(), "<parent@example.com>"; got != want {
		t.Errorf("In-Reply-To: got %q, want %q", got, want)
	}
	if got, want := msg.Header(HeaderReferences), "<parent@example.com>"; got != want {
		t.Errorf("References: got %q, want %q", got, want)
	}

	// Replying to a different parent replaces, never accumulates.
	msg.SetInReplyTo("<other@example.com>")
	if got, want := msg.Header(HeaderReferences), "<other@example.com>"; got != want {
		t.Errorf("References after change: got %q, want %q", got, want)
	}
}

func TestForwardedMessageID(t *testing.T) {
	t.Parallel()

	msg := NewMessage(identity.New("Drafts", "<f@example.com>"))
	if got := msg.ForwardedMessageID(); got != "" {
		t.Errorf("ForwardedMessageID on new message: got %q, want empty", got)
	}

	msg.SetForwardedMessageID("<orig@example.com>")
	if got, want := msg.ForwardedMessageID(), "<orig@example.com>"; got != want {
		t.Errorf("ForwardedMessageID: got %q, want %q", got, want)
	}
	if got := msg.InReplyTo(); got != "" {
		t.Errorf("forward linkage leaked into In-Reply-To: got %q", got)
	}
}

func TestNewMessageGeneratesMessageID(t *testing.T) {
	t.Parallel()

	msg := NewMessage(identity.New("Drafts", ""))
	id := msg.ID()
	if id.MessageID == "" {
		t.Fatal("no Message-ID generated")
	}
	if !strings.HasPrefix(id.MessageID, "<") || !strings.HasSuffix(id.MessageID, ">") {
		t.Errorf("Message-ID not bracketed: %q", id.MessageID)
	}

	other := NewMessage(identity.New("Drafts", ""))
	if other.ID().MessageID == id.MessageID {
		t.Error("two generated Message-IDs collide")
	}
}

func TestMailerPrefersXMailer(t *testing.T) {
	t.Parallel()

	raw := rawMessage([]string{
		"Message-Id: <m@example.com>",
		"User-Agent: SomeAgent/2.0",
		"X-Mailer: OtherClient/1.0",
		"Content-Type: text/plain",
	}, "body")

	msg := Parse("INBOX", raw)
	if got, want := msg.Mailer(), "OtherClient/1.0"; got != want {
		t.Errorf("Mailer: got %q, want %q", got, want)
	}

	raw = rawMessage([]string{
		"Message-Id: <m2@example.com>",
		"User-Agent: SomeAgent/2.0",
		"Content-Type: text/plain",
	}, "body")

	msg = Parse("INBOX", raw)
	if got, want := msg.Mailer(), "SomeAgent/2.0"; got != want {
		t.Errorf("Mailer fallback: got %q, want %q", got, want)
	}
}

func TestHTMLWithInlineURLs(t *testing.T) {
	t.Parallel()

	msg := NewMessage(identity.New("folder", "<img@example.com>"))
	msg.SetHTML(`<p><img src="cid:part1"/><img src="mid:part1"/><img src="cid:other"/></p>`)
	msg.AddAttachment(Attachment{
		FileName:    "1.png",
		ContentType: "image/png",
		ContentID:   "part1",
		Inline:      true,
		Data:        []byte{1, 2, 3},
	})

	html := msg.HTMLWithInlineURLs("https://mail.example.com/attachment/")

	token := identity.EscapeURLSegment(identity.NewAttachment("folder", "<img@example.com>", "1.png"))
	wantURL := "https://mail.example.com/attachment/" + token
	if !strings.Contains(html, `src="`+wantURL+`"`) {
		t.Errorf("cid reference not rewritten:\n%s", html)
	}
	if strings.Contains(html, "cid:part1") || strings.Contains(html, "mid:part1") {
		t.Errorf("inline references survived rewriting:\n%s", html)
	}
	if !strings.Contains(html, "cid:other") {
		t.Errorf("reference without a matching part was touched:\n%s", html)
	}
}

func TestDeleteAttachmentIdempotent(t *testing.T) {
	t.Parallel()

	msg := NewMessage(identity.New("Drafts", "<a@example.com>"))
	msg.AddAttachment(Attachment{FileName: "keep.txt", Data: []byte("k")})
	msg.AddAttachment(Attachment{FileName: "drop.txt", Data: []byte("d")})

	msg.DeleteAttachment("drop.txt")
	msg.DeleteAttachment("drop.txt")
	msg.DeleteAttachment("never-there.txt")

	atts := msg.Attachments()
	if len(atts) != 1 || atts[0].FileName != "keep.txt" {
		t.Fatalf("attachments after delete: got %d, want only keep.txt", len(atts))
	}
}

func TestAttachmentLookupByID(t *testing.T) {
	t.Parallel()

	msg := NewMessage(identity.New("folder", "<l@example.com>"))
	msg.AddAttachment(Attachment{FileName: "1.png", ContentType: "image/png", Data: []byte{1}})
	msg.AddAttachment(Attachment{FileName: "2.png", ContentType: "image/png", Data: []byte{2}})

	id := identity.NewAttachment("folder", "<l@example.com>", "2.png")
	att, ok := msg.Attachment(id)
	if !ok {
		t.Fatal("attachment 2.png not found by id")
	}
	if att.FileName != "2.png" {
		t.Errorf("FileName: got %q, want %q", att.FileName, "2.png")
	}

	if _, ok := msg.Attachment(identity.NewAttachment("folder", "<l@example.com>", "3.png")); ok {
		t.Error("lookup of absent attachment succeeded")
	}
}

func TestRoundTripPlainBody(t *testing.T) {
	t.Parallel()

	msg := NewMessage(identity.New("Drafts", "<plain@example.com>"))
	msg.SetSubject("plain only")
	msg.SetFrom("alice@example.com")
	msg.AddRecipient("bob@example.com", "Bob")
	msg.SetPlain("just text")

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	got := Parse("Drafts", raw)
	if got.Plain() != "just text" {
		t.Errorf("Plain: got %q, want %q", got.Plain(), "just text")
	}
	if got.HTML() != "" {
		t.Errorf("HTML: got %q, want empty", got.HTML())
	}
	if got.Subject() != "plain only" {
		t.Errorf("Subject: got %q, want %q", got.Subject(), "plain only")
	}
	if got.Sender() != "alice@example.com" {
		t.Errorf("Sender: got %q, want %q", got.Sender(), "alice@example.com")
	}
	to := got.To()
	if len(to) != 1 || to[0].Address != "bob@example.com" || to[0].Name != "Bob" {
		t.Errorf("To: got %v", to)
	}
}

func TestRoundTripAlternativeBodies(t *testing.T) {
	t.Parallel()

	msg := NewMessage(identity.New("Drafts", "<alt@example.com>"))
	msg.SetPlain("text version")
	msg.SetHTML("<p>html version</p>")

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	got := Parse("Drafts", raw)
	if got.Plain() != "text version" {
		t.Errorf("Plain: got %q, want %q", got.Plain(), "text version")
	}
	if got.HTML() != "<p>html version</p>" {
		t.Errorf("HTML: got %q, want %q", got.HTML(), "<p>html version</p>")
	}
}

func TestRoundTripAttachments(t *testing.T) {
	t.Parallel()

	payload := []byte("\x89PNG fake image data")

	msg := NewMessage(identity.New("Drafts", "<mixed@example.com>"))
	msg.SetPlain("see attachment")
	msg.AddAttachment(Attachment{
		FileName:    "report.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4"),
	})
	msg.AddAttachment(Attachment{
		FileName:    "logo.png",
		ContentType: "image/png",
		ContentID:   "logo",
		Inline:      true,
		Data:        payload,
	})

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	got := Parse("Drafts", raw)
	if got.Plain() != "see attachment" {
		t.Errorf("Plain: got %q, want %q", got.Plain(), "see attachment")
	}

	atts := got.Attachments()
	if len(atts) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(atts))
	}
	if atts[0].FileName != "report.pdf" {
		t.Errorf("attachment FileName: got %q, want %q", atts[0].FileName, "report.pdf")
	}
	if string(atts[0].Data) != "%PDF-1.4" {
		t.Errorf("attachment Data: got %q, want %q", atts[0].Data, "%PDF-1.4")
	}

	inline, ok := got.InlineAttachment("logo")
	if !ok {
		t.Fatal("inline attachment logo not found")
	}
	if string(inline.Data) != string(payload) {
		t.Errorf("inline Data: got %q, want %q", inline.Data, payload)
	}
}

func TestRoundTripDraftHeaders(t *testing.T) {
	t.Parallel()

	yes := true
	msg := NewMessage(identity.New("Drafts", "<hdr@example.com>"))
	msg.SetPlain("body")
	msg.SetReceipt(&yes)
	msg.SetAskForDispositionNotification(&yes)
	msg.SetHighPriority(&yes)
	msg.SetInReplyTo("<parent@example.com>")

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	got := Parse("Drafts", raw)
	if !got.IsReturnReceipt() || !got.IsDSN() {
		t.Errorf("draft info after round trip: receipt=%v dsn=%v", got.IsReturnReceipt(), got.IsDSN())
	}
	if !got.IsHighPriority() {
		t.Error("high priority lost in round trip")
	}
	if got.InReplyTo() != "<parent@example.com>" {
		t.Errorf("In-Reply-To: got %q", got.InReplyTo())
	}
}

func TestParseMalformedMessage(t *testing.T) {
	t.Parallel()

	msg := Parse("INBOX", []byte("no header colon here\r\n\r\n"))
	if got := msg.Subject(); got != "" {
		t.Errorf("malformed message produced a subject: %q", got)
	}

	// The degraded message must still serialize.
	if _, err := msg.Bytes(); err != nil {
		t.Errorf("Bytes on degraded message: %v", err)
	}
}

func TestClearAndReAddRecipients(t *testing.T) {
	t.Parallel()

	raw := rawMessage([]string{
		"Message-Id: <rcpt@example.com>",
		"To: old@example.com",
		"Cc: oldcc@example.com",
		"Content-Type: text/plain",
	}, "body")

	msg := Parse("Drafts", raw)
	msg.ClearRecipients()
	msg.ClearCc()
	msg.AddRecipient("new@example.com", "")
	msg.AddRecipient("second@example.com", "")

	to := msg.To()
	if len(to) != 2 || to[0].Address != "new@example.com" || to[1].Address != "second@example.com" {
		t.Errorf("To after rewrite: got %v", to)
	}
	if got := msg.Cc(); len(got) != 0 {
		t.Errorf("Cc after clear: got %v, want none", got)
	}
}

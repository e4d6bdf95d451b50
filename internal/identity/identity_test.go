package identity

import (
	"strings"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		folder    string
		messageID string
	}{
		{"simple", "INBOX", "<51EABBD0.3060000@localhost>"},
		{"slash hierarchy", "INBOX/Invoices/2013", "<abc@localhost>"},
		{"dot hierarchy", "INBOX.Invoices.2013", "<abc@localhost>"},
		{"mixed separators", "archive/2013.Q1", "<a.b.c@example.org>"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			id := New(tc.folder, tc.messageID)
			parsed, err := Parse(id.String())
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", id.String(), err)
			}
			if parsed.Folder != tc.folder {
				t.Errorf("Folder: got %q, want %q", parsed.Folder, tc.folder)
			}
			if parsed.MessageID != tc.messageID {
				t.Errorf("MessageID: got %q, want %q", parsed.MessageID, tc.messageID)
			}
		})
	}
}

func TestParseInvalidToken(t *testing.T) {
	t.Parallel()

	_, err := Parse("no delimiter here")
	if err == nil {
		t.Fatal("Parse: expected error for token without delimiter")
	}
	if !IsInvalidID(err) {
		t.Errorf("IsInvalidID: got false for %v", err)
	}
}

func TestParseAttachment(t *testing.T) {
	t.Parallel()

	id, err := ParseAttachment("folder|<51EABBD0.3060000@localhost>|1.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Folder != "folder" {
		t.Errorf("Folder: got %q, want %q", id.Folder, "folder")
	}
	if id.MessageID != "<51EABBD0.3060000@localhost>" {
		t.Errorf("MessageID: got %q, want %q", id.MessageID, "<51EABBD0.3060000@localhost>")
	}
	if id.FileName != "1.png" {
		t.Errorf("FileName: got %q, want %q", id.FileName, "1.png")
	}
}

func TestParseAttachmentFileNameKeepsDelimiters(t *testing.T) {
	t.Parallel()

	id, err := ParseAttachment("folder|<id@localhost>|weird|name.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.FileName != "weird|name.png" {
		t.Errorf("FileName: got %q, want %q", id.FileName, "weird|name.png")
	}
}

func TestParseAttachmentInvalid(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"nodelimiter", "folder|onlyone"} {
		if _, err := ParseAttachment(token); !IsInvalidID(err) {
			t.Errorf("ParseAttachment(%q): expected InvalidIDError, got %v", token, err)
		}
	}
}

func TestEscapeURLSegmentRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		fileName string
	}{
		{"plain", "1.png"},
		{"umlaut", "umlaut ä.png"},
		{"very long", "umlaut ä veeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeery long.png"},
		{"spaces and dashes", "quarterly report - final.pdf"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			id := NewAttachment("folder/sub.folder", "<6080306@localhost>", tc.fileName)
			segment := EscapeURLSegment(id)

			back, err := UnescapeURLSegment(segment)
			if err != nil {
				t.Fatalf("UnescapeURLSegment(%q): %v", segment, err)
			}
			if back != id {
				t.Errorf("round trip: got %+v, want %+v", back, id)
			}
		})
	}
}

func TestEscapeURLSegmentEscapesDotDashAndDelimiter(t *testing.T) {
	t.Parallel()

	id := NewAttachment("folder", "<a-b.c@localhost>", "x.y-z.png")
	segment := EscapeURLSegment(id)

	for _, forbidden := range []string{".", "-", "|", "<", ">", "@"} {
		if strings.Contains(segment, forbidden) {
			t.Errorf("segment %q still contains %q", segment, forbidden)
		}
	}
	if !strings.Contains(segment, "%2E") {
		t.Errorf("segment %q: expected %%2E for escaped dot", segment)
	}
	if !strings.Contains(segment, "%2D") {
		t.Errorf("segment %q: expected %%2D for escaped dash", segment)
	}
}

func TestEscapeURLSegmentNonASCII(t *testing.T) {
	t.Parallel()

	id := NewAttachment("f", "<m@localhost>", "ä")
	segment := EscapeURLSegment(id)

	// "ä" is two UTF-8 bytes, each percent-escaped.
	if !strings.HasSuffix(segment, "%C3%A4") {
		t.Errorf("segment %q: expected UTF-8 percent escape %%C3%%A4", segment)
	}
}

// Package testutil provides shared fixtures for package tests: an
// in-memory summary cache and builders for raw mail messages.
package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/zeegates/minig/internal/cache"
	"github.com/zeegates/minig/internal/store"
)

// NewTestCache creates an in-memory SummaryCache with all migrations
// applied. It automatically closes the cache when the test completes.
func NewTestCache(t *testing.T) *cache.SummaryCache {
	t.Helper()

	c, err := cache.New(":memory:")
	if err != nil {
		t.Fatalf("creating test cache: %v", err)
	}

	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("closing test cache: %v", err)
		}
	})

	return c
}

// MessageBuilder assembles raw RFC 822 message bytes for tests.
type MessageBuilder struct {
	headers []string
	body    string
}

// NewMessage starts a builder with the given Message-ID, brackets
// included.
func NewMessage(messageID string) *MessageBuilder {
	b := &MessageBuilder{}
	return b.Header("Message-Id", messageID)
}

// Header appends a header line.
func (b *MessageBuilder) Header(name, value string) *MessageBuilder {
	b.headers = append(b.headers, name+": "+value)
	return b
}

// From sets the sender.
func (b *MessageBuilder) From(email string) *MessageBuilder {
	return b.Header("From", email)
}

// To sets the recipients.
func (b *MessageBuilder) To(emails ...string) *MessageBuilder {
	return b.Header("To", strings.Join(emails, ", "))
}

// Subject sets the subject.
func (b *MessageBuilder) Subject(s string) *MessageBuilder {
	return b.Header("Subject", s)
}

// PlainBody sets a text/plain body.
func (b *MessageBuilder) PlainBody(body string) *MessageBuilder {
	b.Header("Content-Type", "text/plain; charset=utf-8")
	b.body = body
	return b
}

// Bytes renders the message. The body is rendered verbatim; parsed
// bodies compare equal to what was passed to PlainBody.
func (b *MessageBuilder) Bytes() []byte {
	return []byte(strings.Join(b.headers, "\r\n") + "\r\n\r\n" + b.body)
}

// Raw wraps the rendered message into a store record for the given
// folder and flags.
func (b *MessageBuilder) Raw(folder, messageID string, flags ...imap.Flag) *store.RawMessage {
	return &store.RawMessage{
		Folder:       folder,
		MessageID:    messageID,
		Flags:        flags,
		InternalDate: time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC),
		Raw:          b.Bytes(),
	}
}

// Package store is the mail-store collaborator boundary: fetching raw
// message bytes by coordinate, enumerating folders, persisting composed
// messages, and flag/move/copy/delete operations. Retry policy and
// connection management live behind this boundary, not in the mapping
// core.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/zeegates/minig/internal/identity"
)

// ErrNotFound indicates that a coordinate resolves to no message.
var ErrNotFound = errors.New("message not found")

// RawMessage is one message as the store hands it out: the raw RFC 822
// bytes plus the store-level metadata that never lives in MIME headers.
type RawMessage struct {
	Folder       string
	UID          imap.UID
	MessageID    string // including angle brackets
	Flags        []imap.Flag
	InternalDate time.Time

	// Raw holds the fetched bytes. Listing fetches the header section
	// only; FetchRaw returns the full message.
	Raw []byte
}

// FlagDelta describes a store-level flag change. Nil fields are left
// unchanged.
type FlagDelta struct {
	Seen      *bool
	Flagged   *bool
	Answered  *bool
	Deleted   *bool
	Forwarded *bool
	MDNSent   *bool
}

// isEmpty reports whether the delta changes nothing.
func (d FlagDelta) isEmpty() bool {
	return d.Seen == nil && d.Flagged == nil && d.Answered == nil &&
		d.Deleted == nil && d.Forwarded == nil && d.MDNSent == nil
}

// add and remove split the delta into the flag lists for the two
// underlying STORE operations.
func (d FlagDelta) add() []imap.Flag {
	return d.collect(true)
}

func (d FlagDelta) remove() []imap.Flag {
	return d.collect(false)
}

func (d FlagDelta) collect(set bool) []imap.Flag {
	var flags []imap.Flag
	for _, f := range []struct {
		value *bool
		flag  imap.Flag
	}{
		{d.Seen, imap.FlagSeen},
		{d.Flagged, imap.FlagFlagged},
		{d.Answered, imap.FlagAnswered},
		{d.Deleted, imap.FlagDeleted},
		{d.Forwarded, imap.FlagForwarded},
		{d.MDNSent, imap.FlagMDNSent},
	} {
		if f.value != nil && *f.value == set {
			flags = append(flags, f.flag)
		}
	}
	return flags
}

// Store is the contract the mapping core consumes. Implementations may
// block; they must propagate failures instead of retrying silently.
type Store interface {
	// FetchRaw returns the full raw message at the given coordinate,
	// or ErrNotFound.
	FetchRaw(ctx context.Context, id identity.ID) (*RawMessage, error)

	// ListFolder returns one page of a folder ordered newest first,
	// header sections only, plus the folder's total message count.
	ListFolder(ctx context.Context, folder string, page, pageSize int) ([]*RawMessage, int, error)

	// Persist appends a composed raw message to the folder and returns
	// its Message-ID.
	Persist(ctx context.Context, raw []byte, folder string) (string, error)

	// UpdateFlags applies a flag delta to the message at the coordinate.
	UpdateFlags(ctx context.Context, id identity.ID, delta FlagDelta) error

	// Move transfers the message to the target folder.
	Move(ctx context.Context, id identity.ID, targetFolder string) error

	// Copy copies the message into the target folder.
	Copy(ctx context.Context, id identity.ID, targetFolder string) error

	// Delete removes the message permanently.
	Delete(ctx context.Context, id identity.ID) error

	// FindByMessageID locates a message across all folders by its
	// Message-ID, or returns ErrNotFound.
	FindByMessageID(ctx context.Context, messageID string) (identity.ID, error)
}

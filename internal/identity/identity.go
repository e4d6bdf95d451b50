// Package identity implements the composite identifiers that name a
// message or an attachment within the mail store. A message identifier
// serializes as "folder|messageID", an attachment identifier as
// "folder|messageID|fileName". The folder component is an opaque store
// convention and may itself contain "/" or "." hierarchy separators;
// only the "|" delimiter is structural.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

const separator = "|"

// InvalidIDError indicates a composite identifier token that cannot be
// parsed. The REST layer maps it to a bad-request response.
type InvalidIDError struct {
	Token string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid composite identifier %q", e.Token)
}

// IsInvalidID reports whether err (or any error in its chain) is an
// InvalidIDError.
func IsInvalidID(err error) bool {
	var invalidErr *InvalidIDError
	return errors.As(err, &invalidErr)
}

// ID locates a single message: the store folder it lives in and its
// RFC 822 Message-ID including the angle brackets.
type ID struct {
	Folder    string
	MessageID string
}

// New creates a message identifier from its two coordinates.
func New(folder, messageID string) ID {
	return ID{Folder: folder, MessageID: messageID}
}

// Parse splits a token of the form "folder|messageID". It splits on the
// last "|" so that the folder component passes through untouched;
// Message-IDs are "|"-free per RFC 822 token rules.
func Parse(token string) (ID, error) {
	i := strings.LastIndex(token, separator)
	if i < 0 {
		return ID{}, &InvalidIDError{Token: token}
	}
	return ID{Folder: token[:i], MessageID: token[i+1:]}, nil
}

// String serializes the identifier. No escaping is performed; "|" is
// not a legal character in Message-IDs or store folder names.
func (id ID) String() string {
	return id.Folder + separator + id.MessageID
}

// IsZero reports whether the identifier has no resolvable coordinate.
func (id ID) IsZero() bool {
	return id.Folder == "" && id.MessageID == ""
}

// AttachmentID locates a single attachment by the message that carries
// it and the attachment's decoded filename. The filename is taken
// verbatim from the MIME part and may contain spaces, non-ASCII
// characters, or the delimiter itself.
type AttachmentID struct {
	ID
	FileName string
}

// NewAttachment creates an attachment identifier.
func NewAttachment(folder, messageID, fileName string) AttachmentID {
	return AttachmentID{ID: ID{Folder: folder, MessageID: messageID}, FileName: fileName}
}

// ParseAttachment splits a token of the form "folder|messageID|fileName".
// The first two delimiters are structural; everything after the second
// one is the filename, delimiters included.
func ParseAttachment(token string) (AttachmentID, error) {
	i := strings.Index(token, separator)
	if i < 0 {
		return AttachmentID{}, &InvalidIDError{Token: token}
	}
	rest := token[i+1:]
	j := strings.Index(rest, separator)
	if j < 0 {
		return AttachmentID{}, &InvalidIDError{Token: token}
	}
	return AttachmentID{
		ID:       ID{Folder: token[:i], MessageID: rest[:j]},
		FileName: rest[j+1:],
	}, nil
}

// String serializes the identifier as "folder|messageID|fileName".
func (id AttachmentID) String() string {
	return id.ID.String() + separator + id.FileName
}

package identity

import "net/url"

// EscapeURLSegment serializes an attachment identifier and
// percent-escapes it for use as a single URL path segment. The safe set
// is deliberately smaller than a generic URL encoder's: "." and "-"
// pass through default encoders unescaped, which is ambiguous in
// deployments that treat them as path-segment separators, so here they
// are escaped too. Only ASCII letters, digits, "_" and "*" survive
// unescaped.
func EscapeURLSegment(id AttachmentID) string {
	return escape(id.String())
}

// UnescapeURLSegment reverses EscapeURLSegment.
func UnescapeURLSegment(segment string) (AttachmentID, error) {
	token, err := url.PathUnescape(segment)
	if err != nil {
		return AttachmentID{}, &InvalidIDError{Token: segment}
	}
	return ParseAttachment(token)
}

const upperhex = "0123456789ABCDEF"

func isSafeByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z':
		return true
	case 'A' <= c && c <= 'Z':
		return true
	case '0' <= c && c <= '9':
		return true
	case c == '_' || c == '*':
		return true
	}
	return false
}

// escape percent-encodes every byte outside the safe set, including
// the UTF-8 bytes of non-ASCII runes.
func escape(s string) string {
	hexCount := 0
	for i := 0; i < len(s); i++ {
		if !isSafeByte(s[i]) {
			hexCount++
		}
	}
	if hexCount == 0 {
		return s
	}

	buf := make([]byte, 0, len(s)+2*hexCount)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSafeByte(c) {
			buf = append(buf, c)
			continue
		}
		buf = append(buf, '%', upperhex[c>>4], upperhex[c&0xf])
	}
	return string(buf)
}

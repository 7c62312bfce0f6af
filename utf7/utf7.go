// Package utf7 converts mailbox names to and from the modified UTF-7
// encoding IMAP uses on the wire (RFC 3501 section 5.1.3).
//
// Printable ASCII passes through unchanged except for '&', which starts an
// escape and is therefore written as "&-". Everything else is encoded as
// UTF-16BE, base64-encoded with ',' in place of '/', and wrapped in '&' ... '-'.
package utf7

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"
)

const (
	escapeStart = '&'
	escapeEnd   = '-'
	alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,"
)

// ErrMalformedEncoding is returned when a wire name cannot be decoded.
var ErrMalformedEncoding = errors.New("utf7: malformed mailbox name")

var (
	rawEncoding    = base64.NewEncoding(alphabet).WithPadding(base64.NoPadding)
	paddedEncoding = base64.NewEncoding(alphabet)
)

// Encode converts a UTF-8 mailbox name to its wire form.
func Encode(name string) string {
	var out strings.Builder
	out.Grow(len(name))

	var run []uint16
	flush := func() {
		if len(run) == 0 {
			return
		}
		b := make([]byte, 0, len(run)*2)
		for _, u := range run {
			b = append(b, byte(u>>8), byte(u))
		}
		out.WriteByte(escapeStart)
		out.WriteString(rawEncoding.EncodeToString(b))
		out.WriteByte(escapeEnd)
		run = run[:0]
	}

	for _, r := range name {
		if r >= 0x20 && r <= 0x7e {
			flush()
			out.WriteRune(r)
			if r == escapeStart {
				out.WriteByte(escapeEnd)
			}
			continue
		}
		run = utf16.AppendRune(run, r)
	}
	flush()

	return out.String()
}

// Decode converts a wire mailbox name back to UTF-8. Errors wrap
// ErrMalformedEncoding.
func Decode(wire string) (string, error) {
	segments := strings.Split(wire, string(escapeStart))

	var out strings.Builder
	out.Grow(len(wire))
	out.WriteString(segments[0])

	for _, seg := range segments[1:] {
		payload, literal, ok := strings.Cut(seg, string(escapeEnd))
		if !ok {
			return "", fmt.Errorf("%w: unterminated escape in %q", ErrMalformedEncoding, wire)
		}
		if payload == "" {
			out.WriteByte(escapeStart)
		} else {
			s, err := decodeRun(payload)
			if err != nil {
				return "", fmt.Errorf("%w: %q: %s", ErrMalformedEncoding, wire, err)
			}
			out.WriteString(s)
		}
		out.WriteString(literal)
	}

	return out.String(), nil
}

// decodeRun decodes one base64 payload found between '&' and '-'.
func decodeRun(payload string) (string, error) {
	if n := len(payload) % 4; n != 0 {
		payload += strings.Repeat("=", 4-n)
	}
	b, err := paddedEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("invalid base64: %w", err)
	}
	if len(b)%2 != 0 {
		return "", fmt.Errorf("odd UTF-16 byte length %d", len(b))
	}

	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}

	var out strings.Builder
	for i := 0; i < len(units); i++ {
		u := rune(units[i])
		if !utf16.IsSurrogate(u) {
			out.WriteRune(u)
			continue
		}
		if i+1 >= len(units) {
			return "", errors.New("truncated surrogate pair")
		}
		r := utf16.DecodeRune(u, rune(units[i+1]))
		if r == unicode.ReplacementChar {
			return "", errors.New("invalid surrogate pair")
		}
		out.WriteRune(r)
		i++
	}
	return out.String(), nil
}

package imap

import (
	"strings"
	"time"
)

// Escaping for IMAP quoted strings.
var (
	AddSlashes    = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	RemoveSlashes = strings.NewReplacer(`\\`, `\`, `\"`, `"`)
)

// Package-wide session settings. Set them before dialing; a Dialer reads
// them on every command.
var (
	// Verbose logs every command and response at debug level, with the
	// LOGIN password masked.
	Verbose = false

	// SkipResponses keeps server responses out of the verbose log.
	SkipResponses = false

	// RetryCount is how many times a command or connection attempt that
	// failed on the transport is retried after reconnecting. Zero attempts
	// everything exactly once.
	RetryCount = 0

	// DialTimeout bounds establishing a connection. Zero means no limit.
	DialTimeout time.Duration

	// CommandTimeout bounds a single command round trip. Zero means no
	// limit.
	CommandTimeout time.Duration

	// TLSSkipVerify disables certificate verification for TLS and
	// STARTTLS. It exposes the session to man-in-the-middle attacks.
	TLSSkipVerify bool
)

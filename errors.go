package imap

import (
	"errors"
	"fmt"
)

// Error kinds returned by the Dialer. Match them with errors.Is.
var (
	// ErrConnection means the session could not be established: dial,
	// TLS handshake, STARTTLS or the server greeting failed.
	ErrConnection = errors.New("imap: connection failed")
	// ErrAuthentication means LOGIN or AUTHENTICATE was rejected.
	ErrAuthentication = errors.New("imap: authentication failed")
	// ErrFolderSelect means SELECT or EXAMINE did not complete with OK.
	ErrFolderSelect = errors.New("imap: folder select failed")
	// ErrProtocolOperation means a SEARCH, FETCH or STORE failed.
	ErrProtocolOperation = errors.New("imap: operation failed")
)

// StatusError is a tagged NO or BAD completion from the server.
type StatusError struct {
	Command string
	Status  string
	Info    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("imap command failed: %s %s %s", e.Command, e.Status, e.Info)
}

package imap

import "strings"

// System flags defined by RFC 3501.
const (
	FlagSeen     = `\Seen`
	FlagAnswered = `\Answered`
	FlagFlagged  = `\Flagged`
	FlagDeleted  = `\Deleted`
	FlagDraft    = `\Draft`
)

// StoreOp is the mutation a STORE command applies to the flag list.
type StoreOp int

const (
	// StoreAdd adds flags (+FLAGS).
	StoreAdd StoreOp = iota
	// StoreRemove removes flags (-FLAGS).
	StoreRemove
)

func (op StoreOp) String() string {
	if op == StoreRemove {
		return "remove"
	}
	return "add"
}

func (op StoreOp) item() string {
	if op == StoreRemove {
		return "-FLAGS.SILENT"
	}
	return "+FLAGS.SILENT"
}

var systemSearchKeys = map[string]string{
	`\seen`:     "SEEN",
	`\answered`: "ANSWERED",
	`\flagged`:  "FLAGGED",
	`\deleted`:  "DELETED",
	`\draft`:    "DRAFT",
}

// FlagSearchKey returns the SEARCH criterion matching messages that carry
// flag: the dedicated key for system flags, KEYWORD otherwise.
func FlagSearchKey(flag string) string {
	if key, ok := systemSearchKeys[strings.ToLower(flag)]; ok {
		return key
	}
	return "KEYWORD " + flag
}

// ValidFlag reports whether flag can be both searched for and stored: a
// keyword atom or one of the system flags with a SEARCH key. \Recent is
// server-managed and other backslash flags have no search criterion.
func ValidFlag(flag string) bool {
	if strings.HasPrefix(flag, `\`) {
		_, ok := systemSearchKeys[strings.ToLower(flag)]
		return ok
	}
	if flag == "" {
		return false
	}
	for _, r := range flag {
		if r <= 0x20 || r >= 0x7f || strings.ContainsRune(`(){%*"]\\`, r) {
			return false
		}
	}
	return true
}

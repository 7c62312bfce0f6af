// Package flagsync mirrors pairs of message flags across IMAP folders.
//
// An Engine reconciles one flag pair in the selected folder; a Driver walks
// folders, selects each one and runs the Engine for every configured pair,
// collecting one Outcome per unit of work instead of stopping at the first
// failure.
package flagsync

import (
	"fmt"
	"strings"

	imap "github.com/BrianLeishman/imap-flagsync"
	"github.com/BrianLeishman/imap-flagsync/utf7"
)

// Mode decides which directions a flag pair is reconciled in.
type Mode int

const (
	// ModeSync mirrors flag1 onto flag2 and flag2 onto flag1.
	ModeSync Mode = iota
	// ModeCopy propagates flag1 onto flag2 only.
	ModeCopy
	// ModeMove propagates flag1 onto flag2 and then clears flag1.
	ModeMove
)

// ParseMode accepts "sync", "copy" or "move".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sync":
		return ModeSync, nil
	case "copy":
		return ModeCopy, nil
	case "move":
		return ModeMove, nil
	}
	return ModeSync, fmt.Errorf("unknown mode %q (want sync, copy or move)", s)
}

func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeCopy:
		return "copy"
	case ModeMove:
		return "move"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// step is one reconciliation direction: search for source, then apply op
// with target.
type step struct {
	op     imap.StoreOp
	source string
	target string
}

func (m Mode) steps(p FlagPair) []step {
	forward := step{imap.StoreAdd, p.Flag1, p.Flag2}
	switch m {
	case ModeCopy:
		return []step{forward}
	case ModeMove:
		return []step{forward, {imap.StoreRemove, p.Flag1, p.Flag1}}
	default:
		return []step{forward, {imap.StoreAdd, p.Flag2, p.Flag1}}
	}
}

// FlagPair is an ordered pair of flags or keywords. Order matters for copy
// and move, which only propagate Flag1 onto Flag2.
type FlagPair struct {
	Flag1 string
	Flag2 string
}

// ParseFlagPair parses "flag1:flag2" or "flag1,flag2".
func ParseFlagPair(s string) (FlagPair, error) {
	sep := ":"
	if strings.Contains(s, ",") {
		sep = ","
	}
	f1, f2, ok := strings.Cut(s, sep)
	if !ok {
		return FlagPair{}, fmt.Errorf("flag pair %q: want flag1:flag2", s)
	}
	p := FlagPair{Flag1: strings.TrimSpace(f1), Flag2: strings.TrimSpace(f2)}
	if err := p.Validate(); err != nil {
		return FlagPair{}, err
	}
	return p, nil
}

// Validate checks that both flags are usable atoms and differ.
func (p FlagPair) Validate() error {
	for _, f := range []string{p.Flag1, p.Flag2} {
		if !imap.ValidFlag(f) {
			return fmt.Errorf("flag pair %s: invalid flag %q", p, f)
		}
	}
	if strings.EqualFold(p.Flag1, p.Flag2) {
		return fmt.Errorf("flag pair %s: flags must differ", p)
	}
	return nil
}

func (p FlagPair) String() string {
	return p.Flag1 + ":" + p.Flag2
}

// Mailbox is a folder's display name together with its wire form.
type Mailbox struct {
	Name string
	Wire string
}

// ParseMailbox builds a Mailbox from a display name.
func ParseMailbox(name string) Mailbox {
	return Mailbox{Name: name, Wire: utf7.Encode(name)}
}

// MailboxFromWire builds a Mailbox from a name found in a LIST response.
// The error wraps utf7.ErrMalformedEncoding.
func MailboxFromWire(wire string) (Mailbox, error) {
	name, err := utf7.Decode(wire)
	if err != nil {
		return Mailbox{Name: wire, Wire: wire}, err
	}
	return Mailbox{Name: name, Wire: wire}, nil
}

func (m Mailbox) String() string {
	return m.Name
}

// Verbosity levels understood by the engine and the report writer.
const (
	VerbosityQuiet   = 0
	VerbosityCounts  = 1
	VerbosityListing = 2
)

// Options is the per-run context shared by the engine and the driver.
type Options struct {
	DryRun    bool
	Verbosity int
}

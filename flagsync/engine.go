package flagsync

import (
	"slices"
	"strings"

	imap "github.com/BrianLeishman/imap-flagsync"
)

// Session is the part of an IMAP session the engine needs. The folder to
// work on must already be selected. *imap.Dialer satisfies it.
type Session interface {
	Search(criteria string) ([]int, error)
	Store(seqs []int, op imap.StoreOp, flags []string) error
	FetchOverviews(seqs ...int) (map[int]*imap.Overview, error)
}

// Direction reports one search-then-store pass.
type Direction struct {
	Op     imap.StoreOp
	Source string
	// Flags is what was (or, in a dry run, would have been) stored.
	Flags   []string
	Matched []int
	// Messages is filled at VerbosityListing and above, in Matched order.
	Messages []*imap.Overview
	// Stored is true when a STORE was actually sent.
	Stored bool
}

// Summary reports every direction processed for one flag pair in one folder.
type Summary struct {
	Folder     Mailbox
	Pair       FlagPair
	Mode       Mode
	DryRun     bool
	Directions []Direction
}

// Matched returns the number of matches over all directions.
func (s *Summary) Matched() int {
	n := 0
	for _, d := range s.Directions {
		n += len(d.Matched)
	}
	return n
}

// Engine reconciles flag pairs in the currently selected folder.
type Engine struct {
	Options
	Log imap.Logger
}

// NewEngine returns an Engine logging to log, or to the imap package logger
// when log is nil.
func NewEngine(opts Options, log imap.Logger) *Engine {
	if log == nil {
		log = imap.CurrentLogger()
	}
	return &Engine{Options: opts, Log: log}
}

// ApplyDirection finds the messages carrying source and applies op with
// target to all of them in one STORE. Adding also adds \Flagged so clients
// that do not know the keyword still show the message as flagged; removing
// leaves \Flagged alone. The store is skipped in a dry run and when nothing
// matched. Errors wrap imap.ErrProtocolOperation.
func (e *Engine) ApplyDirection(s Session, op imap.StoreOp, source, target string) (Direction, error) {
	return e.applyDirection(s, step{op, source, target}, nil)
}

// Reconcile runs every direction of mode for pair, in order. On error the
// returned summary holds the directions completed before the failure.
//
// In a dry run nothing reaches the server, so later directions would not see
// the effect of earlier ones. The stores that would have happened are kept
// in an overlay applied to later search results; counts therefore match a
// real run against the same mailbox.
func (e *Engine) Reconcile(s Session, pair FlagPair, mode Mode) (*Summary, error) {
	summary := &Summary{Pair: pair, Mode: mode, DryRun: e.DryRun}
	var pending overlay
	if e.DryRun {
		pending = overlay{}
	}
	for _, st := range mode.steps(pair) {
		dir, err := e.applyDirection(s, st, pending)
		if err != nil {
			return summary, err
		}
		summary.Directions = append(summary.Directions, dir)
	}
	return summary, nil
}

func (e *Engine) applyDirection(s Session, st step, pending overlay) (Direction, error) {
	dir := Direction{Op: st.op, Source: st.source, Flags: []string{st.target}}
	if st.op == imap.StoreAdd && !strings.EqualFold(st.target, imap.FlagFlagged) {
		dir.Flags = append(dir.Flags, imap.FlagFlagged)
	}

	seqs, err := s.Search(imap.FlagSearchKey(st.source))
	if err != nil {
		return dir, err
	}
	seqs = pending.apply(st.source, seqs)
	dir.Matched = seqs

	if len(seqs) > 0 && e.Verbosity >= VerbosityListing {
		overviews, err := s.FetchOverviews(seqs...)
		if err != nil {
			return dir, err
		}
		dir.Messages = make([]*imap.Overview, 0, len(seqs))
		for _, seq := range seqs {
			ov, ok := overviews[seq]
			if !ok {
				ov = &imap.Overview{Seq: seq}
			}
			dir.Messages = append(dir.Messages, ov)
		}
	}

	if len(seqs) > 0 {
		if e.DryRun {
			pending.record(st.op, dir.Flags, seqs)
		} else {
			if err := s.Store(seqs, st.op, dir.Flags); err != nil {
				return dir, err
			}
			dir.Stored = true
		}
	}

	e.Log.Info("direction applied",
		"op", st.op,
		"source", st.source,
		"flags", strings.Join(dir.Flags, " "),
		"matched", len(seqs),
		"dry_run", e.DryRun,
	)
	return dir, nil
}

// overlay tracks, per lower-cased flag, the messages a dry run pretended to
// add the flag to (true) or remove it from (false). A nil overlay is empty.
type overlay map[string]map[int]bool

func (o overlay) record(op imap.StoreOp, flags []string, seqs []int) {
	if o == nil {
		return
	}
	for _, f := range flags {
		key := strings.ToLower(f)
		if o[key] == nil {
			o[key] = make(map[int]bool)
		}
		for _, seq := range seqs {
			o[key][seq] = op == imap.StoreAdd
		}
	}
}

func (o overlay) apply(flag string, seqs []int) []int {
	changes := o[strings.ToLower(flag)]
	if len(changes) == 0 {
		return seqs
	}
	set := make(map[int]bool, len(seqs)+len(changes))
	for _, seq := range seqs {
		set[seq] = true
	}
	for seq, present := range changes {
		set[seq] = present
	}
	out := make([]int, 0, len(set))
	for seq, present := range set {
		if present {
			out = append(out, seq)
		}
	}
	slices.Sort(out)
	return out
}

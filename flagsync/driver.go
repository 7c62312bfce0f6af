package flagsync

import (
	"errors"
	"fmt"

	imap "github.com/BrianLeishman/imap-flagsync"
)

// FolderSession is the session surface the driver needs on top of Session.
// *imap.Dialer satisfies it.
type FolderSession interface {
	Session
	ListFolders() ([]imap.Folder, error)
	SelectFolder(wire string) error
	ExamineFolder(wire string) error
	CloseFolder() error
}

var _ FolderSession = (*imap.Dialer)(nil)

// Outcome is the result of one unit of work: a flag pair in a folder, or a
// whole folder when it could not be opened (Pair is nil then).
type Outcome struct {
	Folder  Mailbox
	Pair    *FlagPair
	Summary *Summary
	Err     error
}

// Failed reports whether the unit of work failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Report collects the outcomes of a run in processing order.
type Report struct {
	Outcomes []Outcome
}

// Failed returns the failed outcomes.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Matched returns the number of matched messages over all summaries.
func (r *Report) Matched() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Summary != nil {
			n += o.Summary.Matched()
		}
	}
	return n
}

// Folders returns the number of distinct folders in the report.
func (r *Report) Folders() int {
	seen := make(map[string]struct{})
	for _, o := range r.Outcomes {
		seen[o.Folder.Wire] = struct{}{}
	}
	return len(seen)
}

// Err joins the errors of every failed outcome, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Failed() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}

// Driver walks folders and runs the engine on each of them.
type Driver struct {
	Engine *Engine
	Log    imap.Logger
}

// NewDriver returns a Driver sharing the engine's logger.
func NewDriver(engine *Engine) *Driver {
	return &Driver{Engine: engine, Log: engine.Log}
}

// Discover lists every folder on the server. Folders the server marks as
// not selectable are left out. Names that cannot be decoded come back as
// failed outcomes wrapping utf7.ErrMalformedEncoding instead of mailboxes.
func (d *Driver) Discover(s FolderSession) ([]Mailbox, []Outcome, error) {
	folders, err := s.ListFolders()
	if err != nil {
		return nil, nil, err
	}

	var (
		mailboxes []Mailbox
		failed    []Outcome
	)
	for _, f := range folders {
		if !f.Selectable() {
			d.Log.Debug("skipping unselectable folder", "mailbox", f.Name, "attributes", f.Attributes)
			continue
		}
		mb, err := MailboxFromWire(f.Name)
		if err != nil {
			d.Log.Warn("skipping folder with undecodable name", "mailbox", f.Name, "error", err)
			failed = append(failed, Outcome{Folder: mb, Err: err})
			continue
		}
		mailboxes = append(mailboxes, mb)
	}
	return mailboxes, failed, nil
}

// Run processes folders one after another. Each folder is opened (read-only
// in a dry run) and every pair is reconciled in order. A folder that cannot
// be opened, or a pair that fails, is logged and recorded; processing goes
// on with the next unit.
func (d *Driver) Run(s FolderSession, folders []Mailbox, pairs []FlagPair, mode Mode) *Report {
	report := &Report{}
	for _, folder := range folders {
		report.Outcomes = append(report.Outcomes, d.runFolder(s, folder, pairs, mode)...)
	}
	return report
}

// RunAll discovers every folder and runs them all. Only a failed LIST is
// returned as an error.
func (d *Driver) RunAll(s FolderSession, pairs []FlagPair, mode Mode) (*Report, error) {
	folders, failed, err := d.Discover(s)
	if err != nil {
		return nil, fmt.Errorf("discovering folders: %w", err)
	}
	report := d.Run(s, folders, pairs, mode)
	report.Outcomes = append(failed, report.Outcomes...)
	return report, nil
}

func (d *Driver) runFolder(s FolderSession, folder Mailbox, pairs []FlagPair, mode Mode) []Outcome {
	open := s.SelectFolder
	if d.Engine.DryRun {
		open = s.ExamineFolder
	}
	if err := open(folder.Wire); err != nil {
		d.Log.Warn("skipping folder", "mailbox", folder.Name, "error", err)
		return []Outcome{{Folder: folder, Err: err}}
	}

	outcomes := make([]Outcome, 0, len(pairs))
	for _, pair := range pairs {
		summary, err := d.Engine.Reconcile(s, pair, mode)
		summary.Folder = folder
		if err != nil {
			d.Log.Warn("skipping flag pair", "mailbox", folder.Name, "pair", pair.String(), "error", err)
		}
		outcomes = append(outcomes, Outcome{Folder: folder, Pair: &pair, Summary: summary, Err: err})
	}

	if err := s.CloseFolder(); err != nil {
		d.Log.Warn("closing folder", "mailbox", folder.Name, "error", err)
	}
	return outcomes
}

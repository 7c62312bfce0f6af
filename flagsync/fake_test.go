package flagsync

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	imap "github.com/BrianLeishman/imap-flagsync"
)

// fakeMessage is a message in the in-memory mailbox.
type fakeMessage struct {
	flags   map[string]bool // lower-cased
	date    time.Time
	from    string
	subject string
}

func newMessage(flags ...string) *fakeMessage {
	m := &fakeMessage{flags: make(map[string]bool)}
	for _, f := range flags {
		m.flags[strings.ToLower(f)] = true
	}
	return m
}

func (m *fakeMessage) has(flag string) bool {
	return m.flags[strings.ToLower(flag)]
}

type storeCall struct {
	folder string
	seqs   []int
	op     imap.StoreOp
	flags  []string
}

// fakeSession implements FolderSession over in-memory folders. STORE is
// idempotent like on a real server: adding a present flag or removing an
// absent one changes nothing.
type fakeSession struct {
	folders     map[string][]*fakeMessage // by wire name
	list        []imap.Folder
	selected    string
	readOnly    bool
	failOpen    map[string]bool
	failSearch  map[string]bool // by criteria
	failStore   bool
	failFetch   bool
	failList    bool
	searches    []string
	stores      []storeCall
	opened      []string
	examined    int
	closes      int
	fetchedSeqs [][]int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		folders:    make(map[string][]*fakeMessage),
		failOpen:   make(map[string]bool),
		failSearch: make(map[string]bool),
	}
}

func (f *fakeSession) addFolder(wire string, msgs ...*fakeMessage) {
	f.folders[wire] = msgs
	f.list = append(f.list, imap.Folder{Name: wire, Delimiter: "/"})
}

func (f *fakeSession) ListFolders() ([]imap.Folder, error) {
	if f.failList {
		return nil, fmt.Errorf("%w: list: boom", imap.ErrProtocolOperation)
	}
	return f.list, nil
}

func (f *fakeSession) open(wire string, readOnly bool) error {
	f.opened = append(f.opened, wire)
	if _, ok := f.folders[wire]; !ok || f.failOpen[wire] {
		f.selected = ""
		return fmt.Errorf("%w: select %q: NO no such mailbox", imap.ErrFolderSelect, wire)
	}
	f.selected, f.readOnly = wire, readOnly
	return nil
}

func (f *fakeSession) SelectFolder(wire string) error { return f.open(wire, false) }

func (f *fakeSession) ExamineFolder(wire string) error {
	f.examined++
	return f.open(wire, true)
}

func (f *fakeSession) CloseFolder() error {
	f.closes++
	f.selected = ""
	return nil
}

func searchFlag(criteria string) string {
	if kw, ok := strings.CutPrefix(criteria, "KEYWORD "); ok {
		return kw
	}
	return `\` + criteria
}

func (f *fakeSession) Search(criteria string) ([]int, error) {
	f.searches = append(f.searches, criteria)
	if f.selected == "" {
		return nil, fmt.Errorf("%w: search: no folder selected", imap.ErrProtocolOperation)
	}
	if f.failSearch[criteria] {
		return nil, fmt.Errorf("%w: search %s: NO server error", imap.ErrProtocolOperation, criteria)
	}
	flag := searchFlag(criteria)
	seqs := []int{}
	for i, m := range f.folders[f.selected] {
		if m.has(flag) {
			seqs = append(seqs, i+1)
		}
	}
	return seqs, nil
}

func (f *fakeSession) Store(seqs []int, op imap.StoreOp, flags []string) error {
	f.stores = append(f.stores, storeCall{folder: f.selected, seqs: slices.Clone(seqs), op: op, flags: slices.Clone(flags)})
	if f.failStore || f.readOnly {
		return fmt.Errorf("%w: store %s: NO read-only", imap.ErrProtocolOperation, op)
	}
	msgs := f.folders[f.selected]
	for _, seq := range seqs {
		m := msgs[seq-1]
		for _, flag := range flags {
			if op == imap.StoreAdd {
				m.flags[strings.ToLower(flag)] = true
			} else {
				delete(m.flags, strings.ToLower(flag))
			}
		}
	}
	return nil
}

func (f *fakeSession) FetchOverviews(seqs ...int) (map[int]*imap.Overview, error) {
	f.fetchedSeqs = append(f.fetchedSeqs, slices.Clone(seqs))
	if f.failFetch {
		return nil, fmt.Errorf("%w: fetch: boom", imap.ErrProtocolOperation)
	}
	out := make(map[int]*imap.Overview, len(seqs))
	msgs := f.folders[f.selected]
	for _, seq := range seqs {
		m := msgs[seq-1]
		out[seq] = &imap.Overview{Seq: seq, Date: m.date, From: m.from, Subject: m.subject}
	}
	return out, nil
}

// state snapshots the sorted flags of every message in a folder.
func (f *fakeSession) state(wire string) []string {
	var out []string
	for _, m := range f.folders[wire] {
		flags := slices.Sorted(maps.Keys(m.flags))
		out = append(out, strings.Join(flags, " "))
	}
	return out
}

// clone deep-copies folders so two runs can start from the same state.
func (f *fakeSession) clone() *fakeSession {
	c := newFakeSession()
	for _, fl := range f.list {
		var msgs []*fakeMessage
		for _, m := range f.folders[fl.Name] {
			cp := *m
			cp.flags = maps.Clone(m.flags)
			msgs = append(msgs, &cp)
		}
		c.addFolder(fl.Name, msgs...)
	}
	return c
}

package imap

import (
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/jhillyerd/enmime/v2"
	"golang.org/x/net/html/charset"
)

// Overview is the header summary of one message: enough to list it.
type Overview struct {
	Seq     int
	Date    time.Time
	From    string
	Subject string
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(label, input)
	},
}

// Search returns the sequence numbers of the messages in the selected
// folder matching criteria, for example "KEYWORD $label5". Failures wrap
// ErrProtocolOperation.
func (d *Dialer) Search(criteria string) ([]int, error) {
	r, err := d.Exec("SEARCH "+criteria, true, RetryCount, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %w", ErrProtocolOperation, criteria, err)
	}
	seqs, err := parseSearchResponse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %w", ErrProtocolOperation, criteria, err)
	}
	return seqs, nil
}

// Store adds or removes flags on every message in seqs with a single
// STORE command. Storing nothing is a no-op. Failures wrap
// ErrProtocolOperation.
func (d *Dialer) Store(seqs []int, op StoreOp, flags []string) (err error) {
	if len(seqs) == 0 || len(flags) == 0 {
		return nil
	}
	query := fmt.Sprintf("STORE %s %s (%s)", SeqSet(seqs), op.item(), strings.Join(flags, " "))

	// if we are currently read-only, switch to SELECT for the store
	if d.ReadOnly {
		folder := d.Folder
		if err = d.SelectFolder(folder); err != nil {
			return fmt.Errorf("%w: store: %w", ErrProtocolOperation, err)
		}
		defer func() {
			if e := d.ExamineFolder(folder); e != nil && err == nil {
				err = e
			}
		}()
	}

	if _, err = d.Exec(query, false, RetryCount, nil); err != nil {
		return fmt.Errorf("%w: store %s: %w", ErrProtocolOperation, op, err)
	}
	return nil
}

// FetchOverviews fetches the headers of the given messages in one FETCH and
// returns their overviews keyed by sequence number. BODY.PEEK is used so
// \Seen is left alone. Failures wrap ErrProtocolOperation.
func (d *Dialer) FetchOverviews(seqs ...int) (map[int]*Overview, error) {
	overviews := make(map[int]*Overview, len(seqs))
	if len(seqs) == 0 {
		return overviews, nil
	}

	r, err := d.Exec("FETCH "+SeqSet(seqs)+" (BODY.PEEK[HEADER])", true, RetryCount, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %w", ErrProtocolOperation, err)
	}
	records, err := d.ParseFetchResponse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %w", ErrProtocolOperation, err)
	}

	for _, rec := range records {
		tks := rec.Tokens
		for i := 0; i+1 < len(tks); i += 2 {
			if err = d.CheckType(tks[i], []TType{TLiteral}, tks, "in root"); err != nil {
				return nil, fmt.Errorf("%w: fetch: %w", ErrProtocolOperation, err)
			}
			if !strings.EqualFold(tks[i].Str, "BODY[HEADER]") {
				continue
			}
			if err = d.CheckType(tks[i+1], []TType{TAtom, TQuoted}, tks, "after BODY[HEADER]"); err != nil {
				return nil, fmt.Errorf("%w: fetch: %w", ErrProtocolOperation, err)
			}
			ov := d.parseOverview(tks[i+1].Str)
			ov.Seq = rec.Seq
			overviews[rec.Seq] = ov
		}
	}

	return overviews, nil
}

// parseOverview extracts date, sender and subject from a raw header block.
// enmime does the decoding; when it rejects the header, net/mail with a
// charset-aware word decoder is used instead.
func (d *Dialer) parseOverview(raw string) *Overview {
	if !strings.HasSuffix(raw, nl+nl) {
		raw = strings.TrimRight(raw, nl) + nl + nl
	}

	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	if err == nil {
		ov := &Overview{Subject: env.GetHeader("Subject")}
		if addrs, err := env.AddressList("From"); err == nil && len(addrs) > 0 {
			ov.From = displayAddress(addrs[0])
		} else {
			ov.From = env.GetHeader("From")
		}
		if date, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
			ov.Date = date
		}
		return ov
	}

	debugLog(d.ConnNum, d.Folder, "header could not be parsed by enmime, falling back", "error", err, "header", spew.Sdump(raw))

	ov := &Overview{}
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		warnLog(d.ConnNum, d.Folder, "message header could not be parsed", "error", err)
		return ov
	}
	if s, err := wordDecoder.DecodeHeader(msg.Header.Get("Subject")); err == nil {
		ov.Subject = s
	} else {
		ov.Subject = msg.Header.Get("Subject")
	}
	parser := mail.AddressParser{WordDecoder: wordDecoder}
	if addrs, err := parser.ParseList(msg.Header.Get("From")); err == nil && len(addrs) > 0 {
		ov.From = displayAddress(addrs[0])
	} else {
		ov.From = msg.Header.Get("From")
	}
	if date, err := msg.Header.Date(); err == nil {
		ov.Date = date
	}
	return ov
}

func displayAddress(a *mail.Address) string {
	if a.Name != "" {
		return a.Name
	}
	return a.Address
}

package flagsync

import (
	"fmt"
	"io"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	imap "github.com/BrianLeishman/imap-flagsync"
)

// Column widths of the message listing, in terminal cells.
const (
	senderWidth  = 24
	subjectWidth = 50
)

const dateLayout = "2006-01-02 15:04"

// cells measures strings with East Asian wide characters as two columns
// and ambiguous ones as one, independent of the locale.
var cells = func() *runewidth.Condition {
	c := runewidth.NewCondition()
	c.EastAsianWidth = false
	return c
}()

var (
	failedMark = color.New(color.FgRed, color.Bold)
	dryRunMark = color.New(color.FgYellow)
	folderMark = color.New(color.Bold)
)

// fit collapses whitespace, truncates s to width cells and, when pad is
// set, pads it to exactly width cells.
func fit(s string, width int, pad bool) string {
	s = strings.Join(strings.Fields(s), " ")
	s = cells.Truncate(s, width, "...")
	if pad {
		s = cells.FillRight(s, width)
	}
	return s
}

// FormatOverview renders the n-th entry of a message listing.
func FormatOverview(n int, ov *imap.Overview) string {
	date := strings.Repeat("?", len(dateLayout))
	if !ov.Date.IsZero() {
		date = ov.Date.Format(dateLayout)
	}
	return fmt.Sprintf("%4d. %s  %s  %s", n, date, fit(ov.From, senderWidth, true), fit(ov.Subject, subjectWidth, false))
}

func describeDirection(d Direction) string {
	return fmt.Sprintf("%s %s <- %s", d.Op, strings.Join(d.Flags, " "), d.Source)
}

// WriteReport prints a human readable account of the run. Failures and the
// totals line are always printed; per-direction counts need
// VerbosityCounts and the message listing VerbosityListing.
func WriteReport(w io.Writer, r *Report, opts Options) error {
	ew := &errWriter{w: w}

	for _, o := range r.Outcomes {
		if o.Failed() {
			_, _ = failedMark.Fprint(ew, "FAILED")
			if o.Pair != nil {
				ew.printf(" %s [%s]: %v\n", o.Folder.Name, o.Pair, o.Err)
			} else {
				ew.printf(" %s: %v\n", o.Folder.Name, o.Err)
			}
		}
		if o.Summary == nil || opts.Verbosity < VerbosityCounts || len(o.Summary.Directions) == 0 {
			continue
		}

		_, _ = folderMark.Fprint(ew, o.Summary.Folder.Name)
		ew.printf("  %s (%s)\n", o.Summary.Pair, o.Summary.Mode)
		for _, d := range o.Summary.Directions {
			ew.printf("  %s: %s\n", describeDirection(d), plural(len(d.Matched), "message"))
			for i, ov := range d.Messages {
				ew.printf("  %s\n", FormatOverview(i+1, ov))
			}
		}
	}

	if opts.DryRun {
		_, _ = dryRunMark.Fprint(ew, "dry run, nothing stored: ")
	}
	ew.printf("%s, %s matched, %s failed\n",
		plural(r.Folders(), "folder"),
		plural(r.Matched(), "message"),
		humanize.Comma(int64(len(r.Failed()))),
	)
	return ew.err
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

// errWriter remembers the first write error so the report can be printed
// without checking every call.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(e, format, args...)
}

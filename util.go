package imap

import (
	"slices"
	"strconv"
	"strings"
)

// dropNl removes trailing newline characters from a byte slice
func dropNl(b []byte) []byte {
	if len(b) >= 1 && b[len(b)-1] == '\n' {
		if len(b) >= 2 && b[len(b)-2] == '\r' {
			return b[:len(b)-2]
		} else {
			return b[:len(b)-1]
		}
	}
	return b
}

// quote renders s as an IMAP quoted string.
func quote(s string) string {
	return `"` + AddSlashes.Replace(s) + `"`
}

// SeqSet formats message sequence numbers as a compact IMAP sequence set,
// collapsing consecutive numbers into ranges: [7 1 2 3] becomes "1:3,7".
func SeqSet(seqs []int) string {
	if len(seqs) == 0 {
		return ""
	}
	sorted := slices.Clone(seqs)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var b strings.Builder
	start := sorted[0]
	prev := start
	flush := func() {
		if b.Len() != 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(start))
		if prev != start {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(prev))
		}
	}
	for _, n := range sorted[1:] {
		if n == prev+1 {
			prev = n
			continue
		}
		flush()
		start, prev = n, n
	}
	flush()

	return b.String()
}

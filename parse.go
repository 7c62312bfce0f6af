package imap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const nl = "\r\n"

var fetchLineStartRE = regexp.MustCompile(`(?m)^\* \d+ FETCH`)

// Token is one element of a parenthesised FETCH item list.
type Token struct {
	Type   TType
	Str    string
	Num    int
	Tokens []*Token
}

// TType is the kind of a Token.
type TType uint8

const (
	TUnset TType = iota
	// TAtom is the payload of a {n} literal.
	TAtom
	TNumber
	// TLiteral is a bare word such as BODY[HEADER] or \Seen.
	TLiteral
	TQuoted
	TNil
	TContainer
)

var tokenNames = [...]string{
	TUnset:     "TUnset",
	TAtom:      "TAtom",
	TNumber:    "TNumber",
	TLiteral:   "TLiteral",
	TQuoted:    "TQuoted",
	TNil:       "TNil",
	TContainer: "TContainer",
}

// literalEnd returns the exclusive end of a literal of size bytes starting
// at start. A literal cut short by the end of the buffer keeps what is
// there; one starting past the end is an error unless it is empty.
func literalEnd(start, size, n int) (int, error) {
	switch {
	case start >= n:
		if size == 0 {
			return start, nil
		}
		return 0, fmt.Errorf("literal of %d bytes starts at %d, past the end of the %d byte response", size, start, n)
	case start+size > n:
		return n, nil
	default:
		return start + size, nil
	}
}

// isAtomChar reports whether b may appear in a bare word. Brackets are
// allowed so section specs like BODY[HEADER] stay one token.
func isAtomChar(b byte) bool {
	if b <= ' ' || b >= 0x7f {
		return false
	}
	switch b {
	case '(', ')', '{', '"':
		return false
	}
	return true
}

type fetchScanner struct {
	r     string
	pos   int
	depth int
}

// parseFetchTokens splits the item list of one FETCH response into tokens.
// A single outer container is unwrapped.
func parseFetchTokens(r string) ([]*Token, error) {
	s := &fetchScanner{r: r}
	tokens, err := s.list()
	if err != nil {
		return nil, err
	}
	if s.depth != 0 {
		return nil, fmt.Errorf("%d unclosed parentheses in %q", s.depth, r)
	}
	if len(tokens) == 1 && tokens[0].Type == TContainer {
		tokens = tokens[0].Tokens
	}
	return tokens, nil
}

// list reads tokens until the closing parenthesis of the current container
// or the end of input.
func (s *fetchScanner) list() ([]*Token, error) {
	tokens := make([]*Token, 0, 4)
	for s.pos < len(s.r) {
		b := s.r[s.pos]
		switch {
		case b == '(':
			s.pos++
			s.depth++
			children, err := s.list()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, &Token{Type: TContainer, Tokens: children})
		case b == ')':
			if s.depth == 0 {
				return nil, fmt.Errorf("unmatched ')' at byte %d of %q", s.pos, s.r)
			}
			s.pos++
			s.depth--
			return tokens, nil
		case b == '"':
			tokens = append(tokens, s.quoted())
		case b == '{':
			t, err := s.literal()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, t)
		case isAtomChar(b):
			tokens = append(tokens, s.word())
		default:
			s.pos++
		}
	}
	return tokens, nil
}

func (s *fetchScanner) quoted() *Token {
	start := s.pos + 1
	i := start
	for i < len(s.r) && s.r[i] != '"' {
		if s.r[i] == '\\' {
			i++
		}
		i++
	}
	end := min(i, len(s.r))
	s.pos = end + 1
	return &Token{Type: TQuoted, Str: RemoveSlashes.Replace(s.r[start:end])}
}

func (s *fetchScanner) literal() (*Token, error) {
	rb := strings.IndexByte(s.r[s.pos:], '}')
	if rb < 0 {
		return nil, fmt.Errorf("unterminated literal size at byte %d of %q", s.pos, s.r)
	}
	sizeText := s.r[s.pos+1 : s.pos+rb]
	size, err := strconv.Atoi(sizeText)
	if err != nil {
		return nil, fmt.Errorf("literal size %q: %w", sizeText, err)
	}
	start := s.pos + rb + 1
	if strings.HasPrefix(s.r[start:], nl) {
		start += len(nl)
	} else if strings.HasPrefix(s.r[start:], "\n") {
		start++
	}
	end, err := literalEnd(start, size, len(s.r))
	if err != nil {
		return nil, err
	}
	s.pos = end
	return &Token{Type: TAtom, Str: s.r[start:end]}, nil
}

func (s *fetchScanner) word() *Token {
	start := s.pos
	for s.pos < len(s.r) && isAtomChar(s.r[s.pos]) {
		s.pos++
	}
	w := s.r[start:s.pos]
	if n, err := strconv.Atoi(w); err == nil {
		return &Token{Type: TNumber, Num: n}
	}
	if w == "NIL" {
		return &Token{Type: TNil}
	}
	return &Token{Type: TLiteral, Str: w}
}

// FetchRecord is one untagged FETCH response: the message sequence number
// and the tokens inside its parenthesised item list.
type FetchRecord struct {
	Seq    int
	Tokens []*Token
}

// ParseFetchResponse splits a FETCH response into one record per untagged
// "* n FETCH" line. Literals may span lines.
func (d *Dialer) ParseFetchResponse(responseBody string) ([]FetchRecord, error) {
	records := make([]FetchRecord, 0)
	body := strings.TrimSpace(responseBody)
	if body == "" {
		return records, nil
	}

	locs := fetchLineStartRE.FindAllStringIndex(body, -1)
	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		line := strings.TrimSpace(body[loc[0]:end])

		seqText, content, _ := strings.Cut(line[len("* "):], " FETCH ")
		seq, err := strconv.Atoi(seqText)
		if err != nil {
			return nil, fmt.Errorf("bad sequence number in FETCH line %q: %w", line, err)
		}
		tokens, err := parseFetchTokens(content)
		if err != nil {
			return nil, fmt.Errorf("FETCH %d: %w", seq, err)
		}
		records = append(records, FetchRecord{Seq: seq, Tokens: tokens})
	}
	return records, nil
}

// parseSearchResponse collects the numbers from every untagged SEARCH line.
// A response without a SEARCH line is an error.
func parseSearchResponse(r string) ([]int, error) {
	var (
		ids   []int
		found bool
	)
	for line := range strings.SplitSeq(r, nl) {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "*" || !strings.EqualFold(fields[1], "SEARCH") {
			continue
		}
		found = true
		for _, f := range fields[2:] {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("invalid search result %q: %w", f, err)
			}
			ids = append(ids, n)
		}
	}
	if !found {
		return nil, fmt.Errorf("invalid response: %q", r)
	}
	if ids == nil {
		ids = []int{}
	}
	return ids, nil
}

// GetTokenName returns the name of a token type.
func GetTokenName(tokenType TType) string {
	if int(tokenType) < len(tokenNames) {
		return tokenNames[tokenType]
	}
	return ""
}

func (t Token) String() string {
	name := GetTokenName(t.Type)
	switch t.Type {
	case TAtom, TQuoted:
		return fmt.Sprintf("(%s, len %d %#v)", name, len(t.Str), t.Str)
	case TNumber:
		return fmt.Sprintf("(%s %d)", name, t.Num)
	case TLiteral:
		return fmt.Sprintf("(%s %s)", name, t.Str)
	case TContainer:
		return fmt.Sprintf("(%s children: %s)", name, t.Tokens)
	}
	return name
}

// CheckType returns an error unless token has one of the acceptable types.
// loc and v describe the position for the message.
func (d *Dialer) CheckType(token *Token, acceptableTypes []TType, tks []*Token, loc string, v ...any) error {
	names := make([]string, 0, len(acceptableTypes))
	for _, a := range acceptableTypes {
		if token.Type == a {
			return nil
		}
		names = append(names, GetTokenName(a))
	}
	return fmt.Errorf("IMAP%d:%s: expected %s token %s, got %+v in %v",
		d.ConnNum, d.Folder, strings.Join(names, "|"), fmt.Sprintf(loc, v...), token, tks)
}

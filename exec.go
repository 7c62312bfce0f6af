package imap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"github.com/rs/xid"
)

// literalSizeRE matches the {n} announcing a literal at the end of a line.
var literalSizeRE = regexp.MustCompile(`{\d+}$`)

var errNotConnected = errors.New("imap: not connected")

// newTag returns a fresh command tag: an xid, 20 upper-case base32hex
// characters (0-9, A-V).
func newTag() []byte {
	return []byte(strings.ToUpper(xid.New().String()))
}

// Exec sends command and reads until its tagged completion, retrying on
// connection failure up to retryCount times.
//
// Untagged response lines (with any trailing literals inlined) are passed to
// processLine and, when buildResponse is set, concatenated into the returned
// response. A tagged NO or BAD completion is returned as a *StatusError.
func (d *Dialer) Exec(command string, buildResponse bool, retryCount int, processLine func(line []byte) error) (string, error) {
	var resp strings.Builder
	err := retry.Retry(func() error {
		if !d.Connected {
			return errNotConnected
		}
		resp.Reset()

		if CommandTimeout != 0 {
			_ = d.conn.SetDeadline(time.Now().Add(CommandTimeout))
			defer func() { _ = d.conn.SetDeadline(time.Time{}) }()
		}

		tag := newTag()
		if err := d.writeCommand(tag, command); err != nil {
			return err
		}
		return d.readResponse(tag, command, func(line []byte) error {
			if processLine != nil {
				if err := processLine(line); err != nil {
					return err
				}
			}
			if buildResponse {
				resp.Write(line)
			}
			return nil
		})
	}, retryCount, func(err error) error {
		if Verbose {
			warnLog(d.ConnNum, d.Folder, "command failed, closing connection", "error", err)
		}
		_ = d.Close()
		return nil
	}, func() error {
		return d.Reconnect()
	})
	if err != nil {
		if retryCount > 0 {
			errorLog(d.ConnNum, d.Folder, "command retries exhausted", "error", err)
		}
		return "", err
	}
	return resp.String(), nil
}

func (d *Dialer) writeCommand(tag []byte, command string) error {
	c := fmt.Sprintf("%s %s\r\n", tag, command)
	if Verbose {
		sanitized := strings.TrimSpace(c)
		if d.Password != "" {
			sanitized = strings.ReplaceAll(sanitized, quote(d.Password), `"****"`)
		}
		debugLog(d.ConnNum, d.Folder, "sending command", "command", sanitized)
	}
	_, err := d.conn.Write([]byte(c))
	return err
}

// readResponse hands every untagged line to untagged and turns the tagged
// completion into nil or a *StatusError.
func (d *Dialer) readResponse(tag []byte, command string, untagged func(line []byte) error) error {
	prefix := append(tag, ' ')
	for {
		line, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if Verbose && !SkipResponses {
			debugLog(d.ConnNum, d.Folder, "server response", "response", string(dropNl(line)))
		}

		if rest, ok := bytes.CutPrefix(line, prefix); ok {
			status, info, _ := strings.Cut(string(dropNl(rest)), " ")
			if status != "OK" {
				verb, _, _ := strings.Cut(command, " ")
				return &StatusError{Command: verb, Status: status, Info: info}
			}
			return nil
		}
		if err := untagged(line); err != nil {
			return err
		}
	}
}

// readLine reads one response line, pulling in the literals it announces
// together with the rest of the line that follows each of them.
func (d *Dialer) readLine() ([]byte, error) {
	line, err := d.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	for {
		m := literalSizeRE.Find(dropNl(line))
		if m == nil {
			return line, nil
		}
		n, err := strconv.Atoi(string(m[1 : len(m)-1]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(d.reader, buf); err != nil {
			return nil, err
		}
		line = append(line, buf...)

		rest, err := d.reader.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = append(line, rest...)
	}
}

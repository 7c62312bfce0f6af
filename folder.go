package imap

import (
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var regexExists = regexp.MustCompile(`\*\s+(\d+)\s+EXISTS`)

// Folder is one entry of a LIST response. Name is the raw wire name as the
// server sent it (modified UTF-7, unquoted).
type Folder struct {
	Name       string
	Delimiter  string
	Attributes []string
}

// HasAttribute reports whether the server tagged the folder with attr,
// compared case-insensitively.
func (f Folder) HasAttribute(attr string) bool {
	return slices.ContainsFunc(f.Attributes, func(a string) bool {
		return strings.EqualFold(a, attr)
	})
}

// Selectable reports whether the folder can be selected.
func (f Folder) Selectable() bool {
	return !f.HasAttribute(`\Noselect`) && !f.HasAttribute(`\NonExistent`)
}

// parseListLine parses an untagged LIST line, stripping the attribute list
// and hierarchy delimiter to leave the raw mailbox name.
func parseListLine(line []byte) (Folder, bool) {
	line = dropNl(line)
	rest, ok := bytes.CutPrefix(line, []byte("* LIST "))
	if !ok {
		return Folder{}, false
	}

	var f Folder
	if len(rest) > 0 && rest[0] == '(' {
		end := bytes.IndexByte(rest, ')')
		if end == -1 {
			return Folder{}, false
		}
		f.Attributes = strings.Fields(string(rest[1:end]))
		rest = bytes.TrimLeft(rest[end+1:], " ")
	}

	// delimiter: a quoted single character or NIL
	if len(rest) > 0 && rest[0] == '"' {
		i := 1
		for i < len(rest) && rest[i] != '"' {
			if rest[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(rest) {
			return Folder{}, false
		}
		f.Delimiter = RemoveSlashes.Replace(string(rest[1:i]))
		rest = rest[i+1:]
	} else if d, r, ok := bytes.Cut(rest, []byte(" ")); ok {
		if !bytes.EqualFold(d, []byte("NIL")) {
			f.Delimiter = string(d)
		}
		rest = r
	} else {
		return Folder{}, false
	}
	rest = bytes.TrimLeft(rest, " ")

	switch {
	case len(rest) == 0:
		return Folder{}, false
	case bytes.IndexByte(rest, '\n') != -1:
		// literal: "{n}\r\n" followed by the name
		f.Name = string(rest[bytes.IndexByte(rest, '\n')+1:])
	case rest[0] == '"' && len(rest) >= 2 && rest[len(rest)-1] == '"':
		f.Name = RemoveSlashes.Replace(string(rest[1 : len(rest)-1]))
	default:
		f.Name = string(rest)
	}
	return f, true
}

// ListFolders lists every folder visible to the session.
func (d *Dialer) ListFolders() (folders []Folder, err error) {
	folders = make([]Folder, 0)
	_, err = d.Exec(`LIST "" "*"`, false, RetryCount, func(line []byte) error {
		if f, ok := parseListLine(line); ok {
			folders = append(folders, f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrProtocolOperation, err)
	}
	return folders, nil
}

// GetFolders retrieves the raw wire names of the available folders
func (d *Dialer) GetFolders() ([]string, error) {
	folders, err := d.ListFolders()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(folders))
	for i, f := range folders {
		names[i] = f.Name
	}
	return names, nil
}

func (d *Dialer) openFolder(verb string, folder string) error {
	r, err := d.Exec(verb+" "+quote(folder), true, RetryCount, nil)
	if err != nil {
		// a failed SELECT leaves no folder selected
		d.Folder = ""
		return fmt.Errorf("%w: %s %q: %w", ErrFolderSelect, strings.ToLower(verb), folder, err)
	}
	d.Exists = 0
	if m := regexExists.FindStringSubmatch(r); m != nil {
		d.Exists, _ = strconv.Atoi(m[1])
	}
	d.Folder = folder
	debugLog(d.ConnNum, d.Folder, "folder opened", "verb", verb, "exists", d.Exists)
	return nil
}

// ExamineFolder selects a folder in read-only mode. folder is the wire name.
func (d *Dialer) ExamineFolder(folder string) error {
	if err := d.openFolder("EXAMINE", folder); err != nil {
		return err
	}
	d.ReadOnly = true
	return nil
}

// SelectFolder selects a folder in read-write mode. folder is the wire name.
func (d *Dialer) SelectFolder(folder string) error {
	if err := d.openFolder("SELECT", folder); err != nil {
		return err
	}
	d.ReadOnly = false
	return nil
}

// CloseFolder leaves the selected folder. Nothing is expunged because this
// client never sets \Deleted.
func (d *Dialer) CloseFolder() error {
	if d.Folder == "" {
		return nil
	}
	if _, err := d.Exec("CLOSE", false, RetryCount, nil); err != nil {
		return fmt.Errorf("%w: close %q: %w", ErrProtocolOperation, d.Folder, err)
	}
	d.Folder = ""
	d.ReadOnly = false
	d.Exists = 0
	return nil
}

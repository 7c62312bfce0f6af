package imap

import (
	"testing"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"INBOX", `"INBOX"`},
		{"Sent Items", `"Sent Items"`},
		{`say "hi"`, `"say \"hi\""`},
		{`C:\mail`, `"C:\\mail"`},
		{"&ZeVnLIqe-", `"&ZeVnLIqe-"`},
		{"", `""`},
	}
	for _, test := range tests {
		if got := quote(test.input); got != test.expected {
			t.Errorf("quote(%q) = %s, want %s", test.input, got, test.expected)
		}
		if back := RemoveSlashes.Replace(test.expected[1 : len(test.expected)-1]); back != test.input {
			t.Errorf("unquoting %s gave %q", test.expected, back)
		}
	}
}

func TestSeqSet(t *testing.T) {
	tests := []struct {
		input    []int
		expected string
	}{
		{nil, ""},
		{[]int{5}, "5"},
		{[]int{1, 2, 3}, "1:3"},
		{[]int{7, 1, 2, 3}, "1:3,7"},
		{[]int{4, 4, 5, 9, 10, 12}, "4:5,9:10,12"},
		{[]int{10, 8, 6}, "6,8,10"},
	}
	for _, test := range tests {
		if got := SeqSet(test.input); got != test.expected {
			t.Errorf("SeqSet(%v) = %q, want %q", test.input, got, test.expected)
		}
	}
}

func TestSeqSetDoesNotReorderInput(t *testing.T) {
	in := []int{3, 1, 2}
	_ = SeqSet(in)
	if in[0] != 3 || in[1] != 1 || in[2] != 2 {
		t.Errorf("input modified: %v", in)
	}
}

func TestDropNl(t *testing.T) {
	for in, want := range map[string]string{
		"a\r\n": "a",
		"a\n":   "a",
		"a":     "a",
		"\r\n":  "",
		"":      "",
	} {
		if got := string(dropNl([]byte(in))); got != want {
			t.Errorf("dropNl(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFlagSearchKey(t *testing.T) {
	tests := map[string]string{
		`\Flagged`:      "FLAGGED",
		`\seen`:         "SEEN",
		`\Answered`:     "ANSWERED",
		`\Deleted`:      "DELETED",
		`\Draft`:        "DRAFT",
		"$label5":       "KEYWORD $label5",
		"$MailFlagBit1": "KEYWORD $MailFlagBit1",
		"NonJunk":       "KEYWORD NonJunk",
	}
	for flag, want := range tests {
		if got := FlagSearchKey(flag); got != want {
			t.Errorf("FlagSearchKey(%q) = %q, want %q", flag, got, want)
		}
	}
}

func TestValidFlag(t *testing.T) {
	valid := []string{"$label5", "$MailFlagBit1", `\Flagged`, `\seen`, `\Draft`, "Junk", "$Forwarded"}
	invalid := []string{"", `\`, `\Junk`, `\Recent`, `\*`, "a b", "(x", "x)", `"q"`, "a*", "a%", "a{1}", "ab]", `a\b`, "tab\t", "日本"}
	for _, f := range valid {
		if !ValidFlag(f) {
			t.Errorf("ValidFlag(%q) = false, want true", f)
		}
	}
	for _, f := range invalid {
		if ValidFlag(f) {
			t.Errorf("ValidFlag(%q) = true, want false", f)
		}
	}
}

func TestStoreOp(t *testing.T) {
	if StoreAdd.String() != "add" || StoreAdd.item() != "+FLAGS.SILENT" {
		t.Errorf("StoreAdd = %s %s", StoreAdd, StoreAdd.item())
	}
	if StoreRemove.String() != "remove" || StoreRemove.item() != "-FLAGS.SILENT" {
		t.Errorf("StoreRemove = %s %s", StoreRemove, StoreRemove.item())
	}
}

func TestParseTLSMode(t *testing.T) {
	tests := []struct {
		input string
		mode  TLSMode
		port  int
	}{
		{"no", TLSNone, 143},
		{"OFF", TLSNone, 143},
		{"start", TLSStart, 143},
		{"starttls", TLSStart, 143},
		{"yes", TLSImplicit, 993},
		{" tls ", TLSImplicit, 993},
	}
	for _, test := range tests {
		mode, err := ParseTLSMode(test.input)
		if err != nil {
			t.Errorf("ParseTLSMode(%q) error: %v", test.input, err)
			continue
		}
		if mode != test.mode || mode.DefaultPort() != test.port {
			t.Errorf("ParseTLSMode(%q) = %v port %d, want %v port %d", test.input, mode, mode.DefaultPort(), test.mode, test.port)
		}
	}
	if _, err := ParseTLSMode("maybe"); err == nil {
		t.Error("ParseTLSMode(maybe) should fail")
	}
	if got := TLSStart.String(); got != "start" {
		t.Errorf("TLSStart.String() = %q", got)
	}
}

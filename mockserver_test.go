package imap

import (
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockMessage struct {
	flags  map[string]bool // lower-cased
	header string
}

// mockIMAPServer speaks just enough IMAP4rev1 for the flag sync client:
// LOGIN, AUTHENTICATE, STARTTLS, LIST, SELECT, EXAMINE, SEARCH, STORE,
// FETCH of headers, CLOSE and LOGOUT.
type mockIMAPServer struct {
	listener  net.Listener
	tlsConfig *tls.Config
	mode      TLSMode

	mu           sync.Mutex
	validUser    string
	validPass    string
	failAuth     bool
	greeting     string
	authAttempts int
	folders      map[string][]*mockMessage
	list         []string
	failSearch   map[string]bool
	commands     []string
	tags         []string
	loginOverTLS bool
}

func newMockIMAPServer(t *testing.T, mode TLSMode) *mockIMAPServer {
	t.Helper()
	cert, err := generateSelfSignedCertificate()
	if err != nil {
		t.Fatalf("failed to generate certificate: %v", err)
	}
	s := &mockIMAPServer{
		tlsConfig:  &tls.Config{Certificates: []tls.Certificate{cert}},
		mode:       mode,
		validUser:  "testuser",
		validPass:  "testpass",
		greeting:   "* OK IMAP4rev1 Mock Server Ready",
		folders:    make(map[string][]*mockMessage),
		failSearch: make(map[string]bool),
	}

	if mode == TLSImplicit {
		s.listener, err = tls.Listen("tcp", "127.0.0.1:0", s.tlsConfig)
	} else {
		s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	}
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = s.listener.Close() })
	go s.serve()
	return s
}

// addFolder adds a folder with one message per flag list; the LIST entry
// carries attrs.
func (s *mockIMAPServer) addFolder(wire, attrs string, messages ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []*mockMessage
	for i, flags := range messages {
		m := &mockMessage{
			flags:  make(map[string]bool),
			header: fmt.Sprintf("From: Sender %d <s%d@example.com>\r\nSubject: message %d\r\nDate: Mon, 0%d Jan 2024 10:00:00 +0000\r\n\r\n", i+1, i+1, i+1, i+1),
		}
		for _, f := range flags {
			m.flags[strings.ToLower(f)] = true
		}
		msgs = append(msgs, m)
	}
	s.folders[wire] = msgs
	s.list = append(s.list, fmt.Sprintf(`* LIST (%s) "/" %s`, attrs, quote(wire)))
}

func (s *mockIMAPServer) host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

func (s *mockIMAPServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *mockIMAPServer) hasFlag(wire string, seq int, flag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folders[wire][seq-1].flags[strings.ToLower(flag)]
}

func (s *mockIMAPServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *mockIMAPServer) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authAttempts
}

func (s *mockIMAPServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *mockIMAPServer) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	secure := s.mode == TLSImplicit

	s.mu.Lock()
	greeting := s.greeting
	s.mu.Unlock()
	fmt.Fprintf(writer, "%s\r\n", greeting)
	_ = writer.Flush()
	if strings.HasPrefix(greeting, "* BYE") {
		return
	}

	var selected string
	var readOnly bool
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		tag, command, _ := strings.Cut(strings.TrimRight(line, "\r\n"), " ")
		verb, args, _ := strings.Cut(command, " ")
		verb = strings.ToUpper(verb)
		reply := func(format string, a ...any) {
			fmt.Fprintf(writer, format+"\r\n", a...)
		}

		s.mu.Lock()
		s.commands = append(s.commands, verb)
		s.tags = append(s.tags, tag)

		switch verb {
		case "STARTTLS":
			reply("%s OK Begin TLS negotiation now", tag)
			_ = writer.Flush()
			s.mu.Unlock()
			tlsConn := tls.Server(conn, s.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn, secure = tlsConn, true
			reader = bufio.NewReader(conn)
			writer = bufio.NewWriter(conn)
			continue

		case "LOGIN":
			s.authAttempts++
			s.loginOverTLS = secure
			parts := strings.Fields(args)
			if !s.failAuth && len(parts) == 2 &&
				strings.Trim(parts[0], `"`) == s.validUser && strings.Trim(parts[1], `"`) == s.validPass {
				reply("%s OK LOGIN completed", tag)
			} else {
				reply("%s NO [AUTHENTICATIONFAILED] Authentication failed", tag)
			}

		case "AUTHENTICATE":
			s.authAttempts++
			if s.failAuth {
				reply("%s NO AUTHENTICATE failed", tag)
			} else {
				reply("%s OK AUTHENTICATE completed", tag)
			}

		case "LIST":
			for _, l := range s.list {
				reply("%s", l)
			}
			reply("%s OK LIST completed", tag)

		case "SELECT", "EXAMINE":
			name := RemoveSlashes.Replace(strings.Trim(args, `"`))
			msgs, ok := s.folders[name]
			if !ok {
				selected = ""
				reply("%s NO [NONEXISTENT] Unknown Mailbox: %s", tag, name)
				break
			}
			selected, readOnly = name, verb == "EXAMINE"
			reply(`* FLAGS (\Answered \Flagged \Deleted \Seen \Draft)`)
			reply("* %d EXISTS", len(msgs))
			reply("* 0 RECENT")
			if readOnly {
				reply("%s OK [READ-ONLY] EXAMINE completed", tag)
			} else {
				reply("%s OK [READ-WRITE] SELECT completed", tag)
			}

		case "SEARCH":
			if selected == "" {
				reply("%s BAD No mailbox selected", tag)
				break
			}
			if s.failSearch[args] {
				reply("%s NO Search failed", tag)
				break
			}
			flag, ok := strings.CutPrefix(args, "KEYWORD ")
			if !ok {
				flag = `\` + args
			}
			var hits []string
			for i, m := range s.folders[selected] {
				if m.flags[strings.ToLower(flag)] {
					hits = append(hits, strconv.Itoa(i+1))
				}
			}
			reply("* SEARCH %s", strings.Join(hits, " "))
			reply("%s OK SEARCH completed", tag)

		case "STORE":
			if readOnly {
				reply("%s NO Mailbox is read-only", tag)
				break
			}
			set, rest, _ := strings.Cut(args, " ")
			item, list, _ := strings.Cut(rest, " ")
			flags := strings.Fields(strings.Trim(list, "()"))
			for _, seq := range expandSeqSet(set) {
				m := s.folders[selected][seq-1]
				for _, f := range flags {
					if strings.HasPrefix(item, "+") {
						m.flags[strings.ToLower(f)] = true
					} else {
						delete(m.flags, strings.ToLower(f))
					}
				}
			}
			reply("%s OK STORE completed", tag)

		case "FETCH":
			set, _, _ := strings.Cut(args, " ")
			for _, seq := range expandSeqSet(set) {
				h := s.folders[selected][seq-1].header
				reply("* %d FETCH (BODY[HEADER] {%d}\r\n%s)", seq, len(h), h)
			}
			reply("%s OK FETCH completed", tag)

		case "CLOSE":
			selected, readOnly = "", false
			reply("%s OK CLOSE completed", tag)

		case "LOGOUT":
			reply("* BYE IMAP4rev1 Server logging out")
			reply("%s OK LOGOUT completed", tag)
			_ = writer.Flush()
			s.mu.Unlock()
			return

		default:
			reply("%s BAD Unknown command %s", tag, verb)
		}
		s.mu.Unlock()
		_ = writer.Flush()
	}
}

func expandSeqSet(set string) []int {
	var seqs []int
	for _, r := range strings.Split(set, ",") {
		lo, hi, ok := strings.Cut(r, ":")
		if !ok {
			hi = lo
		}
		from, _ := strconv.Atoi(lo)
		to, _ := strconv.Atoi(hi)
		for n := from; n <= to; n++ {
			seqs = append(seqs, n)
		}
	}
	return seqs
}

// generateSelfSignedCertificate generates a self-signed certificate for testing
func generateSelfSignedCertificate() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Flag Sync Test"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	return tls.X509KeyPair(certPEM, keyPEM)
}

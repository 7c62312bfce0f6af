package imap

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"golang.org/x/net/proxy"
)

var (
	nextConnNum      = 0
	nextConnNumMutex = sync.Mutex{}
)

// TLSMode selects how the connection is secured.
type TLSMode int

const (
	// TLSNone talks plain text for the whole session.
	TLSNone TLSMode = iota
	// TLSStart connects in plain text and upgrades with STARTTLS before
	// authenticating.
	TLSStart
	// TLSImplicit negotiates TLS immediately (IMAPS, usually port 993).
	TLSImplicit
)

// ParseTLSMode accepts "no", "start" or "yes".
func ParseTLSMode(s string) (TLSMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "no", "none", "off":
		return TLSNone, nil
	case "start", "starttls":
		return TLSStart, nil
	case "yes", "tls", "on":
		return TLSImplicit, nil
	}
	return TLSNone, fmt.Errorf("unknown TLS mode %q (want no, start or yes)", s)
}

func (m TLSMode) String() string {
	switch m {
	case TLSNone:
		return "no"
	case TLSStart:
		return "start"
	case TLSImplicit:
		return "yes"
	}
	return "TLSMode(" + strconv.Itoa(int(m)) + ")"
}

// DefaultPort returns the conventional port for the mode.
func (m TLSMode) DefaultPort() int {
	if m == TLSImplicit {
		return 993
	}
	return 143
}

// Dialer represents an IMAP connection. It is not safe for concurrent use;
// one command is outstanding at a time.
type Dialer struct {
	conn      net.Conn
	reader    *bufio.Reader
	Folder    string
	ReadOnly  bool
	Exists    int
	Username  string
	Password  string
	Host      string
	Port      int
	TLSMode   TLSMode
	Connected bool
	ConnNum   int
	// useXOAUTH2 indicates whether XOAUTH2 authentication should be used
	// on reconnection instead of LOGIN.
	useXOAUTH2 bool
}

func takeConnNum() int {
	nextConnNumMutex.Lock()
	defer nextConnNumMutex.Unlock()
	n := nextConnNum
	nextConnNum++
	return n
}

func tlsConfig(host string) *tls.Config {
	return &tls.Config{ServerName: host, InsecureSkipVerify: TLSSkipVerify}
}

// dialHost opens the transport to the IMAP server, going through the proxy
// named by ALL_PROXY when one is configured.
func dialHost(host string, port int, mode TLSMode) (net.Conn, error) {
	direct := &net.Dialer{Timeout: DialTimeout}
	conn, err := proxy.FromEnvironmentUsing(direct).Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	if mode != TLSImplicit {
		return conn, nil
	}
	tlsConn := tls.Client(conn, tlsConfig(host))
	if err := tlsConn.Handshake(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

// readGreeting consumes the untagged server greeting.
func (d *Dialer) readGreeting() error {
	line, err := d.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("reading greeting: %w", err)
	}
	line = dropNl(line)
	debugLog(d.ConnNum, "", "server greeting", "greeting", string(line))
	switch {
	case bytes.HasPrefix(line, []byte("* OK")), bytes.HasPrefix(line, []byte("* PREAUTH")):
		return nil
	}
	return fmt.Errorf("unexpected greeting: %q", line)
}

// startTLS upgrades a plain connection in place.
func (d *Dialer) startTLS() error {
	if _, err := d.Exec("STARTTLS", false, 0, nil); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	tlsConn := tls.Client(d.conn, tlsConfig(d.Host))
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("starttls handshake: %w", err)
	}
	d.conn = tlsConn
	d.reader = bufio.NewReader(tlsConn)
	return nil
}

// open dials, reads the greeting and negotiates STARTTLS when asked to.
func (d *Dialer) open() error {
	conn, err := dialHost(d.Host, d.Port, d.TLSMode)
	if err != nil {
		return err
	}
	d.conn = conn
	d.reader = bufio.NewReader(conn)
	d.Connected = true

	if err := d.readGreeting(); err != nil {
		_ = d.Close()
		return err
	}
	if d.TLSMode == TLSStart {
		if err := d.startTLS(); err != nil {
			_ = d.Close()
			return err
		}
	}
	return nil
}

// Dial connects to the server without authenticating. Failures wrap
// ErrConnection.
func Dial(host string, port int, mode TLSMode) (d *Dialer, err error) {
	d = &Dialer{
		Host:    host,
		Port:    port,
		TLSMode: mode,
		ConnNum: takeConnNum(),
	}

	err = retry.Retry(func() error {
		debugLog(d.ConnNum, "", "establishing connection", "host", host, "port", port, "tls", mode)
		if err := d.open(); err != nil {
			debugLog(d.ConnNum, "", "failed to connect", "error", err)
			return err
		}
		return nil
	}, RetryCount, func(err error) error {
		warnLog(d.ConnNum, "", "failed to connect, retrying shortly", "error", err)
		return nil
	}, func() error {
		debugLog(d.ConnNum, "", "retrying connection now")
		return nil
	})
	if err != nil {
		errorLog(d.ConnNum, "", "failed to establish connection", "host", host, "port", port, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, net.JoinHostPort(host, strconv.Itoa(port)), err)
	}

	return d, nil
}

// NewWithOAuth2 creates a new implicit-TLS IMAP connection using OAuth2
// authentication
func NewWithOAuth2(username string, accessToken string, host string, port int) (*Dialer, error) {
	d, err := Dial(host, port, TLSImplicit)
	if err != nil {
		return nil, err
	}
	// Authenticate after connection is established - no retry for auth failures
	if err := d.Authenticate(username, accessToken); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// New creates a new implicit-TLS IMAP connection using username/password
// authentication
func New(username string, password string, host string, port int) (*Dialer, error) {
	d, err := Dial(host, port, TLSImplicit)
	if err != nil {
		return nil, err
	}
	if err := d.Login(username, password); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the IMAP connection
func (d *Dialer) Close() (err error) {
	if d.Connected {
		debugLog(d.ConnNum, d.Folder, "closing connection")
		err = d.conn.Close()
		d.Connected = false
		if err != nil {
			return fmt.Errorf("imap close: %w", err)
		}
	}
	return nil
}

// Logout ends the session politely and closes the connection.
func (d *Dialer) Logout() error {
	if !d.Connected {
		return nil
	}
	_, err := d.Exec("LOGOUT", false, 0, nil)
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}

// Reconnect closes and reopens the IMAP connection with re-authentication
func (d *Dialer) Reconnect() (err error) {
	_ = d.Close()
	debugLog(d.ConnNum, d.Folder, "reopening connection")

	if err := d.open(); err != nil {
		return fmt.Errorf("imap reconnect dial: %w", err)
	}

	if d.useXOAUTH2 {
		if err := d.Authenticate(d.Username, d.Password); err != nil {
			_ = d.Close()
			return fmt.Errorf("imap reconnect auth xoauth2: %w", err)
		}
	} else {
		if err := d.Login(d.Username, d.Password); err != nil {
			_ = d.Close()
			return fmt.Errorf("imap reconnect login: %w", err)
		}
	}

	// Restore selected folder state if any
	if d.Folder != "" {
		if d.ReadOnly {
			if err := d.ExamineFolder(d.Folder); err != nil {
				return fmt.Errorf("imap reconnect examine: %w", err)
			}
		} else {
			if err := d.SelectFolder(d.Folder); err != nil {
				return fmt.Errorf("imap reconnect select: %w", err)
			}
		}
	}

	return nil
}

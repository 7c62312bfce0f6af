// Package config assembles the command line, environment and optional
// config file into a validated Config.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	imap "github.com/BrianLeishman/imap-flagsync"
	"github.com/BrianLeishman/imap-flagsync/flagsync"
)

// EnvPrefix prefixes every environment variable, e.g. FLAGSYNC_HOST.
const EnvPrefix = "FLAGSYNC"

// DefaultPair is reconciled when no pair is configured.
const DefaultPair = "$label5:$MailFlagBit1"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the validated configuration of one run.
type Config struct {
	Host     string
	Port     int
	TLS      imap.TLSMode
	Insecure bool
	User     string

	Folders []flagsync.Mailbox
	All     bool
	Pairs   []flagsync.FlagPair
	Mode    flagsync.Mode

	DryRun       bool
	Verbose      int
	OAuth2       bool
	SavePassword bool

	DialTimeout    time.Duration
	CommandTimeout time.Duration

	// File is the config file that was read, empty if none.
	File string
}

// Options returns the per-run options for the flagsync engine.
func (c *Config) Options() flagsync.Options {
	return flagsync.Options{DryRun: c.DryRun, Verbosity: c.Verbose}
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultPath returns ~/.config/imap-flagsync/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "imap-flagsync", "config.yaml")
}

// flag name -> config key, for flags resolved through viper.
var boundFlags = map[string]string{
	"host":            "host",
	"port":            "port",
	"tls":             "tls",
	"insecure":        "insecure",
	"user":            "user",
	"all":             "all",
	"mode":            "mode",
	"dry-run":         "dry_run",
	"verbose":         "verbose",
	"oauth2":          "oauth2",
	"dial-timeout":    "dial_timeout",
	"command-timeout": "command_timeout",
}

func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: %s [flags] [host]\n\nMirror pairs of IMAP flags across folders.\n\nFlags:\n", name)
		fs.PrintDefaults()
	}

	fs.String("config", "", "config file (default "+DefaultPath()+" if present)")
	fs.String("host", "", "IMAP server host")
	fs.Int("port", 0, "IMAP server port (default 993 with --tls=yes, 143 otherwise)")
	fs.String("tls", "yes", "transport security: no, start or yes")
	fs.Bool("insecure", false, "skip TLS certificate verification")
	fs.String("user", "", "login user name")
	fs.StringArray("folder", nil, "folder to process, repeatable (default INBOX; one name per line in FLAGSYNC_FOLDERS)")
	fs.Bool("all", false, "process every selectable folder on the server")
	fs.StringArray("pair", nil, "flag pair flag1:flag2, repeatable (default "+DefaultPair+")")
	fs.String("mode", "sync", "reconciliation mode: sync, copy or move")
	fs.BoolP("dry-run", "n", false, "search and report without storing anything")
	fs.CountP("verbose", "v", "increase verbosity: -v counts, -vv message listing, -vvv protocol trace")
	fs.Bool("oauth2", false, "authenticate with XOAUTH2, the secret is an access token")
	fs.Bool("save-password", false, "store the prompted secret in the system keyring")
	fs.Duration("dial-timeout", 30*time.Second, "connection timeout")
	fs.Duration("command-timeout", 60*time.Second, "per-command timeout")
	return fs
}

// Load parses args (without the program name). Flags win over environment
// variables, which win over the config file. A -h/--help request returns
// pflag.ErrHelp.
func Load(args []string, out io.Writer) (*Config, error) {
	fs := newFlagSet("imap-flagsync", out)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault("folders", []string{"INBOX"})
	v.SetDefault("pairs", []string{DefaultPair})
	for name, key := range boundFlags {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	file, err := readConfigFile(v, fs)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Host:           v.GetString("host"),
		Port:           v.GetInt("port"),
		Insecure:       v.GetBool("insecure"),
		User:           v.GetString("user"),
		All:            v.GetBool("all"),
		DryRun:         v.GetBool("dry_run"),
		Verbose:        v.GetInt("verbose"),
		OAuth2:         v.GetBool("oauth2"),
		DialTimeout:    v.GetDuration("dial_timeout"),
		CommandTimeout: v.GetDuration("command_timeout"),
		File:           file,
	}
	cfg.SavePassword, _ = fs.GetBool("save-password")

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.Host = fs.Arg(0)
	default:
		return nil, fmt.Errorf("%w: expected at most one host argument, got %q", ErrInvalid, fs.Args())
	}

	if cfg.TLS, err = imap.ParseTLSMode(v.GetString("tls")); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if cfg.Mode, err = flagsync.ParseMode(v.GetString("mode")); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	// Repeatable flags are read from the flag set directly: viper splits
	// flag values on commas, which are legal in folder names and pairs.
	for _, name := range listValues(v, fs, "folder", "folders", splitLines) {
		cfg.Folders = append(cfg.Folders, flagsync.ParseMailbox(name))
	}
	seen := make(map[string]bool)
	for _, s := range listValues(v, fs, "pair", "pairs", strings.Fields) {
		pair, err := flagsync.ParseFlagPair(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if key := strings.ToLower(pair.String()); !seen[key] {
			seen[key] = true
			cfg.Pairs = append(cfg.Pairs, pair)
		}
	}

	if cfg.Port == 0 {
		cfg.Port = cfg.TLS.DefaultPort()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) (string, error) {
	path, _ := fs.GetString("config")
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if _, err := os.Stat(path); err != nil {
			return "", nil
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("%w: reading config %s: %w", ErrInvalid, path, err)
	}
	return path, nil
}

// listValues reads a list setting. A list given as a single string, from the environment or a scalar in the
// config file, is cut with split.
func listValues(v *viper.Viper, fs *pflag.FlagSet, flag, key string, split func(string) []string) []string {
	if fs.Changed(flag) {
		values, _ := fs.GetStringArray(flag)
		return values
	}
	if s, ok := v.Get(key).(string); ok {
		return split(s)
	}
	return v.GetStringSlice(key)
}

// splitLines separates folder names given in one string. Names may contain
// spaces and commas, so only line breaks separate them.
func splitLines(s string) []string {
	var names []string
	for line := range strings.Lines(s) {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if strings.TrimSpace(c.User) == "" {
		errs = append(errs, errors.New("user is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !c.All && len(c.Folders) == 0 {
		errs = append(errs, errors.New("no folder given"))
	}
	if len(c.Pairs) == 0 {
		errs = append(errs, errors.New("no flag pair given"))
	}
	if c.Verbose < 0 {
		errs = append(errs, fmt.Errorf("verbosity %d is negative", c.Verbose))
	}
	if c.DialTimeout <= 0 || c.CommandTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Command imap-flagsync mirrors pairs of IMAP flags, such as a client's
// colour label keyword and another client's flag bit, across folders.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	imap "github.com/BrianLeishman/imap-flagsync"
	"github.com/BrianLeishman/imap-flagsync/flagsync"
	"github.com/BrianLeishman/imap-flagsync/internal/config"
	"github.com/BrianLeishman/imap-flagsync/internal/credential"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, credential.NewResolver()))
}

// logLevel maps -v counts onto slog levels: warnings only by default, info
// from -v, debug and protocol tracing from -vvv.
func logLevel(verbose int) slog.Level {
	switch {
	case verbose >= 3:
		return slog.LevelDebug
	case verbose >= 1:
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

func run(args []string, stdout, stderr io.Writer, creds *credential.Resolver) int {
	cfg, err := config.Load(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "imap-flagsync: %v\n", err)
		return exitConfig
	}

	log := imap.NewTextLogger(stderr, logLevel(cfg.Verbose))
	imap.SetLogger(log)
	imap.Verbose = cfg.Verbose >= 3
	imap.DialTimeout = cfg.DialTimeout
	imap.CommandTimeout = cfg.CommandTimeout
	imap.TLSSkipVerify = cfg.Insecure
	if cfg.File != "" {
		log.Info("loaded config file", "path", cfg.File)
	}

	secret, source, err := creds.Lookup(cfg.User, cfg.Host)
	if err != nil {
		log.Error("no credentials", "user", cfg.User, "host", cfg.Host, "error", err)
		return exitFailed
	}
	log.Info("using credentials", "user", cfg.User, "source", source)

	d, err := connect(cfg, secret)
	if err != nil {
		log.Error("cannot start session", "addr", cfg.Addr(), "error", err)
		return exitFailed
	}
	defer func() {
		if err := d.Logout(); err != nil {
			log.Warn("logout failed", "error", err)
		}
	}()

	if cfg.SavePassword && source == credential.SourcePrompt {
		if err := creds.Save(cfg.User, cfg.Host, secret); err != nil {
			log.Warn("could not save password", "error", err)
		}
	}

	engine := flagsync.NewEngine(cfg.Options(), log)
	driver := flagsync.NewDriver(engine)

	var report *flagsync.Report
	if cfg.All {
		report, err = driver.RunAll(d, cfg.Pairs, cfg.Mode)
		if err != nil {
			log.Error("cannot list folders", "error", err)
			return exitFailed
		}
	} else {
		report = driver.Run(d, cfg.Folders, cfg.Pairs, cfg.Mode)
	}

	if err := flagsync.WriteReport(stdout, report, cfg.Options()); err != nil {
		log.Error("writing report", "error", err)
		return exitFailed
	}
	if report.Err() != nil {
		return exitFailed
	}
	return exitOK
}

func connect(cfg *config.Config, secret string) (*imap.Dialer, error) {
	d, err := imap.Dial(cfg.Host, cfg.Port, cfg.TLS)
	if err != nil {
		return nil, err
	}
	if cfg.OAuth2 {
		err = d.Authenticate(cfg.User, secret)
	} else {
		err = d.Login(cfg.User, secret)
	}
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

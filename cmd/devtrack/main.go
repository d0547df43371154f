package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/erazemk/devtrack/internal/config"
)

// levelRouter is a slog.Handler that routes records below ERROR to stdout
// and ERROR+ to stderr.
type levelRouter struct {
	level  slog.Level
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lr.level
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging at the given level. If logPath
// is non-empty, all records are also written to that file. Returns a
// cleanup function that closes the log file (if opened).
func setupLogger(logPath string, level slog.Level) (func(), error) {
	opts := &slog.HandlerOptions{Level: level}

	cleanup := func() {}

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		level:  level,
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

const usage = `Usage: devtrack <command> [flags]

Commands:
  serve     run the API server
  queue     manage the offline action queue (assign, return, list, flush)

Run "devtrack <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = cmdServe(os.Args[2:])
	case "queue":
		err = cmdQueue(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if err == flag.ErrHelp {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// configFlag registers -c/-config on fs.
func configFlag(fs *flag.FlagSet) *string {
	var path string
	fs.StringVar(&path, "config", "", "")
	fs.StringVar(&path, "c", "", "")
	return &path
}

// stringFlag registers a flag under a long and an optional short name.
func stringFlag(fs *flag.FlagSet, long, short string) *string {
	var v string
	fs.StringVar(&v, long, "", "")
	if short != "" {
		fs.StringVar(&v, short, "", "")
	}
	return &v
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(path string, overrides map[string]*string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	for dst, src := range overrides {
		if *src == "" {
			continue
		}
		switch dst {
		case "addr":
			cfg.Server.Addr = *src
		case "db":
			cfg.Database.Path = *src
		case "user":
			cfg.Admin.Username = *src
		case "log":
			cfg.Log.Path = *src
		case "level":
			cfg.Log.Level = strings.ToLower(*src)
		case "server":
			cfg.Client.ServerURL = *src
		case "queue":
			cfg.Client.QueuePath = *src
		case "username":
			cfg.Client.Username = *src
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

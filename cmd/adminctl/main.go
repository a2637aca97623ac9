// Command adminctl talks to the passport admin API, keeping its session in
// a local credential cache between runs.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/passport/pkg/adminsdk"
	"github.com/aussiebroadwan/passport/pkg/credstore"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

const usage = `usage: adminctl [flags] <command> [args]

commands:
  login <username>   log in; the password is read from ADMINCTL_PASSWORD or stdin,
                     a one-time code from ADMINCTL_OTP
  get <path>...      fetch one or more admin paths concurrently
  whoami             show the logged in admin
  logout             end the session

flags:
`

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "adminctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var f Flags
	fs := flag.NewFlagSet("adminctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&f.Profile, "profile", "", "YAML profile file")
	fs.StringVar(&f.BaseURL, "url", "", "admin API base URL")
	fs.StringVar(&f.Locale, "locale", "", "Accept-Language sent with requests")
	fs.StringVar(&f.Cache, "cache", "", "credential cache (.json file or .db SQLite)")
	fs.StringVar(&f.Timeout, "timeout", "", "per request timeout")
	fs.StringVar(&f.LogFile, "log-file", "", "write logs to a rotated file")
	fs.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}

	store, closeStore, err := openCache(cfg.Cache)
	if err != nil {
		return err
	}
	defer closeStore()

	logger := slogx.New(slogx.Config{Level: cfg.LogLevel, Format: "text", File: cfg.LogFile, Output: logOutput(cfg, stderr)})

	client, err := adminsdk.New(adminsdk.Options{
		BaseURL: cfg.BaseURL,
		Store:   store,
		Locale:  cfg.Locale,
		Timeout: cfg.Timeout,
		Logger:  logger,
		Notifier: adminsdk.NotifierFunc(func(m adminsdk.Message) {
			fmt.Fprintln(stderr, m.Text)
		}),
		LogoutFunc: func(context.Context) {
			fmt.Fprintln(stderr, "run `adminctl login` to start a new session")
		},
	})
	if err != nil {
		return err
	}
	defer client.Close()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "login":
		return login(ctx, client, rest, stdin, stdout)
	case "get":
		return get(ctx, client, rest, stdout)
	case "whoami":
		return whoami(ctx, client, stdout)
	case "logout":
		return client.Logout(ctx)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// openCache picks the SQLite driver for .db paths and the JSON file otherwise.
func openCache(path string) (credstore.Store, func(), error) {
	if filepath.Ext(path) == ".db" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, err
		}
		s, err := credstore.NewSQLite("file:" + path + "?_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return credstore.NewFile(path), func() {}, nil
}

func logOutput(cfg Config, stderr io.Writer) io.Writer {
	if cfg.LogFile != "" {
		return nil
	}
	return stderr
}

func login(ctx context.Context, c *adminsdk.Client, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("login takes exactly one username")
	}

	password := os.Getenv("ADMINCTL_PASSWORD")
	if password == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if err := c.LoginWithCode(ctx, args[0], password, os.Getenv("ADMINCTL_OTP")); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "logged in as", args[0])
	return nil
}

// get fetches every path concurrently so an expired session exercises a
// single shared refresh, then prints results in argument order.
func get(ctx context.Context, c *adminsdk.Client, paths []string, stdout io.Writer) error {
	if len(paths) == 0 {
		return errors.New("get needs at least one path")
	}

	results := make([]json.RawMessage, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			resp, err := c.Get(gctx, path, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if resp.Envelope != nil {
				results[i] = resp.Envelope.Data
			} else {
				results[i] = resp.Body
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, path := range paths {
		if len(paths) > 1 {
			fmt.Fprintf(stdout, "# %s\n", path)
		}
		fmt.Fprintln(stdout, string(results[i]))
	}
	return nil
}

func whoami(ctx context.Context, c *adminsdk.Client, stdout io.Writer) error {
	p, err := c.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s (%s) scopes=%s\n", p.Username, p.ID, strings.Join(p.Scopes, ","))
	return nil
}

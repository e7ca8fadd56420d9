// callsyncctl is the operator tool for the call-state reconciliation service.
//
//	callsyncctl [--addr URL] [--token JWT] trigger [--async]
//	callsyncctl [--addr URL] [--token JWT] status
//	callsyncctl [--addr URL] [--token JWT] summary [--from RFC3339] [--to RFC3339]
//	callsyncctl mint-token --user ID [--role admin] [--ttl 15m]
//
// mint-token signs with JWT_SECRET, JWT_ISSUER and JWT_AUDIENCE from the environment.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"smarttv-backend/internal/auth"
	"smarttv-backend/internal/config"
	"smarttv-backend/internal/rbac"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	addr    string
	token   string
	timeout time.Duration

	async bool
	from  string
	to    string

	user string
	role string
	ttl  time.Duration
}

func run(args []string, stdout io.Writer) error {
	var opts options
	fs := pflag.NewFlagSet("callsyncctl", pflag.ContinueOnError)
	fs.StringVar(&opts.addr, "addr", envOr("CALLSYNC_ADDR", "http://localhost:8080"), "API base URL")
	fs.StringVar(&opts.token, "token", os.Getenv("CALLSYNC_TOKEN"), "bearer token (admin or sync_operator)")
	fs.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	fs.BoolVar(&opts.async, "async", false, "trigger: return immediately, poll with status")
	fs.StringVar(&opts.from, "from", "", "summary: range start (RFC3339)")
	fs.StringVar(&opts.to, "to", "", "summary: range end (RFC3339)")
	fs.StringVar(&opts.user, "user", "", "mint-token: user id")
	fs.StringVar(&opts.role, "role", rbac.RoleAdmin, "mint-token: role")
	fs.DurationVar(&opts.ttl, "ttl", 15*time.Minute, "mint-token: token lifetime")
	fs.SortFlags = false

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintf(os.Stderr, "usage: callsyncctl [flags] trigger|status|summary|mint-token\n%s", fs.FlagUsages())
		return errors.New("exactly one command required")
	}

	if rest[0] == "mint-token" {
		return mintToken(opts, stdout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	c := client{base: strings.TrimRight(opts.addr, "/"), token: opts.token, http: &http.Client{}}

	switch rest[0] {
	case "trigger":
		path := "/v1/admin/sync/trigger"
		if opts.async {
			path += "?async=true"
		}
		return c.do(ctx, http.MethodPost, path, stdout)
	case "status":
		return c.do(ctx, http.MethodGet, "/v1/admin/sync/status", stdout)
	case "summary":
		q := url.Values{}
		if opts.from != "" {
			q.Set("from", opts.from)
		}
		if opts.to != "" {
			q.Set("to", opts.to)
		}
		path := "/v1/admin/calls/summary"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		return c.do(ctx, http.MethodGet, path, stdout)
	default:
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func mintToken(opts options, stdout io.Writer) error {
	if opts.user == "" {
		return errors.New("--user is required")
	}
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      os.Getenv("JWT_ISSUER"),
		JWTAudience:    os.Getenv("JWT_AUDIENCE"),
		AccessTokenTTL: opts.ttl,
	})
	if err != nil {
		return err
	}
	tok, err := m.Issue(time.Now(), opts.user, opts.role)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, tok)
	return err
}

type client struct {
	base  string
	token string
	http  *http.Client
}

// do sends the request and pretty-prints the JSON body. Non-2xx is an error
// carrying the server's message.
func (c client) do(ctx context.Context, method, path string, stdout io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		_, err = stdout.Write(body)
		return err
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(stdout)
	return err
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

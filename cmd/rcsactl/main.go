// Command rcsactl is an operator CLI for the RCSA API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"rcsa.id/internal/auth"
	"rcsa.id/internal/risk"
	"rcsa.id/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "login":
		err = runLogin(os.Args[2:])
	case "risks":
		err = runRisks(os.Args[2:])
	case "score":
		err = runScore(os.Args[2:])
	case "hash-password":
		err = runHashPassword(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

type credentials struct {
	baseURL  string
	login    string
	password string
}

func (c *credentials) register(fs *flag.FlagSet) {
	fs.StringVar(&c.baseURL, "url", envOr("RCSA_URL", "http://localhost:8080"), "API base URL")
	fs.StringVar(&c.login, "user", os.Getenv("RCSA_USER"), "user id or email")
	fs.StringVar(&c.password, "password", os.Getenv("RCSA_PASSWORD"), "password (or RCSA_PASSWORD)")
}

func (c *credentials) open(ctx context.Context, opts ...session.Option) (*session.Client, *session.User, error) {
	if c.login == "" || c.password == "" {
		return nil, nil, errors.New("-user and -password are required")
	}
	client, err := session.New(c.baseURL, opts...)
	if err != nil {
		return nil, nil, err
	}
	u, err := client.Login(ctx, c.login, c.password)
	if err != nil {
		return nil, nil, err
	}
	return client, u, nil
}

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	var creds credentials
	creds.register(fs)
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, u, err := creds.open(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s, role %s #%d, unit %q)\n", u.UserID, u.Name, u.Role, u.RoleID, u.UnitName)
	fmt.Printf("expires: %s\n", client.ExpiresAt().Format(time.RFC3339))
	fmt.Println(client.Token())
	return nil
}

func runRisks(args []string) error {
	fs := flag.NewFlagSet("risks", flag.ExitOnError)
	var creds credentials
	creds.register(fs)
	status := fs.String("status", "", "filter by status")
	level := fs.String("level", "", "filter by level")
	watch := fs.Duration("watch", 0, "re-list at this interval until interrupted")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, _, err := creds.open(ctx, session.WithOnExpire(func(err error) {
		fmt.Fprintf(os.Stderr, "session expired: %v\n", err)
		stop()
	}))
	if err != nil {
		return err
	}
	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Logout(logoutCtx)
	}()

	q := url.Values{}
	if *status != "" {
		q.Set("status", *status)
	}
	if *level != "" {
		q.Set("level", *level)
	}
	path := "/api/risks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	if *watch <= 0 {
		return listRisks(ctx, client, path)
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	t := time.NewTicker(*watch)
	defer t.Stop()
	for {
		if err := listRisks(ctx, client, path); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func listRisks(ctx context.Context, client *session.Client, path string) error {
	var rows []risk.Risk
	if err := client.Do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUNIT\tCODE\tTITLE\tSTATUS\tINHERENT\tRESIDUAL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.UnitName, r.Code, r.Title, r.Status, formatScore(r.Inherent), formatScore(r.Residual))
	}
	return tw.Flush()
}

func formatScore(a risk.Assessment) string {
	if a.Besaran == nil {
		return string(a.Level)
	}
	return fmt.Sprintf("%d %s", *a.Besaran, a.Level)
}

func runScore(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: score <impact> <likelihood>")
	}
	factors := make([]*int, 2)
	for i, raw := range args {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%q is not an integer", raw)
		}
		factors[i] = &n
	}
	fmt.Println(formatScore(risk.Score(factors[0], factors[1])))
	return nil
}

func runHashPassword(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: hash-password <password>")
	}
	if len(args[0]) < auth.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <login|risks|score|hash-password> [flags]\n", os.Args[0])
	os.Exit(2)
}

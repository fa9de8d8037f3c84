package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newPreflightCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Sanity-check the deployment configuration before serving.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "✖", err)
				return err
			}
			p := preflightInput{
				Addr:           cfg.Addr,
				Driver:         cfg.DBDriver,
				DatabaseURL:    cfg.DatabaseURL,
				PublicKeys:     cfg.PublicAPIKeys,
				AdminKeys:      cfg.AdminAPIKeys,
				AllowedOrigins: cfg.AllowedOrigins,
				SlackWebhook:   cfg.SlackWebhook,
				NATSURL:        cfg.NATSURL,
			}
			if !preflight(p, cmd.OutOrStdout(), cmd.ErrOrStderr()) {
				return fmt.Errorf("preflight failed")
			}
			return nil
		},
	}
}

type preflightInput struct {
	Addr           string
	Driver         string
	DatabaseURL    string
	PublicKeys     []string
	AdminKeys      []string
	AllowedOrigins []string
	SlackWebhook   string
	NATSURL        string
}

// preflight prints one line per check and reports whether serving is safe.
func preflight(p preflightInput, stdout, stderr io.Writer) bool {
	passed := true
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		passed = false
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	if len(p.AdminKeys) == 0 {
		fail("ADMIN_API_KEYS is empty (write routes are open to anyone).")
	}
	if len(p.PublicKeys) == 0 {
		fail("PUBLIC_API_KEYS is empty (read routes are open to anyone).")
	}
	for name, keys := range map[string][]string{"ADMIN_API_KEYS": p.AdminKeys, "PUBLIC_API_KEYS": p.PublicKeys} {
		for _, k := range keys {
			if len(k) < 16 {
				warn(name + " has a key shorter than 16 characters.")
				break
			}
		}
	}

	if p.Addr == "" {
		warn("ADDR is empty; the default bind address will be used.")
	} else {
		ok("ADDR=" + p.Addr)
	}

	if p.DatabaseURL == "" && p.Driver == "memory" {
		warn("DATABASE_URL empty; sites and history are kept in memory and lost on restart.")
	} else {
		ok("storage driver " + p.Driver)
	}

	if len(p.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; any origin may call the API from a browser.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(p.AllowedOrigins, ","))
	}

	if p.SlackWebhook == "" {
		warn("SLACK_WEBHOOK_URL empty; outages will not be announced.")
	} else {
		ok("Slack alerts enabled")
	}
	if p.NATSURL != "" {
		ok("NATS events on " + p.NATSURL)
	}

	if passed {
		ok("preflight passed")
	}
	return passed
}

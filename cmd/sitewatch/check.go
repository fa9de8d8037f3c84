package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/probe"
)

var errSiteDown = errors.New("site is down")

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>",
		Short: "Probe a URL once and print the result. Exits non-zero when it is down.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			target, err := domain.NormalizeTarget(args[0])
			if err != nil {
				return err
			}
			return runCheck(cmd, probe.NewHTTPChecker(cfg.ProbeTimeout), target)
		},
	}
}

func runCheck(cmd *cobra.Command, checker probe.Checker, target string) error {
	out := cmd.OutOrStdout()
	res := checker.Check(cmd.Context(), target)

	code, latency := "n/a", "n/a"
	if res.HTTPCode != nil {
		code = fmt.Sprintf("%d", *res.HTTPCode)
	}
	if res.LatencyMS != nil {
		latency = fmt.Sprintf("%d ms", *res.LatencyMS)
	}
	state := "UP"
	if !res.Up() {
		state = "DOWN"
	}
	fmt.Fprintf(out, "%s %s http=%s latency=%s %s\n", state, target, code, latency, res.Message)

	if res.Up() {
		return nil
	}
	if res.Class == probe.ClassDNS {
		dns := probe.Diagnose(cmd.Context(), target)
		fmt.Fprintf(out, "dns: %s (domain=%s ns=%v)\n", dns.Class, dns.Domain, dns.Nameservers)
	}
	return errSiteDown
}

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type addOptions struct {
	api  string
	key  string
	name string
	url  string
}

func newAddCmd() *cobra.Command {
	o := &addOptions{}
	c := &cobra.Command{
		Use:   "add",
		Short: "Register a site with a running sitewatch API.",
		Long: `Register a site with a running sitewatch API.
Prompts for the URL on stdin when --url is not given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd)
		},
	}
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	c.Flags().StringVar(&o.api, "api", api, "Base URL of the API")
	c.Flags().StringVar(&o.key, "key", os.Getenv("SITEWATCH_API_KEY"), "Admin API key")
	c.Flags().StringVar(&o.name, "name", "", "Display name (defaults to the URL)")
	c.Flags().StringVar(&o.url, "url", "", "Site URL, e.g. https://example.com")
	return c
}

func (o *addOptions) run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	if strings.TrimSpace(o.url) == "" {
		fmt.Fprint(out, "Enter a site URL to monitor (e.g., https://example.com): ")
		raw, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		o.url = strings.TrimSpace(raw)
	}
	if o.name == "" {
		o.name = o.url
	}

	body, err := json.Marshal(map[string]string{"name": o.name, "url": o.url})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
		strings.TrimRight(o.api, "/")+"/api/sites", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.key != "" {
		req.Header.Set("X-API-Key", o.key)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusCreated {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("API returned %s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("API returned %s", resp.Status)
	}

	var site struct {
		ID  int64  `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(b, &site); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintf(out, "Added site %d: %s\n", site.ID, site.URL)
	return nil
}

// Package main provides a small CLI for exercising a running mailrelay API:
// single sends, bulk sends and health checks.
//
// Usage:
//
//	test-client send --to user@example.com --subject "Test" --text "Hello"
//	test-client bulk --to a@example.com --to b@example.com --subject "Hi" --text "Hello"
//	test-client health
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
)

type CLI struct {
	URL     string        `name:"url" help:"Base URL of the mailrelay API." env:"MAILRELAY_URL" default:"http://localhost:3000"`
	Timeout time.Duration `name:"timeout" help:"Request timeout." default:"60s"`

	Send   SendCmd   `cmd:"" help:"Send a single email."`
	Bulk   BulkCmd   `cmd:"" help:"Send the same email to several recipients."`
	Health HealthCmd `cmd:"" help:"Check service health."`
}

type SendCmd struct {
	To       string   `name:"to" help:"Recipient address." required:""`
	CC       []string `name:"cc" help:"Carbon copy address (repeatable)."`
	BCC      []string `name:"bcc" help:"Blind carbon copy address (repeatable)."`
	Subject  string   `name:"subject" help:"Subject line." required:""`
	Text     string   `name:"text" help:"Plain text body." required:""`
	HTML     string   `name:"html" help:"Pre-rendered HTML body."`
	Template string   `name:"template" help:"HTML layout when no HTML body is given." enum:"notification,transactional" default:"notification"`
	Attach   []string `name:"attach" help:"File to attach (repeatable)." type:"existingfile"`
}

type BulkCmd struct {
	To       []string `name:"to" help:"Recipient address (repeatable)." required:""`
	Subject  string   `name:"subject" help:"Subject line shared by every entry." required:""`
	Text     string   `name:"text" help:"Plain text body shared by every entry." required:""`
	Template string   `name:"template" help:"HTML layout." enum:"notification,transactional" default:"notification"`
}

type HealthCmd struct{}

type client struct {
	base string
	http *http.Client
}

type attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (c *SendCmd) Run(cl *client) error {
	body := map[string]any{
		"to":           c.To,
		"subject":      c.Subject,
		"text":         c.Text,
		"templateType": c.Template,
	}
	if len(c.CC) > 0 {
		body["cc"] = c.CC
	}
	if len(c.BCC) > 0 {
		body["bcc"] = c.BCC
	}
	if c.HTML != "" {
		body["html"] = c.HTML
	}
	if len(c.Attach) > 0 {
		atts := make([]attachment, 0, len(c.Attach))
		for _, path := range c.Attach {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read attachment: %w", err)
			}
			atts = append(atts, attachment{
				Filename: filepath.Base(path),
				Content:  base64.StdEncoding.EncodeToString(data),
				Encoding: "base64",
			})
		}
		body["attachments"] = atts
	}
	return cl.do(http.MethodPost, "/send-email", body)
}

func (c *BulkCmd) Run(cl *client) error {
	emails := make([]map[string]string, 0, len(c.To))
	for _, to := range c.To {
		emails = append(emails, map[string]string{"to": to})
	}
	return cl.do(http.MethodPost, "/send-bulk", map[string]any{
		"emails": emails,
		"template": map[string]string{
			"subject":      c.Subject,
			"text":         c.Text,
			"templateType": c.Template,
		},
	})
}

func (c *HealthCmd) Run(cl *client) error {
	return cl.do(http.MethodGet, "/health", nil)
}

func (c *client) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	fmt.Printf("%s %s -> %d (%v)\n", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	if limit := resp.Header.Get("RateLimit-Remaining"); limit != "" {
		fmt.Printf("rate limit remaining: %s (reset in %ss)\n", limit, resp.Header.Get("RateLimit-Reset"))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(strings.TrimSpace(string(raw)))
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("test-client"),
		kong.Description("Send test requests to a mailrelay API server."),
		kong.UsageOnError(),
	)

	cl := &client{
		base: strings.TrimRight(cli.URL, "/"),
		http: &http.Client{Timeout: cli.Timeout},
	}
	ctx.FatalIfErrorf(ctx.Run(cl))
}

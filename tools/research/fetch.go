// Package research provides the web_fetch research tool: fetch a page over
// HTTPS with SSRF protection, extract the readable content, convert it to
// markdown, and file it under the project's research area.
package research

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/c360studio/bookwright/llm"
	"github.com/c360studio/bookwright/workspace"
)

const (
	defaultTimeout = 30 * time.Second
	defaultMaxSize = 5 * 1024 * 1024 // 5MB
	userAgent      = "bookwright/1.0 (+research fetcher)"
)

// Pre-compiled CIDR networks for reserved ranges not covered by net.IP helpers.
var (
	cgnat    *net.IPNet // 100.64.0.0/10 - Carrier-grade NAT
	v6unique *net.IPNet // fc00::/7 - IPv6 unique local
	v6link   *net.IPNet // fe80::/10 - IPv6 link-local
)

func init() {
	var err error
	if _, cgnat, err = net.ParseCIDR("100.64.0.0/10"); err != nil {
		panic("invalid CGNAT CIDR: " + err.Error())
	}
	if _, v6unique, err = net.ParseCIDR("fc00::/7"); err != nil {
		panic("invalid IPv6 unique local CIDR: " + err.Error())
	}
	if _, v6link, err = net.ParseCIDR("fe80::/10"); err != nil {
		panic("invalid IPv6 link-local CIDR: " + err.Error())
	}
}

// ValidateURL validates a URL for security (SSRF prevention).
// It requires HTTPS and blocks localhost, private IPs, and local domains.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return fmt.Errorf("localhost URLs are not allowed")
	}
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("local domain URLs are not allowed")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("private IP addresses are not allowed")
		}
	}

	return nil
}

// isPrivateIP checks if an IP is in private/reserved ranges.
// It handles IPv4, IPv6, and IPv6-mapped IPv4 addresses.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if v4 := ip.To4(); v4 != nil {
		ip = v4
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			return true
		}
	}

	if cgnat.Contains(ip) || v6unique.Contains(ip) || v6link.Contains(ip) {
		return true
	}

	return false
}

// newSafeClient builds an HTTP client whose dialer re-validates resolved IPs,
// defeating DNS rebinding.
func newSafeClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	safeDialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup failed: %w", err)
		}

		for _, ipAddr := range ips {
			if isPrivateIP(ipAddr.IP) {
				return nil, fmt.Errorf("connection to private IP %s is not allowed", ipAddr.IP)
			}
		}

		for _, ipAddr := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
			if err == nil {
				return conn, nil
			}
		}

		return nil, fmt.Errorf("failed to connect to any resolved IP")
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           safeDialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			if err := ValidateURL(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}
}

// Executor implements the web_fetch research tool for one project sandbox.
type Executor struct {
	ws        *workspace.Manager
	projectID string
	client    *http.Client
	maxSize   int64
}

// NewExecutor creates a research executor bound to a project workspace.
func NewExecutor(ws *workspace.Manager, projectID string) *Executor {
	return &Executor{
		ws:        ws,
		projectID: projectID,
		client:    newSafeClient(defaultTimeout),
		maxSize:   defaultMaxSize,
	}
}

// ListTools returns the research tool definitions.
func (e *Executor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "web_fetch",
			Description: "Fetch a web page over HTTPS, extract the readable content as markdown, and save it under research/. Returns the saved path and a content preview.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "HTTPS URL of the page to fetch",
					},
					"topic": map[string]any{
						"type":        "string",
						"description": "Optional short topic label used to name the saved file",
					},
				},
				"required": []string{"url"},
			},
		},
	}
}

// Execute dispatches a research tool call.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	switch call.Name {
	case "web_fetch":
		return e.webFetch(ctx, call)
	default:
		return llm.FailureResult(call, fmt.Sprintf("unknown tool: %s", call.Name))
	}
}

func (e *Executor) webFetch(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	rawURL, ok := call.Arguments["url"].(string)
	if !ok || rawURL == "" {
		return llm.FailureResult(call, "url argument is required")
	}

	if err := ValidateURL(rawURL); err != nil {
		return llm.FailureResult(call, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return llm.FailureResult(call, fmt.Sprintf("create request: %s", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return llm.FailureResult(call, fmt.Sprintf("fetch failed: %s", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return llm.FailureResult(call, fmt.Sprintf("fetch failed: status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxSize))
	if err != nil {
		return llm.FailureResult(call, fmt.Sprintf("read response: %s", err))
	}

	doc, err := Extract(body, rawURL)
	if err != nil {
		return llm.FailureResult(call, fmt.Sprintf("extract content: %s", err))
	}

	topic, _ := call.Arguments["topic"].(string)
	name := slugify(topic)
	if name == "" {
		name = slugify(doc.Title)
	}
	if name == "" {
		name = slugify(req.URL.Hostname() + "-" + req.URL.Path)
	}

	relPath := filepath.Join("research", name+".md")
	fullPath, err := e.ws.Resolve(e.projectID, relPath)
	if err != nil {
		return llm.FailureResult(call, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return llm.FailureResult(call, fmt.Sprintf("create research directory: %s", err))
	}

	content := fmt.Sprintf("# %s\n\nSource: %s\nFetched: %s\n\n%s\n",
		doc.Title, rawURL, time.Now().UTC().Format(time.RFC3339), doc.Markdown)
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		return llm.FailureResult(call, fmt.Sprintf("save research note: %s", err))
	}

	preview := doc.Markdown
	if len(preview) > 2000 {
		preview = preview[:2000] + "..."
	}

	return llm.ToolResult{
		CallID: call.ID,
		Name:   call.Name,
		Payload: map[string]any{
			"success": true,
			"url":     rawURL,
			"title":   doc.Title,
			"path":    relPath,
			"words":   len(strings.Fields(doc.Markdown)),
			"preview": preview,
		},
	}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify converts free text to a safe file name fragment.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = s[:60]
		s = strings.Trim(s, "-")
	}
	return s
}

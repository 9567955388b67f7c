// Package web implements the web_search and web_fetch tools: HTTP clients
// with response caps, polite timeouts, and HTML-to-text extraction.
package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxFetchBytes bounds the raw HTTP body read before extraction.
const maxFetchBytes = 10 << 20

// strippedTags are removed from the tree before text extraction: script
// and style carry no readable content, nav/header/footer/aside are
// boilerplate.
var strippedTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
}

// blockTags force a line break around their text so extracted content
// keeps paragraph structure instead of running together.
var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Br: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Blockquote: true, atom.Pre: true,
}

// Extractor fetches a URL and converts its HTML body to readable text.
type Extractor struct {
	httpClient    *http.Client
	skipSSRFCheck bool
}

// NewExtractor creates an extractor with a polite timeout.
func NewExtractor() *Extractor {
	return &Extractor{httpClient: &http.Client{Timeout: 15 * time.Second}}
}

// NewExtractorForTesting creates an extractor that allows localhost URLs,
// for use against httptest servers.
func NewExtractorForTesting() *Extractor {
	return &Extractor{httpClient: &http.Client{Timeout: 15 * time.Second}, skipSSRFCheck: true}
}

func isPrivateOrReservedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	return ip.Equal(net.ParseIP("169.254.169.254"))
}

func validateURLForSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	lower := strings.ToLower(hostname)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("localhost URLs are not allowed")
	}
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil // DNS may be handled by an upstream proxy
	}
	for _, ip := range ips {
		if isPrivateOrReservedIP(ip) {
			return fmt.Errorf("URL resolves to a private or reserved IP address")
		}
	}
	return nil
}

// Extract fetches targetURL and returns readable text. selector, if
// non-empty, narrows extraction to the first element matching it (a tag
// name, "#id", ".class", or "tag.class" — see matchesSelector).
func (e *Extractor) Extract(ctx context.Context, targetURL, selector string) (string, error) {
	if !e.skipSSRFCheck {
		if err := validateURLForSSRF(targetURL); err != nil {
			return "", fmt.Errorf("URL validation failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; pocketrbbot/1.0)")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	if strings.Contains(contentType, "text/plain") {
		return cleanText(string(body)), nil
	}

	return e.extractReadableContent(string(body), selector)
}

func (e *Extractor) extractReadableContent(doc, selector string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := findText(root, atom.Title)
	description := findMetaContent(root, "description")

	target := root
	if selector != "" {
		if match := findSelector(root, selector); match != nil {
			target = match
		}
	}

	var sb strings.Builder
	renderText(target, &sb)
	content := cleanText(sb.String())

	var result strings.Builder
	if title != "" {
		result.WriteString("Title: ")
		result.WriteString(cleanText(title))
		result.WriteString("\n\n")
	}
	if description != "" {
		result.WriteString("Description: ")
		result.WriteString(cleanText(description))
		result.WriteString("\n\n")
	}
	result.WriteString(content)
	return result.String(), nil
}

// renderText walks the DOM, writing text nodes and inserting newlines
// around block-level boundaries, skipping stripped tags entirely.
func renderText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && strippedTags[n.DataAtom] {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	if n.Type == html.ElementNode && blockTags[n.DataAtom] {
		sb.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, sb)
	}
	if n.Type == html.ElementNode && blockTags[n.DataAtom] {
		sb.WriteString("\n")
	}
}

func findText(n *html.Node, tag atom.Atom) string {
	if n.Type == html.ElementNode && n.DataAtom == tag {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return n.FirstChild.Data
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text := findText(c, tag); text != "" {
			return text
		}
	}
	return ""
}

func findMetaContent(n *html.Node, name string) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
		var nameAttr, content string
		for _, a := range n.Attr {
			switch strings.ToLower(a.Key) {
			case "name", "property":
				nameAttr = a.Val
			case "content":
				content = a.Val
			}
		}
		if nameAttr == name || nameAttr == "og:"+name {
			return content
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text := findMetaContent(c, name); text != "" {
			return text
		}
	}
	return ""
}

// attr returns the value of attribute key on n, or "".
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// findSelector resolves a simple selector against the tree: a bare tag
// name ("main"), "#id", ".class", or "tag.class". It returns the first
// matching element found in document order, or nil.
func findSelector(root *html.Node, selector string) *html.Node {
	var tag, id, class string
	s := selector
	if idx := strings.Index(s, "#"); idx >= 0 {
		id = s[idx+1:]
		s = s[:idx]
	} else if idx := strings.Index(s, "."); idx >= 0 {
		class = s[idx+1:]
		s = s[:idx]
	}
	tag = s

	var walk func(n *html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode {
			tagOK := tag == "" || strings.EqualFold(n.Data, tag)
			idOK := id == "" || attr(n, "id") == id
			classOK := class == "" || hasClass(n, class)
			if tagOK && idOK && classOK {
				return n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(root)
}

func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

package research

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Pre-compiled regexes to avoid ReDoS with runtime compilation.
var (
	scriptRe         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	excessiveLinesRe = regexp.MustCompile(`\n{4,}`)
)

// Document is the extracted readable content of a web page.
type Document struct {
	Title    string
	Markdown string
}

// Extract pulls the main readable content out of an HTML page and converts it
// to markdown. Readability isolates the article body; pages it cannot parse
// fall back to a whole-page conversion with scripts and styles stripped.
func Extract(rawHTML []byte, pageURL string) (*Document, error) {
	title := extractHTMLTitle(rawHTML)

	content := string(rawHTML)
	if parsed, err := url.Parse(pageURL); err == nil {
		if article, err := readability.FromReader(strings.NewReader(content), parsed); err == nil && article.Content != "" {
			content = article.Content
			if title == "" {
				title = article.Title
			}
		}
	}

	content = scriptRe.ReplaceAllString(content, "")
	content = styleRe.ReplaceAllString(content, "")

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	markdown, err := converter.ConvertString(content)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = strings.TrimSpace(excessiveLinesRe.ReplaceAllString(markdown, "\n\n\n"))

	if title == "" {
		title = extractMarkdownTitle(markdown)
	}
	if title == "" {
		title = "Untitled"
	}

	return &Document{Title: title, Markdown: markdown}, nil
}

// extractHTMLTitle extracts the <title> text from HTML.
func extractHTMLTitle(content []byte) string {
	doc, err := html.Parse(strings.NewReader(string(content)))
	if err != nil {
		return ""
	}

	var title string
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if title != "" {
				return
			}
			extract(c)
		}
	}
	extract(doc)
	return title
}

// extractMarkdownTitle uses the first heading as a fallback title.
func extractMarkdownTitle(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
	}
	return ""
}

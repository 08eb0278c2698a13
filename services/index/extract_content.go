package index

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/meghashyamc/glimpse/config"
)

const (
	filetypeText     = "text"
	filetypeHTML     = "html"
	filetypeMarkdown = "markdown"

	maxDocumentSize  = 10 * 1024 * 1024
	fetchTimeout     = 30 * time.Second
	frontmatterFence = "---"
)

var httpClient = &http.Client{Timeout: fetchTimeout}

// fetchSource reads the raw bytes of one configured document, from disk or
// over HTTP. Oversized documents are truncated rather than rejected.
func fetchSource(file config.FileConfig, baseDir string) ([]byte, error) {
	if strings.HasPrefix(file.Path, "http://") || strings.HasPrefix(file.Path, "https://") {
		return fetchURL(file.Path)
	}

	path := file.Path
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	return raw, nil
}

func fetchURL(url string) ([]byte, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("could not fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not fetch %s: status %d", url, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("could not read response from %s: %w", url, err)
	}
	return raw, nil
}

// extractContent turns raw document bytes into indexable body text according
// to the source's filetype. Invalid UTF-8 sequences are replaced, never
// fatal: one mangled document must not fail a build.
func extractContent(file config.FileConfig, raw []byte) (string, error) {
	text := strings.ToValidUTF8(string(raw), "�")

	switch detectFiletype(file) {
	case filetypeHTML:
		return extractHTMLText(text, file.HTMLSelector)
	case filetypeMarkdown:
		return stripMarkdown(stripFrontmatter(text)), nil
	default:
		return text, nil
	}
}

func detectFiletype(file config.FileConfig) string {
	if file.Filetype != "" {
		return file.Filetype
	}
	switch strings.ToLower(filepath.Ext(file.Path)) {
	case ".html", ".htm":
		return filetypeHTML
	case ".md", ".markdown":
		return filetypeMarkdown
	default:
		return filetypeText
	}
}

// extractHTMLText parses an HTML document and returns the visible text under
// the selector (a tag name, "#id", or ".class"), defaulting to <body>.
func extractHTMLText(text string, selector string) (string, error) {
	root, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return "", fmt.Errorf("could not parse HTML: %w", err)
	}

	target := findSelectedNode(root, selector)
	if target == nil {
		if selector != "" {
			return "", fmt.Errorf("selector %q matched nothing", selector)
		}
		target = root
	}

	var builder strings.Builder
	collectText(target, &builder)
	return strings.Join(strings.Fields(builder.String()), " "), nil
}

func findSelectedNode(root *html.Node, selector string) *html.Node {
	if selector == "" {
		selector = "body"
	}

	matches := func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		switch {
		case strings.HasPrefix(selector, "#"):
			return nodeAttr(n, "id") == selector[1:]
		case strings.HasPrefix(selector, "."):
			for _, class := range strings.Fields(nodeAttr(n, "class")) {
				if class == selector[1:] {
					return true
				}
			}
			return false
		default:
			return n.Data == selector
		}
	}

	var walk func(n *html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if matches(n) {
			return n
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if found := walk(child); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(root)
}

func collectText(n *html.Node, builder *strings.Builder) {
	if n.Type == html.TextNode {
		builder.WriteString(n.Data)
		builder.WriteByte(' ')
		return
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, builder)
	}
}

func nodeAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

var (
	mdLinkPattern        = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	mdOrderedItemPattern = regexp.MustCompile(`^\d+\. `)
)

var mdInlineReplacer = strings.NewReplacer("**", "", "__", "", "`", "", "*", "")

// stripMarkdown reduces markdown to plain text for indexing and excerpts:
// heading and list markers, blockquotes, emphasis, inline code, and link
// targets are removed while their visible text is kept. Fenced code blocks
// keep their content, only the fence lines go. Anything it does not
// recognize passes through unchanged.
func stripMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}
		line = stripBlockMarker(line)
		line = mdLinkPattern.ReplaceAllString(line, "$1")
		line = mdInlineReplacer.Replace(line)
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func stripBlockMarker(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	switch {
	case strings.HasPrefix(trimmed, "#"):
		return strings.TrimLeft(strings.TrimLeft(trimmed, "#"), " ")
	case strings.HasPrefix(trimmed, "> "):
		return trimmed[2:]
	case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "+ "):
		return trimmed[2:]
	case mdOrderedItemPattern.MatchString(trimmed):
		return mdOrderedItemPattern.ReplaceAllString(trimmed, "")
	}
	return line
}

// stripFrontmatter removes a leading "---" fenced frontmatter block from
// markdown content. The title from frontmatter, if any, is surfaced by
// frontmatterTitle so a config entry without a title can still get one.
func stripFrontmatter(text string) string {
	body, _ := splitFrontmatter(text)
	return body
}

func frontmatterTitle(text string) string {
	_, frontmatter := splitFrontmatter(text)
	for _, line := range strings.Split(frontmatter, "\n") {
		key, value, found := strings.Cut(line, ":")
		if found && strings.TrimSpace(key) == "title" {
			return strings.Trim(strings.TrimSpace(value), `"'`)
		}
	}
	return ""
}

func splitFrontmatter(text string) (body string, frontmatter string) {
	rest, found := strings.CutPrefix(text, frontmatterFence+"\n")
	if !found {
		return text, ""
	}
	frontmatter, body, found = strings.Cut(rest, "\n"+frontmatterFence+"\n")
	if !found {
		return text, ""
	}
	return body, frontmatter
}

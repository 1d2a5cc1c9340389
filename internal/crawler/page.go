package crawler

import (
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// page is the parsed form of one fetched document.
type page struct {
	Title string
	Text  string
	Links []string
}

var (
	multiSpace = regexp.MustCompile(`\s+`)
	oddSymbols = regexp.MustCompile(`[^\w\s.,!?;:\-()]`)
)

// skipTags are elements whose subtrees carry no retrievable prose.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true,
	"nav": true, "footer": true, "header": true, "aside": true,
	"svg": true, "iframe": true,
}

// parsePage extracts the title, cleaned body text and absolute links from
// an HTML document. Text is taken from <main> or <article> when present,
// otherwise from <body>.
func parsePage(base *url.URL, r io.Reader) (page, error) {
	root, err := html.Parse(r)
	if err != nil {
		return page{}, err
	}

	var p page
	p.Title = findTitle(root)

	content := findNode(root, "main")
	if content == nil {
		content = findNode(root, "article")
	}
	if content == nil {
		content = findNode(root, "body")
	}
	if content == nil {
		content = root
	}

	var sb strings.Builder
	collectText(content, &sb)
	p.Text = cleanText(sb.String())

	collectLinks(root, base, &p.Links)
	return p, nil
}

// cleanText collapses whitespace and strips symbols that interfere with
// chunking and embedding.
func cleanText(s string) string {
	s = oddSymbols.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func findTitle(n *html.Node) string {
	if t := findNode(n, "title"); t != nil {
		if s := strings.TrimSpace(nodeText(t)); s != "" {
			return s
		}
	}
	if h1 := findNode(n, "h1"); h1 != nil {
		if s := strings.TrimSpace(nodeText(h1)); s != "" {
			return s
		}
	}
	return "Untitled"
}

func findNode(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		} else {
			sb.WriteString(nodeText(c))
		}
	}
	return sb.String()
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skipTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func collectLinks(n *html.Node, base *url.URL, out *[]string) {
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, a := range n.Attr {
			if a.Key != "href" {
				continue
			}
			ref, err := url.Parse(strings.TrimSpace(a.Val))
			if err != nil {
				continue
			}
			abs := base.ResolveReference(ref)
			if abs.Scheme == "http" || abs.Scheme == "https" {
				*out = append(*out, abs.String())
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectLinks(c, base, out)
	}
}

// binaryExtensions are never worth fetching.
var binaryExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".zip": true, ".exe": true, ".webp": true, ".svg": true, ".css": true,
	".js": true, ".ico": true, ".woff": true, ".woff2": true, ".mp4": true,
}

// normalizeURL lowers the host, strips the fragment and any trailing
// slash so each page has exactly one frontier key.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// shouldFollow keeps the crawl inside the allowed host and away from
// binary assets.
func shouldFollow(raw, allowedHost string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Host, allowedHost) {
		return false
	}
	return !binaryExtensions[strings.ToLower(path.Ext(u.Path))]
}

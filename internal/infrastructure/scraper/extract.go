package scraper

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	DefaultMaxContentLength = 5000
	untitledPage            = "Untitled"
)

var strippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
}

var strippedClasses = []string{"ad", "advertisement", "sidebar"}

type selector struct {
	tag   atom.Atom
	class string
	id    string
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch {
	case s.tag != 0:
		return n.DataAtom == s.tag
	case s.class != "":
		return hasClass(n, s.class)
	case s.id != "":
		return attr(n, "id") == s.id
	default:
		return false
	}
}

// Tried in order; the first matching node is the main region even when it
// holds no text. <body> is used only when nothing matches.
var mainContentSelectors = []selector{
	{tag: atom.Main},
	{tag: atom.Article},
	{class: "content"},
	{class: "main-content"},
	{id: "content"},
	{id: "main"},
	{class: "post-content"},
	{class: "entry-content"},
}

type Page struct {
	Title   string
	Content string
}

// ExtractPage parses an HTML document and returns its title and the
// whitespace-normalized main content capped at maxContent runes.
func ExtractPage(r io.Reader, maxContent int) (Page, error) {
	if maxContent <= 0 {
		maxContent = DefaultMaxContentLength
	}
	doc, err := html.Parse(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	title := pageTitle(doc)
	stripNonContent(doc)

	region := mainRegion(doc)
	if region == nil {
		region = findFirst(doc, elementIs(atom.Body))
	}
	if region == nil {
		region = doc
	}
	content := normalizeWhitespace(textContent(region))

	return Page{
		Title:   title,
		Content: truncateRunes(content, maxContent),
	}, nil
}

func mainRegion(doc *html.Node) *html.Node {
	for _, sel := range mainContentSelectors {
		if node := findFirst(doc, sel.matches); node != nil {
			return node
		}
	}
	return nil
}

func pageTitle(doc *html.Node) string {
	if node := findFirst(doc, elementIs(atom.Title)); node != nil {
		if title := normalizeWhitespace(textContent(node)); title != "" {
			return title
		}
	}
	if node := findFirst(doc, elementIs(atom.H1)); node != nil {
		if title := normalizeWhitespace(textContent(node)); title != "" {
			return title
		}
	}
	return untitledPage
}

func stripNonContent(doc *html.Node) {
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isNonContent(n) {
			doomed = append(doomed, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func isNonContent(n *html.Node) bool {
	if strippedElements[n.DataAtom] {
		return true
	}
	for _, class := range strippedClasses {
		if hasClass(n, class) {
			return true
		}
	}
	return false
}

func elementIs(tag atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == tag
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, token := range strings.Fields(attr(n, "class")) {
		if token == class {
			return true
		}
	}
	return false
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

package filing

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Normalize extracts plain text from filing HTML. Script and style elements
// are dropped, text nodes are joined with a single space and all whitespace
// runs (including non-breaking spaces) collapse to one space.
//
// Parsing is best effort: malformed markup never fails, only a broken reader
// does.
func Normalize(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style").Remove()
	return nodeText(doc.Nodes), nil
}

// NormalizeString is Normalize over an in-memory document.
func NormalizeString(markup string) string {
	text, err := Normalize(strings.NewReader(markup))
	if err != nil {
		// strings.Reader does not fail
		return ""
	}
	return text
}

// StripMarkup removes script and style elements but keeps the rest of the
// markup, so page boundaries (<hr>) survive for SplitPages.
func StripMarkup(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style").Remove()

	var buf bytes.Buffer
	for _, node := range doc.Nodes {
		if err := html.Render(&buf, node); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}

func nodeText(nodes []*html.Node) string {
	parts := make([]string, 0, 64)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return collapseSpaces(strings.Join(parts, " "))
}

// collapseSpaces folds every run of unicode whitespace into a single space.
func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

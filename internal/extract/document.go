// Package extract parses dashboard markup into a flat Document that
// extraction rules pick entries from.
package extract

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Span is a <span> element.
type Span struct {
	// Text is the span's leading text, up to its first child element.
	Text  string
	Class string
}

// Anchor is an <a> element with the parts meeting rules look at.
type Anchor struct {
	Href string
	// IconClasses holds the class lists of <i> children, in order.
	IconClasses []string
	// SpanText is the leading text of the first <span> child.
	SpanText string
	// Text is all text inside the anchor, whitespace collapsed.
	Text string
}

// HasIcon reports whether any <i> child carries every class in want.
func (a Anchor) HasIcon(want string) bool {
	need := strings.Fields(want)
	for _, classes := range a.IconClasses {
		have := strings.Fields(classes)
		if containsAll(have, need) {
			return true
		}
	}
	return false
}

func containsAll(have, need []string) bool {
	for _, n := range need {
		found := false
		for _, h := range have {
			if h == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Document is the extracted view of one page, in document order.
type Document struct {
	Title   string
	Spans   []Span
	Anchors []Anchor
}

// Rule turns a Document into entries of type T.
type Rule[T any] interface {
	Extract(doc *Document) []T
}

// RuleFunc adapts a function to Rule.
type RuleFunc[T any] func(doc *Document) []T

func (f RuleFunc[T]) Extract(doc *Document) []T { return f(doc) }

// Parse reads markup from r.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing page markup: %w", err)
	}
	doc := &Document{}
	walk(root, doc)
	return doc, nil
}

// ParseString parses markup held in memory.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func walk(n *html.Node, doc *Document) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Title:
			if doc.Title == "" {
				doc.Title = collapse(textOf(n))
			}
		case atom.Span:
			doc.Spans = append(doc.Spans, Span{Text: leadingText(n), Class: attr(n, "class")})
		case atom.A:
			doc.Anchors = append(doc.Anchors, anchorOf(n))
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, doc)
	}
}

func anchorOf(n *html.Node) Anchor {
	a := Anchor{Href: attr(n, "href"), Text: collapse(textOf(n))}
	spanSeen := false
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.I:
			a.IconClasses = append(a.IconClasses, attr(c, "class"))
		case atom.Span:
			if !spanSeen {
				a.SpanText = leadingText(c)
				spanSeen = true
			}
		}
	}
	return a
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// leadingText returns the text before n's first child element, trimmed.
func leadingText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil && c.Type != html.ElementNode; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Package markup holds the HTML helpers shared by the source parsers.
package markup

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Compile pre-compiles a CSS selector. It panics on invalid selectors and
// is meant for package-level variables.
func Compile(selector string) cascadia.Selector {
	return cascadia.MustCompile(selector)
}

// Parse builds a goquery document from a UTF-8 page body.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Text returns the trimmed text of a selection with inner whitespace runs
// collapsed to one space.
func Text(s *goquery.Selection) string {
	return Collapse(s.Text())
}

// OwnText returns the trimmed text of the direct text children of the first
// node in the selection, ignoring text inside child elements.
func OwnText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	var b strings.Builder
	for c := s.Get(0).FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

// Collapse trims s and replaces every whitespace run with one space.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FindText returns the first text node under root whose content contains
// substr.
func FindText(root *goquery.Selection, substr string) (string, bool) {
	for _, n := range root.Nodes {
		if text, ok := findText(n, substr); ok {
			return text, true
		}
	}
	return "", false
}

func findText(n *html.Node, substr string) (string, bool) {
	if n.Type == html.TextNode && strings.Contains(n.Data, substr) {
		return strings.TrimSpace(n.Data), true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text, ok := findText(c, substr); ok {
			return text, true
		}
	}
	return "", false
}

// QueryOf returns the raw query string of an href.
func QueryOf(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.RawQuery == "" {
		return "", false
	}
	return u.RawQuery, true
}

package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// CleanedHTML is a compact rendering of a page for prompt input.
type CleanedHTML struct {
	HTML        string
	Title       string
	Description string
	Truncated   bool
}

// CleanHTML strips scripts, styles, comments and hidden elements while
// keeping the structure and the attributes a test needs to target
// elements. Output stops after maxRunes runes of emitted markup and text.
func CleanHTML(rawHTML string, maxRunes int) (*CleanedHTML, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	c := &cleaner{budget: maxRunes}
	c.walk(doc, 0)

	return &CleanedHTML{
		HTML:        c.out.String(),
		Title:       findTitle(doc),
		Description: findMetaDescription(doc),
		Truncated:   c.truncated,
	}, nil
}

type cleaner struct {
	out       strings.Builder
	used      int
	budget    int
	truncated bool
}

func (c *cleaner) full() bool {
	if c.used >= c.budget {
		c.truncated = true
	}
	return c.truncated
}

// emit writes s, counting runes against the budget. Text is cut at the
// budget; markup is written whole so tags stay balanced.
func (c *cleaner) emit(s string, cuttable bool) {
	n := utf8.RuneCountInString(s)
	if cuttable && c.used+n > c.budget {
		remaining := c.budget - c.used
		if remaining > 0 {
			c.out.WriteString(truncateRunes(s, remaining))
			c.out.WriteString("...")
		}
		c.used = c.budget
		c.truncated = true
		return
	}
	c.out.WriteString(s)
	c.used += n
}

func (c *cleaner) walk(n *html.Node, depth int) {
	if c.full() {
		return
	}

	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			c.emit(html.EscapeString(text), true)
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if droppedElements[tag] || isHidden(n) {
			return
		}
		c.element(n, tag, depth)
		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(child, depth)
	}
}

func (c *cleaner) element(n *html.Node, tag string, depth int) {
	block := blockElements[tag]
	if block && depth > 0 {
		c.emit("\n"+strings.Repeat("  ", depth), false)
	}

	var open strings.Builder
	open.WriteString("<" + tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, strings.ToLower(attr.Key)) {
			fmt.Fprintf(&open, ` %s="%s"`, strings.ToLower(attr.Key), html.EscapeString(attr.Val))
		}
	}
	open.WriteString(">")
	c.emit(open.String(), false)

	if voidElements[tag] {
		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(child, depth+1)
		if c.truncated {
			break
		}
	}

	if block {
		c.emit("\n"+strings.Repeat("  ", depth), false)
	}
	c.emit("</"+tag+">", false)
}

var droppedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"iframe": true, "embed": true, "object": true, "svg": true, "canvas": true,
	"head": true,
}

var blockElements = map[string]bool{
	"div": true, "p": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "aside": true, "dialog": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "table": true, "tr": true, "td": true,
	"th": true, "form": true, "fieldset": true, "blockquote": true, "pre": true,
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// isHidden drops elements a user cannot interact with.
func isHidden(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if attr.Val == "true" {
				return true
			}
		case "type":
			if strings.EqualFold(n.Data, "input") && strings.EqualFold(attr.Val, "hidden") {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(attr.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

// keepAttribute keeps identifiers, accessibility labels, test hooks and
// the attributes that describe what an interactive element does.
func keepAttribute(tag, attr string) bool {
	switch attr {
	case "id", "class", "role", "name", "title", "aria-label", "aria-describedby":
		return true
	}
	if strings.HasPrefix(attr, "data-") {
		return true
	}
	switch tag {
	case "a":
		return attr == "href" || attr == "target"
	case "img":
		return attr == "alt"
	case "input", "textarea", "select":
		return attr == "type" || attr == "placeholder" || attr == "value" || attr == "required"
	case "button":
		return attr == "type" || attr == "disabled"
	case "form":
		return attr == "action" || attr == "method"
	case "label":
		return attr == "for"
	case "option":
		return attr == "value"
	}
	return false
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func findTitle(doc *html.Node) string {
	if n := findElement(doc, func(n *html.Node) bool { return n.Data == "title" }); n != nil && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	return ""
}

func findMetaDescription(doc *html.Node) string {
	n := findElement(doc, func(n *html.Node) bool {
		if n.Data != "meta" {
			return false
		}
		for _, attr := range n.Attr {
			if attr.Key == "name" && strings.EqualFold(attr.Val, "description") {
				return true
			}
		}
		return false
	})
	if n == nil {
		return ""
	}
	for _, attr := range n.Attr {
		if attr.Key == "content" {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, match); found != nil {
			return found
		}
	}
	return nil
}

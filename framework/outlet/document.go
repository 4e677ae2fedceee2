// Package outlet provides an in-memory outlet that keeps the committed markup
// and applies id-scoped patches to it the way a browser DOM would.
package outlet

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"learnshell/framework"
)

var ErrElementNotFound = errors.New("element not found")

type Document struct {
	mu       sync.Mutex
	markup   string
	replaces int
	patches  int
}

func NewDocument() *Document {
	return &Document{}
}

// Replace discards the current content and stores markup verbatim.
func (d *Document) Replace(markup string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.markup = markup
	d.replaces++
	return nil
}

func (d *Document) Patch(selectorID string, mode framework.PatchMode, markup string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	root, err := parseRoot(d.markup)
	if err != nil {
		return err
	}

	target := findByID(root, selectorID)
	if target == nil {
		return fmt.Errorf("patch #%s: %w", selectorID, ErrElementNotFound)
	}

	switch mode {
	case framework.PatchModeInner, framework.PatchModeAppend:
		nodes, err := html.ParseFragment(strings.NewReader(markup), target)
		if err != nil {
			return fmt.Errorf("parse patch for #%s: %w", selectorID, err)
		}
		if mode == framework.PatchModeInner {
			for child := target.FirstChild; child != nil; {
				next := child.NextSibling
				target.RemoveChild(child)
				child = next
			}
		}
		for _, node := range nodes {
			target.AppendChild(node)
		}
	case framework.PatchModeAfter:
		parent := target.Parent
		nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
		if err != nil {
			return fmt.Errorf("parse patch after #%s: %w", selectorID, err)
		}
		next := target.NextSibling
		for _, node := range nodes {
			parent.InsertBefore(node, next)
		}
	default:
		return fmt.Errorf("patch #%s: unsupported mode %q", selectorID, mode)
	}

	rendered, err := renderChildren(root)
	if err != nil {
		return err
	}
	d.markup = rendered
	d.patches++
	return nil
}

// HTML returns the current outlet content.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.markup
}

// Text returns the text content of the element with the given id.
func (d *Document) Text(selectorID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	root, err := parseRoot(d.markup)
	if err != nil {
		return "", false
	}
	target := findByID(root, selectorID)
	if target == nil {
		return "", false
	}

	var b strings.Builder
	collectText(&b, target)
	return strings.Join(strings.Fields(b.String()), " "), true
}

func (d *Document) Replaces() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.replaces
}

func (d *Document) Patches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.patches
}

func parseRoot(markup string) (*html.Node, error) {
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), root)
	if err != nil {
		return nil, fmt.Errorf("parse outlet markup: %w", err)
	}
	for _, node := range nodes {
		root.AppendChild(node)
	}
	return root, nil
}

func renderChildren(root *html.Node) (string, error) {
	var buffer bytes.Buffer
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if err := html.Render(&buffer, child); err != nil {
			return "", fmt.Errorf("render outlet markup: %w", err)
		}
	}
	return buffer.String(), nil
}

func findByID(node *html.Node, id string) *html.Node {
	if node.Type == html.ElementNode {
		for _, attr := range node.Attr {
			if attr.Key == "id" && attr.Val == id {
				return node
			}
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

func collectText(b *strings.Builder, node *html.Node) {
	if node.Type == html.TextNode {
		b.WriteString(node.Data)
		b.WriteString(" ")
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(b, child)
	}
}

package markdown

import (
	"strings"
	"testing"
)

func TestToHTMLRendersEmphasis(t *testing.T) {
	html := string(ToHTML("In **Go**, explain one key concept."))
	if !strings.Contains(html, "<strong>Go</strong>") {
		t.Fatalf("expected strong tag, got %s", html)
	}
}

func TestToHTMLStripsScripts(t *testing.T) {
	html := string(ToHTML("hello <script>alert(1)</script> [x](javascript:alert(1))"))
	if strings.Contains(html, "<script") {
		t.Fatalf("expected script to be removed, got %s", html)
	}
	if strings.Contains(html, "javascript:") {
		t.Fatalf("expected javascript link to be removed, got %s", html)
	}
}

func TestToHTMLExternalLinksOpenInNewTab(t *testing.T) {
	html := string(ToHTML("[docs](https://go.dev/doc)"))
	if !strings.Contains(html, `href="https://go.dev/doc"`) {
		t.Fatalf("expected href, got %s", html)
	}
	if !strings.Contains(html, `target="_blank"`) {
		t.Fatalf("expected target blank, got %s", html)
	}
}

func TestToHTMLHighlightsCode(t *testing.T) {
	html := string(ToHTML("```go\nfunc main() {}\n```"))
	if !strings.Contains(html, `class="chroma"`) {
		t.Fatalf("expected chroma classes, got %s", html)
	}
	if !strings.Contains(html, "main") {
		t.Fatalf("expected code content, got %s", html)
	}

	inline := string(ToHTML("use `go vet`"))
	if !strings.Contains(inline, `<code class="inline-code">go vet</code>`) {
		t.Fatalf("expected inline code, got %s", inline)
	}
}

func TestToHTMLEmpty(t *testing.T) {
	if got := ToHTML("   "); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{name: "short", input: "**Linear** Algebra", max: 40, expected: "Linear Algebra"},
		{name: "word boundary", input: "distributed systems fundamentals", max: 25, expected: "distributed systems..."},
		{name: "zero", input: "anything", max: 0, expected: ""},
		{name: "blank", input: "  ", max: 10, expected: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Excerpt(tc.input, tc.max); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestStylesheet(t *testing.T) {
	css := Stylesheet()
	if !strings.Contains(css, "prefers-color-scheme: light") || !strings.Contains(css, "prefers-color-scheme: dark") {
		t.Fatalf("expected both colour schemes, got %q", css)
	}
	if !strings.Contains(css, ".chroma") {
		t.Fatalf("expected chroma selectors, got %q", css)
	}
}

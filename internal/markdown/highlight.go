package markdown

import (
	"bytes"
	stdhtml "html"
	"io"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/gomarkdown/markdown/ast"
)

const (
	lightStyle = "github"
	darkStyle  = "monokai"
)

var (
	stylesheetOnce sync.Once
	stylesheet     string
)

// Stylesheet returns the CSS for highlighted code blocks, switching palettes
// with the user's colour scheme.
func Stylesheet() string {
	stylesheetOnce.Do(func() {
		var out strings.Builder
		for _, scheme := range []struct {
			media string
			style string
		}{
			{media: "light", style: lightStyle},
			{media: "dark", style: darkStyle},
		} {
			css := styleCSS(scheme.style)
			if css == "" {
				continue
			}
			out.WriteString("@media (prefers-color-scheme: " + scheme.media + ") {\n")
			out.WriteString(css)
			out.WriteString("}\n")
		}
		stylesheet = out.String()
	})
	return stylesheet
}

func styleCSS(name string) string {
	style := styles.Get(name)
	if style == nil {
		style = styles.Fallback
	}

	var buffer bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&buffer, style); err != nil {
		return ""
	}
	return buffer.String()
}

func renderNodeHook(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
	if !entering {
		return ast.GoToNext, false
	}

	switch typed := node.(type) {
	case *ast.CodeBlock:
		highlightBlock(w, string(typed.Literal), blockLanguage(typed.Info))
		return ast.SkipChildren, true
	case *ast.Code:
		_, _ = io.WriteString(w, `<code class="inline-code">`)
		_, _ = io.WriteString(w, stdhtml.EscapeString(string(typed.Literal)))
		_, _ = io.WriteString(w, `</code>`)
		return ast.SkipChildren, true
	default:
		return ast.GoToNext, false
	}
}

func highlightBlock(w io.Writer, code string, language string) {
	iterator, err := pickLexer(language, code).Tokenise(nil, code)
	if err == nil {
		err = chromahtml.New(chromahtml.WithClasses(true)).Format(w, styles.Fallback, iterator)
	}
	if err != nil {
		_, _ = io.WriteString(w, `<pre class="chroma"><code>`)
		_, _ = io.WriteString(w, stdhtml.EscapeString(code))
		_, _ = io.WriteString(w, `</code></pre>`)
	}
}

func pickLexer(language string, code string) chroma.Lexer {
	if language != "" {
		if lexer := lexers.Get(language); lexer != nil {
			return lexer
		}
	}
	if lexer := lexers.Analyse(code); lexer != nil {
		return lexer
	}
	return lexers.Fallback
}

func blockLanguage(info []byte) string {
	fields := strings.Fields(string(info))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

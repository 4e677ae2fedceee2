// Package markdown renders backend-provided markdown (quiz prompts, module
// notes) into sanitized HTML.
package markdown

import (
	"html/template"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	md "github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

const lastGoodBreakRatio = 0.8

var (
	markdownCodeBlockPattern      = regexp.MustCompile("(?s)```.*?```")
	markdownImagePattern          = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	markdownBoldItalicPattern     = regexp.MustCompile(`\*\*\*(.*?)\*\*\*`)
	markdownBoldPattern           = regexp.MustCompile(`\*\*(.*?)\*\*`)
	markdownItalicAsteriskPattern = regexp.MustCompile(`\*(.*?)\*`)
	markdownItalicUnderscore      = regexp.MustCompile(`_(.*?)_`)
	markdownHeadingPattern        = regexp.MustCompile(`(?m)^#{1,6}\s+(.*?)$`)
	markdownInlineCodePattern     = regexp.MustCompile("`(.*?)`")
	markdownLinkPattern           = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	markdownBlockquotePattern     = regexp.MustCompile(`(?m)^\s*>\s*(.*?)$`)
	htmlTagPattern                = regexp.MustCompile(`<[^>]*>`)
	highlightClassPattern         = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func sanitizer() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()
		policy.AllowAttrs("class").Matching(highlightClassPattern).OnElements("pre", "code", "span")
		policy.AddTargetBlankToFullyQualifiedLinks(true)
	})
	return policy
}

// ToHTML renders markdown and strips anything the UGC policy does not allow.
func ToHTML(input string) template.HTML {
	if strings.TrimSpace(input) == "" {
		return template.HTML("")
	}

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(input))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags:          mdhtml.CommonFlags | mdhtml.SkipHTML,
		RenderNodeHook: renderNodeHook,
	})

	rendered := md.Render(doc, renderer)
	return template.HTML(sanitizer().SanitizeBytes(rendered))
}

// Excerpt returns plain text of at most maxChars runes, cut at a word
// boundary when one is close enough to the limit.
func Excerpt(input string, maxChars int) string {
	if maxChars < 1 {
		return ""
	}

	clean := toPlainText(input)
	if clean == "" {
		return ""
	}

	if utf8.RuneCountInString(clean) <= maxChars {
		return clean
	}

	return truncateRunes(clean, maxChars)
}

func toPlainText(markdown string) string {
	text := markdown
	text = markdownCodeBlockPattern.ReplaceAllString(text, " ")
	text = markdownImagePattern.ReplaceAllString(text, " ")

	text = markdownBoldItalicPattern.ReplaceAllString(text, "$1")
	text = markdownBoldPattern.ReplaceAllString(text, "$1")
	text = markdownItalicAsteriskPattern.ReplaceAllString(text, "$1")
	text = markdownItalicUnderscore.ReplaceAllString(text, "$1")
	text = markdownHeadingPattern.ReplaceAllString(text, "\n$1\n")
	text = markdownInlineCodePattern.ReplaceAllString(text, "$1")
	text = markdownLinkPattern.ReplaceAllString(text, "$1")
	text = markdownBlockquotePattern.ReplaceAllString(text, "$1")
	text = htmlTagPattern.ReplaceAllString(text, "")

	return strings.Join(strings.Fields(text), " ")
}

func truncateRunes(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	truncateAt := maxChars
	minBreak := int(float64(maxChars) * lastGoodBreakRatio)
	for idx := maxChars - 1; idx >= minBreak; idx-- {
		if unicode.IsSpace(runes[idx]) {
			truncateAt = idx
			break
		}
	}

	truncated := strings.TrimSpace(string(runes[:truncateAt]))
	if truncated == "" {
		truncated = strings.TrimSpace(string(runes[:maxChars]))
	}

	return truncated + "..."
}

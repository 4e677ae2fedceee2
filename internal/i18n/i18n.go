// Package i18n holds the UI message catalog. Views read the localizer from
// the render context, so a session renders in the language it was opened with.
package i18n

import (
	"context"
	"embed"
	"fmt"
	"sync"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var localeFiles = []string{"locales/en.yaml", "locales/ja.yaml"}

type Catalog struct {
	bundle   *goi18n.Bundle
	fallback language.Tag
}

func NewCatalog(defaultLocale string) (*Catalog, error) {
	fallback, err := language.Parse(defaultLocale)
	if err != nil {
		return nil, fmt.Errorf("parse default locale %q: %w", defaultLocale, err)
	}

	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)
	for _, path := range localeFiles {
		if _, err := bundle.LoadMessageFileFS(localeFS, path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	return &Catalog{bundle: bundle, fallback: fallback}, nil
}

// Localizer picks a language from an Accept-Language header value, falling
// back to the catalog default.
func (c *Catalog) Localizer(acceptLanguage string) *Localizer {
	return &Localizer{
		localizer: goi18n.NewLocalizer(c.bundle, acceptLanguage, c.fallback.String()),
	}
}

type Localizer struct {
	localizer *goi18n.Localizer
}

// T returns the message for id. Unknown ids come back unchanged.
func (l *Localizer) T(id string, data map[string]any) string {
	message, err := l.localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return id
	}
	return message
}

type contextKey struct{}

func WithLocalizer(ctx context.Context, l *Localizer) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

var (
	defaultOnce      sync.Once
	defaultLocalizer *Localizer
)

func FromContext(ctx context.Context) *Localizer {
	if l, ok := ctx.Value(contextKey{}).(*Localizer); ok && l != nil {
		return l
	}

	defaultOnce.Do(func() {
		catalog, err := NewCatalog("en")
		if err != nil {
			panic(fmt.Sprintf("embedded message catalog: %v", err))
		}
		defaultLocalizer = catalog.Localizer("")
	})
	return defaultLocalizer
}

// T localizes id with the localizer bound to ctx.
func T(ctx context.Context, id string) string {
	return FromContext(ctx).T(id, nil)
}

// Tf localizes id with template data.
func Tf(ctx context.Context, id string, data map[string]any) string {
	return FromContext(ctx).T(id, data)
}

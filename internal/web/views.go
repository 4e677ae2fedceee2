package web

import (
	"context"
	"embed"
	"html/template"
	"io"
	"math"
	"strconv"

	"github.com/a-h/templ"

	"learnshell/framework"
	"learnshell/internal/api"
	"learnshell/internal/i18n"
	"learnshell/internal/markdown"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("web").Funcs(template.FuncMap{
	"action": postAction,
}).ParseFS(templateFS, "templates/*.html"))

// viewData is what every template executes against: the localizer for the
// render context plus the page-specific payload.
type viewData struct {
	loc  *i18n.Localizer
	Data any
}

func (v viewData) T(id string) string {
	return v.loc.T(id, nil)
}

// Tf localizes id with alternating key/value template data.
func (v viewData) Tf(id string, pairs ...any) string {
	data := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		data[key] = pairs[i+1]
	}
	return v.loc.T(id, data)
}

func fragment(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return templ.FromGoHTML(templates.Lookup(name), viewData{
			loc:  i18n.FromContext(ctx),
			Data: data,
		}).Render(ctx, w)
	})
}

func page(name string) framework.ViewFunc {
	return func() templ.Component {
		return fragment(name, nil)
	}
}

func message(id string, key string, value any) templ.Component {
	return fragment("message", messageView{ID: id, Key: key, Value: value})
}

type messageView struct {
	ID    string
	Key   string
	Value any
}

type navItem struct {
	ID     string
	Label  string
	Action template.JS
}

type shellView struct {
	Signals        string
	DatastarScript string
	Nav            []navItem
	Connect        template.JS
	HashChange     template.JS
}

// Shell renders the page that hosts the route outlet for one live session.
func Shell(sessionID string) templ.Component {
	return fragment("shell", shellView{
		Signals:        shellSignalsJSON(sessionID),
		DatastarScript: DatastarScript,
		Nav: []navItem{
			{ID: "nav-home", Label: "NavHome", Action: navigateAction(HomeKey)},
			{ID: "nav-topics", Label: "NavTopics", Action: navigateAction(TopicsKey)},
			{ID: "nav-learn", Label: "NavLearn", Action: navigateAction(LearnKey)},
			{ID: "nav-quiz", Label: "NavQuiz", Action: navigateAction(QuizKey)},
			{ID: "nav-progress", Label: "NavProgress", Action: navigateAction(ProgressKey)},
		},
		Connect:    connectAction(),
		HashChange: hashChangeAction(),
	})
}

type topicCard struct {
	Name   string
	Action template.JS
}

func topicCards(names []string) []topicCard {
	cards := make([]topicCard, 0, len(names))
	for _, name := range names {
		cards = append(cards, topicCard{
			Name:   markdown.Excerpt(name, maxTopicLabel),
			Action: chooseTopicAction(name),
		})
	}
	return cards
}

func topicNames(topics []api.Topic) []string {
	names := make([]string, 0, len(topics))
	for _, topic := range topics {
		names = append(names, topic.Name)
	}
	return names
}

type quizResultView struct {
	Correct bool
	Score   float64
}

func (v quizResultView) Percent() string {
	return strconv.Itoa(percent(v.Score)) + "%"
}

func percent(ratio float64) int {
	return int(math.Round(ratio * 100))
}

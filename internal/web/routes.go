// Package web holds the Learning Accelerator pages: the route table, the
// views committed on navigation and the mounts that fill them from the
// backend API.
package web

import (
	"context"
	"strings"

	"learnshell/framework"
	"learnshell/framework/router"
	"learnshell/internal/api"
	"learnshell/internal/markdown"
	"learnshell/internal/store"
)

const (
	HomeKey     = "/"
	TopicsKey   = "/topics"
	LearnKey    = "/learn"
	QuizKey     = "/quiz"
	ProgressKey = "/progress"
	NotFoundKey = "/404"
)

const (
	ActionStartLearning = "start-learning"
	ActionSuggestTopics = "suggest-topics"
	ActionChooseTopic   = "choose-topic"
	ActionSubmitAnswer  = "submit-answer"
	ActionSkipQuestion  = "skip-question"
)

const (
	defaultLearnTopic = "General Learning"
	defaultQuizTopic  = "General"
	maxTopicLabel     = 60
)

// Backend is the slice of the learning API the pages call.
type Backend interface {
	ListTopics(ctx context.Context) ([]api.Topic, error)
	SuggestTopics(ctx context.Context, query string) ([]string, error)
	LearningPath(ctx context.Context, topic string) (api.LearningPath, error)
	NextQuestion(ctx context.Context, topic string, history []api.Attempt) (api.Question, error)
	SubmitAnswer(ctx context.Context, topic string, questionID string, answer string) (api.SubmitResult, error)
	Progress(ctx context.Context) (api.Progress, error)
}

// RegisterRoutes adds every page to registry. It must run before any engine
// built on registry is initialized.
func RegisterRoutes(registry *router.Registry, backend Backend) *router.Registry {
	p := pages{backend: backend}
	return registry.
		Register(HomeKey, page("home"), p.mountHome).
		Register(TopicsKey, page("topics"), p.mountTopics).
		Register(LearnKey, page("learn"), p.mountLearn).
		Register(QuizKey, page("quiz"), p.mountQuiz).
		Register(ProgressKey, page("progress"), p.mountProgress).
		Register(NotFoundKey, page("not-found"), nil)
}

type pages struct {
	backend Backend
}

func (p pages) mountHome(ctx context.Context, scope framework.MountScope) error {
	st := store.FromContext(ctx)
	scope.On(ActionStartLearning, func(_ context.Context, signals framework.Signals) error {
		saveTopic(st, signals.String("topic"))
		return scope.Navigate(LearnKey)
	})
	return nil
}

func (p pages) mountTopics(ctx context.Context, scope framework.MountScope) error {
	st := store.FromContext(ctx)
	scope.On(ActionChooseTopic, func(_ context.Context, signals framework.Signals) error {
		saveTopic(st, signals.String("topic"))
		return scope.Navigate(LearnKey)
	})
	scope.On(ActionSuggestTopics, func(ctx context.Context, signals framework.Signals) error {
		query := strings.TrimSpace(signals.String("query"))
		if query == "" {
			return scope.Patch("topics-suggestions", fragment("topic-suggestions", nil))
		}

		suggestions, err := p.backend.SuggestTopics(ctx, query)
		if err != nil {
			return showNotice(scope, "topics-card", "TopicsSuggestFailed", err)
		}
		return scope.Patch("topics-suggestions", fragment("topic-suggestions", topicCards(suggestions)))
	})

	topics, err := p.backend.ListTopics(ctx)
	if err != nil {
		return showNotice(scope, "topics-card", "TopicsFailed", err)
	}
	return scope.Patch("topics-list", fragment("topic-cards", topicCards(topicNames(topics))))
}

func (p pages) mountLearn(ctx context.Context, scope framework.MountScope) error {
	topic := store.GetOr(store.FromContext(ctx), store.TopicKey, defaultLearnTopic)
	if err := scope.Patch("learn-card", fragment("learn-loading", topic)); err != nil {
		return err
	}

	path, err := p.backend.LearningPath(ctx, topic)
	if err != nil {
		if patchErr := scope.Patch("learn-card", fragment("notice", "LearnFailed")); patchErr != nil {
			return patchErr
		}
		return err
	}
	return scope.Patch("learn-card", fragment("learn-path", path))
}

func (p pages) mountQuiz(ctx context.Context, scope framework.MountScope) error {
	topic := store.GetOr(store.FromContext(ctx), store.TopicKey, defaultQuizTopic)
	scope.On(ActionSkipQuestion, func(context.Context, framework.Signals) error {
		return scope.Navigate(QuizKey)
	})

	if err := scope.InsertAfter("quiz-heading", fragment("quiz-topic", topic)); err != nil {
		return err
	}

	question, err := p.backend.NextQuestion(ctx, topic, nil)
	if err != nil {
		return showNotice(scope, "quiz-card", "QuizFailed", err)
	}
	if err := scope.Patch("quiz-question", fragment("quiz-question", markdown.ToHTML(question.Prompt))); err != nil {
		return err
	}

	scope.On(ActionSubmitAnswer, func(ctx context.Context, signals framework.Signals) error {
		answer := strings.TrimSpace(signals.String("answer"))
		result, err := p.backend.SubmitAnswer(ctx, topic, question.ID, answer)
		if err != nil {
			return showNotice(scope, "quiz-card", "QuizSubmitFailed", err)
		}
		return scope.Append("quiz-card", fragment("quiz-result", quizResultView{
			Correct: result.Correct,
			Score:   result.Score,
		}))
	})
	return nil
}

func (p pages) mountProgress(ctx context.Context, scope framework.MountScope) error {
	progress, err := p.backend.Progress(ctx)
	if err != nil {
		return showNotice(scope, "progress-card", "ProgressFailed", err)
	}

	writes := []struct {
		id        string
		messageID string
		key       string
		value     int
	}{
		{id: "progress-mastery", messageID: "ProgressMastery", key: "Percent", value: percent(progress.Mastery)},
		{id: "progress-reviews", messageID: "ProgressReviewsDue", key: "Count", value: progress.ReviewsDue},
		{id: "progress-minutes", messageID: "ProgressMinutes", key: "Minutes", value: progress.MinutesStudied},
	}
	for _, write := range writes {
		if err := scope.Patch(write.id, message(write.messageID, write.key, write.value)); err != nil {
			return err
		}
	}
	return nil
}

func saveTopic(st store.Store, topic string) {
	topic = strings.TrimSpace(topic)
	if topic != "" {
		st.Set(store.TopicKey, topic)
	}
}

// showNotice appends a failure notice to targetID and passes cause on so the
// engine logs it.
func showNotice(scope framework.MountScope, targetID string, messageID string, cause error) error {
	if err := scope.Append(targetID, fragment("notice", messageID)); err != nil {
		return err
	}
	return cause
}

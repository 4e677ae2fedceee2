// Package api is the client for the learning backend consumed by page mounts.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type StatusError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &authTransport{
				base:  http.DefaultTransport,
				token: token,
			},
		},
	}
}

type authTransport struct {
	base  http.RoundTripper
	token string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token == "" {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}

type Topic struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Module struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	DurationMin int    `json:"duration_min"`
}

type LearningPath struct {
	Topic   string   `json:"topic"`
	Modules []Module `json:"modules"`
}

type Question struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	Type   string `json:"type"`
}

type Attempt struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

type SubmitResult struct {
	Correct bool    `json:"correct"`
	Score   float64 `json:"score"`
}

type Progress struct {
	Mastery        float64 `json:"mastery"`
	ReviewsDue     int     `json:"reviews_due"`
	MinutesStudied int     `json:"minutes_studied"`
}

func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/api/health", nil, &out)
}

func (c *Client) ListTopics(ctx context.Context) ([]Topic, error) {
	var out struct {
		Items []Topic `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/topics", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) SuggestTopics(ctx context.Context, query string) ([]string, error) {
	in := struct {
		Query string `json:"query"`
	}{Query: query}
	var out struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/topics/suggest", in, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

func (c *Client) LearningPath(ctx context.Context, topic string) (LearningPath, error) {
	in := struct {
		Topic string `json:"topic"`
	}{Topic: topic}
	var out LearningPath
	if err := c.do(ctx, http.MethodPost, "/api/learn/path", in, &out); err != nil {
		return LearningPath{}, err
	}
	return out, nil
}

func (c *Client) NextQuestion(ctx context.Context, topic string, history []Attempt) (Question, error) {
	if history == nil {
		history = []Attempt{}
	}
	in := struct {
		Topic   string    `json:"topic"`
		History []Attempt `json:"history"`
	}{Topic: topic, History: history}
	var out struct {
		Question Question `json:"question"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/quiz/next", in, &out); err != nil {
		return Question{}, err
	}
	return out.Question, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, topic string, questionID string, answer string) (SubmitResult, error) {
	in := struct {
		Topic      string `json:"topic"`
		QuestionID string `json:"question_id"`
		Answer     string `json:"answer"`
	}{Topic: topic, QuestionID: questionID, Answer: answer}
	var out SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/quiz/submit", in, &out); err != nil {
		return SubmitResult{}, err
	}
	return out, nil
}

func (c *Client) Progress(ctx context.Context) (Progress, error) {
	var out Progress
	if err := c.do(ctx, http.MethodGet, "/api/progress", nil, &out); err != nil {
		return Progress{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method string, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, res.Body)
		return &StatusError{Method: method, Path: path, StatusCode: res.StatusCode}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

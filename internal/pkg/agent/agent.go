// Package agent turns a natural language question into a query against a
// user's data source and answers it with the help of a chat model.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrUnsupportedModel    = errors.New("unsupported model")
	ErrForbiddenStatement  = errors.New("generated statement modifies data")
)

// DontKnow is returned verbatim when a question is unrelated to the source.
const DontKnow = "I don't know"

// Answer is the outcome of one question.
type Answer struct {
	Result string
	// Query is the statement or request that produced Result, if any.
	Query string
}

type Agent interface {
	Run(ctx context.Context, question string) (*Answer, error)
	Close() error
}

// ChatModel is a single-turn completion backend.
type ChatModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Form values for the model select and the backend model they map to.
const (
	ModelGPT3   = "gpt-3"
	ModelGPT4   = "gpt-4"
	ModelGemini = "gemini"
)

var Models = []string{ModelGPT3, ModelGPT4, ModelGemini}

func ValidModel(name string) bool {
	for _, m := range Models {
		if m == name {
			return true
		}
	}
	return false
}

// stripFences removes markdown code fences models like to wrap answers in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isDontKnow(s string) bool {
	s = strings.Trim(strings.TrimSpace(s), `."'`)
	return strings.EqualFold(s, DontKnow) || strings.EqualFold(s, "I dont know")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("\n... (%d more bytes)", len(s)-n)
}

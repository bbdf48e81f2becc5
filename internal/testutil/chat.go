package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/vertigo15/docengine/internal/capabilities"
)

// ScriptedChat returns queued responses in order, one per Complete call,
// cycling back to the last response once exhausted. Useful for driving
// Summarizer MAP/REDUCE, QAGenerator, and AgentEvaluator in tests without a
// live Chat provider.
type ScriptedChat struct {
	mu        sync.Mutex
	Responses []string
	calls     int
	// Err, if set, is returned instead of a response on every call.
	Err error
	// Requests records every ChatRequest seen, for assertions.
	Requests []capabilities.ChatRequest
}

func NewScriptedChat(responses ...string) *ScriptedChat {
	return &ScriptedChat{Responses: responses}
}

func (s *ScriptedChat) Complete(_ context.Context, req capabilities.ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Responses) == 0 {
		return "", fmt.Errorf("testutil: ScriptedChat has no responses configured")
	}
	idx := s.calls
	if idx >= len(s.Responses) {
		idx = len(s.Responses) - 1
	}
	s.calls++
	return s.Responses[idx], nil
}

// CallCount returns the number of Complete calls observed so far.
func (s *ScriptedChat) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

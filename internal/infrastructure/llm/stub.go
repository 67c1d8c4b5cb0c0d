package llm

import (
	"context"
	"sync"
)

// StubClient replays a scripted sequence of responses. Tests drive the
// analyzer and query loops against it without network access.
type StubClient struct {
	mu        sync.Mutex
	responses []*Response
	calls     []Request
	err       error
}

// NewStubClient scripts the responses in invocation order. The final
// response is repeated if invoked more times than scripted.
func NewStubClient(responses ...*Response) *StubClient {
	return &StubClient{responses: responses}
}

// FailWith makes every invocation return err.
func (s *StubClient) FailWith(err error) *StubClient {
	s.err = err
	return s
}

// Invoke implements Client.
func (s *StubClient) Invoke(_ context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	idx := len(s.calls) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

// Calls returns the recorded requests.
func (s *StubClient) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

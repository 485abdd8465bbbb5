// Package llmtest provides a scripted model backend for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

// Backend replays queued replies in order and records every request.
// When the queue is empty it returns an error.
type Backend struct {
	mu       sync.Mutex
	replies  []reply
	requests []models.CompletionRequest
}

type reply struct {
	resp *models.CompletionResponse
	err  error
}

// New returns an empty scripted backend.
func New() *Backend {
	return &Backend{}
}

// Reply queues a plain text answer.
func (b *Backend) Reply(content string) *Backend {
	return b.push(&models.CompletionResponse{Content: content, FinishReason: "stop"}, nil)
}

// ReplyJSON queues a structured output answer.
func (b *Backend) ReplyJSON(v any) *Backend {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b.Reply(string(data))
}

// CallTool queues an answer asking for one tool call.
func (b *Backend) CallTool(id, name string, args any) *Backend {
	return b.CallTools(Call(id, name, args))
}

// CallTools queues an answer asking for several tool calls at once.
func (b *Backend) CallTools(calls ...models.ToolCall) *Backend {
	return b.push(&models.CompletionResponse{FinishReason: "tool_calls", ToolCalls: calls}, nil)
}

// Fail queues an error.
func (b *Backend) Fail(err error) *Backend {
	return b.push(nil, err)
}

func (b *Backend) push(resp *models.CompletionResponse, err error) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, reply{resp: resp, err: err})
	return b
}

// Complete implements contracts.ModelBackend.
func (b *Backend) Complete(_ context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	recorded := *req
	recorded.Messages = append([]models.ChatMessage(nil), req.Messages...)
	b.requests = append(b.requests, recorded)

	if len(b.replies) == 0 {
		return nil, fmt.Errorf("llmtest: no scripted reply for request %d", len(b.requests))
	}
	next := b.replies[0]
	b.replies = b.replies[1:]
	if next.err != nil {
		return nil, next.err
	}
	resp := *next.resp
	return &resp, nil
}

// Requests returns a copy of the requests received so far.
func (b *Backend) Requests() []models.CompletionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.CompletionRequest(nil), b.requests...)
}

// Pending returns the number of replies not yet consumed.
func (b *Backend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.replies)
}

// Call builds a tool call with JSON-encoded arguments.
func Call(id, name string, args any) models.ToolCall {
	data, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return models.ToolCall{
		ID:       id,
		Type:     "function",
		Function: models.FunctionCall{Name: name, Arguments: string(data)},
	}
}

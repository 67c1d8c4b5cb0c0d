// Package llm provides the model client used by the file analyzer and the
// natural-language query pathway: a small messages-with-tools abstraction
// with an AWS Bedrock implementation and a scripted stub for tests.
package llm

import (
	"context"
	"encoding/json"
)

// Role values for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock is one piece of message content: plain text, a tool call by
// the model, or a tool result supplied back to it.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use fields (model output)
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result fields (caller input)
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a single-block text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ToolResultMessage builds a user message carrying one tool result.
func ToolResultMessage(toolUseID, content string, isError bool) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{{
		Type:      "tool_result",
		ToolUseID: toolUseID,
		Content:   content,
		IsError:   isError,
	}}}
}

// ToolDef declares a tool the model may call.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolUse is a tool call extracted from a model response.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Request is one model invocation.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDef
	MaxTokens   int
	Temperature float64
}

// Response is the parsed model output.
type Response struct {
	Text         string
	ToolUses     []ToolUse
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Client invokes the model. Implementations must be safe for concurrent
// use.
type Client interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

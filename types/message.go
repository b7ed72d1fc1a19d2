package types

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the message role
type Role string

const (
	// RoleSystem represents a system message
	RoleSystem Role = "system"

	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message
	RoleAssistant Role = "assistant"

	// RoleTool represents the result of a tool invocation
	RoleTool Role = "tool"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// ToolCallRef is a tool invocation requested by an assistant message.
type ToolCallRef struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is a single conversation entry.
//
// Messages are treated as values: every mutation goes through a With* method
// that returns a new Message and leaves the receiver untouched.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Thinking       string         `json:"thinking,omitempty"`
	ToolCalls      []ToolCallRef  `json:"tool_calls,omitempty"`
	ToolCallID     string         `json:"tool_call_id,omitempty"`
	Name           string         `json:"name,omitempty"`
	TokenCount     int            `json:"token_count,omitempty"`
	SummaryID      string         `json:"summary_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func newMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return newMessage(RoleSystem, content)
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return newMessage(RoleUser, content)
}

// NewAssistantMessage creates an assistant message with optional tool calls.
func NewAssistantMessage(content string, calls ...ToolCallRef) *Message {
	msg := newMessage(RoleAssistant, content)
	if len(calls) > 0 {
		msg.ToolCalls = append([]ToolCallRef(nil), calls...)
	}
	return msg
}

// NewToolMessage creates a tool-role message answering the call identified by callID.
func NewToolMessage(callID, toolName, content string) *Message {
	msg := newMessage(RoleTool, content)
	msg.ToolCallID = callID
	msg.Name = toolName
	return msg
}

// HasToolCalls reports whether the message requests any tool invocation.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ToolCallIDs returns the ids of the tool calls carried by the message.
func (m *Message) ToolCallIDs() []string {
	ids := make([]string, 0, len(m.ToolCalls))
	for _, call := range m.ToolCalls {
		ids = append(ids, call.ID)
	}
	return ids
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	if m.ToolCalls != nil {
		c.ToolCalls = make([]ToolCallRef, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			c.ToolCalls[i] = ToolCallRef{ID: call.ID, Name: call.Name, Arguments: copyMap(call.Arguments)}
		}
	}
	c.Metadata = copyMap(m.Metadata)
	return &c
}

// WithContent returns a copy of the message with new content.
// The cached token count is dropped since it no longer applies.
func (m *Message) WithContent(content string) *Message {
	c := m.Clone()
	c.Content = content
	c.TokenCount = 0
	return c
}

// WithThinking returns a copy of the message carrying model reasoning.
// The cached token count is dropped since it no longer applies.
func (m *Message) WithThinking(thinking string) *Message {
	c := m.Clone()
	c.Thinking = thinking
	c.TokenCount = 0
	return c
}

// WithTokenCount returns a copy of the message carrying the given token estimate.
func (m *Message) WithTokenCount(n int) *Message {
	c := m.Clone()
	c.TokenCount = n
	return c
}

// WithSummaryID returns a copy of the message tagged as covered by a summary.
func (m *Message) WithSummaryID(summaryID string) *Message {
	c := m.Clone()
	c.SummaryID = summaryID
	return c
}

// WithMetadata returns a copy of the message with key set in its metadata.
func (m *Message) WithMetadata(key string, value any) *Message {
	c := m.Clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
	return c
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Conversation is the handle of a stored conversation.
type Conversation struct {
	ID      string `json:"id" yaml:"id"`
	AgentID string `json:"agent_id" yaml:"agent_id"`
}

// MetadataToolError marks a tool-role message whose call failed.
const MetadataToolError = "is_error"

// IsToolError reports whether a tool-role message records a failed call.
func (m *Message) IsToolError() bool {
	v, _ := m.Metadata[MetadataToolError].(bool)
	return v
}

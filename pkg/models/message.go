// Package models holds the wire-level data types shared across Tau's
// session store, provider clients, agent loop, and transport bridges.
package models

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType discriminates the polymorphic ContentBlock union.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockToolCall BlockType = "tool_call"
)

// ContentBlock is one element of a Message's content list. It is either a
// text block (Text set) or a tool-call block (ID/Name/Arguments set).
type ContentBlock struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// TextBlock constructs a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolCallBlock constructs a tool-call content block.
func ToolCallBlock(id, name string, arguments json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolCall, ID: id, Name: name, Arguments: arguments}
}

// Message is a tagged record with a role and an ordered list of content
// blocks. See spec §3: the text projection is the newline-joined
// concatenation of text blocks; tool calls are the filtered tool-call
// blocks.
type Message struct {
	Role       Role           `json:"role"`
	Content    []ContentBlock `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
}

// NewTextMessage builds a single-text-block message for the given role.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{TextBlock(text)}}
}

// Text returns the newline-joined concatenation of the message's text
// blocks, in order.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Content {
		if b.Type == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolCalls returns the tool-call blocks contained in the message, in
// order, filtering out text blocks.
func (m Message) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolCall {
			calls = append(calls, b)
		}
	}
	return calls
}

// Package providers implements the fallback provider chain (spec.md §4.A):
// a single "call the language model with tools" interface over an ordered
// list of back-end providers, with per-provider health tracking, cooldown,
// and automatic failover.
package providers

import (
	"context"

	"github.com/tailored-agentic-units/swarmcore/protocol"
)

// ChatOptions carries provider-specific call options (temperature, model
// override, and so on). Kept as a bag of any, mirroring the teacher's
// providers.ChatData/ToolsData option maps.
type ChatOptions map[string]any

// ChatResponse is the normalized shape returned by Chat.
type ChatResponse struct {
	Content string
	Model   string
	Tokens  int
}

// ToolsResponse is the normalized shape returned by ChatWithTools.
type ToolsResponse struct {
	Content   string
	ToolCalls []protocol.ToolCall
	Model     string
	Tokens    int
}

// Provider is a single language-model back-end. Implementations are opaque
// to the chain: it only ever calls Name/Priority/IsConfigured/Chat, and
// ChatWithTools when the provider also implements ToolCaller.
type Provider interface {
	Name() string
	Priority() int
	IsConfigured() bool
	Chat(ctx context.Context, messages []protocol.Message, opts ChatOptions) (*ChatResponse, error)
}

// ToolCaller is implemented by providers with native tool-calling support.
// Per spec.md §4.A: "If a provider advertises chatWithTools it is used
// directly; otherwise the chain degrades to chat with a flattened message
// list."
type ToolCaller interface {
	ChatWithTools(ctx context.Context, messages []protocol.Message, tools []protocol.Tool, opts ChatOptions) (*ToolsResponse, error)
}

// flattenToolsRequest renders a tools-capable request as a plain chat
// request for providers without native tool support: tool definitions are
// placed ahead of the conversation as a leading system-role message so a tool-naive
// model can still see what it could have called.
func flattenToolsRequest(messages []protocol.Message, tools []protocol.Tool) []protocol.Message {
	if len(tools) == 0 {
		return messages
	}

	flattened := make([]protocol.Message, 0, len(messages)+1)
	flattened = append(flattened, protocol.NewMessage(protocol.RoleSystem, describeTools(tools)))
	flattened = append(flattened, messages...)
	return flattened
}

func describeTools(tools []protocol.Tool) string {
	desc := "The following tools are available but must be invoked by name in plain text, this model has no native tool-calling support:\n"
	for _, t := range tools {
		desc += "- " + t.Name + ": " + t.Description + "\n"
	}
	return desc
}

package types

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // RoleSystem carries instructions for the model.
	RoleUser      MessageRole = "user"      // RoleUser carries the request content.
	RoleAssistant MessageRole = "assistant" // RoleAssistant carries a model reply.
)

// Message is a single chat message sent to or received from an LLM.
type Message struct {
	// Role is who produced the message.
	Role MessageRole

	// Content is the message text.
	Content string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// ModelInfo describes the model behind a provider.
type ModelInfo struct {
	// Metadata holds provider specific details such as a custom base URL.
	Metadata map[string]interface{}

	Name              string
	Provider          string
	MaxTokens         int
	SupportsStreaming bool
}

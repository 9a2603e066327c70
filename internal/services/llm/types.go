package llm

import (
	"fmt"
	"strings"

	"docpipe/internal/services"
)

// Message is one chat turn. Content is either a string or a []ContentPart.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multi-part (vision) message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image, typically as a data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// Tool declares a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is the chat-completion request body.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  any       `json:"tool_choice,omitempty"`
}

// Prompt is the single-exchange input used by pipeline stages.
type Prompt struct {
	Model     string
	System    string
	User      string
	MaxTokens int
}

// Request converts the prompt into a two-message request.
func (p Prompt) Request() Request {
	return Request{
		Model: p.Model,
		Messages: []Message{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		MaxTokens: p.MaxTokens,
	}
}

// Response is the decoded completion envelope.
type Response struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index   int             `json:"index"`
	Message ResponseMessage `json:"message"`
	// Some providers return the streaming schema even when stream=false.
	Delta        ResponseMessage `json:"delta"`
	Text         string          `json:"text"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant turn inside a choice.
type ResponseMessage struct {
	Role             string        `json:"role,omitempty"`
	Content          string        `json:"content"`
	ReasoningContent string        `json:"reasoning_content"`
	Refusal          string        `json:"refusal"`
	ToolCalls        []ToolCall    `json:"tool_calls"`
	FunctionCall     *FunctionCall `json:"function_call"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	Type     string       `json:"type"`
	ID       string       `json:"id"`
	Index    int          `json:"index"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the raw JSON arguments of a call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage reports token accounting when the provider includes it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Content returns the first usable text in the envelope: message content,
// then reasoning content, then function or tool-call arguments.
func (r *Response) Content() (string, error) {
	if r == nil || len(r.Choices) == 0 {
		return "", services.Wrap(services.ErrEmptyOutput, "llm", "content", "response has no choices", nil)
	}
	var finishReason, refusal string
	for _, choice := range r.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if content := firstNonEmpty(
			choice.Message.Content,
			choice.Delta.Content,
			choice.Text,
			choice.Message.ReasoningContent,
			choice.Delta.ReasoningContent,
		); content != "" {
			return content, nil
		}
		if args := firstNonEmpty(
			functionCallArguments(choice.Message.FunctionCall),
			functionCallArguments(choice.Delta.FunctionCall),
			toolCallArguments(choice.Message.ToolCalls),
			toolCallArguments(choice.Delta.ToolCalls),
		); args != "" {
			return args, nil
		}
	}
	return "", services.Wrap(services.ErrEmptyOutput, "llm", "content",
		fmt.Sprintf("no content (finish_reason=%q, refusal=%q)", finishReason, refusal), nil)
}

func functionCallArguments(fc *FunctionCall) string {
	if fc == nil {
		return ""
	}
	return strings.TrimSpace(fc.Arguments)
}

func toolCallArguments(calls []ToolCall) string {
	for _, call := range calls {
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			return args
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

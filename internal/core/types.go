package core

import (
	"bytes"
	"encoding/json"
)

// Message roles used when building upstream requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content part types for multi-part messages.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// DentalRequest is the inbound body of the dental analysis endpoint.
type DentalRequest struct {
	Image string `json:"image"`
}

// EyeTestRequest is the inbound body of the eye-test analysis endpoint.
type EyeTestRequest struct {
	Image    string `json:"image"`
	TestType string `json:"testType"`
}

// PrescriptionRequest is the inbound body of the prescription endpoint.
type PrescriptionRequest struct {
	ImageURL          string   `json:"imageUrl"`
	ExistingMedicines []string `json:"existingMedicines,omitempty"`
}

// ChatRequest is the inbound body of the health chat endpoint.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// Message is one entry of a chat conversation.
// Content is either a string or a []ContentPart.
//
// A message decoded from a caller's request keeps its original JSON and is
// marshaled back unchanged, including fields not declared here.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`

	raw json.RawMessage
}

// message has the fields of Message without its JSON methods.
type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// UnmarshalJSON decodes role and content and retains the original bytes.
func (m *Message) UnmarshalJSON(data []byte) error {
	var decoded message
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return err
	}
	m.Role = decoded.Role
	m.Content = decoded.Content
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the retained bytes of a decoded message, or role and
// content for one built in code.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	return json.Marshal(message{Role: m.Role, Content: m.Content})
}

// ContentPart is one part of a multi-part message (text or image).
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL holds an image reference (data URL or remote URL) and optional detail level.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart builds an image content part.
func ImagePart(url, detail string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: url, Detail: detail}}
}

// ChatCompletionRequest is the body sent to the upstream completions API.
type ChatCompletionRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens *int      `json:"max_tokens,omitempty"`
	Stream    bool      `json:"stream,omitempty"`
}

// WithStreaming returns a shallow copy of the request with Stream set to true.
func (r *ChatCompletionRequest) WithStreaming() *ChatCompletionRequest {
	return &ChatCompletionRequest{
		Model:     r.Model,
		Messages:  r.Messages,
		MaxTokens: r.MaxTokens,
		Stream:    true,
	}
}

// AnalysisResponse is the success envelope of the non-streaming endpoints.
type AnalysisResponse struct {
	Analysis string `json:"analysis"`
}

// ErrorResponse is the failure envelope of every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

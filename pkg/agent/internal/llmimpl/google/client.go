// Package google implements structured completions on Gemini with a response schema.
package google

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
	"github.com/Flagro/holosophos-erc3/pkg/tools"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient.
type GeminiClient struct {
	client    *genai.Client
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
}

// NewGeminiClient stores the configuration; the SDK client is created on first use
// because it needs a context.
func NewGeminiClient(cfg llm.LLMConfig) (*GeminiClient, error) {
	if err := cfg.Validate(false); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &GeminiClient{
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
		model:     cfg.ModelName,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (g *GeminiClient) ensureClient(ctx context.Context) error {
	if g.client != nil {
		return nil
	}
	clientConfig := &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	g.client = client
	return nil
}

//nolint:gocritic // CompletionRequest passed by value per interface
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if in.Schema.Schema == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "gemini: request has no response schema")
	}
	contents, systemInstruction, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}
	if err := g.ensureClient(ctx); err != nil {
		return llm.CompletionResponse{}, err
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens:  int32(maxTokens), //nolint:gosec // bounded by config validation
		ResponseMIMEType: "application/json",
		ResponseSchema:   convertPropertyToGeminiSchema(in.Schema.Schema),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil || len(result.Candidates) == 0 {
		if result != nil && result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
			return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeRefusal,
				fmt.Sprintf("Gemini blocked the prompt: %s", result.PromptFeedback.BlockReason))
		}
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	finish := result.Candidates[0].FinishReason
	if finish == genai.FinishReasonSafety || finish == genai.FinishReasonProhibitedContent {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeRefusal, fmt.Sprintf("Gemini stopped: %s", finish))
	}
	text := result.Text()
	if text == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
			fmt.Sprintf("Gemini returned no text (finish_reason=%s)", finish))
	}

	resp := llm.CompletionResponse{Content: []byte(text), StopReason: string(finish)}
	if u := result.UsageMetadata; u != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessagesToGemini converts the conversation to Gemini contents. Tool calls and
// results are flattened to text and consecutive turns of the same role are merged.
func convertMessagesToGemini(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content
	add := func(role, text string) {
		if text == "" {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, &genai.Part{Text: text})
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}})
	}

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			if systemInstruction != "" {
				systemInstruction += "\n\n"
			}
			systemInstruction += msg.Content
		case llm.RoleUser:
			add(roleUser, msg.Content)
		case llm.RoleAssistant:
			add(roleModel, llm.FlattenToolCall(*msg))
		case llm.RoleTool:
			add(roleUser, llm.FlattenToolResult(*msg))
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	if len(contents) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}
	return contents, systemInstruction, nil
}

// convertPropertyToGeminiSchema recursively converts a Property to Gemini schema format.
func convertPropertyToGeminiSchema(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{Description: prop.Description}

	if len(prop.AnyOf) > 0 {
		for _, v := range prop.AnyOf {
			schema.AnyOf = append(schema.AnyOf, convertPropertyToGeminiSchema(v))
		}
		return schema
	}

	switch prop.Type {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertPropertyToGeminiSchema(prop.Items)
		}
		if prop.MinItems != nil {
			schema.MinItems = genai.Ptr(int64(*prop.MinItems))
		}
		if prop.MaxItems != nil {
			schema.MaxItems = genai.Ptr(int64(*prop.MaxItems))
		}
	case "object":
		schema.Type = genai.TypeObject
		schema.Properties = make(map[string]*genai.Schema, len(prop.Properties))
		for name, child := range prop.Properties {
			if child != nil {
				schema.Properties[name] = convertPropertyToGeminiSchema(child)
			}
		}
		schema.Required = prop.Required
		schema.PropertyOrdering = prop.Required
	default:
		schema.Type = genai.TypeString
	}

	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}
	if prop.Nullable {
		schema.Nullable = genai.Ptr(true)
	}
	return schema
}

func classifyError(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch apiErr := any(e).(type) {
		case genai.APIError:
			return llmerrors.Classify(err, apiErr.Code)
		case *genai.APIError:
			return llmerrors.Classify(err, apiErr.Code)
		}
	}
	return llmerrors.Classify(err, 0)
}

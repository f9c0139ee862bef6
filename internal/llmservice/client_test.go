package llmservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"study-rag/internal/config"
)

type recordingModel struct {
	messages  []llms.MessageContent
	streaming bool
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	m.streaming = opts.StreamingFunc != nil
	if m.streaming {
		if err := opts.StreamingFunc(ctx, []byte("hi")); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "hi"}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestGenerateContent_SingleHumanMessage(t *testing.T) {
	model := &recordingModel{}

	resp, err := GenerateContent(context.Background(), model, "what is a chunk?", nil)

	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Choices[0].Content)
	require.Len(t, model.messages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[0].Role)
	assert.Equal(t, llms.TextContent{Text: "what is a chunk?"}, model.messages[0].Parts[0])
	assert.False(t, model.streaming)
}

func TestGenerateContent_Streaming(t *testing.T) {
	model := &recordingModel{}
	var got []string

	_, err := GenerateContent(context.Background(), model, "q", func(_ context.Context, chunk []byte) error {
		got = append(got, string(chunk))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, model.streaming)
	assert.Equal(t, []string{"hi"}, got)
}

func TestNewChatModel(t *testing.T) {
	m, err := NewChatModel(&config.LLMConfig{Provider: "ollama", BaseURL: config.DefaultOllamaURL, Model: config.DefaultChatModel})
	require.NoError(t, err)
	assert.NotNil(t, m)

	m, err = NewChatModel(&config.LLMConfig{Provider: "openai", BaseURL: "http://localhost:1234/v1", Key: "Bearer sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = NewChatModel(&config.LLMConfig{Provider: "telepathy"})
	assert.Error(t, err)
}

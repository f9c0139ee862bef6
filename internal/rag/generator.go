package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"study-rag/internal/config"
	"study-rag/internal/llmservice"
	"study-rag/internal/models"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// ErrEmptyAnswer is returned when the model produced no text.
var ErrEmptyAnswer = errors.New("model returned an empty response")

// Generator composes the prompt and calls the chat model.
type Generator struct {
	model        llms.Model
	modelName    string
	stream       bool
	historyTurns int
}

func NewGenerator(model llms.Model, llmConfig config.LLMConfig, historyTurns int) *Generator {
	if historyTurns <= 0 {
		historyTurns = config.DefaultHistoryTurns
	}
	return &Generator{
		model:        model,
		modelName:    llmConfig.Model,
		stream:       llmConfig.Stream,
		historyTurns: historyTurns,
	}
}

func (g *Generator) ModelName() string { return g.modelName }

// BuildPrompt embeds the context verbatim, the last turns of recent, the
// answering instructions and the question.
func (g *Generator) BuildPrompt(retrieved, question string, recent []models.Turn) string {
	if len(recent) > g.historyTurns {
		recent = recent[len(recent)-g.historyTurns:]
	}

	var history strings.Builder
	if len(recent) > 0 {
		history.WriteString("\n")
		history.WriteString(models.HistoryHeader)
		for _, t := range recent {
			history.WriteString("Q: " + t.Question + "\n")
			history.WriteString("A: " + t.Answer + "\n")
		}
	}

	return fmt.Sprintf(models.PromptTemplate, retrieved, history.String(), question)
}

// Generate asks the model and returns the full answer with the source suffix.
// In streaming mode the visible text (think blocks removed) is passed to
// onFragment (if set) in arrival order; the stream is always drained before
// returning.
func (g *Generator) Generate(ctx context.Context, retrieved, question string, recent []models.Turn, onFragment func(string) error) (string, error) {
	prompt := g.BuildPrompt(retrieved, question, recent)
	log.Debug().Str("model", g.modelName).Int("prompt_chars", len(prompt)).Bool("stream", g.stream).Msg("Generating answer")

	var streamed strings.Builder
	var onChunk func(context.Context, []byte) error
	if g.stream {
		emitted := 0
		onChunk = func(_ context.Context, chunk []byte) error {
			streamed.Write(chunk)
			if onFragment == nil {
				return nil
			}
			visible := visibleText(streamed.String())
			if len(visible) <= emitted {
				return nil
			}
			fragment := visible[emitted:]
			emitted = len(visible)
			return onFragment(fragment)
		}
	}

	resp, err := llmservice.GenerateContent(ctx, g.model, prompt, onChunk)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := streamed.String()
	if answer == "" && resp != nil && len(resp.Choices) > 0 {
		answer = resp.Choices[0].Content
	}
	answer = strings.TrimSpace(thinkRe.ReplaceAllString(answer, ""))
	if answer == "" {
		return "", ErrEmptyAnswer
	}

	log.Info().Int("answer_chars", len(answer)).Msg("Answer generated")
	return answer + models.SourceSuffix, nil
}

// visibleText is the part of a partial response that can be shown: complete
// think blocks are removed and output stops at an unclosed or partially
// received opening tag. It only grows as the response grows.
func visibleText(s string) string {
	s = thinkRe.ReplaceAllString(s, "")
	if i := strings.Index(s, models.ThinkOpenTag); i >= 0 {
		return s[:i]
	}
	for n := len(models.ThinkOpenTag) - 1; n > 0; n-- {
		if strings.HasSuffix(s, models.ThinkOpenTag[:n]) {
			return s[:len(s)-n]
		}
	}
	return s
}

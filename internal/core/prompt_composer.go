// ABOUTME: PromptComposer assembles the model input from context, chat history and the question
// ABOUTME: Enforces the prompt budget by dropping the oldest history turns first
package core

import (
	"strings"
	"unicode/utf8"

	"github.com/harper/ragchat/internal/models"
)

// CharsPerToken approximates token count from character count
const CharsPerToken = 4

// DefaultMaxPromptTokens is the prompt budget when none is configured
const DefaultMaxPromptTokens = 12000

// SystemPrompt opens every composed prompt
const SystemPrompt = "You are a helpful assistant. Use the following context to answer the user's question."

// PromptComposer builds prompts within a fixed budget
type PromptComposer struct {
	maxChars int
}

// ComposedPrompt is a prompt plus what truncation did to it
type ComposedPrompt struct {
	Text            string
	TurnsIncluded   int
	TurnsDropped    int
	EstimatedTokens int
}

// NewPromptComposer creates a composer with a budget of maxTokens.
// maxTokens <= 0 disables the budget.
func NewPromptComposer(maxTokens int) *PromptComposer {
	return &PromptComposer{maxChars: maxTokens * CharsPerToken}
}

// EstimateTokens approximates the token count of s
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + CharsPerToken - 1) / CharsPerToken
}

// Compose lays out the prompt as system prompt, context, history, question.
// When over budget, history turns are dropped oldest first; the context and the
// question are never cut. If the prompt still does not fit, a
// *models.PromptTooLargeError is returned.
func (pc *PromptComposer) Compose(contextText string, history []models.ConversationTurn, question string) (*ComposedPrompt, error) {
	lines := make([]string, len(history))
	for i, turn := range history {
		lines[i] = renderTurn(turn)
	}

	// Fixed part size plus history lines joined by "\n"
	fixed := utf8.RuneCountInString(assemble(contextText, "", question))
	historyChars := 0
	for _, line := range lines {
		historyChars += utf8.RuneCountInString(line) + 1
	}
	if len(lines) > 0 {
		historyChars--
	}

	start := 0
	if pc.maxChars > 0 {
		for start < len(lines) && fixed+historyChars > pc.maxChars {
			historyChars -= utf8.RuneCountInString(lines[start])
			if start < len(lines)-1 {
				historyChars--
			}
			start++
		}
		if fixed+historyChars > pc.maxChars {
			return nil, &models.PromptTooLargeError{Size: fixed, Limit: pc.maxChars}
		}
	}

	text := assemble(contextText, strings.Join(lines[start:], "\n"), question)
	return &ComposedPrompt{
		Text:            text,
		TurnsIncluded:   len(lines) - start,
		TurnsDropped:    start,
		EstimatedTokens: EstimateTokens(text),
	}, nil
}

func assemble(contextText, history, question string) string {
	var sb strings.Builder
	sb.WriteString("SYSTEM:\n")
	sb.WriteString(SystemPrompt)
	sb.WriteString("\n\nCONTEXT:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nCHAT HISTORY:\n")
	sb.WriteString(history)
	sb.WriteString("\n\nQUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n")
	return sb.String()
}

// Heuristic token estimation.
//
// Exact tokenization is a non-goal: the estimate only has to be monotonic
// in content length and conservative enough to keep trimmed histories
// inside a model's context window. The heuristic follows the usual
// chars-per-token approximation, with a higher ratio for CJK scripts
// where most tokenizers emit roughly one token per character.

package llm

import (
	"unicode"
	"unicode/utf8"
)

const (
	// latinCharsPerToken approximates ~0.25 tokens per character for
	// Latin-script text.
	latinCharsPerToken = 4

	// messageOverheadTokens covers role and separator tokens for
	// system/user/assistant messages.
	messageOverheadTokens = 4

	// toolOverheadTokens covers the heavier structure of tool calls
	// and tool results.
	toolOverheadTokens = 10

	// conversationOverheadTokens is the fixed per-request framing cost.
	conversationOverheadTokens = 3
)

// EstimateTokens estimates the token count of a text fragment.
// Empty text estimates to zero.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	runes := utf8.RuneCountInString(text)
	if containsCJK(text) {
		return runes
	}
	return runes / latinCharsPerToken
}

// EstimateMessage estimates the token count of a single message,
// including its fixed per-message overhead. Empty content yields the
// overhead only.
func EstimateMessage(msg ChatMessage) int {
	overhead := messageOverheadTokens
	if msg.Role == "tool" || len(msg.ToolCalls) > 0 {
		overhead = toolOverheadTokens
	}

	total := overhead + EstimateTokens(msg.Content)
	for _, tc := range msg.ToolCalls {
		total += EstimateTokens(tc.Name)
		total += EstimateTokens(string(tc.Arguments))
	}
	return total
}

// EstimateMessages estimates the token count of a full message list,
// including the fixed conversation overhead.
func EstimateMessages(messages []ChatMessage) int {
	total := conversationOverheadTokens
	for _, msg := range messages {
		total += EstimateMessage(msg)
	}
	return total
}

// containsCJK reports whether the text contains any CJK-family runes
// (Han, Hiragana, Katakana, Hangul).
func containsCJK(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) ||
			unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) ||
			unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

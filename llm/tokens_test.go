package llm

import "testing"

func TestEstimateTokensEmpty(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
}

func TestEstimateTokensLatin(t *testing.T) {
	// 8 runes at 4 chars per token
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("EstimateTokens = %d, want 2", got)
	}
}

func TestEstimateTokensCJK(t *testing.T) {
	// CJK text estimates one token per rune
	if got := EstimateTokens("你好世界"); got != 4 {
		t.Errorf("EstimateTokens = %d, want 4", got)
	}
}

func TestEstimateTokensMixedUsesCJKRate(t *testing.T) {
	// Any CJK rune switches the whole fragment to the CJK rate
	text := "hello 世界"
	if got := EstimateTokens(text); got != 8 {
		t.Errorf("EstimateTokens = %d, want 8", got)
	}
}

func TestEstimateTokensMonotonic(t *testing.T) {
	short := EstimateTokens("some short message here")
	long := EstimateTokens("some short message here, now padded with considerably more words")
	if long < short {
		t.Errorf("longer text estimated below shorter: %d < %d", long, short)
	}
}

func TestEstimateMessageOverhead(t *testing.T) {
	// Plain message: per-message overhead plus content estimate
	msg := UserMessage("abcdefgh")
	if got := EstimateMessage(msg); got != messageOverheadTokens+2 {
		t.Errorf("EstimateMessage = %d, want %d", got, messageOverheadTokens+2)
	}

	// Empty content yields the overhead only
	if got := EstimateMessage(UserMessage("")); got != messageOverheadTokens {
		t.Errorf("EstimateMessage(empty) = %d, want %d", got, messageOverheadTokens)
	}
}

func TestEstimateMessageToolOverhead(t *testing.T) {
	toolResult := ChatMessage{Role: "tool", Content: "abcd", ToolCallID: "call-1"}
	if got := EstimateMessage(toolResult); got != toolOverheadTokens+1 {
		t.Errorf("EstimateMessage(tool) = %d, want %d", got, toolOverheadTokens+1)
	}

	// Assistant message carrying tool calls counts name and arguments
	withCalls := ChatMessage{
		Role: "assistant",
		ToolCalls: []ToolCall{
			{ID: "call-1", Name: "search", Arguments: []byte(`{"q":"abc"}`)},
		},
	}
	want := toolOverheadTokens + EstimateTokens("search") + EstimateTokens(`{"q":"abc"}`)
	if got := EstimateMessage(withCalls); got != want {
		t.Errorf("EstimateMessage(tool calls) = %d, want %d", got, want)
	}
}

func TestEstimateMessagesConversationOverhead(t *testing.T) {
	if got := EstimateMessages(nil); got != conversationOverheadTokens {
		t.Errorf("EstimateMessages(nil) = %d, want %d", got, conversationOverheadTokens)
	}

	messages := []ChatMessage{UserMessage("abcdefgh")}
	want := conversationOverheadTokens + messageOverheadTokens + 2
	if got := EstimateMessages(messages); got != want {
		t.Errorf("EstimateMessages = %d, want %d", got, want)
	}
}

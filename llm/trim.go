// Conversation trimming under a token budget.
//
// The trimmer keeps the first system message (when asked to) and the
// longest suffix of the remaining history that fits the budget, so the
// result is always chronologically ordered and biased toward recency.
// Individual messages are never partially truncated.

package llm

// Trim reduces messages to fit within maxTokens estimated tokens.
//
// If the full history already fits, the input slice is returned
// unchanged. Otherwise the first system message is retained when
// preserveSystem is set, and remaining messages are kept newest-first
// until the budget would be exceeded. If even the system message alone
// exceeds the budget, the result is just the system message.
func Trim(messages []ChatMessage, maxTokens int, preserveSystem bool) []ChatMessage {
	if EstimateMessages(messages) <= maxTokens {
		return messages
	}

	var system *ChatMessage
	rest := messages
	if preserveSystem {
		for i := range messages {
			if messages[i].Role == "system" {
				system = &messages[i]
				rest = make([]ChatMessage, 0, len(messages)-1)
				rest = append(rest, messages[:i]...)
				rest = append(rest, messages[i+1:]...)
				break
			}
		}
	}

	total := conversationOverheadTokens
	if system != nil {
		total += EstimateMessage(*system)
	}

	// Walk newest to oldest, stopping before the first message that
	// would blow the budget.
	keepFrom := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		cost := EstimateMessage(rest[i])
		if total+cost > maxTokens {
			break
		}
		total += cost
		keepFrom = i
	}

	result := make([]ChatMessage, 0, 1+len(rest)-keepFrom)
	if system != nil {
		result = append(result, *system)
	}
	result = append(result, rest[keepFrom:]...)
	return result
}

package testutil

import (
	"fmt"
	"strings"

	"github.com/youssefsiam38/agentloop/types"
)

// Conversation builds n alternating user/assistant messages whose contents
// are words repeated to the given size in characters.
func Conversation(n, size int) []*types.Message {
	msgs := make([]*types.Message, 0, n)
	for i := 0; i < n; i++ {
		content := Filler(fmt.Sprintf("message %d", i), size)
		if i%2 == 0 {
			msgs = append(msgs, types.NewUserMessage(content))
		} else {
			msgs = append(msgs, types.NewAssistantMessage(content))
		}
	}
	return msgs
}

// Filler pads prefix with plain words up to size characters.
func Filler(prefix string, size int) string {
	var b strings.Builder
	b.WriteString(prefix)
	for b.Len() < size {
		b.WriteString(" lorem ipsum")
	}
	return b.String()[:max(size, len(prefix))]
}

// ToolExchange returns an assistant message calling name and its result.
func ToolExchange(callID, name, result string) []*types.Message {
	return []*types.Message{
		types.NewAssistantMessage("", types.ToolCallRef{ID: callID, Name: name, Arguments: map[string]any{}}),
		types.NewToolMessage(callID, name, result),
	}
}

// IDs returns the ids of msgs in order.
func IDs(msgs []*types.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

package compaction

import (
	"fmt"
	"strings"

	"github.com/youssefsiam38/agentloop/types"
)

// DefaultSystemPrompt is the summarization instruction. The %d verb receives
// the target summary length in tokens.
const DefaultSystemPrompt = `You are a conversation summarizer for an AI agent system. Your task is to write a summary that will replace the original messages while preserving all context needed to continue the conversation.

Keep the summary under %d tokens. Use the following sections as markdown "##" headings. If a section has no relevant content, write "None".

## Request and Intent
The user's goals, constraints and requirements.

## Key Facts
Names, values, identifiers, decisions and technical details established so far.

## Tool Activity
Tools that were called, what they returned, and any errors.

## Open Questions
Anything unresolved or awaiting an answer.

## Current State
What was being worked on when the conversation was summarized and the next step.

## Guidelines
- Preserve exact names, numbers, paths and identifiers.
- Prefer facts over narration. Do not invent information.
- Write in the third person ("The user asked...", "The assistant ran...").`

// SystemPromptFor returns the system instruction for the given target length.
// An empty template uses DefaultSystemPrompt. A template without a %d verb
// gets the target appended.
func SystemPromptFor(template string, targetTokens int) string {
	if template == "" {
		template = DefaultSystemPrompt
	}
	if strings.Contains(template, "%d") {
		return fmt.Sprintf(template, targetTokens)
	}
	return fmt.Sprintf("%s\n\nKeep the summary under %d tokens.", template, targetTokens)
}

// BuildUserPrompt creates the user prompt for summarizing conversation text.
func BuildUserPrompt(conversationText string) string {
	return `Summarize the following conversation:

<conversation_to_summarize>
` + conversationText + `
</conversation_to_summarize>

Follow the section format exactly.`
}

// BuildUserPromptWithContext creates a user prompt that includes an earlier
// summary. The new summary must cover both.
func BuildUserPromptWithContext(previousSummary, conversationText string) string {
	return `An earlier part of this conversation was already summarized:

<previous_context>
` + previousSummary + `
</previous_context>

Summarize the following continuation. The summary must also carry forward everything from the previous context that is still relevant:

<conversation_to_summarize>
` + conversationText + `
</conversation_to_summarize>

Follow the section format exactly.`
}

// FormatMessages renders messages as "<Role>: <content>" blocks separated by
// blank lines. Assistant tool calls are appended as "[Called tools: a, b]"
// and tool results are labeled "Tool (<name>)".
func FormatMessages(messages []*types.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		line := formatMessage(msg)
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(line)
	}
	return b.String()
}

func formatMessage(msg *types.Message) string {
	content := strings.TrimSpace(msg.Content)

	switch msg.Role {
	case types.RoleTool:
		name := msg.Name
		if name == "" {
			name = "unknown"
		}
		label := fmt.Sprintf("Tool (%s)", name)
		if msg.IsToolError() {
			label += " [error]"
		}
		return label + ": " + content
	case types.RoleAssistant:
		if msg.HasToolCalls() {
			names := make([]string, len(msg.ToolCalls))
			for i, call := range msg.ToolCalls {
				names[i] = call.Name
			}
			calls := "[Called tools: " + strings.Join(names, ", ") + "]"
			if content == "" {
				return "Assistant: " + calls
			}
			return "Assistant: " + content + "\n" + calls
		}
	}

	if content == "" {
		return ""
	}
	return roleLabel(msg.Role) + ": " + content
}

func roleLabel(role types.Role) string {
	switch role {
	case types.RoleSystem:
		return "System"
	case types.RoleAssistant:
		return "Assistant"
	case types.RoleTool:
		return "Tool"
	default:
		return "User"
	}
}

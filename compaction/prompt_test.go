package compaction

import (
	"strings"
	"testing"

	"github.com/youssefsiam38/agentloop/types"
)

func TestFormatMessages(t *testing.T) {
	failed := types.NewToolMessage("call_2", "shell", "exit status 1").WithMetadata(types.MetadataToolError, true)

	tests := []struct {
		name     string
		messages []*types.Message
		expected string
	}{
		{
			name:     "roles",
			messages: []*types.Message{types.NewSystemMessage("be brief"), types.NewUserMessage("hi"), types.NewAssistantMessage("hello")},
			expected: "System: be brief\n\nUser: hi\n\nAssistant: hello",
		},
		{
			name: "tool calls without text",
			messages: []*types.Message{
				types.NewAssistantMessage("", types.ToolCallRef{ID: "call_1", Name: "search"}, types.ToolCallRef{ID: "call_2", Name: "shell"}),
			},
			expected: "Assistant: [Called tools: search, shell]",
		},
		{
			name: "tool calls with text",
			messages: []*types.Message{
				types.NewAssistantMessage("Let me check.", types.ToolCallRef{ID: "call_1", Name: "search"}),
			},
			expected: "Assistant: Let me check.\n[Called tools: search]",
		},
		{
			name:     "tool results",
			messages: []*types.Message{types.NewToolMessage("call_1", "search", "sunny"), failed},
			expected: "Tool (search): sunny\n\nTool (shell) [error]: exit status 1",
		},
		{
			name:     "empty messages are skipped",
			messages: []*types.Message{types.NewUserMessage("  "), types.NewUserMessage("hi")},
			expected: "User: hi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMessages(tt.messages); got != tt.expected {
				t.Errorf("FormatMessages() =\n%q\nwant\n%q", got, tt.expected)
			}
		})
	}
}

func TestSystemPromptFor(t *testing.T) {
	if got := SystemPromptFor("", 512); !strings.Contains(got, "under 512 tokens") || strings.Contains(got, "%d") {
		t.Errorf("default prompt not formatted: %q", got)
	}
	if got := SystemPromptFor("Summarize in %d tokens.", 100); got != "Summarize in 100 tokens." {
		t.Errorf("template prompt = %q", got)
	}
	if got := SystemPromptFor("Summarize.", 100); got != "Summarize.\n\nKeep the summary under 100 tokens." {
		t.Errorf("plain prompt = %q", got)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	plain := BuildUserPrompt("User: hi")
	if !strings.Contains(plain, "<conversation_to_summarize>\nUser: hi\n</conversation_to_summarize>") {
		t.Errorf("unexpected prompt: %q", plain)
	}
	if strings.Contains(plain, "<previous_context>") {
		t.Error("plain prompt should not carry previous context")
	}

	withContext := BuildUserPromptWithContext("## Key Facts\nx", "User: hi")
	if !strings.Contains(withContext, "<previous_context>\n## Key Facts\nx\n</previous_context>") {
		t.Errorf("unexpected prompt: %q", withContext)
	}
}

func TestExtractSections(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		expected []string
	}{
		{
			name:     "default format",
			markdown: "## Request and Intent\nfoo\n\n## Key Facts\n- a\n- b\n\n### Detail\nbar",
			expected: []string{"Request and Intent", "Key Facts"},
		},
		{
			name:     "inline formatting",
			markdown: "# Summary\n\n## The `shell` tool\ntext",
			expected: []string{"Summary", "The shell tool"},
		},
		{
			name:     "no headings",
			markdown: "Just a paragraph.",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSections(tt.markdown)
			if len(got) != len(tt.expected) {
				t.Fatalf("ExtractSections() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("section %d = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

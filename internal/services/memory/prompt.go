package memory

import (
	"fmt"
	"strings"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/platform/llm"
)

const noSummary = "No summary."

const summaryInstruction = `You are a memory manager for an AI assistant. Update the conversation summary based on the recent interaction.
Keep important details: the customer's name, preferences, sizes, orders and order ids, style and intent.
Drop greetings and small talk. Write a condensed summary only, with no preamble.`

// SummaryPrompt folds the current summary and the newest turns into the
// instruction sent to the LLM.
func SummaryPrompt(current string, window []*types.Message) []llm.Message {
	current = strings.TrimSpace(current)
	if current == "" {
		current = noSummary
	}
	var b strings.Builder
	b.WriteString(summaryInstruction)
	b.WriteString("\n\nCurrent Summary: ")
	b.WriteString(current)
	b.WriteString("\n\nRecent Interaction:\n")
	for _, m := range window {
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, renderContent(m))
	}
	return []llm.Message{llm.User(b.String())}
}

// renderContent shows a media-only turn as a placeholder so the model still
// sees that something was shared.
func renderContent(m *types.Message) string {
	content := strings.TrimSpace(m.Content)
	if url := mediaURL(m); url != "" {
		if content == "" {
			return "[shared an image: " + url + "]"
		}
		return content + " [image: " + url + "]"
	}
	return content
}

package chat

import (
	"fmt"
	"strings"

	"modelcore/internal/intent"
	"modelcore/internal/provider"
)

// Context item types.
const (
	ItemCode  = "code"
	ItemImage = "image"
)

// ContextItem is one piece of supporting material attached to a prompt.
type ContextItem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// Document is a named reference document attached to a prompt.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// BuildPrompt produces the context-annotated prompt sent to the provider:
// a context block built from items and documents, the original request, and
// an intent-specific instruction suffix. The caller persists the original
// prompt, never this annotated form.
func BuildPrompt(prompt string, items []ContextItem, documents []Document, intentLabel string) string {
	var b strings.Builder

	if len(items) > 0 || len(documents) > 0 {
		b.WriteString("## Context\n\n")
		for _, item := range items {
			switch item.Type {
			case ItemCode:
				title := item.Title
				if title == "" {
					title = "code"
				}
				fmt.Fprintf(&b, "### %s\n```%s\n%s\n```\n\n", title, item.Language, item.Content)
			case ItemImage:
				fmt.Fprintf(&b, "### %s (image)\n%s\n\n", item.Title, item.Content)
			default:
				if item.Title != "" {
					fmt.Fprintf(&b, "### %s\n", item.Title)
				}
				b.WriteString(item.Content)
				b.WriteString("\n\n")
			}
		}
		for _, doc := range documents {
			fmt.Fprintf(&b, "### Document: %s\n%s\n\n", doc.Name, doc.Content)
		}
		b.WriteString("## Request\n\n")
	}

	b.WriteString(prompt)

	if suffix := intent.InstructionSuffix(intentLabel); suffix != "" {
		b.WriteString("\n\n")
		b.WriteString(suffix)
	}
	return b.String()
}

// AssembleMessages builds the ordered message list for a provider call:
// the system prompt once at the head, prior turns in order, then the new
// user turn. History entries with a system role are dropped so the head
// injection stays the single source of the system prompt.
func AssembleMessages(history []provider.Message, userPrompt, systemPrompt string) []provider.Message {
	messages := make([]provider.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, provider.Message{Role: "system", Content: systemPrompt})
	}
	for _, turn := range history {
		if turn.Role == "system" {
			continue
		}
		messages = append(messages, turn)
	}
	messages = append(messages, provider.Message{Role: "user", Content: userPrompt})
	return messages
}

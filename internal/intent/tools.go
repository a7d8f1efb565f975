package intent

import (
	"github.com/snarkbot/snark/internal/provider"
)

// toolNames map tool-call names to capabilities.
var toolNames = map[string]Capability{
	"web_search":          CapSearch,
	"generate_image":      CapImage,
	"create_document":     CapDocument,
	"create_file":         CapFile,
	"create_poll":         CapPoll,
	"pin_message":         CapPin,
	"search_chat_history": CapHistory,
	"get_all_users":       CapUsers,
}

// Tools returns the capability tool definitions offered to the model.
// Plain conversation is the absence of a tool call, so chat has no entry.
func Tools() []provider.Tool {
	return []provider.Tool{
		{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "web_search",
				Description: "Search the web. Use broadly -- any question about current events, news, prices, weather, scores, facts you're unsure about, or anything that benefits from real-time info. When in doubt, search.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string", "description": "The search query"},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "generate_image",
				Description: "Generate an image. Use whenever someone wants a picture, drawing, render, meme, artwork, visualization, or anything visual created. Casual phrasing counts -- 'draw me', 'make a pic of', 'show me what X looks like', etc.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"prompt": map[string]any{"type": "string", "description": "Description of the image to generate"},
					},
					"required": []string{"prompt"},
				},
			},
		},
		{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "create_document",
				Description: "Create a document and upload it: a written brief, a slide outline, or a data sheet. Use when someone wants a report, a deck, slides, a writeup, or a structured document. Set research=true when the topic needs current information.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"kind":     map[string]any{"type": "string", "enum": []string{"brief", "slides", "sheet"}, "description": "Document kind (default brief)"},
						"topic":    map[string]any{"type": "string", "description": "What the document is about"},
						"filename": map[string]any{"type": "string", "description": "Output filename (optional)"},
						"research": map[string]any{"type": "boolean", "description": "Run a web search pass before writing"},
					},
					"required": []string{"topic"},
				},
			},
		},
		{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "create_file",
				Description: "Create a plain text file and upload it. Use for text-based files (scripts, configs, notes, code, markdown). For structured documents use create_document instead.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"filename":    map[string]any{"type": "string", "description": "The filename including extension (e.g. 'script.py', 'notes.txt', 'config.yaml')"},
						"content":     map[string]any{"type": "string", "description": "The full content of the file"},
						"description": map[string]any{"type": "string", "description": "A brief message to send along with the file"},
					},
					"required": []string{"filename", "content"},
				},
			},
		},
		{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "create_poll",
				Description: "Create a poll. Use when someone wants a vote, poll, survey, 'let's settle this', 'what does everyone think', or any situation where a group decision would help.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{"type": "string", "description": "The poll question (max 300 chars)"},
						"answers": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "List of answer options (2-10 options, each max 55 chars)",
						},
						"duration_hours": map[string]any{"type": "integer", "description": "How long the poll runs in hours (1-168, default 24)"},
					},
					"required": []string{"question", "answers"},
				},
			},
		},
		{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "pin_message",
				Description: "Pin the user's message to the channel. Use VERY rarely -- only when a message is truly exceptional, hilarious, outlandish, or legendary. Most messages don't deserve a pin. Maybe 1 in 50 at most.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
		{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "get_all_users",
				Description: "Get notes about all known users in this server. Use when the question involves rankings, comparisons between members, or asks about everyone or the whole server.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
		{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        "search_chat_history",
				Description: "Search channel chat history. Use when someone mentions old messages, past conversations, 'remember when', 'who said', 'find that message', 'scroll back', or anything about what was said before.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"objective":    map[string]any{"type": "string", "description": "What you're looking for or trying to accomplish (e.g. 'find the funniest message', 'find messages about python')"},
						"hours_back":   map[string]any{"type": "integer", "description": "How many hours back to search (default 24, max 720 which is 30 days)"},
						"max_messages": map[string]any{"type": "integer", "description": "Max number of messages to retrieve (default 100, max 200)"},
					},
					"required": []string{"objective"},
				},
			},
		},
	}
}

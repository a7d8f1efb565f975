package intent

import (
	"fmt"
	"time"
)

// Capability names one thing the bot can do with a message.
type Capability string

const (
	CapChat     Capability = "chat"
	CapSearch   Capability = "search"
	CapImage    Capability = "image"
	CapDocument Capability = "document"
	CapFile     Capability = "file"
	CapPoll     Capability = "poll"
	CapPin      Capability = "pin"
	CapHistory  Capability = "history"
	CapUsers    Capability = "users"
)

// Poll bounds mirror the platform limits.
const (
	pollMinOptions = 2
	pollMaxOptions = 10
	pollMinHours   = 1
	pollMaxHours   = 168
	pollDefault    = 24 * time.Hour

	historyMaxHours = 720
)

// Intent is a routed decision: exactly one capability, with the
// parameters that capability needs. Chat carries the model's free-text
// reply so a fallback costs no second round trip.
type Intent struct {
	Capability Capability

	Reply    string // chat
	Query    string // search
	Prompt   string // image
	Document DocumentParams
	File     FileParams
	Poll     PollParams
	History  HistoryParams
}

// DocumentParams configure document generation.
type DocumentParams struct {
	Kind     string // brief | slides | sheet
	Topic    string
	Filename string
	Research bool // run a web search pass first
}

// FileParams configure a single-file build and upload.
type FileParams struct {
	Filename    string
	Content     string
	Description string
}

// PollParams configure a poll.
type PollParams struct {
	Question string
	Options  []string
	Duration time.Duration
}

// HistoryParams configure a chat-history search.
type HistoryParams struct {
	Objective   string
	HoursBack   int
	MaxMessages int
}

// Validate clamps defaults and rejects parameters no executor could act
// on. A validation error sends the router down the chat fallback.
func (in *Intent) Validate() error {
	switch in.Capability {
	case CapChat:
		return nil
	case CapSearch:
		if in.Query == "" {
			return fmt.Errorf("search: empty query")
		}
	case CapImage:
		if in.Prompt == "" {
			return fmt.Errorf("image: empty prompt")
		}
	case CapDocument:
		if in.Document.Topic == "" {
			return fmt.Errorf("document: empty topic")
		}
		switch in.Document.Kind {
		case "brief", "slides", "sheet":
		case "":
			in.Document.Kind = "brief"
		default:
			return fmt.Errorf("document: unknown kind %q", in.Document.Kind)
		}
	case CapFile:
		if in.File.Filename == "" || in.File.Content == "" {
			return fmt.Errorf("file: filename and content required")
		}
	case CapPoll:
		if in.Poll.Question == "" {
			return fmt.Errorf("poll: empty question")
		}
		if n := len(in.Poll.Options); n < pollMinOptions || n > pollMaxOptions {
			return fmt.Errorf("poll: %d options, want %d-%d", n, pollMinOptions, pollMaxOptions)
		}
		if in.Poll.Duration == 0 {
			in.Poll.Duration = pollDefault
		}
		if h := in.Poll.Duration.Hours(); h < pollMinHours || h > pollMaxHours {
			return fmt.Errorf("poll: duration %v outside %dh-%dh", in.Poll.Duration, pollMinHours, pollMaxHours)
		}
	case CapPin, CapUsers:
		return nil
	case CapHistory:
		if in.History.Objective == "" {
			in.History.Objective = "find interesting messages"
		}
		if in.History.HoursBack <= 0 {
			in.History.HoursBack = 24
		}
		if in.History.HoursBack > historyMaxHours {
			in.History.HoursBack = historyMaxHours
		}
		if in.History.MaxMessages <= 0 {
			in.History.MaxMessages = 100
		}
		if in.History.MaxMessages > 200 {
			in.History.MaxMessages = 200
		}
	default:
		return fmt.Errorf("unknown capability %q", in.Capability)
	}
	return nil
}

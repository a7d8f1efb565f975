package intent

import (
	"testing"
	"time"
)

func TestValidateRequiredParams(t *testing.T) {
	cases := []struct {
		name    string
		in      Intent
		wantErr bool
	}{
		{"chat needs nothing", Intent{Capability: CapChat}, false},
		{"pin needs nothing", Intent{Capability: CapPin}, false},
		{"search empty query", Intent{Capability: CapSearch}, true},
		{"search ok", Intent{Capability: CapSearch, Query: "weather"}, false},
		{"image empty prompt", Intent{Capability: CapImage}, true},
		{"document empty topic", Intent{Capability: CapDocument}, true},
		{"document bad kind", Intent{Capability: CapDocument,
			Document: DocumentParams{Topic: "x", Kind: "novel"}}, true},
		{"file missing content", Intent{Capability: CapFile,
			File: FileParams{Filename: "a.txt"}}, true},
		{"unknown capability", Intent{Capability: "teleport"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateDocumentDefaultsKind(t *testing.T) {
	in := Intent{Capability: CapDocument, Document: DocumentParams{Topic: "go modules"}}
	if err := in.Validate(); err != nil {
		t.Fatal(err)
	}
	if in.Document.Kind != "brief" {
		t.Errorf("kind = %q, want brief", in.Document.Kind)
	}
}

func TestValidatePollBounds(t *testing.T) {
	base := func() Intent {
		return Intent{Capability: CapPoll, Poll: PollParams{
			Question: "lunch?",
			Options:  []string{"yes", "no"},
		}}
	}

	in := base()
	if err := in.Validate(); err != nil {
		t.Fatal(err)
	}
	if in.Poll.Duration != 24*time.Hour {
		t.Errorf("default duration = %v, want 24h", in.Poll.Duration)
	}

	in = base()
	in.Poll.Options = []string{"only"}
	if err := in.Validate(); err == nil {
		t.Error("one option should fail")
	}

	in = base()
	in.Poll.Options = make([]string, 11)
	for i := range in.Poll.Options {
		in.Poll.Options[i] = "opt"
	}
	if err := in.Validate(); err == nil {
		t.Error("eleven options should fail")
	}

	in = base()
	in.Poll.Duration = 200 * time.Hour
	if err := in.Validate(); err == nil {
		t.Error("duration past a week should fail")
	}
}

func TestValidateHistoryClamps(t *testing.T) {
	in := Intent{Capability: CapHistory}
	if err := in.Validate(); err != nil {
		t.Fatal(err)
	}
	if in.History.Objective == "" {
		t.Error("objective should get a default")
	}
	if in.History.HoursBack != 24 {
		t.Errorf("hours back = %d, want default 24", in.History.HoursBack)
	}
	if in.History.MaxMessages != 100 {
		t.Errorf("max messages = %d, want default 100", in.History.MaxMessages)
	}

	in = Intent{Capability: CapHistory, History: HistoryParams{HoursBack: 9000, MaxMessages: 9000}}
	if err := in.Validate(); err != nil {
		t.Fatal(err)
	}
	if in.History.HoursBack != historyMaxHours {
		t.Errorf("hours back = %d, want clamp to %d", in.History.HoursBack, historyMaxHours)
	}
	if in.History.MaxMessages != 200 {
		t.Errorf("max messages = %d, want clamp to 200", in.History.MaxMessages)
	}
}

package intent

import "testing"

func TestGateAllow(t *testing.T) {
	g, err := NewGate("snark")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name       string
		channel    string
		mention    bool
		replyToBot bool
		want       bool
	}{
		{"mention in matching channel", "snark-lounge", true, false, true},
		{"mention, case-insensitive match", "SNARK-general", true, false, true},
		{"mention in other channel", "general", true, false, false},
		{"not addressed at all", "snark-lounge", false, false, false},
		{"reply to bot in other channel", "general", false, true, true},
		{"reply to bot in matching channel", "snark-lounge", false, true, true},
		{"mention and reply both set", "general", true, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.Allow(tc.channel, tc.mention, tc.replyToBot); got != tc.want {
				t.Errorf("Allow(%q, %v, %v) = %v, want %v",
					tc.channel, tc.mention, tc.replyToBot, got, tc.want)
			}
		})
	}
}

func TestNewGateRejectsBadPattern(t *testing.T) {
	if _, err := NewGate("[unclosed"); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

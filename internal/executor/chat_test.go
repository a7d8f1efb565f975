package executor

import (
	"testing"
)

func TestParseFacts(t *testing.T) {
	facts, err := parseFacts(`[{"key":"job","value":"barista"},{"key":"likes","value":"trains"}]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 2 || facts[0].Key != "job" || facts[1].Value != "trains" {
		t.Errorf("facts = %+v", facts)
	}
}

func TestParseFactsToleratesCodeFence(t *testing.T) {
	facts, err := parseFacts("```json\n[{\"key\":\"hometown\",\"value\":\"Oslo\"}]\n```")
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 1 || facts[0].Value != "Oslo" {
		t.Errorf("facts = %+v", facts)
	}
}

func TestParseFactsEmptyArray(t *testing.T) {
	facts, err := parseFacts("Nothing worth keeping. []")
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 0 {
		t.Errorf("facts = %+v, want none", facts)
	}
}

func TestParseFactsRejectsGarbage(t *testing.T) {
	if _, err := parseFacts("I have no facts for you."); err == nil {
		t.Fatal("expected error for non-JSON content")
	}
}

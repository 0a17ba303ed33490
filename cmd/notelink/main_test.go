package main

import (
	"reflect"
	"testing"
)

func TestParseFlags(t *testing.T) {
	positional, flags, err := parseFlags(
		[]string{"input", "--out", "results", "--no-llm", "--db", "archive.db"},
		map[string]bool{"no-llm": true},
	)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if !reflect.DeepEqual(positional, []string{"input"}) {
		t.Errorf("positional = %v", positional)
	}
	want := map[string]string{"out": "results", "no-llm": "true", "db": "archive.db"}
	if !reflect.DeepEqual(flags, want) {
		t.Errorf("flags = %v, want %v", flags, want)
	}
}

func TestParseFlagsMissingValue(t *testing.T) {
	if _, _, err := parseFlags([]string{"--out"}, nil); err == nil {
		t.Fatal("expected error for flag without value")
	}
}

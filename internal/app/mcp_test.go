package app

import (
	"testing"
)

func TestCommands_Registered(t *testing.T) {
	want := map[string]bool{
		"list": false, "analyze": false, "compare": false, "patterns": false,
		"summary": false, "track": false, "watch": false, "mcp": false, "prune": false,
		"sessions": false, "suggest": false, "doctor": false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s subcommand not registered on rootCmd", name)
		}
	}
}

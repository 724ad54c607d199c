package main

import (
	"os"

	"github.com/wonny/tradelens/cmd/tradelens/commands"
)

// main is the entry point for the tradelens CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/tradelens [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

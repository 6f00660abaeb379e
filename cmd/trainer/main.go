// Command trainer trains the chat sender classifier from the chat log.
package main

import (
	"fmt"
	"os"

	"trainer/cmd/trainer/commands"
)

// Stamped with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var version, commit, date = "dev", "none", "unknown"

func main() {
	commands.SetVersion(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "trainer:", err)
		os.Exit(1)
	}
}

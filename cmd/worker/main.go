// Command worker runs voice agent sessions.
//
// Usage:
//
//	worker start                       consume room jobs from Kafka
//	worker connect --room <name>       join a single room and run until it ends
//
// Configuration is read from the environment and the env files described in
// internal/config.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

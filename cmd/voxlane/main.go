// Package main is the entry point for the voxlane CLI.
//
// Usage:
//
//	voxlane [flags] <command> [args]
//
// Commands:
//
//	chat     - Open a live session with the remote agent and chat from the console
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/voxlane/voxlane/cmd/voxlane/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

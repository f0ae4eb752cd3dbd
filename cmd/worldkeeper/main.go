// Package main provides the entry point for the worldkeeper CLI.
package main

import (
	"fmt"
	"os"

	"github.com/worldkeeper/worldkeeper/cmd/worldkeeper/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

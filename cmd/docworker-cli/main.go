// Package main provides the docworker command line interface.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/Dropicx/docworker/cmd/docworker-cli/commands"
)

func main() {
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Entry point for the quarry CLI.
// Build with: go build -o bin/quarry ./cmd/quarry
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

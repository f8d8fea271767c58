package main

import (
	"os"

	"github.com/divergence-scanner/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
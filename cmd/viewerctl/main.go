package main

import (
	"os"

	"medviewer-be/cmd/viewerctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

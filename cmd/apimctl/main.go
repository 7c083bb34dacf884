package main

import (
	"fmt"
	"os"

	"github.com/illmade-knight/apim-deploy-manager/internal/commands"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	commands.Version = Version
	commands.GitCommit = GitCommit

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

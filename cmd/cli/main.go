package main

import (
	"os"

	"github.com/cryptopilot-dev/cryptopilot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

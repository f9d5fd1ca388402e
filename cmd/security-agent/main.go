package main

import (
	"os"

	"github.com/mofangju/security-agent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

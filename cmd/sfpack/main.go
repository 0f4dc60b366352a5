package main

import (
	"os"

	"github.com/colten/sfpack/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/hupe1980/aide/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

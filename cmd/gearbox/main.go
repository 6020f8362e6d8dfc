package main

import (
	"os"

	"github.com/watzon/gearbox/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/viant/faultsim/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/glockyhere/mt5bot/cmd/mt5bot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/moolen/hearth/cmd/hearth/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

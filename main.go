package main

import (
	"os"

	"github.com/abhisek/vidtutor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

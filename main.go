package main

import (
	"os"
)

func main() {
	if err := NewRelayCLI().Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the entry point for the lexfetch document acquisition daemon.
package main

import (
	"fmt"
	"os"

	"github.com/archivant/lexfetch/cmd"
	_ "github.com/archivant/lexfetch/plugins" // registers built-in parser/storage collaborators
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Package main provides the entry point for clipshare.
//
// clipshare runs the LAN clipboard server and acts as its command-line
// client.
package main

import (
	"fmt"
	"os"

	"github.com/distsystem/clipshare/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

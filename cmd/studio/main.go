// Command studio runs the Tourney Reel editing agent and its maintenance
// commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var Version = "0.1.0"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

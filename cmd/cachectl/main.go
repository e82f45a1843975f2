package main

import (
	"fmt"
	"os"

	"github.com/arborcache/engine/cmd/cachectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitCodeFor(err))
	}
}

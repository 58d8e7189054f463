package main

import (
	"os"

	"github.com/matzehuels/sb3fix/internal/cli"
)

// Interrupts are not trapped: the repair has no cancellation points and the
// archive is only touched by the final rename, so the default SIGINT
// behaviour already leaves it intact.
func main() {
	if err := run(); err != nil {
		cli.PrintError(os.Stderr, "%s", err)
		os.Exit(1)
	}
}

func run() error {
	c := cli.New(os.Stderr, cli.LogInfo)
	return c.RootCommand().Execute()
}

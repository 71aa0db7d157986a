package main

import (
	"errors"
	"os"

	"github.com/linefeed/analyzer/core"
	"github.com/linefeed/analyzer/stages"
)

func main() {
	a := core.NewAnalyzer(
		stages.Repo, // standard stage commands
	)

	err := a.Run()
	switch {
	case err == nil:
		// clean shutdown
	case errors.Is(err, core.ErrStageInit):
		os.Exit(2)
	default:
		os.Exit(1)
	}
}

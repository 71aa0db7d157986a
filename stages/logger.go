package stages

import (
	"fmt"

	"github.com/linefeed/analyzer/core"
)

type Logger struct {
	*core.StageBase
}

func NewLogger(parent *core.StageBase) core.Transform {
	s := &Logger{StageBase: parent}
	s.Options.Descr = "log all lines that pass through"
	return s
}

func (s *Logger) Process(line string) (string, bool) {
	fmt.Fprintf(s.B.Out, "[logger] %s\n", line)
	return line, true
}

package stages

import (
	"strings"

	"github.com/linefeed/analyzer/core"
)

type Expander struct {
	*core.StageBase
}

func NewExpander(parent *core.StageBase) core.Transform {
	s := &Expander{StageBase: parent}
	s.Options.Descr = "insert a separator after each character"

	f := s.Options.Flags
	f.String("sep", " ", "separator to insert after each character")

	return s
}

func (s *Expander) Process(line string) (string, bool) {
	if len(line) == 0 {
		return "", true
	}

	sep := " "
	if v := s.K.String("sep"); v != "" {
		sep = v
	}

	var sb strings.Builder
	sb.Grow(len(line) * (1 + len(sep)))
	for _, r := range line {
		sb.WriteRune(r)
		sb.WriteString(sep)
	}
	return sb.String(), true
}

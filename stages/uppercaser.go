package stages

import (
	"strings"

	"github.com/linefeed/analyzer/core"
)

type Uppercaser struct {
	*core.StageBase
}

func NewUppercaser(parent *core.StageBase) core.Transform {
	s := &Uppercaser{StageBase: parent}
	s.Options.Descr = "convert letters to upper case"
	return s
}

func (s *Uppercaser) Process(line string) (string, bool) {
	return strings.ToUpper(line), true
}

package stages

import "github.com/linefeed/analyzer/core"

type Rotator struct {
	*core.StageBase
}

func NewRotator(parent *core.StageBase) core.Transform {
	s := &Rotator{StageBase: parent}
	s.Options.Descr = "move every character right, last character first"
	return s
}

func (s *Rotator) Process(line string) (string, bool) {
	runes := []rune(line)
	if len(runes) < 2 {
		return line, true
	}
	last := runes[len(runes)-1]
	copy(runes[1:], runes[:len(runes)-1])
	runes[0] = last
	return string(runes), true
}

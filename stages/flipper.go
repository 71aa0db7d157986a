package stages

import "github.com/linefeed/analyzer/core"

type Flipper struct {
	*core.StageBase
}

func NewFlipper(parent *core.StageBase) core.Transform {
	s := &Flipper{StageBase: parent}
	s.Options.Descr = "reverse the order of characters"
	return s
}

func (s *Flipper) Process(line string) (string, bool) {
	runes := []rune(line)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes), true
}

package stages

import (
	"fmt"
	"time"

	"github.com/linefeed/analyzer/core"
	"golang.org/x/time/rate"
)

type Typewriter struct {
	*core.StageBase
	rl *rate.Limiter
}

func NewTypewriter(parent *core.StageBase) core.Transform {
	s := &Typewriter{StageBase: parent}
	s.Options.Descr = "simulate a typewriter effect with delays"

	f := s.Options.Flags
	f.Duration("delay", 100*time.Millisecond, "delay between characters")

	return s
}

func (s *Typewriter) Process(line string) (string, bool) {
	if s.rl == nil {
		delay := s.K.Duration("delay")
		if delay <= 0 {
			delay = 100 * time.Millisecond
		}
		s.rl = rate.NewLimiter(rate.Every(delay), 1)
	}

	fmt.Fprint(s.B.Out, "[typewriter] ")
	for _, r := range line {
		s.rl.Wait(s.B.Ctx) // pacing only, a canceled wait just stops delaying
		fmt.Fprintf(s.B.Out, "%c", r)
	}
	fmt.Fprintln(s.B.Out)
	return line, true
}

package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/knadh/koanf/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// Analyzer represents a line-transformation pipeline consisting of
// several stages, fed from an external source and drained in order.
type Analyzer struct {
	zerolog.Logger

	Ctx    context.Context
	Cancel context.CancelCauseFunc

	F      *pflag.FlagSet // global flags
	K      *koanf.Koanf   // global config
	Stages []*StageBase   // pipeline stages, in feed order
	Out    io.Writer      // pipeline stdout (transform output, final banner)

	repo map[string]NewTransform // maps cmd to new transform func

	queueSize int     // common stage queue capacity
	tapHub    *tapHub // non-nil iff --api is set

	nFed *xsync.Counter // lines accepted from the input source
}

// NewAnalyzer creates a new analyzer instance using given
// repositories of stage commands
func NewAnalyzer(repo ...map[string]NewTransform) *Analyzer {
	b := new(Analyzer)
	b.Ctx, b.Cancel = context.WithCancelCause(context.Background())

	// default logger
	b.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	})

	b.Out = os.Stdout
	b.nFed = xsync.NewCounter()

	// global config
	b.K = koanf.New(".")

	// global CLI flags
	b.F = pflag.NewFlagSet("analyzer", pflag.ContinueOnError)
	b.addFlags()

	// command repository
	b.repo = make(map[string]NewTransform)
	for i := range repo {
		b.AddRepo(repo[i])
	}

	return b
}

// AddRepo adds mapping between stage commands and their NewTransform funcs
func (b *Analyzer) AddRepo(cmds map[string]NewTransform) {
	for cmd, newfunc := range cmds {
		b.repo[cmd] = newfunc
	}
}

// AddStage appends a new stage for cmd and returns it.
func (b *Analyzer) AddStage(cmd string) (*StageBase, error) {
	s := b.NewStage(cmd)
	if s == nil {
		return nil, fmt.Errorf("[%d] %s: %w", len(b.Stages), cmd, ErrStageCmd)
	}

	s.Index = len(b.Stages)
	s.Logger = b.With().Str("stage", s.String()).Logger()
	b.Stages = append(b.Stages, s)
	return s, nil
}

// StageCount returns the number of configured stages.
func (b *Analyzer) StageCount() int {
	return len(b.Stages)
}

// Run configures and runs the whole pipeline, blocking until shutdown.
func (b *Analyzer) Run() error {
	// configure the analyzer and its stages
	if err := b.Configure(os.Args[1:]); err != nil {
		b.Error().Err(err).Msg("configuration error")
		b.F.Usage()
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	// initialize stages and wire them together
	if err := b.Start(); err != nil {
		b.Error().Err(err).Msg("could not start the pipeline")
		return err
	}

	// feed the first stage until the source ends
	if err := b.feed(); err != nil {
		b.Error().Err(err).Msg("input error")
	}

	// drain and release everything, in order
	return b.Shutdown()
}

// Start initializes every configured stage in order and attaches each
// one to its downstream neighbor. On an init error the already-running
// stages are unwound in reverse order.
func (b *Analyzer) Start() error {
	if b.StageCount() < 1 {
		return fmt.Errorf("%w: at least 1 stage required", ErrUsage)
	}

	for i, s := range b.Stages {
		if err := s.Init(b.queueSize); err != nil {
			for j := i - 1; j >= 0; j-- {
				if e := b.Stages[j].Fini(); e != nil {
					b.Error().Err(e).Stringer("stage", b.Stages[j]).Msg("unwind error")
				}
			}
			return fmt.Errorf("%w: %w", ErrStageInit, err)
		}
	}

	// wire the chain; workers are already running but will not read
	// their downstream pointer before the caller feeds the first line
	for i, s := range b.Stages {
		if i < len(b.Stages)-1 {
			s.Attach(b.Stages[i+1].PlaceWork)
		} else {
			s.Attach(nil)
		}
		b.gauge(s)
	}

	// observe the final stage output?
	if addr := b.K.String("api"); addr != "" {
		b.tapHub = newTapHub()
		b.Stages[len(b.Stages)-1].tap = b.tapHub.publish
		b.runAPI(addr)
	}

	return nil
}

// Feed places one line of work on the first stage.
func (b *Analyzer) Feed(line string) error {
	err := b.Stages[0].PlaceWork(line)
	if err == nil && line != Sentinel {
		b.nFed.Inc()
	}
	return err
}

// Shutdown waits for every stage to drain, then finalizes them. The
// wait runs strictly in feed order: stage i cannot finish before all
// of its upstream stages have propagated the sentinel to it.
func (b *Analyzer) Shutdown() error {
	for _, s := range b.Stages {
		if err := s.WaitFinished(); err != nil {
			b.Error().Err(err).Stringer("stage", s).Msg("wait error")
		}
	}
	for _, s := range b.Stages {
		if err := s.Fini(); err != nil {
			b.Error().Err(err).Stringer("stage", s).Msg("fini error")
		}
	}

	if b.tapHub != nil {
		b.tapHub.close()
	}
	b.Cancel(nil)

	fmt.Fprintln(b.Out, "Pipeline shutdown complete")
	return nil
}

// gauge exports the stage queue depth.
func (b *Analyzer) gauge(s *StageBase) {
	q := s.queue
	metrics.GetOrCreateGauge(fmt.Sprintf(`analyzer_queue_depth{stage=%q}`, s.Name), func() float64 {
		return float64(q.Len())
	})
}

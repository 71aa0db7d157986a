package core

import (
	"fmt"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// Sentinel is the literal input line that marks end of stream. It is
// consumed by PlaceWork, never enqueued, and re-emitted downstream by
// the worker only after the queue has fully drained.
const Sentinel = "<END>"

// Transform implements one pure line operation run by a stage worker.
type Transform interface {
	// Process takes an input line and returns the output line.
	// Returning ok=false drops the line; nothing reaches downstream.
	// Process must not retain the input beyond the call.
	Process(line string) (out string, ok bool)
}

// NewTransform returns a new Transform for given parent base.
// It should modify base.Options.
type NewTransform func(base *StageBase) Transform

// StageOptions describe high-level settings of a stage
type StageOptions struct {
	Descr string         // one-line description
	Flags *pflag.FlagSet // CLI flags
}

// StageBase represents one pipeline stage: a bounded input queue, a
// worker goroutine, and the Transform that the worker applies.
type StageBase struct {
	zerolog.Logger // logger with stage name
	Transform      // the real implementation

	B *Analyzer    // parent
	K *koanf.Koanf // stage config (from CLI flags)

	Index   int          // stage index in the pipeline
	Cmd     string       // stage command name
	Name    string       // human-friendly stage name
	Options StageOptions // stage options

	queue *Queue             // worker input
	next  func(string) error // downstream PlaceWork, nil if terminal
	tap   func(string)       // observer of forwarded output, may be nil
	done  chan struct{}      // closed when the worker exits

	initialized atomic.Bool // one-way, set by Init
	finalized   atomic.Bool // one-way, set by Fini

	nIn   *metrics.Counter
	nOut  *metrics.Counter
	nDrop *metrics.Counter
}

// NewStage returns a new stage for given cmd, or nil on error
func (b *Analyzer) NewStage(cmd string) *StageBase {
	newfunc, ok := b.repo[cmd]
	if !ok {
		return nil
	}

	s := &StageBase{}
	s.B = b
	s.K = koanf.New(".")
	s.Cmd = cmd
	s.Name = cmd
	s.Logger = b.With().Str("stage", s.Name).Logger()
	s.done = make(chan struct{})

	// CLI flags
	so := &s.Options
	so.Flags = pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	so.Flags.SortFlags = false
	so.Flags.SetInterspersed(false)

	// create the transform, which should add specific CLI flags
	s.Transform = newfunc(s)

	return s
}

// parseArgs parses CLI flags from args and exports them to s.K.
// Returns the args it did not consume.
func (s *StageBase) parseArgs(args []string) (unused []string, err error) {
	f := s.Options.Flags
	if f.Usage == nil {
		f.Usage = s.usage
	}

	if err := f.Parse(args); err != nil {
		return args, s.Errorf("%w", err)
	}

	s.K.Load(posflag.Provider(f, ".", s.K), nil)
	return f.Args(), nil
}

// Init creates the input queue with the given capacity and starts the
// worker. A stage can be initialized once.
func (s *StageBase) Init(capacity int) error {
	if s.initialized.Swap(true) {
		return s.Errorf("%w", ErrAlreadyInit)
	}

	q, err := NewQueue(capacity)
	if err != nil {
		s.initialized.Store(false)
		return s.Errorf("%w", err)
	}
	s.queue = q

	s.nIn = metrics.GetOrCreateCounter(fmt.Sprintf(`analyzer_stage_lines_total{stage=%q,result="in"}`, s.Name))
	s.nOut = metrics.GetOrCreateCounter(fmt.Sprintf(`analyzer_stage_lines_total{stage=%q,result="out"}`, s.Name))
	s.nDrop = metrics.GetOrCreateCounter(fmt.Sprintf(`analyzer_stage_lines_total{stage=%q,result="dropped"}`, s.Name))

	go s.worker()
	s.Debug().Int("capacity", capacity).Msg("stage initialized")
	return nil
}

// Attach records the downstream PlaceWork, or marks the stage terminal
// when next is nil. Call it once, before the first line is fed.
func (s *StageBase) Attach(next func(string) error) {
	s.next = next
	s.Debug().Bool("terminal", next == nil).Msg("attached")
}

// PlaceWork is the external entry point of the stage. The Sentinel
// closes the input queue without being enqueued; any other line is
// stored for the worker, blocking while the queue is full.
func (s *StageBase) PlaceWork(line string) error {
	if !s.initialized.Load() {
		return s.Errorf("%w", ErrNotInit)
	}
	if line == Sentinel {
		s.queue.SignalFinished()
		return nil
	}
	return s.queue.Put(line)
}

// WaitFinished blocks until the worker has drained the queue,
// propagated the sentinel, and exited.
func (s *StageBase) WaitFinished() error {
	if !s.initialized.Load() {
		return s.Errorf("%w", ErrNotInit)
	}
	<-s.done
	return nil
}

// Fini joins the worker (closing the input if still open) and releases
// the queue. Idempotent after the first successful call.
func (s *StageBase) Fini() error {
	if !s.initialized.Load() {
		return s.Errorf("%w", ErrNotInit)
	}
	if s.finalized.Swap(true) {
		return nil
	}

	s.queue.SignalFinished()
	<-s.done
	s.queue.Destroy()
	s.Debug().Msg("stage finalized")
	return nil
}

// worker drains the input queue, applies the transform, and forwards
// results downstream. The queue reports end of stream only after every
// accepted line has been taken, so the sentinel propagated below always
// trails the last forwarded line.
func (s *StageBase) worker() {
	defer close(s.done)
	s.Debug().Msg("worker started")

	for {
		line, err := s.queue.Get()
		if err != nil {
			break // end of stream
		}
		s.nIn.Inc()

		out, ok := s.Process(line)
		if !ok {
			s.nDrop.Inc()
			continue
		}

		if s.tap != nil {
			s.tap(out)
		}
		if s.next != nil {
			if err := s.next(out); err != nil {
				s.Error().Err(err).Msg("downstream rejected line")
			}
		}
		s.nOut.Inc()
	}

	if s.next != nil {
		if err := s.next(Sentinel); err != nil {
			s.Error().Err(err).Msg("could not propagate end of stream")
		}
	}
	s.Debug().Msg("worker finished")
}

// Queue exposes the stage input queue, for observation only.
func (s *StageBase) Queue() *Queue {
	return s.queue
}

// Errorf wraps fmt.Errorf and adds a prefix with the stage name
func (s *StageBase) Errorf(format string, a ...any) error {
	return fmt.Errorf(s.Name+": "+format, a...)
}

// String returns stage "[index] name"
func (s *StageBase) String() string {
	return fmt.Sprintf("[%d] %s", s.Index, s.Name)
}

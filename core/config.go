package core

import (
	"fmt"
	"os"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/rs/zerolog"
)

// Configure parses global CLI flags and the pipeline definition
// (positional arguments or a --script file).
func (b *Analyzer) Configure(args []string) error {
	// parse and export flags into koanf
	if err := b.F.Parse(args); err != nil {
		return fmt.Errorf("could not parse CLI flags: %w", err)
	} else {
		b.K.Load(posflag.Provider(b.F, ".", b.K), nil)
	}

	// debugging level
	if ll := b.K.String("log"); len(ll) > 0 {
		lvl, err := zerolog.ParseLevel(ll)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(lvl)
	}

	// print version and quit?
	if b.K.Bool("version") {
		if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
			fmt.Fprintf(os.Stderr, "analyzer build info:\n%s", bi)
		}
		os.Exit(1)
	}

	// pipeline defined in a script file?
	if fpath := b.K.String("script"); len(fpath) > 0 {
		return b.parseScript(fpath)
	}

	return b.parseStages(b.F.Args())
}

// parseStages reads "QUEUE_SIZE STAGE [STAGE FLAGS] ..." from args.
func (b *Analyzer) parseStages(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("need a queue size and at least 1 stage")
	}

	qs, err := strconv.Atoi(args[0])
	if err != nil || qs <= 0 {
		return fmt.Errorf("%w: queue size must be a positive integer, got %q", ErrInvalidParameter, args[0])
	}
	b.queueSize = qs
	args = args[1:]

	for len(args) > 0 {
		// skip explicit stage separators
		if args[0] == "--" {
			args = args[1:]
			continue
		}

		s, err := b.AddStage(args[0])
		if err != nil {
			return err
		}

		// parse stage flags, move on
		if remargs, err := s.parseArgs(args[1:]); err != nil {
			return err
		} else {
			args = remargs
		}
	}

	return nil
}

// parseScript reads the pipeline definition from a JSON file, eg.
// {"queue_size": 20, "stages": ["uppercaser", "logger"]}.
func (b *Analyzer) parseScript(fpath string) error {
	v, err := os.ReadFile(fpath)
	if err != nil {
		return fmt.Errorf("could not read --script: %w", err)
	}

	qs, err := jsonparser.GetInt(v, "queue_size")
	if err != nil {
		return fmt.Errorf("--script: queue_size: %w", err)
	}
	if qs <= 0 {
		return fmt.Errorf("%w: --script: queue_size must be positive, got %d", ErrInvalidParameter, qs)
	}
	b.queueSize = int(qs)

	var serr error
	_, err = jsonparser.ArrayEach(v, func(value []byte, dt jsonparser.ValueType, _ int, _ error) {
		if serr != nil {
			return
		}
		if dt != jsonparser.String {
			serr = fmt.Errorf("--script: stages must be strings")
			return
		}
		if _, err := b.AddStage(string(value)); err != nil {
			serr = err
		}
	}, "stages")
	if err != nil {
		return fmt.Errorf("--script: stages: %w", err)
	}
	return serr
}

func (b *Analyzer) addFlags() {
	f := b.F
	f.SortFlags = false
	f.Usage = b.usage
	f.SetInterspersed(false)
	f.BoolP("version", "v", false, "print detailed version info and quit")
	f.StringP("log", "l", "info", "log level (debug/info/warn/error/disabled)")
	f.StringP("input", "i", "", "read lines from given file instead of stdin")
	f.String("decompress", "auto", "decompress the input (bzip2/gz/zstd/none/auto)")
	f.StringP("script", "s", "", "read the pipeline definition from given JSON file")
	f.String("api", "", "HTTP API listen address (metrics and live tap)")
	f.Float64("limit-rate", 0, "input rate limit in lines/s (0 = unlimited)")
	f.String("kafka", "", "read lines from given Kafka seed broker")
	f.String("topics", "", "Kafka topic regexp")
	f.String("group", "analyzer", "Kafka consumer group")
}

func (b *Analyzer) usage() {
	fmt.Fprintf(os.Stderr, `Usage: analyzer [OPTIONS] QUEUE_SIZE STAGE1 [STAGE OPTIONS] [--] STAGE2...

Options:
`)
	b.F.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Supported stages (run stage -h to get its help)
`)

	// iterate over cmds
	var cmds []string
	for cmd := range b.repo {
		cmds = append(cmds, cmd)
	}
	slices.Sort(cmds)
	for _, cmd := range cmds {
		var descr string

		s := b.NewStage(cmd)
		if s != nil {
			descr = s.Options.Descr
		}

		fmt.Fprintf(os.Stderr, "  %-22s %s\n", cmd, descr)
	}
	fmt.Fprintf(os.Stderr, "\n")
}

// usage prints the stage usage screen to stderr
func (s *StageBase) usage() {
	var (
		o = &s.Options
		f = o.Flags
		e = os.Stderr
	)

	fmt.Fprintf(e, "Stage usage: %s [OPTIONS]", s.Cmd)
	fmt.Fprintf(e, "\n\nDescription: %s\n", o.Descr)

	if u := f.FlagUsages(); len(strings.TrimSpace(u)) > 0 {
		fmt.Fprintf(e, "\nOptions:\n%s\n", u)
	}
}

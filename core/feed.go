package core

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"
)

// MaxLineLen caps a single input line; longer lines are truncated.
const MaxLineLen = 1024

// feed reads lines from the configured source and places them on the
// first stage. The sentinel is always delivered, either inline from the
// source or when the source is exhausted.
func (b *Analyzer) feed() error {
	// whatever happens to the source, close the stream so the pipeline
	// can drain; SignalFinished makes a duplicate sentinel harmless
	ended := false
	defer func() {
		if !ended {
			b.Feed(Sentinel)
		}
	}()

	if b.K.String("kafka") != "" {
		return b.feedKafka()
	}

	rd, closer, err := b.openInput()
	if err != nil {
		return err
	}
	defer closer()

	var rl *rate.Limiter
	if rr := b.K.Float64("limit-rate"); rr > 0 {
		rl = rate.NewLimiter(rate.Limit(rr), int(math.Ceil(rr)))
	}

	scan := bufio.NewReader(rd)
	for {
		line, err := scan.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			if len(line) > MaxLineLen {
				line = line[:MaxLineLen]
			}

			if rl != nil {
				rl.Wait(b.Ctx)
			}

			if ferr := b.Feed(line); ferr != nil {
				b.Error().Err(ferr).Msg("could not place work")
				return ferr
			}
			if line == Sentinel {
				ended = true
				return nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// openInput returns the line source: stdin by default, or --input with
// transparent decompression.
func (b *Analyzer) openInput() (io.Reader, func(), error) {
	fpath := b.K.String("input")
	if fpath == "" || fpath == "-" {
		return os.Stdin, func() {}, nil
	}

	fh, err := os.Open(fpath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open --input: %w", err)
	}

	// need to decompress?
	decomp := strings.ToLower(b.K.String("decompress"))
	if decomp == "auto" {
		switch path.Ext(fpath) {
		case ".bz2":
			decomp = "bz2"
		case ".gz":
			decomp = "gz"
		case ".zstd", ".zst":
			decomp = "zstd"
		default:
			decomp = "none"
		}
	}

	switch decomp {
	case "none", "", "false":
		return fh, func() { fh.Close() }, nil
	case "gz", "gzip":
		gr, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, nil, fmt.Errorf("--input: %w", err)
		}
		return gr, func() { gr.Close(); fh.Close() }, nil
	case "bzip2", "bzip", "bz2", "bz":
		br, err := bzip2.NewReader(fh, nil)
		if err != nil {
			fh.Close()
			return nil, nil, fmt.Errorf("--input: %w", err)
		}
		return br, func() { br.Close(); fh.Close() }, nil
	case "zstd", "zst", "zstandard":
		zr, err := zstd.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, nil, fmt.Errorf("--input: %w", err)
		}
		return zr, func() { zr.Close(); fh.Close() }, nil
	default:
		fh.Close()
		return nil, nil, fmt.Errorf("--decompress %q: invalid value", b.K.String("decompress"))
	}
}

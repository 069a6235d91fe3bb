package transform

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"

	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
)

// GzipStage compresses or decompresses with stdlib gzip, depending on
// Decompress.
type GzipStage struct {
	Decompress bool
	Level      int
	fatal      bool
}

func NewGzipStage(decompress bool, level int, fatal bool) *GzipStage {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &GzipStage{Decompress: decompress, Level: level, fatal: fatal}
}

func (s *GzipStage) Name() string { return "gzip" }
func (s *GzipStage) Fatal() bool  { return s.fatal }

func (s *GzipStage) Apply(pc PathContext, data []byte, limits Limits) (Outcome, error) {
	if s.Decompress {
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return degradeOrFail(s, data, "gzip: invalid stream", err)
		}
		defer r.Close()
		out, err := readLimited(r, limits)
		if err != nil {
			return degradeOrFail(s, data, "gzip: decompress failed", err)
		}
		return Outcome{Data: out}, nil
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, s.Level)
	if err != nil {
		return degradeOrFail(s, data, "gzip: bad level", err)
	}
	if _, err := w.Write(data); err != nil {
		return degradeOrFail(s, data, "gzip: compress failed", err)
	}
	if err := w.Close(); err != nil {
		return degradeOrFail(s, data, "gzip: compress flush failed", err)
	}
	if int64(buf.Len()) > limits.MaxOutputSize {
		return degradeOrFail(s, data, "gzip: output exceeds limit", nil)
	}
	return Outcome{Data: buf.Bytes()}, nil
}

// Bzip2Stage only supports decompression: neither the standard library
// nor any dependency retrieved for this repository provides a bzip2
// encoder.
type Bzip2Stage struct {
	fatal bool
}

func NewBzip2Stage(fatal bool) *Bzip2Stage { return &Bzip2Stage{fatal: fatal} }

func (s *Bzip2Stage) Name() string { return "bzip2" }
func (s *Bzip2Stage) Fatal() bool  { return s.fatal }

func (s *Bzip2Stage) Apply(pc PathContext, data []byte, limits Limits) (Outcome, error) {
	out, err := readLimited(bzip2.NewReader(bytes.NewReader(data)), limits)
	if err != nil {
		return degradeOrFail(s, data, "bzip2: decompress failed", err)
	}
	return Outcome{Data: out}, nil
}

// Zstd is implemented via klauspost/compress, used here both for the
// zstd algorithm and as the project's higher-throughput gzip
// alternative.
type ZstdStage struct {
	Decompress bool
	fatal      bool
}

func NewZstdStage(decompress bool, fatal bool) *ZstdStage {
	return &ZstdStage{Decompress: decompress, fatal: fatal}
}

func (s *ZstdStage) Name() string { return "zstd" }
func (s *ZstdStage) Fatal() bool  { return s.fatal }

func (s *ZstdStage) Apply(pc PathContext, data []byte, limits Limits) (Outcome, error) {
	if s.Decompress {
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return degradeOrFail(s, data, "zstd: invalid stream", err)
		}
		defer r.Close()
		out, err := readLimited(r, limits)
		if err != nil {
			return degradeOrFail(s, data, "zstd: decompress failed", err)
		}
		return Outcome{Data: out}, nil
	}

	w, err := zstd.NewWriter(nil)
	if err != nil {
		return degradeOrFail(s, data, "zstd: encoder init failed", err)
	}
	out := w.EncodeAll(data, nil)
	_ = w.Close()
	if int64(len(out)) > limits.MaxOutputSize {
		return degradeOrFail(s, data, "zstd: output exceeds limit", nil)
	}
	return Outcome{Data: out}, nil
}

// BrotliStage compresses or decompresses using andybalholm/brotli.
type BrotliStage struct {
	Decompress bool
	Quality    int
	fatal      bool
}

func NewBrotliStage(decompress bool, quality int, fatal bool) *BrotliStage {
	if quality == 0 {
		quality = brotli.DefaultCompression
	}
	return &BrotliStage{Decompress: decompress, Quality: quality, fatal: fatal}
}

func (s *BrotliStage) Name() string { return "brotli" }
func (s *BrotliStage) Fatal() bool  { return s.fatal }

func (s *BrotliStage) Apply(pc PathContext, data []byte, limits Limits) (Outcome, error) {
	if s.Decompress {
		out, err := readLimited(brotli.NewReader(bytes.NewReader(data)), limits)
		if err != nil {
			return degradeOrFail(s, data, "brotli: decompress failed", err)
		}
		return Outcome{Data: out}, nil
	}

	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, s.Quality)
	if _, err := w.Write(data); err != nil {
		return degradeOrFail(s, data, "brotli: compress failed", err)
	}
	if err := w.Close(); err != nil {
		return degradeOrFail(s, data, "brotli: compress flush failed", err)
	}
	if int64(buf.Len()) > limits.MaxOutputSize {
		return degradeOrFail(s, data, "brotli: output exceeds limit", nil)
	}
	return Outcome{Data: buf.Bytes()}, nil
}

// LZMAStage exists as a stage identity with no available codec in the
// retrieved dependency pack. It always signals unavailability: fatal
// callers get a DependencyError, others a degraded pass-through.
type LZMAStage struct {
	fatal bool
}

func NewLZMAStage(fatal bool) *LZMAStage { return &LZMAStage{fatal: fatal} }

func (s *LZMAStage) Name() string { return "lzma" }
func (s *LZMAStage) Fatal() bool  { return s.fatal }

func (s *LZMAStage) Apply(pc PathContext, data []byte, limits Limits) (Outcome, error) {
	if s.fatal {
		return Outcome{}, shadowerrors.New(shadowerrors.CodeTransformMissing, "lzma codec unavailable").
			WithComponent("transform").WithOperation("lzma")
	}
	return Outcome{Data: data, Degraded: true, Reason: "lzma codec unavailable"}, nil
}

func readLimited(r io.Reader, limits Limits) ([]byte, error) {
	lr := io.LimitReader(r, limits.MaxOutputSize+1)
	out, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limits.MaxOutputSize {
		return nil, shadowerrors.New(shadowerrors.CodeTransformFailed, "output exceeds limit").
			WithComponent("transform")
	}
	return out, nil
}

func degradeOrFail(s Stage, original []byte, reason string, cause error) (Outcome, error) {
	if s.Fatal() {
		e := shadowerrors.New(shadowerrors.CodeTransformFailed, reason).
			WithComponent("transform").WithOperation(s.Name())
		if cause != nil {
			e = e.WithCause(cause)
		}
		return Outcome{}, e
	}
	return Outcome{Data: original, Degraded: true, Reason: reason}, nil
}

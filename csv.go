package ecat

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ScopeCSVWriter drains a scope queue into
// <basename>_<seq>/<basename>.csv, header = derived-status field names
// in §3 order, one row per cycle, replacing an existing file (§6, SPEC_FULL
// §4.7). It operates purely on samples already produced by the bridge;
// it never runs on the cycle engine's own goroutine.
type ScopeCSVWriter struct {
	path   string
	file   *os.File
	writer *csv.Writer
	m      int
	cfg    ScalingConfig
}

// NewScopeCSVWriter creates the capture directory <basename>_<seq>/ and
// opens <basename>.csv inside it, writing the header row.
func NewScopeCSVWriter(basename string, seq int, m int, cfg ScalingConfig) (*ScopeCSVWriter, error) {
	dir := fmt.Sprintf("%s_%d", basename, seq)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, filepath.Base(basename)+".csv")
	f, err := os.Create(path) // os.Create truncates/replaces an existing file
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(DerivedStatusFieldNames()); err != nil {
		f.Close()
		return nil, err
	}
	return &ScopeCSVWriter{path: path, file: f, writer: w, m: m, cfg: cfg}, nil
}

// WriteSample decodes one raw scope sample (one or more concatenated
// slave input frames) and appends one row per slave's derived status.
func (w *ScopeCSVWriter) WriteSample(sample ScopeSample) error {
	frameLen := InputFrameLen(w.m)
	if len(sample.RawBytes)%frameLen != 0 {
		return &CodecError{Expected: frameLen, Got: len(sample.RawBytes)}
	}
	for off := 0; off < len(sample.RawBytes); off += frameLen {
		in, err := DecodeInput(sample.RawBytes[off:off+frameLen], w.m)
		if err != nil {
			return err
		}
		derived := DecodeDerived(in, w.cfg)
		if err := w.writer.Write(derived.Values()); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the underlying file.
func (w *ScopeCSVWriter) Close() error {
	w.writer.Flush()
	return w.file.Close()
}

// LatencyCSVWriter drains a latency queue into a timestamp,latency CSV,
// fractional seconds, replacing an existing file (§6, SPEC_FULL §4.7).
type LatencyCSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewLatencyCSVWriter opens path, truncating any existing file, and
// writes the header row.
func NewLatencyCSVWriter(path string) (*LatencyCSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "latency"}); err != nil {
		f.Close()
		return nil, err
	}
	return &LatencyCSVWriter{file: f, writer: w}, nil
}

// WriteSample appends one (timestamp, latency) row, seconds fractional.
func (w *LatencyCSVWriter) WriteSample(sample LatencySample) error {
	row := []string{
		strconv.FormatFloat(float64(sample.Timestamp.UnixNano())/1e9, 'f', 6, 64),
		strconv.FormatFloat(sample.Elapsed.Seconds(), 'f', 6, 64),
	}
	if err := w.writer.Write(row); err != nil {
		return err
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the underlying file.
func (w *LatencyCSVWriter) Close() error {
	w.writer.Flush()
	return w.file.Close()
}

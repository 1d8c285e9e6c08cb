// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw link bytes to a CBOR file and plays them back.
//
// A capture is a CBOR sequence: one Header item followed by any number of
// Chunk items, each holding the bytes returned by one transport read.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is the capture format written by this package
const FormatVersion = 1

// Header describes where a capture came from
type Header struct {
	Version   uint   `cbor:"0,keyasint"`
	StartedAt int64  `cbor:"1,keyasint"` // unix nanoseconds
	Source    string `cbor:"2,keyasint"`
	BaudRate  int    `cbor:"3,keyasint,omitempty"`
}

// Started returns the capture start time
func (h Header) Started() time.Time {
	return time.Unix(0, h.StartedAt)
}

// Chunk is one transport read
type Chunk struct {
	Offset time.Duration `cbor:"0,keyasint"` // since capture start
	Data   []byte        `cbor:"1,keyasint"`
}

// Writer appends chunks to a capture. It implements io.Writer so it can sit
// behind an io.TeeReader.
type Writer struct {
	mu      sync.Mutex
	enc     *cbor.Encoder
	started time.Time
	now     func() time.Time
	chunks  int
	bytes   int
}

// NewWriter writes the capture header to w and returns a Writer
func NewWriter(w io.Writer, source string, baudRate int) (*Writer, error) {
	return newWriter(w, source, baudRate, time.Now)
}

func newWriter(w io.Writer, source string, baudRate int, now func() time.Time) (*Writer, error) {
	started := now()
	enc := cbor.NewEncoder(w)
	hdr := Header{
		Version:   FormatVersion,
		StartedAt: started.UnixNano(),
		Source:    source,
		BaudRate:  baudRate,
	}
	if err := enc.Encode(hdr); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return &Writer{enc: enc, started: started, now: now}, nil
}

// Write records p as one chunk
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	chunk := Chunk{Offset: w.now().Sub(w.started), Data: p}
	if err := w.enc.Encode(chunk); err != nil {
		return 0, fmt.Errorf("failed to write capture chunk: %w", err)
	}
	w.chunks++
	w.bytes += len(p)
	return len(p), nil
}

// Stats returns the number of chunks and bytes written
func (w *Writer) Stats() (chunks, bytes int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chunks, w.bytes
}

// Reader reads a capture written by Writer
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and checks the capture header
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)
	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	if hdr.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported capture version %d (want %d)", hdr.Version, FormatVersion)
	}
	return &Reader{dec: dec, header: hdr}, nil
}

// Header returns the capture header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next chunk, or io.EOF at the end of the capture
func (r *Reader) Next() (Chunk, error) {
	var c Chunk
	if err := r.dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("failed to read capture chunk: %w", err)
	}
	return c, nil
}

// Each calls fn for every remaining chunk
func (r *Reader) Each(fn func(Chunk) error) error {
	for {
		c, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
}

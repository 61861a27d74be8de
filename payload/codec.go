// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package payload compresses and chunks large event payloads and projection
// checkpoints so they fit the row-size limits of the table substrate.
package payload

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

const (
	// DefaultChunkThreshold is the payload size above which the chunked
	// binary representation is used (60 KiB).
	DefaultChunkThreshold = 60 * 1024

	// DefaultMaxChunkSize caps a single stored chunk (60 KiB).
	DefaultMaxChunkSize = 60 * 1024
)

// Codec splits payloads into chunks of at most MaxChunkSize bytes, gzipping
// first when Compression is set.
type Codec struct {
	Threshold    int
	MaxChunkSize int
	Compression  bool
}

// DefaultCodec returns a Codec with compression on and the default sizes.
func DefaultCodec() Codec {
	return Codec{
		Threshold:    DefaultChunkThreshold,
		MaxChunkSize: DefaultMaxChunkSize,
		Compression:  true,
	}
}

// Encoded is the chunked representation of one payload.
type Encoded struct {
	Chunks     [][]byte
	Compressed bool
}

// TotalChunks returns the number of chunks.
func (e Encoded) TotalChunks() int {
	return len(e.Chunks)
}

// Exceeds reports whether a payload of |size| bytes should be encoded.
func (c Codec) Exceeds(size int) bool {
	return size > c.Threshold
}

// Encode compresses (when enabled) and splits |payload|.
func (c Codec) Encode(payload []byte) (Encoded, error) {
	data := payload
	if c.Compression {
		compressed, err := Compress(payload)
		if err != nil {
			return Encoded{}, err
		}
		data = compressed
	}
	return Encoded{Chunks: Split(data, c.MaxChunkSize), Compressed: c.Compression}, nil
}

// Decode reassembles chunks produced by Encode. Any chunk may be nil when the
// substrate lost it; that surfaces as an error rather than silent truncation.
func (c Codec) Decode(chunks [][]byte, compressed bool) ([]byte, error) {
	for i, chunk := range chunks {
		if chunk == nil {
			return nil, fmt.Errorf("payload chunk %d of %d is missing", i, len(chunks))
		}
	}
	data := Join(chunks)
	if compressed {
		return Decompress(data)
	}
	return data, nil
}

// Compress gzips |data|.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress gunzips |data|.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	if err := zr.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// Split cuts |data| into chunks of at most |size| bytes. Empty input yields a
// single empty chunk so every payload has a primary row.
func Split(data []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultMaxChunkSize
	}
	if len(data) == 0 {
		return [][]byte{{}}
	}

	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > size {
		chunks = append(chunks, data[:size])
		data = data[size:]
	}
	return append(chunks, data)
}

// Join concatenates chunks in index order.
func Join(chunks [][]byte) []byte {
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

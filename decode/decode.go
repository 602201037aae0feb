// MIT License
//
// Copyright (c) 2025 DaggerTech
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package decode turns raw publish payloads into displayable text.
// Decoders are pure and never block; a failed decode only reduces how rich
// the rendering is.
package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrUnknownStrategy is returned by ByName for an unrecognised strategy.
var ErrUnknownStrategy = errors.New("unknown decode strategy")

// Decoder converts payload bytes into text. The boolean is false when the
// payload has no displayable form under this strategy.
type Decoder interface {
	Decode(payload []byte) (string, bool)
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(payload []byte) (string, bool)

// Decode calls f(payload).
func (f DecoderFunc) Decode(payload []byte) (string, bool) {
	return f(payload)
}

var (
	// None never decodes; only raw events reach the display.
	None Decoder = DecoderFunc(func([]byte) (string, bool) {
		return "", false
	})

	// Text accepts any valid UTF-8 payload verbatim.
	Text Decoder = DecoderFunc(func(payload []byte) (string, bool) {
		if !utf8.Valid(payload) {
			return "", false
		}
		return string(payload), true
	})

	// JSON renders valid JSON payloads canonically and falls back to Text.
	JSON Decoder = DecoderFunc(func(payload []byte) (string, bool) {
		if !utf8.Valid(payload) {
			return "", false
		}
		if s, err := Canonical(payload); err == nil {
			return s, true
		}
		return string(payload), true
	})
)

// Strategies lists the names accepted by ByName.
var Strategies = []string{"none", "text", "json"}

// ByName returns the decoder configured under name.
func ByName(name string) (Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return None, nil
	case "text":
		return Text, nil
	case "json", "":
		return JSON, nil
	default:
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownStrategy, name, strings.Join(Strategies, ", "))
	}
}

// Canonical parses data as a single JSON document and re-renders it with
// sorted object keys, two-space indentation and numbers kept as written.
// Canonical(Canonical(x)) == Canonical(x) for every accepted x.
func Canonical(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", errors.New("trailing data after JSON document")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

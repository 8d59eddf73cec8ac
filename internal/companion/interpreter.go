// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package companion

// Interpreter consumes companion bytes one at a time
type Interpreter interface {
	Feed(b byte)
}

// MaxLineLength bounds an assembled line; extra bytes are dropped
const MaxLineLength = 256

// LineInterpreter assembles bytes into lines and hands each non-empty line
// to Handle. It does not parse commands. CR is ignored.
type LineInterpreter struct {
	Handle func(line string)

	line []byte
}

// Feed implements Interpreter
func (l *LineInterpreter) Feed(b byte) {
	switch b {
	case '\n':
		if len(l.line) == 0 {
			return
		}
		line := string(l.line)
		l.line = l.line[:0]
		if l.Handle != nil {
			l.Handle(line)
		}
	case '\r':
	default:
		if len(l.line) < MaxLineLength {
			l.line = append(l.line, b)
		}
	}
}

// Pending returns the partial line not yet terminated
func (l *LineInterpreter) Pending() string {
	return string(l.line)
}

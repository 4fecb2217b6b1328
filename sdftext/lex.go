// Copyright 2024 The usdlite Authors
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

// Package sdftext implements the minimal ".usda"-subset text reader
// described in spec.md §6: layer metadata, def/over/class prim
// blocks, typed and relationship properties, variant sets, and the
// prepend/append/add/delete list-op prefixes. Its Decode is a concrete
// pcp/expand.Decoder, passed to usd/stage through stage.WithDecoder; nothing in
// pcp/expand or usd/stage depends on this package directly, so a
// binary-crate reader could stand in its place unchanged.
package sdftext

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord            // bare identifiers, keywords, numbers, true/false
	tokString          // "..."
	tokAsset           // @...@
	tokSdfPath         // <...>
	tokPunct           // one of ( ) { } [ ] = , :
)

type token struct {
	kind tokenKind
	text string
	line int
}

type lexer struct {
	src  string
	pos  int
	line int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1}
}

func (l *lexer) errf(format string, args ...interface{}) error {
	return &lexError{line: l.line, msg: fmt.Sprintf(format, args...)}
}

type lexError struct {
	line int
	msg  string
}

func (e *lexError) Error() string { return fmt.Sprintf("line %d: %s", e.line, e.msg) }

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
	}
	return c
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }

func isWordByte(c byte) bool {
	return c == '_' || c == ':' || c == '-' || c == '+' || c == '/' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.peekByte()
		if isSpace(c) {
			l.advance()
			continue
		}
		if c == '#' {
			for l.pos < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}

// next scans and returns the next token.
func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line}, nil
	}
	startLine := l.line
	c := l.peekByte()

	switch c {
	case '(', ')', '{', '}', '[', ']', '=', ',', ':':
		l.advance()
		return token{kind: tokPunct, text: string(c), line: startLine}, nil
	case '"':
		return l.scanQuoted('"', tokString)
	case '@':
		return l.scanQuoted('@', tokAsset)
	case '<':
		return l.scanSdfPath()
	}

	if isWordByte(c) {
		start := l.pos
		for l.pos < len(l.src) && isWordByte(l.peekByte()) {
			l.advance()
		}
		return token{kind: tokWord, text: l.src[start:l.pos], line: startLine}, nil
	}

	return token{}, l.errf("unexpected character %q", c)
}

func (l *lexer) scanQuoted(delim byte, kind tokenKind) (token, error) {
	startLine := l.line
	l.advance() // opening delim
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token{}, l.errf("unterminated %c...%c literal", delim, delim)
		}
		c := l.advance()
		if c == delim {
			return token{kind: kind, text: b.String(), line: startLine}, nil
		}
		if c == '\\' && l.pos < len(l.src) {
			b.WriteByte(l.advance())
			continue
		}
		b.WriteByte(c)
	}
}

// scanSdfPath reads a "<...>" token, which may itself contain a
// trailing "." property suffix but never a nested '<'.
func (l *lexer) scanSdfPath() (token, error) {
	startLine := l.line
	l.advance() // '<'
	start := l.pos
	for l.pos < len(l.src) && l.peekByte() != '>' {
		l.advance()
	}
	if l.pos >= len(l.src) {
		return token{}, l.errf("unterminated <...> path")
	}
	text := l.src[start:l.pos]
	l.advance() // '>'
	return token{kind: tokSdfPath, text: text, line: startLine}, nil
}

// looksNumeric reports whether s looks like a JSON-ish numeric literal,
// used to distinguish bare-word numbers from identifiers/keywords.
func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}

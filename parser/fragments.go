// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parser

import (
	"fmt"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const positionalParamChar = '?'

var createParserLock sync.Mutex
var fragmentParsers = sync.Map{}

// GetFragmentParser returns the shared FragmentParser for the given cache size.
func GetFragmentParser(cacheSize int) (*FragmentParser, error) {
	key := fmt.Sprintf("%v", cacheSize)
	if val, ok := fragmentParsers.Load(key); ok {
		return val.(*FragmentParser), nil
	}
	// The map is thread-safe, the lock only makes sure that we create one
	// parser per cache size.
	createParserLock.Lock()
	defer createParserLock.Unlock()
	if val, ok := fragmentParsers.Load(key); ok {
		return val.(*FragmentParser), nil
	}
	p, err := NewFragmentParser(cacheSize)
	if err != nil {
		return nil, err
	}
	fragmentParsers.Store(key, p)
	return p, nil
}

// FragmentParser splits PostgreSQL statements into the literal SQL fragments
// that surround the positional '?' placeholders.
//
// This is an internal type that can receive breaking changes without prior notice.
type FragmentParser struct {
	useCache bool
	cache    *lru.Cache[string, []string]
}

// NewFragmentParser creates a parser with an LRU cache of the given size.
// A size <= 0 disables caching.
func NewFragmentParser(cacheSize int) (*FragmentParser, error) {
	if cacheSize > 0 {
		cache, err := lru.New[string, []string](cacheSize)
		if err != nil {
			return nil, err
		}
		return &FragmentParser{useCache: true, cache: cache}, nil
	}
	return &FragmentParser{}, nil
}

// CacheSize returns the number of statements currently in the cache.
func (p *FragmentParser) CacheSize() int {
	if !p.useCache {
		return 0
	}
	return p.cache.Len()
}

// ParseFragments returns the fragments of the given statement. A statement
// with n placeholders has n+1 fragments. Question marks inside string
// literals, quoted identifiers, comments and dollar-quoted strings are not
// placeholders. The returned slice is owned by the caller.
func (p *FragmentParser) ParseFragments(sql string) ([]string, error) {
	if p.useCache {
		if cached, ok := p.cache.Get(sql); ok {
			return clone(cached), nil
		}
	}
	fragments, err := splitFragments(sql)
	if err != nil {
		return nil, err
	}
	if p.useCache {
		p.cache.Add(sql, clone(fragments))
	}
	return fragments, nil
}

func clone(s []string) []string {
	res := make([]string, len(s))
	copy(res, s)
	return res
}

func splitFragments(sql string) ([]string, error) {
	b := []byte(sql)
	fragments := make([]string, 0, 4)
	start := 0
	pos := 0
	for pos < len(b) {
		if b[pos] == positionalParamChar {
			fragments = append(fragments, sql[start:pos])
			pos++
			start = pos
			continue
		}
		newPos, err := skip(b, pos)
		if err != nil {
			return nil, err
		}
		pos = newPos
	}
	return append(fragments, sql[start:]), nil
}

func isMultibyte(c byte) bool {
	return c > utf8.RuneSelf
}

// skip skips the next character, quoted literal, quoted identifier or comment
// at pos and returns the position of the next character.
func skip(sql []byte, pos int) (int, error) {
	c := sql[pos]
	if isMultibyte(c) {
		_, size := utf8.DecodeRune(sql[pos:])
		return pos + size, nil
	}
	switch {
	case c == '\'' || c == '"':
		return skipQuoted(sql, pos, c)
	case c == '-' && len(sql) > pos+1 && sql[pos+1] == '-':
		return skipSingleLineComment(sql, pos+2), nil
	case c == '/' && len(sql) > pos+1 && sql[pos+1] == '*':
		return skipMultiLineComment(sql, pos), nil
	case c == '$':
		return skipDollarQuotedString(sql, pos)
	}
	return pos + 1, nil
}

func skipSingleLineComment(sql []byte, pos int) int {
	for pos < len(sql) {
		if sql[pos] == '\n' {
			return pos + 1
		}
		pos++
	}
	return pos
}

// skipMultiLineComment skips a (possibly nested) block comment.
func skipMultiLineComment(sql []byte, pos int) int {
	pos += 2
	level := 1
	for pos < len(sql) {
		if sql[pos] == '*' && len(sql) > pos+1 && sql[pos+1] == '/' {
			level--
			pos += 2
			if level == 0 {
				return pos
			}
			continue
		}
		if sql[pos] == '/' && len(sql) > pos+1 && sql[pos+1] == '*' {
			level++
			pos += 2
			continue
		}
		pos++
	}
	return pos
}

func skipQuoted(sql []byte, pos int, quote byte) (int, error) {
	pos++
	for pos < len(sql) {
		c := sql[pos]
		if c == quote {
			if len(sql) > pos+1 && sql[pos+1] == quote {
				// Escaped quote ('' or "").
				pos += 2
				continue
			}
			return pos + 1, nil
		}
		pos++
	}
	return 0, status.Errorf(codes.InvalidArgument, "SQL statement contains an unclosed literal: %s", string(sql))
}

func skipDollarQuotedString(sql []byte, pos int) (int, error) {
	tag, end, ok := dollarTag(sql, pos)
	if !ok {
		// Not a dollar tag, e.g. a $1 parameter. Only skip the '$'.
		return pos + 1, nil
	}
	for i := end; i < len(sql); i++ {
		if sql[i] != '$' {
			continue
		}
		if closing, closingEnd, ok := dollarTag(sql, i); ok && closing == tag {
			return closingEnd, nil
		}
	}
	return 0, status.Errorf(codes.InvalidArgument, "SQL statement contains an unclosed literal: %s", string(sql))
}

// dollarTag reads a $tag$ at pos and returns the tag and the position after
// the closing '$'.
func dollarTag(sql []byte, pos int) (string, int, bool) {
	i := pos + 1
	for ; i < len(sql); i++ {
		c := sql[i]
		if c == '$' {
			return string(sql[pos+1 : i]), i + 1, true
		}
		first := i == pos+1
		if !isIdentifierChar(c, first) {
			return "", 0, false
		}
	}
	return "", 0, false
}

func isIdentifierChar(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isMultibyte(c) {
		return true
	}
	return !first && c >= '0' && c <= '9'
}

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

package pgstmtdriver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultLobChunkSize = 4096

// charChunkSize is the buffer size that is used when a character stream is
// copied to a large object.
const charChunkSize = 256

// SetBlob copies length bytes from r to a new large object and binds the id
// of the large object as the value of the parameter. Copying stops early if r
// returns io.EOF. r is closed if it implements io.Closer.
func (s *Statement) SetBlob(ctx context.Context, index int, r io.Reader, length int64) error {
	return s.setLargeObject(ctx, index, r, length, s.lobChunkSize())
}

// SetBinaryStream is equal to SetBlob.
func (s *Statement) SetBinaryStream(ctx context.Context, index int, r io.Reader, length int64) error {
	return s.setLargeObject(ctx, index, r, length, s.lobChunkSize())
}

// SetClob copies length bytes of ASCII text from r to a new large object and
// binds the id of the large object as the value of the parameter.
func (s *Statement) SetClob(ctx context.Context, index int, r io.Reader, length int64) error {
	return s.setLargeObject(ctx, index, r, length, s.lobChunkSize())
}

// SetCharacterStream binds up to length characters from r. The characters
// are bound as a text value if the server accepts character streams as text
// parameters. Otherwise, they are copied as UTF-8 to a new large object, and
// the id of the large object is bound as the value of the parameter.
func (s *Statement) SetCharacterStream(ctx context.Context, index int, r io.Reader, length int64) error {
	if err := s.checkStreamArgs(index, r, length); err != nil {
		closeSource(r)
		return err
	}
	src := &runeLimitReader{src: r, r: bufio.NewReader(r), remaining: length}
	if s.textStreaming() {
		s.logger.DebugContext(ctx, "binding character stream as text", "index", index)
		var sb strings.Builder
		if _, err := io.Copy(&sb, src); err != nil {
			return multierr.Append(&UnexpectedIOError{Err: err}, closeSource(r))
		}
		if err := closeSource(r); err != nil {
			return err
		}
		return s.params.bind(index, sb.String(), backend.BindTypeText)
	}
	return s.copyAndBind(ctx, index, src, math.MaxInt64, charChunkSize)
}

func (s *Statement) setLargeObject(ctx context.Context, index int, r io.Reader, length int64, chunkSize int) error {
	if err := s.checkStreamArgs(index, r, length); err != nil {
		closeSource(r)
		return err
	}
	return s.copyAndBind(ctx, index, r, length, chunkSize)
}

func (s *Statement) checkStreamArgs(index int, r io.Reader, length int64) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := s.params.checkIndex(index); err != nil {
		return err
	}
	if r == nil {
		return status.Errorf(codes.InvalidArgument, "no stream given for parameter %d", index)
	}
	if length < 0 {
		return status.Errorf(codes.InvalidArgument, "invalid stream length: %d", length)
	}
	return nil
}

func (s *Statement) copyAndBind(ctx context.Context, index int, r io.Reader, length int64, chunkSize int) error {
	oid, err := copyToLargeObject(ctx, s.backend, r, length, chunkSize)
	if err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "copied stream to large object", "index", index, "oid", oid)
	return s.params.bind(index, int64(oid), backend.BindTypeInt4)
}

func (s *Statement) lobChunkSize() int {
	return propertyLobChunkSize.GetValueOrDefault(s.state)
}

func (s *Statement) textStreaming() bool {
	return s.backend.SupportsServerSideTextStreaming() && !propertyDisableTextStreaming.GetValueOrDefault(s.state)
}

// copyToLargeObject creates a new large object and copies at most n bytes
// from src to it in chunks of at most chunkSize bytes. Both the large object
// and src (if it is an io.Closer) are closed when the function returns.
func copyToLargeObject(ctx context.Context, store backend.LargeObjectStore, src io.Reader, n int64, chunkSize int) (oid backend.OID, err error) {
	defer func() {
		err = multierr.Append(err, closeSource(src))
	}()
	oid, err = store.Create(ctx)
	if err != nil {
		return 0, err
	}
	w, err := store.OpenForWrite(ctx, oid)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			err = multierr.Append(err, &UnexpectedIOError{Err: cerr})
		}
	}()

	buf := make([]byte, chunkSize)
	var written int64
	for written < n {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		want := int64(len(buf))
		if n-written < want {
			want = n - written
		}
		nr, rerr := io.ReadFull(src, buf[:want])
		if nr > 0 {
			if _, werr := w.Write(buf[:nr]); werr != nil {
				return 0, &UnexpectedIOError{Err: werr}
			}
			written += int64(nr)
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return 0, &UnexpectedIOError{Err: rerr}
		}
	}
	return oid, nil
}

func closeSource(r io.Reader) error {
	if r == nil {
		return nil
	}
	if c, ok := r.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return &UnexpectedIOError{Err: err}
		}
	}
	return nil
}

// runeLimitReader reads at most remaining characters from r and returns them
// as UTF-8. Close closes src if it is an io.Closer.
type runeLimitReader struct {
	src       io.Reader
	r         *bufio.Reader
	remaining int64
	pending   []byte
}

func (l *runeLimitReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(l.pending) > 0 {
			c := copy(p[n:], l.pending)
			l.pending = l.pending[c:]
			n += c
			continue
		}
		if l.remaining <= 0 {
			break
		}
		ch, _, err := l.r.ReadRune()
		if err != nil {
			if n > 0 && errors.Is(err, io.EOF) {
				l.remaining = 0
				return n, nil
			}
			return n, err
		}
		l.remaining--
		if utf8.RuneLen(ch) <= len(p)-n {
			n += utf8.EncodeRune(p[n:], ch)
			continue
		}
		var enc [utf8.UTFMax]byte
		l.pending = enc[:utf8.EncodeRune(enc[:], ch)]
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (l *runeLimitReader) Close() error {
	if c, ok := l.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

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
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestParseFragments(t *testing.T) {
	t.Parallel()

	p, err := NewFragmentParser(0)
	if err != nil {
		t.Fatal(err)
	}
	type test struct {
		input   string
		want    []string
		wantErr bool
	}
	tests := []test{
		{
			input: "SELECT 1",
			want:  []string{"SELECT 1"},
		},
		{
			input: "INSERT INTO t (a, b) VALUES (?, ?)",
			want:  []string{"INSERT INTO t (a, b) VALUES (", ", ", ")"},
		},
		{
			input: "?",
			want:  []string{"", ""},
		},
		{
			input: "SELECT '?', \"?\", ? FROM t",
			want:  []string{"SELECT '?', \"?\", ", " FROM t"},
		},
		{
			input: "SELECT 'it''s ?' WHERE a=?",
			want:  []string{"SELECT 'it''s ?' WHERE a=", ""},
		},
		{
			input: "SELECT ? -- why?\n, ?",
			want:  []string{"SELECT ", " -- why?\n, ", ""},
		},
		{
			input: "SELECT /* a /* nested? */ comment? */ ?",
			want:  []string{"SELECT /* a /* nested? */ comment? */ ", ""},
		},
		{
			input: "SELECT $$?$$, $tag$ ? $tag$, ?",
			want:  []string{"SELECT $$?$$, $tag$ ? $tag$, ", ""},
		},
		{
			input: "SELECT $1, ?",
			want:  []string{"SELECT $1, ", ""},
		},
		{
			input: "SELECT 'ünïcödé?', ?",
			want:  []string{"SELECT 'ünïcödé?', ", ""},
		},
		{
			input:   "SELECT 'unclosed ?",
			wantErr: true,
		},
		{
			input:   "SELECT $x$ unclosed ?",
			wantErr: true,
		},
	}
	for _, test := range tests {
		got, err := p.ParseFragments(test.input)
		if test.wantErr {
			if g, w := status.Code(err), codes.InvalidArgument; g != w {
				t.Errorf("%q: error code mismatch\n Got: %v\nWant: %v", test.input, g, w)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", test.input, err)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("%q: fragments mismatch (-want +got):\n%s", test.input, diff)
		}
	}
}

func TestParseFragmentsCache(t *testing.T) {
	t.Parallel()

	p, err := NewFragmentParser(10)
	if err != nil {
		t.Fatal(err)
	}
	sql := "UPDATE t SET a=? WHERE id=?"
	first, err := p.ParseFragments(sql)
	if err != nil {
		t.Fatal(err)
	}
	if g, w := p.CacheSize(), 1; g != w {
		t.Fatalf("cache size mismatch\n Got: %v\nWant: %v", g, w)
	}
	// Modifying the returned slice must not affect the cached value.
	first[0] = "DELETE FROM t WHERE a="
	second, err := p.ParseFragments(sql)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"UPDATE t SET a=", " WHERE id=", ""}, second); diff != "" {
		t.Fatalf("fragments mismatch (-want +got):\n%s", diff)
	}
}

func TestGetFragmentParser(t *testing.T) {
	t.Parallel()

	p1, err := GetFragmentParser(50)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := GetFragmentParser(50)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatal("expected the same parser for the same cache size")
	}
}

// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package frame holds statistical tables in long format (one row per
// observation) and rotates them into wide format.
package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
	"github.com/stockparfait/statbank/table"

	"golang.org/x/exp/slices"
)

// Value is an arbitrary value of a frame cell. Dimension cells are strings,
// value cells are float64 with NaN for a missing observation.
type Value interface{}

// FormatValue renders a cell for printing. NaN and nil become empty strings.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprint(v)
}

// Row of a Frame, one Value per column.
type Row []Value

var _ table.Row = Row{}

// CSV implements table.Row.
func (r Row) CSV() []string {
	res := make([]string, len(r))
	for i, v := range r {
		res[i] = FormatValue(v)
	}
	return res
}

// Frame is a table with named columns. All rows are expected to have exactly
// len(Columns) values.
type Frame struct {
	Columns []string
	Rows    []Row
}

// NewFrame creates an empty Frame with the given columns.
func NewFrame(columns ...string) *Frame {
	return &Frame{Columns: columns}
}

// AddRow adds one or more rows to the frame.
func (f *Frame) AddRow(rows ...Row) {
	f.Rows = append(f.Rows, rows...)
}

// Len is the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// ColumnIndex returns the position of the named column.
func (f *Frame) ColumnIndex(name string) (int, error) {
	if i := slices.Index(f.Columns, name); i >= 0 {
		return i, nil
	}
	return -1, errors.Reason("no column '%s' in [%s]",
		name, strings.Join(f.Columns, ", "))
}

// Table converts the frame for printing.
func (f *Frame) Table() *table.Table {
	t := table.NewTable(f.Columns...)
	for _, r := range f.Rows {
		t.AddRow(r)
	}
	return t
}

type concatState struct {
	frame *Frame
	count int // frames consumed so far
	err   error
}

// Concat appends the rows of all the frames in order into a new frame. The
// frames must have identical column lists; rows are not deduplicated. With no
// frames the result is an empty frame without columns.
func Concat(frames ...*Frame) (*Frame, error) {
	f := func(fr *Frame, s *concatState) *concatState {
		defer func() { s.count++ }()
		if s.err != nil {
			return s
		}
		if s.frame == nil {
			s.frame = NewFrame(slices.Clone(fr.Columns)...)
		} else if !slices.Equal(s.frame.Columns, fr.Columns) {
			s.err = errors.Reason("frame %d has columns [%s], expected [%s]",
				s.count, strings.Join(fr.Columns, ", "),
				strings.Join(s.frame.Columns, ", "))
			return s
		}
		s.frame.AddRow(fr.Rows...)
		return s
	}
	s := iterator.Reduce[*Frame, *concatState](
		iterator.FromSlice(frames), &concatState{}, f)
	if s.err != nil {
		return nil, s.err
	}
	if s.frame == nil {
		return NewFrame(), nil
	}
	return s.frame, nil
}

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

package frame

import (
	"math"
	"sort"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/statbank/table"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"
)

// Default column names for Rotate, as produced by the English StatBank API.
const (
	DefaultIndex = "year"
	DefaultValue = "value"
)

// Wide is a frame rotated into wide format: one row per distinct index label
// and one column per distinct combination of the remaining (level) columns.
type Wide struct {
	IndexName string
	ValueName string
	Index     []string   // sorted row labels
	Levels    []string   // names of the column levels, in frame order
	Columns   [][]string // sorted label tuples, one per column, len(Levels) each
	// Values has len(Index) rows and len(Columns) columns. Combinations absent
	// from the original frame are NaN.
	Values *mat.Dense
	order  []string // column order of the original frame
}

// tupleKey joins a label tuple into a map key.
func tupleKey(labels []string) string {
	return strings.Join(labels, "\x00")
}

func numeric(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case nil:
		return math.NaN(), true
	}
	return 0, false
}

// Rotate pivots a long-format frame: the distinct values of the index column
// become row labels, the value column fills the cells, and all the other
// columns become levels of a hierarchical column label.
//
// Each (index, other columns) combination must occur at most once; a duplicate
// is an error rather than being aggregated.
func Rotate(f *Frame, index, value string) (*Wide, error) {
	if index == value {
		return nil, errors.Reason("index and value columns are both '%s'", index)
	}
	ii, err := f.ColumnIndex(index)
	if err != nil {
		return nil, errors.Annotate(err, "no index column")
	}
	vi, err := f.ColumnIndex(value)
	if err != nil {
		return nil, errors.Annotate(err, "no value column")
	}
	if f.Len() == 0 {
		return nil, errors.Reason("cannot rotate an empty frame")
	}
	var levelIdx []int
	w := Wide{IndexName: index, ValueName: value, order: slices.Clone(f.Columns)}
	for i, c := range f.Columns {
		if i != ii && i != vi {
			levelIdx = append(levelIdx, i)
			w.Levels = append(w.Levels, c)
		}
	}

	rowLabels := make(map[string]struct{})
	colLabels := make(map[string][]string)
	for n, r := range f.Rows {
		if len(r) != len(f.Columns) {
			return nil, errors.Reason("row %d has %d values, expected %d",
				n, len(r), len(f.Columns))
		}
		rowLabels[FormatValue(r[ii])] = struct{}{}
		t := make([]string, len(levelIdx))
		for j, li := range levelIdx {
			t[j] = FormatValue(r[li])
		}
		colLabels[tupleKey(t)] = t
	}
	for l := range rowLabels {
		w.Index = append(w.Index, l)
	}
	slices.Sort(w.Index)
	for _, t := range colLabels {
		w.Columns = append(w.Columns, t)
	}
	sort.Slice(w.Columns, func(i, j int) bool {
		a, b := w.Columns[i], w.Columns[j]
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})

	rowPos := make(map[string]int, len(w.Index))
	for i, l := range w.Index {
		rowPos[l] = i
	}
	colPos := make(map[string]int, len(w.Columns))
	for j, t := range w.Columns {
		colPos[tupleKey(t)] = j
	}
	data := make([]float64, len(w.Index)*len(w.Columns))
	for i := range data {
		data[i] = math.NaN()
	}
	filled := make([]bool, len(data))
	for n, r := range f.Rows {
		v, ok := numeric(r[vi])
		if !ok {
			return nil, errors.Reason("row %d: value %v of column '%s' is not numeric",
				n, r[vi], value)
		}
		t := make([]string, len(levelIdx))
		for j, li := range levelIdx {
			t[j] = FormatValue(r[li])
		}
		label := FormatValue(r[ii])
		k := rowPos[label]*len(w.Columns) + colPos[tupleKey(t)]
		if filled[k] {
			return nil, errors.Reason("duplicate entry for %s=%s, (%s)=(%s)",
				index, label, strings.Join(w.Levels, ", "), strings.Join(t, ", "))
		}
		filled[k] = true
		data[k] = v
	}
	w.Values = mat.NewDense(len(w.Index), len(w.Columns), data)
	return &w, nil
}

// Lookup returns the value for the index label and the column label tuple. The
// second result is false when there is no such cell or the cell is NaN.
func (w *Wide) Lookup(index string, labels ...string) (float64, bool) {
	i := slices.Index(w.Index, index)
	if i < 0 {
		return 0, false
	}
	key := tupleKey(labels)
	for j, t := range w.Columns {
		if tupleKey(t) == key {
			v := w.Values.At(i, j)
			return v, !math.IsNaN(v)
		}
	}
	return 0, false
}

// Melt converts the wide table back into long format with the column order of
// the frame it was rotated from. NaN cells are skipped.
func (w *Wide) Melt() *Frame {
	f := NewFrame(slices.Clone(w.order)...)
	// For each output column: -1 for the index, -2 for the value, otherwise
	// the level number.
	src := make([]int, len(w.order))
	for k, c := range w.order {
		switch c {
		case w.IndexName:
			src[k] = -1
		case w.ValueName:
			src[k] = -2
		default:
			src[k] = slices.Index(w.Levels, c)
		}
	}
	for i, label := range w.Index {
		for j, t := range w.Columns {
			v := w.Values.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			r := make(Row, len(src))
			for k, s := range src {
				switch s {
				case -1:
					r[k] = label
				case -2:
					r[k] = v
				default:
					r[k] = t[s]
				}
			}
			f.AddRow(r)
		}
	}
	return f
}

// Table converts the wide table for printing: one header row per column level
// followed by a row naming the index.
func (w *Wide) Table() *table.Table {
	t := table.NewTable()
	if len(w.Levels) == 0 {
		t.AddHeader(w.IndexName, w.ValueName)
	}
	for l, name := range w.Levels {
		h := make([]string, len(w.Columns)+1)
		h[0] = name
		for j, c := range w.Columns {
			h[j+1] = c[l]
		}
		t.AddHeader(h...)
	}
	if len(w.Levels) > 0 {
		h := make([]string, len(w.Columns)+1)
		h[0] = w.IndexName
		t.AddHeader(h...)
	}
	for i, label := range w.Index {
		r := make(table.Strings, len(w.Columns)+1)
		r[0] = label
		for j := range w.Columns {
			r[j+1] = FormatValue(w.Values.At(i, j))
		}
		t.AddRow(r)
	}
	return t
}

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

// Package table renders row-oriented data as CSV or as aligned text.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/stockparfait/errors"
)

// Row interface that a table row representation must implement.
type Row interface {
	CSV() []string // an encoding/csv compatible row representation
}

// Strings is the simplest Row: a row of ready-made cells.
type Strings []string

var _ Row = Strings{}

// CSV implements Row.
func (s Strings) CSV() []string { return s }

// Table container.
//
// A table may have several header rows, e.g. for a pivoted statistics table
// where each column is labeled by a tuple (region, contents):
//
//	t := NewTable("region", "Oslo", "Oslo", "Bergen")
//	t.AddHeader("contents", "Population", "Area", "Population")
//	t.AddRow(Strings{"2020", "693494", "454", "285911"})
type Table struct {
	Headers [][]string // optional, may be empty
	Rows    []Row
}

// NewTable creates a new Table instance with an optional first header row.
// When present, each header row is expected to have the same number of
// elements as each Row.
func NewTable(header ...string) *Table {
	t := &Table{}
	if len(header) > 0 {
		t.Headers = [][]string{header}
	}
	return t
}

// AddHeader appends one more header row below the existing ones.
func (t *Table) AddHeader(header ...string) {
	t.Headers = append(t.Headers, header)
}

// AddRow adds one or more rows to the table.
func (t *Table) AddRow(rows ...Row) {
	t.Rows = append(t.Rows, rows...)
}

// Params are parameters for pretty-printing or CSV export of Table data.
type Params struct {
	Rows        int  // max. number of rows to write; 0 = unlimited (default)
	NoHeader    bool // whether to print the headers, default - yes
	MaxColWidth int  // for WriteText only; 0 = unlimited, otherwise must be >= 4
}

func (t *Table) headers(p Params) [][]string {
	if p.NoHeader {
		return nil
	}
	return t.Headers
}

// WriteCSV writes the entire table to w in CSV format. Each header row becomes
// a separate CSV line.
func (t *Table) WriteCSV(w io.Writer, p Params) error {
	cw := csv.NewWriter(w)
	for i, h := range t.headers(p) {
		if err := cw.Write(h); err != nil {
			return errors.Annotate(err, "failed to write header %d", i)
		}
	}
	for i, r := range t.Rows {
		if p.Rows > 0 && i >= p.Rows {
			break
		}
		if err := cw.Write(r.CSV()); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Annotate(err, "failed to flush written rows")
	}
	return nil
}

// WriteText writes the table as a text formatted for ease of reading. A line of
// dashes separates the headers from the rows.
func (t *Table) WriteText(w io.Writer, p Params) error {
	if p.MaxColWidth != 0 && p.MaxColWidth < 4 {
		return errors.Reason("MaxColWidth [%d] must be 0 or >= 4", p.MaxColWidth)
	}
	var widths []int
	update := func(row []string) error {
		if len(row) == 0 {
			return errors.Reason("row size = 0")
		}
		if len(widths) == 0 {
			widths = make([]int, len(row))
		}
		if len(row) != len(widths) {
			return errors.Reason("row size [%d] != expected size [%d]",
				len(row), len(widths))
		}
		for i := range widths {
			if n := len([]rune(row[i])); widths[i] < n {
				widths[i] = n
				if p.MaxColWidth > 0 && widths[i] > p.MaxColWidth {
					widths[i] = p.MaxColWidth
				}
			}
		}
		return nil
	}

	write := func(row []string) error {
		trimmed := make([]string, len(row))
		for i, s := range row {
			trimmed[i] = s
			if r := []rune(s); len(r) > widths[i] {
				trimmed[i] = string(r[:widths[i]-2]) + ".."
			}
			trimmed[i] = fmt.Sprintf("%[2]*[1]s", trimmed[i], widths[i])
		}
		_, err := fmt.Fprintf(w, "%s\n", strings.Join(trimmed, " | "))
		return err
	}

	dashedRow := func() []string {
		row := make([]string, len(widths))
		for i, w := range widths {
			row[i] = strings.Repeat("-", w)
		}
		return row
	}

	headers := t.headers(p)
	for i, h := range headers {
		if err := update(h); err != nil {
			return errors.Annotate(err, "failed to update widths of header %d", i)
		}
	}
	for i, r := range t.Rows {
		if p.Rows > 0 && i >= p.Rows {
			break
		}
		if err := update(r.CSV()); err != nil {
			return errors.Annotate(err, "failed to update row widths")
		}
	}

	for i, h := range headers {
		if err := write(h); err != nil {
			return errors.Annotate(err, "failed to write header %d", i)
		}
	}
	if len(headers) > 0 {
		if err := write(dashedRow()); err != nil {
			return errors.Annotate(err, "failed to write header separator")
		}
	}
	for i, r := range t.Rows {
		if p.Rows > 0 && i >= p.Rows {
			break
		}
		if err := write(r.CSV()); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	return nil
}

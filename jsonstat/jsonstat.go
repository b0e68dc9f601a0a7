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

// Package jsonstat decodes JSON-stat 2.0 datasets and flattens them into
// long-format frames.
//
// The format is documented at https://json-stat.org/format/ . A dataset is a
// dense cube: "id" lists the dimensions, "size" their category counts, and
// "value" holds one cell per combination in row-major order, i.e. the last
// dimension varies fastest.
package jsonstat

import (
	"bytes"
	"math"
	"strconv"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/statbank/frame"

	json "github.com/goccy/go-json"
)

// ValueColumn is the name of the value column in frames produced by
// Dataset.Frame.
const ValueColumn = "value"

// Naming selects what is used for column names and dimension cells.
type Naming int

const (
	Label Naming = iota // human readable labels, e.g. "region", "Oslo"
	ID                  // codes, e.g. "Region", "0301"
)

// ParseNaming converts "label" or "id" to Naming.
func ParseNaming(s string) (Naming, error) {
	switch s {
	case "label":
		return Label, nil
	case "id":
		return ID, nil
	}
	return Label, errors.Reason("unknown naming '%s', expected label or id", s)
}

func (n Naming) String() string {
	if n == ID {
		return "id"
	}
	return "label"
}

// Category of a dimension.
type Category struct {
	ID    string
	Label string
}

// Dimension with its categories in cube order.
type Dimension struct {
	ID         string
	Label      string
	Categories []Category
}

// Dataset is a decoded JSON-stat dataset.
type Dataset struct {
	Label      string
	Source     string
	Updated    string
	Role       map[string][]string
	Dimensions []Dimension
	Values     []float64      // missing cells are NaN
	Status     map[int]string // cell index -> status symbol, if any
}

type rawCategory struct {
	Index json.RawMessage   `json:"index"`
	Label map[string]string `json:"label"`
}

type rawDimension struct {
	Label    string      `json:"label"`
	Category rawCategory `json:"category"`
}

type rawDataset struct {
	Version   string                  `json:"version"`
	Class     string                  `json:"class"`
	Label     string                  `json:"label"`
	Source    string                  `json:"source"`
	Updated   string                  `json:"updated"`
	ID        []string                `json:"id"`
	Size      []int                   `json:"size"`
	Role      map[string][]string     `json:"role"`
	Dimension map[string]rawDimension `json:"dimension"`
	Value     json.RawMessage         `json:"value"`
	Status    json.RawMessage         `json:"status"`
}

// kind returns the first non-space byte of a raw JSON value, or 0 for an absent
// or null value.
func kind(raw json.RawMessage) byte {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0
	}
	return b[0]
}

func parseCategories(rc rawCategory, size int) ([]Category, error) {
	cats := make([]Category, size)
	switch kind(rc.Index) {
	case '[':
		var ids []string
		if err := json.Unmarshal(rc.Index, &ids); err != nil {
			return nil, errors.Annotate(err, "failed to parse category index")
		}
		if len(ids) != size {
			return nil, errors.Reason("%d categories, expected %d", len(ids), size)
		}
		for i, c := range ids {
			cats[i].ID = c
		}
	case '{':
		var pos map[string]int
		if err := json.Unmarshal(rc.Index, &pos); err != nil {
			return nil, errors.Annotate(err, "failed to parse category index")
		}
		if len(pos) != size {
			return nil, errors.Reason("%d categories, expected %d", len(pos), size)
		}
		for c, i := range pos {
			if i < 0 || i >= size || cats[i].ID != "" {
				return nil, errors.Reason("invalid position %d of category '%s'", i, c)
			}
			cats[i].ID = c
		}
	case 0:
		// A single-category dimension may omit the index.
		if len(rc.Label) != 1 || size != 1 {
			return nil, errors.Reason("category index is missing")
		}
		for c := range rc.Label {
			cats[0].ID = c
		}
	default:
		return nil, errors.Reason("category index is neither an array nor an object")
	}
	for i := range cats {
		cats[i].Label = rc.Label[cats[i].ID]
		if cats[i].Label == "" {
			cats[i].Label = cats[i].ID
		}
	}
	return cats, nil
}

func parseValues(raw json.RawMessage, total int) ([]float64, error) {
	values := make([]float64, total)
	switch kind(raw) {
	case '[':
		var vs []*float64
		if err := json.Unmarshal(raw, &vs); err != nil {
			return nil, errors.Annotate(err, "failed to parse values")
		}
		if len(vs) != total {
			return nil, errors.Reason("%d values, expected %d", len(vs), total)
		}
		for i, v := range vs {
			values[i] = math.NaN()
			if v != nil {
				values[i] = *v
			}
		}
	case '{':
		var vs map[string]*float64
		if err := json.Unmarshal(raw, &vs); err != nil {
			return nil, errors.Annotate(err, "failed to parse values")
		}
		for i := range values {
			values[i] = math.NaN()
		}
		for k, v := range vs {
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= total {
				return nil, errors.Reason("invalid value index '%s'", k)
			}
			if v != nil {
				values[i] = *v
			}
		}
	default:
		return nil, errors.Reason("value is missing")
	}
	return values, nil
}

func parseStatus(raw json.RawMessage, total int) (map[int]string, error) {
	res := make(map[int]string)
	switch kind(raw) {
	case 0:
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.Annotate(err, "failed to parse status")
		}
		for i := 0; i < total; i++ {
			res[i] = s
		}
	case '[':
		var ss []*string
		if err := json.Unmarshal(raw, &ss); err != nil {
			return nil, errors.Annotate(err, "failed to parse status")
		}
		if len(ss) > total {
			return nil, errors.Reason("%d status entries, expected at most %d", len(ss), total)
		}
		for i, s := range ss {
			if s != nil && *s != "" {
				res[i] = *s
			}
		}
	case '{':
		var ss map[string]string
		if err := json.Unmarshal(raw, &ss); err != nil {
			return nil, errors.Annotate(err, "failed to parse status")
		}
		for k, s := range ss {
			i, err := strconv.Atoi(k)
			if err != nil {
				return nil, errors.Reason("invalid status index '%s'", k)
			}
			if i < 0 || i >= total {
				return nil, errors.Reason("status index %d is out of range [0, %d)", i, total)
			}
			res[i] = s
		}
	default:
		return nil, errors.Reason("unsupported status format")
	}
	return res, nil
}

// Decode parses a JSON-stat 2.0 dataset.
func Decode(data []byte) (*Dataset, error) {
	var raw rawDataset
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Annotate(err, "failed to parse JSON-stat")
	}
	if raw.Class != "dataset" {
		return nil, errors.Reason("JSON-stat class is '%s', expected 'dataset'", raw.Class)
	}
	if len(raw.ID) != len(raw.Size) {
		return nil, errors.Reason("%d dimension ids but %d sizes", len(raw.ID), len(raw.Size))
	}
	ds := Dataset{
		Label:   raw.Label,
		Source:  raw.Source,
		Updated: raw.Updated,
		Role:    raw.Role,
	}
	total := 1
	for i, id := range raw.ID {
		rd, ok := raw.Dimension[id]
		if !ok {
			return nil, errors.Reason("dimension '%s' is not described", id)
		}
		cats, err := parseCategories(rd.Category, raw.Size[i])
		if err != nil {
			return nil, errors.Annotate(err, "dimension '%s'", id)
		}
		label := rd.Label
		if label == "" {
			label = id
		}
		ds.Dimensions = append(ds.Dimensions, Dimension{ID: id, Label: label, Categories: cats})
		total *= raw.Size[i]
	}
	var err error
	if ds.Values, err = parseValues(raw.Value, total); err != nil {
		return nil, err
	}
	if ds.Status, err = parseStatus(raw.Status, total); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Frame flattens the dataset into long format: one column per dimension in
// dataset order followed by ValueColumn, one row per cell in cube order.
func (d *Dataset) Frame(naming Naming) *frame.Frame {
	cols := make([]string, len(d.Dimensions)+1)
	for i, dim := range d.Dimensions {
		cols[i] = dim.Label
		if naming == ID {
			cols[i] = dim.ID
		}
	}
	cols[len(cols)-1] = ValueColumn
	f := frame.NewFrame(cols...)
	for n, v := range d.Values {
		r := make(frame.Row, len(cols))
		rem := n
		for i := len(d.Dimensions) - 1; i >= 0; i-- {
			cats := d.Dimensions[i].Categories
			c := cats[rem%len(cats)]
			rem /= len(cats)
			r[i] = c.Label
			if naming == ID {
				r[i] = c.ID
			}
		}
		r[len(r)-1] = v
		f.AddRow(r)
	}
	return f
}

type testCategory struct {
	Index []string          `json:"index"`
	Label map[string]string `json:"label"`
}

type testDimension struct {
	Label    string       `json:"label"`
	Category testCategory `json:"category"`
}

type testDataset struct {
	Version   string                   `json:"version"`
	Class     string                   `json:"class"`
	ID        []string                 `json:"id"`
	Size      []int                    `json:"size"`
	Dimension map[string]testDimension `json:"dimension"`
	Value     []*float64               `json:"value"`
}

// TestDataset generates a JSON-stat 2.0 dataset document with the given
// dimensions and values (NaN becomes null). For use in tests.
func TestDataset(dims []Dimension, values []float64) (string, error) {
	ds := testDataset{
		Version:   "2.0",
		Class:     "dataset",
		Dimension: make(map[string]testDimension),
	}
	for _, d := range dims {
		ds.ID = append(ds.ID, d.ID)
		ds.Size = append(ds.Size, len(d.Categories))
		td := testDimension{Label: d.Label, Category: testCategory{Label: make(map[string]string)}}
		for _, c := range d.Categories {
			td.Category.Index = append(td.Category.Index, c.ID)
			td.Category.Label[c.ID] = c.Label
		}
		ds.Dimension[d.ID] = td
	}
	ds.Value = make([]*float64, len(values))
	for i := range values {
		if !math.IsNaN(values[i]) {
			ds.Value[i] = &values[i]
		}
	}
	bytes, err := json.Marshal(&ds)
	return string(bytes), err
}

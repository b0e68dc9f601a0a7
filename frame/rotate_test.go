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
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stockparfait/statbank/table"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

func sortedCSV(f *Frame) [][]string {
	var res [][]string
	for _, r := range f.Rows {
		res = append(res, r.CSV())
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return res
}

func TestRotate(t *testing.T) {
	t.Parallel()

	long := func() *Frame {
		f := NewFrame("region", "contents", "year", "value")
		f.AddRow(
			Row{"Oslo", "Population", "2021", 697010.0},
			Row{"Oslo", "Population", "2020", 693494.0},
			Row{"Oslo", "Area", "2020", 454.1},
			Row{"Oslo", "Area", "2021", 454.1},
			Row{"Bergen", "Population", "2020", 285911.0},
			Row{"Bergen", "Population", "2021", 286930.0},
		)
		return f
	}

	Convey("Rotate works", t, func() {
		w, err := Rotate(long(), DefaultIndex, DefaultValue)
		So(err, ShouldBeNil)
		So(w.IndexName, ShouldEqual, "year")
		So(w.Index, ShouldResemble, []string{"2020", "2021"})
		So(w.Levels, ShouldResemble, []string{"region", "contents"})
		So(w.Columns, ShouldResemble, [][]string{
			{"Bergen", "Population"},
			{"Oslo", "Area"},
			{"Oslo", "Population"},
		})
		r, c := w.Values.Dims()
		So(r, ShouldEqual, 2)
		So(c, ShouldEqual, 3)
		So(testutil.RoundSlice(mat.Row(nil, 0, w.Values), 7), ShouldResemble,
			testutil.RoundSlice([]float64{285911, 454.1, 693494}, 7))
		So(testutil.RoundSlice(mat.Row(nil, 1, w.Values), 7), ShouldResemble,
			testutil.RoundSlice([]float64{286930, 454.1, 697010}, 7))

		Convey("Lookup", func() {
			v, ok := w.Lookup("2021", "Oslo", "Population")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 697010.0)
			_, ok = w.Lookup("2019", "Oslo", "Population")
			So(ok, ShouldBeFalse)
			_, ok = w.Lookup("2021", "Bergen", "Area")
			So(ok, ShouldBeFalse)
		})

		Convey("Melt restores the original rows", func() {
			m := w.Melt()
			So(m.Columns, ShouldResemble, []string{"region", "contents", "year", "value"})
			So(sortedCSV(m), ShouldResemble, sortedCSV(long()))
		})

		Convey("Table", func() {
			var buf bytes.Buffer
			So(w.Table().WriteCSV(&buf, table.Params{}), ShouldBeNil)
			So("\n"+buf.String(), ShouldEqual, `
region,Bergen,Oslo,Oslo
contents,Population,Area,Population
year,,,
2020,285911,454.1,693494
2021,286930,454.1,697010
`)
		})
	})

	Convey("Missing combinations are NaN", t, func() {
		f := NewFrame("region", "year", "value")
		f.AddRow(Row{"Oslo", "2020", 1.0}, Row{"Bergen", "2021", 2.0})
		w, err := Rotate(f, "year", "value")
		So(err, ShouldBeNil)
		So(math.IsNaN(w.Values.At(0, 0)), ShouldBeTrue) // 2020, Bergen
		So(w.Values.At(0, 1), ShouldEqual, 1.0)
		So(len(w.Melt().Rows), ShouldEqual, 2)
	})

	Convey("No level columns", t, func() {
		f := NewFrame("year", "value")
		f.AddRow(Row{"2021", 2.0}, Row{"2020", 1.0})
		w, err := Rotate(f, "year", "value")
		So(err, ShouldBeNil)
		So(w.Columns, ShouldResemble, [][]string{{}})
		var buf bytes.Buffer
		So(w.Table().WriteCSV(&buf, table.Params{}), ShouldBeNil)
		So("\n"+buf.String(), ShouldEqual, `
year,value
2020,1
2021,2
`)
	})

	Convey("Rotate errors", t, func() {
		Convey("missing index column", func() {
			_, err := Rotate(long(), "month", "value")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no index column")
		})

		Convey("missing value column", func() {
			_, err := Rotate(long(), "year", "amount")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no value column")
		})

		Convey("same index and value", func() {
			_, err := Rotate(long(), "year", "year")
			So(err, ShouldNotBeNil)
		})

		Convey("empty frame", func() {
			_, err := Rotate(NewFrame("year", "value"), "year", "value")
			So(err, ShouldNotBeNil)
		})

		Convey("non-numeric value", func() {
			f := NewFrame("year", "value")
			f.AddRow(Row{"2020", "many"})
			_, err := Rotate(f, "year", "value")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "not numeric")
		})

		Convey("duplicate combination", func() {
			f := long()
			f.AddRow(Row{"Oslo", "Area", "2020", 455.0})
			_, err := Rotate(f, "year", "value")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "duplicate entry for year=2020")
		})
	})
}

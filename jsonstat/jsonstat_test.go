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

package jsonstat

import (
	"math"
	"testing"

	"github.com/stockparfait/statbank/frame"

	. "github.com/smartystreets/goconvey/convey"
)

const populationJSON = `{
  "version": "2.0",
  "class": "dataset",
  "label": "09932: Population (by region, contents and year)",
  "source": "Statistics Norway",
  "updated": "2023-05-10T06:00:00Z",
  "id": ["Region", "ContentsCode", "Tid"],
  "size": [2, 1, 2],
  "role": {"time": ["Tid"], "metric": ["ContentsCode"]},
  "dimension": {
    "Region": {
      "label": "region",
      "category": {
        "index": {"0301": 0, "4601": 1},
        "label": {"0301": "Oslo", "4601": "Bergen"}
      }
    },
    "ContentsCode": {
      "label": "contents",
      "category": {"label": {"Folkemengde": "Population"}}
    },
    "Tid": {
      "label": "year",
      "category": {"index": ["2020", "2021"]}
    }
  },
  "value": [693494, 697010, 285911, null],
  "status": {"3": ".."}
}`

func TestJSONStat(t *testing.T) {
	t.Parallel()

	Convey("ParseNaming", t, func() {
		n, err := ParseNaming("id")
		So(err, ShouldBeNil)
		So(n, ShouldEqual, ID)
		So(n.String(), ShouldEqual, "id")
		n, err = ParseNaming("label")
		So(err, ShouldBeNil)
		So(n, ShouldEqual, Label)
		_, err = ParseNaming("code")
		So(err, ShouldNotBeNil)
	})

	Convey("Decode works", t, func() {
		ds, err := Decode([]byte(populationJSON))
		So(err, ShouldBeNil)
		So(ds.Label, ShouldEqual, "09932: Population (by region, contents and year)")
		So(ds.Source, ShouldEqual, "Statistics Norway")
		So(ds.Role["time"], ShouldResemble, []string{"Tid"})
		So(ds.Dimensions, ShouldResemble, []Dimension{
			{ID: "Region", Label: "region", Categories: []Category{
				{ID: "0301", Label: "Oslo"}, {ID: "4601", Label: "Bergen"}}},
			{ID: "ContentsCode", Label: "contents", Categories: []Category{
				{ID: "Folkemengde", Label: "Population"}}},
			{ID: "Tid", Label: "year", Categories: []Category{
				{ID: "2020", Label: "2020"}, {ID: "2021", Label: "2021"}}},
		})
		So(ds.Values[:3], ShouldResemble, []float64{693494, 697010, 285911})
		So(math.IsNaN(ds.Values[3]), ShouldBeTrue)
		So(ds.Status, ShouldResemble, map[int]string{3: ".."})

		Convey("Frame with labels", func() {
			f := ds.Frame(Label)
			So(f.Columns, ShouldResemble, []string{"region", "contents", "year", "value"})
			So(f.Len(), ShouldEqual, 4)
			So(f.Rows[:3], ShouldResemble, []frame.Row{
				{"Oslo", "Population", "2020", 693494.0},
				{"Oslo", "Population", "2021", 697010.0},
				{"Bergen", "Population", "2020", 285911.0},
			})
			So(f.Rows[3][:3], ShouldResemble, frame.Row{"Bergen", "Population", "2021"})
			So(math.IsNaN(f.Rows[3][3].(float64)), ShouldBeTrue)
		})

		Convey("Frame with ids", func() {
			f := ds.Frame(ID)
			So(f.Columns, ShouldResemble, []string{"Region", "ContentsCode", "Tid", "value"})
			So(f.Rows[2], ShouldResemble, frame.Row{"4601", "Folkemengde", "2020", 285911.0})
		})
	})

	Convey("Decode handles sparse values and status arrays", t, func() {
		ds, err := Decode([]byte(`{
			"class": "dataset", "id": ["Tid"], "size": [3],
			"dimension": {"Tid": {"category": {"index": ["2019", "2020", "2021"]}}},
			"value": {"0": 1.5, "2": 3},
			"status": [null, "..", ""]}`))
		So(err, ShouldBeNil)
		So(ds.Dimensions[0].Label, ShouldEqual, "Tid")
		So(ds.Values[0], ShouldEqual, 1.5)
		So(math.IsNaN(ds.Values[1]), ShouldBeTrue)
		So(ds.Values[2], ShouldEqual, 3.0)
		So(ds.Status, ShouldResemble, map[int]string{1: ".."})
	})

	Convey("Decode errors", t, func() {
		Convey("invalid JSON", func() {
			_, err := Decode([]byte(`<html>403 Forbidden</html>`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to parse JSON-stat")
		})

		Convey("not a dataset", func() {
			_, err := Decode([]byte(`{"class": "collection"}`))
			So(err, ShouldNotBeNil)
		})

		Convey("size mismatch", func() {
			_, err := Decode([]byte(`{"class": "dataset", "id": ["A"], "size": [], "value": []}`))
			So(err, ShouldNotBeNil)
		})

		Convey("undescribed dimension", func() {
			_, err := Decode([]byte(`{"class": "dataset", "id": ["A"], "size": [1], "value": [1]}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "dimension 'A' is not described")
		})

		Convey("wrong category count", func() {
			_, err := Decode([]byte(`{"class": "dataset", "id": ["A"], "size": [2],
				"dimension": {"A": {"category": {"index": ["x"]}}}, "value": [1, 2]}`))
			So(err, ShouldNotBeNil)
		})

		Convey("wrong value count", func() {
			_, err := Decode([]byte(`{"class": "dataset", "id": ["A"], "size": [1],
				"dimension": {"A": {"category": {"index": ["x"]}}}, "value": [1, 2]}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "2 values, expected 1")
		})

		Convey("status index out of range", func() {
			_, err := Decode([]byte(`{"class": "dataset", "id": ["A"], "size": [1],
				"dimension": {"A": {"category": {"index": ["x"]}}}, "value": [1],
				"status": {"1": ".."}}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "status index 1 is out of range")
			_, err = Decode([]byte(`{"class": "dataset", "id": ["A"], "size": [1],
				"dimension": {"A": {"category": {"index": ["x"]}}}, "value": [1],
				"status": {"-1": ".."}}`))
			So(err, ShouldNotBeNil)
		})

		Convey("too many status entries", func() {
			_, err := Decode([]byte(`{"class": "dataset", "id": ["A"], "size": [1],
				"dimension": {"A": {"category": {"index": ["x"]}}}, "value": [1],
				"status": ["..", ".."]}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "2 status entries")
		})

		Convey("missing values", func() {
			_, err := Decode([]byte(`{"class": "dataset", "id": ["A"], "size": [1],
				"dimension": {"A": {"category": {"index": ["x"]}}}}`))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("TestDataset round-trips through Decode", t, func() {
		dims := []Dimension{
			{ID: "Region", Label: "region", Categories: []Category{{"0301", "Oslo"}}},
			{ID: "Tid", Label: "year", Categories: []Category{{"2020", "2020"}, {"2021", "2021"}}},
		}
		js, err := TestDataset(dims, []float64{1, math.NaN()})
		So(err, ShouldBeNil)
		ds, err := Decode([]byte(js))
		So(err, ShouldBeNil)
		So(ds.Dimensions, ShouldResemble, dims)
		So(ds.Values[0], ShouldEqual, 1.0)
		So(math.IsNaN(ds.Values[1]), ShouldBeTrue)
	})
}

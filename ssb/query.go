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

package ssb

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/statbank/frame"
	"github.com/stockparfait/statbank/jsonstat"

	json "github.com/goccy/go-json"
	"golang.org/x/exp/slices"
)

// Defaults for a new TableQuery.
const (
	DefaultPace    = 10 * time.Second // minimum time between chunk requests
	DefaultTimeout = 5 * time.Second  // timeout of each chunk request
)

// Values of the query payload.
const (
	FilterItem      = "item"
	FormatJSONStat2 = "json-stat2"
)

// Variable is a variable code with the selected value codes.
type Variable struct {
	Code   string   `toml:"code"`
	Values []string `toml:"values"`
}

// Selection is an ordered list of variables to query. The order matters: it is
// the order of the query entries, and by default the last variable is the one
// split into chunks.
type Selection []Variable

// Index of the variable with the code, or -1.
func (s Selection) Index(code string) int {
	for i, v := range s {
		if v.Code == code {
			return i
		}
	}
	return -1
}

// Get the values of the variable with the code.
func (s Selection) Get(code string) ([]string, bool) {
	if i := s.Index(code); i >= 0 {
		return s[i].Values, true
	}
	return nil, false
}

// Codes of all the variables in order.
func (s Selection) Codes() []string {
	res := make([]string, len(s))
	for i, v := range s {
		res[i] = v.Code
	}
	return res
}

// Validate checks that the selection is non-empty and its codes are non-empty
// and unique.
func (s Selection) Validate() error {
	if len(s) == 0 {
		return errors.Reason("empty selection")
	}
	seen := make(map[string]struct{})
	for i, v := range s {
		if v.Code == "" {
			return errors.Reason("variable %d has an empty code", i)
		}
		if _, ok := seen[v.Code]; ok {
			return errors.Reason("duplicate variable '%s'", v.Code)
		}
		seen[v.Code] = struct{}{}
	}
	return nil
}

// Filter is the selection part of a query entry.
type Filter struct {
	Filter string   `json:"filter"`
	Values []string `json:"values"`
}

// QueryEntry selects values of one variable.
type QueryEntry struct {
	Code      string `json:"code"`
	Selection Filter `json:"selection"`
}

// ResponseFormat of the query.
type ResponseFormat struct {
	Format string `json:"format"`
}

// Query is the JSON body POSTed to the table URL.
type Query struct {
	Query    []QueryEntry   `json:"query"`
	Response ResponseFormat `json:"response"`
}

// BuildQuery creates the query payload for the selection, one "item" entry per
// variable in selection order, requesting a JSON-stat 2.0 response.
func BuildQuery(s Selection) *Query {
	q := Query{
		Query:    make([]QueryEntry, len(s)),
		Response: ResponseFormat{Format: FormatJSONStat2},
	}
	for i, v := range s {
		q.Query[i] = QueryEntry{
			Code:      v.Code,
			Selection: Filter{Filter: FilterItem, Values: slices.Clone(v.Values)},
		}
	}
	return &q
}

// ChunkBounds splits n values into the given number of chunks as [start, end)
// pairs. Every chunk but the last has n/chunks values, and the last one takes
// the remainder as well.
func ChunkBounds(n, chunks int) ([][2]int, error) {
	if chunks < 1 {
		return nil, errors.Reason("number of chunks must be positive, got %d", chunks)
	}
	if chunks > n {
		return nil, errors.Reason("cannot split %d values into %d chunks", n, chunks)
	}
	block := n / chunks
	res := make([][2]int, chunks)
	for i := 0; i < chunks-1; i++ {
		res[i] = [2]int{block * i, block * (i + 1)}
	}
	res[chunks-1] = [2]int{block * (chunks - 1), n}
	return res, nil
}

// TableQuery is a builder for a table query.
type TableQuery struct {
	table     interface{} // table identifier, e.g. "09932"
	selection Selection   // if empty, all values of all variables
	chunks    int
	chunkBy   string // variable to split; "" = the last one
	pace      time.Duration
	timeout   time.Duration
	naming    jsonstat.Naming
}

// NewTableQuery creates a new query with the default settings: all values of
// all variables, one chunk, DefaultPace and DefaultTimeout.
func NewTableQuery(table interface{}) *TableQuery {
	return &TableQuery{
		table:   table,
		chunks:  1,
		pace:    DefaultPace,
		timeout: DefaultTimeout,
	}
}

// Copy creates a deep copy of the query. It is primarily used in its builder
// methods.
func (q *TableQuery) Copy() *TableQuery {
	q2 := *q
	q2.selection = make(Selection, len(q.selection))
	for i, v := range q.selection {
		q2.selection[i] = Variable{Code: v.Code, Values: slices.Clone(v.Values)}
	}
	return &q2
}

// Select sets the values of a variable, replacing its previous values or
// appending it as the last variable. This and other builder methods always
// create a deep copy of the query, leaving the original intact.
func (q *TableQuery) Select(code string, values ...string) *TableQuery {
	q2 := q.Copy()
	if i := q2.selection.Index(code); i >= 0 {
		q2.selection[i].Values = values
		return q2
	}
	q2.selection = append(q2.selection, Variable{Code: code, Values: values})
	return q2
}

// Selection replaces the whole selection. An empty selection means all values
// of all variables, as listed by the table metadata.
func (q *TableQuery) Selection(s Selection) *TableQuery {
	q2 := q.Copy()
	q2.selection = nil
	for _, v := range s {
		q2.selection = append(q2.selection,
			Variable{Code: v.Code, Values: slices.Clone(v.Values)})
	}
	return q2
}

// Chunks sets the number of sequential requests the query is split into.
func (q *TableQuery) Chunks(n int) *TableQuery {
	q2 := q.Copy()
	q2.chunks = n
	return q2
}

// ChunkBy sets the variable whose values are split into chunks. By default it
// is the last variable of the selection.
func (q *TableQuery) ChunkBy(code string) *TableQuery {
	q2 := q.Copy()
	q2.chunkBy = code
	return q2
}

// Pace sets the minimum time between the starts of consecutive chunk
// requests. Zero disables pausing.
func (q *TableQuery) Pace(d time.Duration) *TableQuery {
	q2 := q.Copy()
	q2.pace = d
	return q2
}

// Timeout sets the timeout of each chunk request. Zero means no timeout other
// than the context's.
func (q *TableQuery) Timeout(d time.Duration) *TableQuery {
	q2 := q.Copy()
	q2.timeout = d
	return q2
}

// Naming sets whether the resulting frame uses labels or codes.
func (q *TableQuery) Naming(n jsonstat.Naming) *TableQuery {
	q2 := q.Copy()
	q2.naming = n
	return q2
}

// sleep for d, or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// post sends one chunk of the query and decodes the response.
func (q *TableQuery) post(ctx context.Context, c *Client, uri string, payload *Query) (*frame.Frame, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Annotate(err, "failed to encode query")
	}
	data, err := c.do(ctx, http.MethodPost, uri, body, q.timeout)
	if err != nil {
		return nil, err
	}
	ds, err := jsonstat.Decode(data)
	if err != nil {
		return nil, errors.Annotate(err, "failed to decode response")
	}
	return ds.Frame(q.naming), nil
}

// Fetch executes the query: resolves the selection (fetching the table
// metadata if none was given), splits the chunking variable into chunks,
// requests them one by one and concatenates the results in chunk order. Any
// failure aborts the whole query.
func (q *TableQuery) Fetch(ctx context.Context) (*frame.Frame, error) {
	c := client(ctx)
	sel := q.selection
	if len(sel) == 0 {
		var err error
		if sel, err = FetchVariableInfo(ctx, q.table); err != nil {
			return nil, errors.Annotate(err, "failed to fetch variables of table %v", q.table)
		}
	}
	if err := sel.Validate(); err != nil {
		return nil, errors.Annotate(err, "invalid selection")
	}
	payload := BuildQuery(sel)
	axis := len(sel) - 1
	if q.chunkBy != "" {
		if axis = sel.Index(q.chunkBy); axis < 0 {
			return nil, errors.Reason("cannot chunk by '%s': not in the selection [%s]",
				q.chunkBy, strings.Join(sel.Codes(), ", "))
		}
	}
	values := sel[axis].Values
	bounds, err := ChunkBounds(len(values), q.chunks)
	if err != nil {
		return nil, errors.Annotate(err, "failed to split '%s'", sel[axis].Code)
	}

	uri := c.TableURL(q.table)
	frames := make([]*frame.Frame, 0, len(bounds))
	for i, b := range bounds {
		logging.Infof(ctx, "StatBank: block %d of %d", i+1, len(bounds))
		payload.Query[axis].Selection.Values = values[b[0]:b[1]]
		start := time.Now()
		f, err := q.post(ctx, c, uri, payload)
		if err != nil {
			return nil, errors.Annotate(err, "failed to fetch block %d of %d", i+1, len(bounds))
		}
		logging.Infof(ctx, "StatBank: fetched block %d of %d with %d rows",
			i+1, len(bounds), f.Len())
		frames = append(frames, f)
		if i == len(bounds)-1 {
			break
		}
		if wait := q.pace - time.Since(start); wait > 0 {
			logging.Infof(ctx, "StatBank: pausing %s before the next call", wait.Round(time.Millisecond))
			if err := sleep(ctx, wait); err != nil {
				return nil, errors.Annotate(err, "interrupted while pausing")
			}
		}
	}
	return frame.Concat(frames...)
}

// FetchTable downloads the table in the given number of chunks, pausing at
// least pace between the starts of consecutive requests. A nil selection means
// all values of all variables; the last variable is split into chunks.
func FetchTable(ctx context.Context, table interface{}, chunks int, sel Selection, pace time.Duration) (*frame.Frame, error) {
	return NewTableQuery(table).Selection(sel).Chunks(chunks).Pace(pace).Fetch(ctx)
}

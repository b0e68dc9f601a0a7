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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	json "github.com/goccy/go-json"
)

type contextKey int

const (
	clientContextKey contextKey = iota
)

// URL is the default base URL of the English table API; a table identifier is
// appended to it as is. It may be overwritten, e.g. in tests or for the
// Norwegian API at .../api/v0/no/table/, before creating a new client.
var URL = "http://data.ssb.no/api/v0/en/table/"

// Client for querying StatBank tables.
type Client struct {
	baseURL string       // the base URL of the table API
	http    *http.Client // used for all requests
}

// newClient creates a new client.
func newClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		http:    hc,
	}
}

// GetClient extracts the Client from the context, if any.
func GetClient(ctx context.Context) *Client {
	c, ok := ctx.Value(clientContextKey).(*Client)
	if !ok {
		return nil
	}
	return c
}

// UseClient creates a new client with the current URL and the given HTTP
// client (nil means http.DefaultClient), and injects it into the context.
func UseClient(ctx context.Context, hc *http.Client) context.Context {
	return context.WithValue(ctx, clientContextKey, newClient(URL, hc))
}

// client returns the Client from the context, or a default one. The API needs
// no credentials, so a missing client is not an error.
func client(ctx context.Context) *Client {
	if c := GetClient(ctx); c != nil {
		return c
	}
	return newClient(URL, nil)
}

// TableURL is the endpoint of the table for this client.
func (c *Client) TableURL(table interface{}) string {
	return c.baseURL + fmt.Sprint(table)
}

// maxErrorBody limits how much of an error response goes into the error.
const maxErrorBody = 200

// do sends a single request and returns the body of a 200 response. A non-nil
// body is sent as JSON. Any other status is an error carrying the status and
// the beginning of the response body. Requests are never retried.
func (c *Client) do(ctx context.Context, method, uri string, body []byte, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, r)
	if err != nil {
		return nil, errors.Annotate(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Annotate(err, "failed to %s %s", method, uri)
	}
	defer resp.Body.Close()
	logging.Infof(ctx, "StatBank: %s %s: %s", method, uri, resp.Status)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Annotate(err, "failed to read response body")
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(data)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		err := errors.Reason("HTTP status %s: %s", resp.Status, msg)
		if method == http.MethodPost && resp.StatusCode == http.StatusForbidden {
			err = errors.Annotate(err, "the query may exceed the cell limit, try more chunks")
		}
		return nil, err
	}
	return data, nil
}

// BuildURL is the endpoint of the table under the current URL. The identifier
// is not validated: "09932" and 9932 both produce a URL, but only the string
// keeps the leading zero.
func BuildURL(table interface{}) string {
	return URL + fmt.Sprint(table)
}

// VariableMeta describes one variable of a table.
type VariableMeta struct {
	Code        string   `json:"code"`
	Text        string   `json:"text"`
	Values      []string `json:"values"`
	ValueTexts  []string `json:"valueTexts"`
	Elimination bool     `json:"elimination"` // the variable may be left out of a query
	Time        bool     `json:"time"`
}

// TableMetadata is the format returned by a GET on the table URL.
type TableMetadata struct {
	Title     string         `json:"title"`
	Variables []VariableMeta `json:"variables"`
}

// check that the fields the client depends on are present.
func (m *TableMetadata) check() error {
	if m.Variables == nil {
		return errors.Reason("metadata has no 'variables'")
	}
	for i, v := range m.Variables {
		if v.Code == "" {
			return errors.Reason("variable %d has no 'code'", i)
		}
		if v.Values == nil {
			return errors.Reason("variable '%s' has no 'values'", v.Code)
		}
	}
	return nil
}

// Selection of all the values of all the variables, in metadata order.
func (m *TableMetadata) Selection() Selection {
	s := make(Selection, len(m.Variables))
	for i, v := range m.Variables {
		s[i] = Variable{Code: v.Code, Values: v.Values}
	}
	return s
}

// String prints the variables with their value counts.
func (m *TableMetadata) String() string {
	vars := []string{}
	for _, v := range m.Variables {
		vars = append(vars, fmt.Sprintf("%s: %d values", v.Code, len(v.Values)))
	}
	return m.Title + " {" + strings.Join(vars, ", ") + "}"
}

// FetchTableMetadata obtains the title and the variables of the table.
func FetchTableMetadata(ctx context.Context, table interface{}) (*TableMetadata, error) {
	var tm TableMetadata
	c := client(ctx)
	uri := c.TableURL(table)
	data, err := c.do(ctx, http.MethodGet, uri, nil, 0)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch metadata")
	}
	if err := json.Unmarshal(data, &tm); err != nil {
		return nil, errors.Annotate(err, "failed to parse metadata of table %v", table)
	}
	if err := tm.check(); err != nil {
		return nil, errors.Annotate(err, "unexpected metadata for table %v", table)
	}
	return &tm, nil
}

// FetchVariableInfo returns every variable of the table with all its permitted
// values, ready to be edited and passed to a TableQuery.
func FetchVariableInfo(ctx context.Context, table interface{}) (Selection, error) {
	tm, err := FetchTableMetadata(ctx, table)
	if err != nil {
		return nil, err
	}
	return tm.Selection(), nil
}

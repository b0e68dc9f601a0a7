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

// Package ssb implements a client for the StatBank API of Statistics Norway
// (Statistisk sentralbyrå, SSB).
//
// Official documentation is at https://www.ssb.no/en/api/pxwebapi .
//
// Each StatBank table has a set of variables (dimensions) such as region,
// contents and time, and each variable has a list of permitted value codes.
// The variables of a table are obtained with FetchTableMetadata() or, in the
// compact form of a Selection, with FetchVariableInfo(). A table is queried by
// POSTing a Selection to the same URL; the response is a JSON-stat 2.0 dataset
// decoded by the jsonstat package.
//
// The API limits the number of cells returned by a single call and answers
// 403 Forbidden when a query exceeds it. TableQuery works around the limit by
// splitting the values of one variable into sequential chunks, pausing
// between the calls to stay within the API's rate limit, and concatenating the
// results into one frame.
package ssb

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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/statbank/frame"
	"github.com/stockparfait/statbank/jsonstat"
	"github.com/stockparfait/statbank/ssb"
	"github.com/stockparfait/statbank/table"

	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
)

type Flags struct {
	Table     string // required
	Config    string // optional TOML file with the selection
	Chunks    int
	ChunkBy   string
	Pace      time.Duration
	Variables bool // print the variables instead of the data
	Rotate    bool
	Index     string // index column of the rotated table
	Value     string // value column of the rotated table
	Naming    jsonstat.Naming
	CSV       bool // dump CSV format; default: text.
	Rows      int  // max. number of rows to print; 0 = all
	LogLevel  logging.Level

	set map[string]bool // flags given explicitly on the command line
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	var naming string
	fs := flag.NewFlagSet("statbank", flag.ExitOnError)
	fs.StringVar(&flags.Table, "table", "", "table identifier, e.g. 09932 (required)")
	fs.StringVar(&flags.Config, "config", "", "TOML file with the variable selection")
	fs.IntVar(&flags.Chunks, "chunks", 1, "number of requests to split the query into")
	fs.StringVar(&flags.ChunkBy, "chunk-by", "",
		"variable to split into chunks; default: the last one")
	fs.DurationVar(&flags.Pace, "pace", ssb.DefaultPace,
		"minimum time between consecutive requests")
	fs.BoolVar(&flags.Variables, "variables", false,
		"print the table variables instead of the data")
	fs.BoolVar(&flags.Rotate, "rotate", false,
		"pivot the result: index rows, one column per remaining combination")
	fs.StringVar(&flags.Index, "index", frame.DefaultIndex, "index column for -rotate")
	fs.StringVar(&flags.Value, "value", frame.DefaultValue, "value column for -rotate")
	fs.StringVar(&naming, "naming", "label", "column names and cells: label or id")
	fs.BoolVar(&flags.CSV, "csv", false, "print table in CSV format; default: text")
	fs.IntVar(&flags.Rows, "rows", 0, "max. number of rows to print; default: all")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")

	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}
	if flags.Table == "" {
		return nil, errors.Reason("missing required -table argument")
	}
	if flags.Naming, err = jsonstat.ParseNaming(naming); err != nil {
		return nil, errors.Annotate(err, "invalid -naming")
	}
	if flags.Rows < 0 {
		return nil, errors.Reason("-rows must be non-negative, got %d", flags.Rows)
	}
	flags.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { flags.set[f.Name] = true })
	return &flags, nil
}

// Config is the optional TOML file. Command line flags take precedence.
type Config struct {
	Select  []ssb.Variable `toml:"select"` // default: all variables
	Chunks  int            `toml:"chunks"`
	ChunkBy string         `toml:"chunk_by"`
	Pace    string         `toml:"pace"` // e.g. "10s"
}

func parseConfig(filePath string) (*Config, error) {
	var c Config
	if filePath == "" {
		return &c, nil
	}
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			sample := `chunks = 2
pace = "10s"

[[select]]
code = "Region"
values = ["0301", "4601"]

[[select]]
code = "Tid"
values = ["2020", "2021"]
`
			return nil, errors.Annotate(err,
				"config file '%s' does not exist.\nExample config file:\n%s",
				filePath, sample)
		}
		return nil, errors.Annotate(err, "failed to open config file %s", filePath)
	}
	defer f.Close()

	d := toml.NewDecoder(f)
	if err := d.Decode(&c); err != nil {
		return nil, errors.Annotate(err, "failed to read config file %s", filePath)
	}
	return &c, nil
}

// Env holds overrides from the environment.
type Env struct {
	URL     string        `envconfig:"STATBANK_URL"`     // base URL of the table API
	Timeout time.Duration `envconfig:"STATBANK_TIMEOUT"` // per-request timeout
}

func parseEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, errors.Annotate(err, "failed to process environment")
	}
	return &env, nil
}

// tableQuery merges the flags, the config file and the environment.
func tableQuery(flags *Flags, config *Config, env *Env) (*ssb.TableQuery, error) {
	q := ssb.NewTableQuery(flags.Table).Selection(config.Select).Naming(flags.Naming)

	chunks := flags.Chunks
	if !flags.set["chunks"] && config.Chunks > 0 {
		chunks = config.Chunks
	}
	q = q.Chunks(chunks)

	chunkBy := flags.ChunkBy
	if !flags.set["chunk-by"] && config.ChunkBy != "" {
		chunkBy = config.ChunkBy
	}
	q = q.ChunkBy(chunkBy)

	pace := flags.Pace
	if !flags.set["pace"] && config.Pace != "" {
		p, err := time.ParseDuration(config.Pace)
		if err != nil {
			return nil, errors.Annotate(err, "invalid pace in config")
		}
		pace = p
	}
	q = q.Pace(pace)

	if env.Timeout > 0 {
		q = q.Timeout(env.Timeout)
	}
	return q, nil
}

const maxListedValues = 5

func variablesTable(ctx context.Context, tableID string) (*table.Table, error) {
	tm, err := ssb.FetchTableMetadata(ctx, tableID)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch metadata")
	}
	logging.Infof(ctx, "%s", tm.Title)
	t := table.NewTable("Code", "Text", "Count", "Values")
	for _, v := range tm.Variables {
		vals := v.Values
		if len(vals) > maxListedValues {
			vals = append(vals[:maxListedValues:maxListedValues], "...")
		}
		t.AddRow(table.Strings{
			v.Code, v.Text, fmt.Sprint(len(v.Values)), strings.Join(vals, " ")})
	}
	return t, nil
}

func dataTable(ctx context.Context, flags *Flags, q *ssb.TableQuery) (*table.Table, error) {
	f, err := q.Fetch(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch table %s", flags.Table)
	}
	if !flags.Rotate {
		return f.Table(), nil
	}
	w, err := frame.Rotate(f, flags.Index, flags.Value)
	if err != nil {
		return nil, errors.Annotate(err, "failed to rotate table %s", flags.Table)
	}
	return w.Table(), nil
}

func printData(ctx context.Context, flags *Flags, env *Env, w io.Writer) error {
	if env.URL != "" {
		ssb.URL = env.URL
	}
	ctx = ssb.UseClient(ctx, nil)

	var tbl *table.Table
	var err error
	if flags.Variables {
		if tbl, err = variablesTable(ctx, flags.Table); err != nil {
			return errors.Annotate(err, "failed to list variables of %s", flags.Table)
		}
	} else {
		config, err := parseConfig(flags.Config)
		if err != nil {
			return errors.Annotate(err, "failed to parse config")
		}
		q, err := tableQuery(flags, config, env)
		if err != nil {
			return errors.Annotate(err, "failed to configure the query")
		}
		if tbl, err = dataTable(ctx, flags, q); err != nil {
			return err
		}
	}
	params := table.Params{Rows: flags.Rows}
	if flags.CSV {
		if err := tbl.WriteCSV(w, params); err != nil {
			return errors.Annotate(err, "failed to print CSV")
		}
		return nil
	}
	if err := tbl.WriteText(w, params); err != nil {
		return errors.Annotate(err, "failed to print text")
	}
	return nil
}

func main() {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	env, err := parseEnv()
	if err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
	if err := printData(ctx, flags, env, os.Stdout); err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
}

package spaceport

import (
	"bytes"
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"text/template"

	"github.com/tidwall/gjson"

	"github.com/browserbench/browserbench/errext"
)

//go:embed interceptor.js
var interceptorSource string

var interceptorTmpl = template.Must(template.New("interceptor").Parse(interceptorSource))

var collectorSeq atomic.Uint64

// collector is the page global the console interceptor stores results in.
// Every measurement gets its own.
type collector struct {
	name string
}

func newCollector() *collector {
	return &collector{name: fmt.Sprintf("__spaceport_results_%d", collectorSeq.Add(1))}
}

// interceptor returns the script that installs the console interceptor and
// starts the tests.
func (c *collector) interceptor() (string, error) {
	var buf bytes.Buffer
	err := interceptorTmpl.Execute(&buf, struct {
		Accumulator   string
		StartButtonID string
	}{c.name, startButtonID})
	if err != nil {
		return "", fmt.Errorf("rendering interceptor: %w", err)
	}
	return buf.String(), nil
}

func (c *collector) countExpr() string {
	return fmt.Sprintf("Object.keys(window.%s).length", c.name)
}

func (c *collector) countAboveExpr(n int) string {
	return fmt.Sprintf("%s > %d", c.countExpr(), n)
}

func (c *collector) stringifyExpr() string {
	return fmt.Sprintf("JSON.stringify(window.%s)", c.name)
}

// result is a single test score.
type result struct {
	chart string
	trace string
	value float64
}

// parseCount parses the JSON encoded key count of the collector.
func parseCount(raw []byte) (int, error) {
	v := gjson.ParseBytes(raw)
	if !gjson.ValidBytes(raw) || v.Type != gjson.Number || v.Num != math.Trunc(v.Num) || v.Num < 0 {
		return 0, fmt.Errorf("%w: result count %s", errext.ErrMalformedResults, raw)
	}
	return int(v.Int()), nil
}

// parseStringified parses the JSON encoded string returned by evaluating
// JSON.stringify on the collector.
func parseStringified(raw []byte) ([]result, error) {
	v := gjson.ParseBytes(raw)
	if !gjson.ValidBytes(raw) || v.Type != gjson.String {
		return nil, fmt.Errorf("%w: expected a JSON string, got %.64s", errext.ErrMalformedResults, raw)
	}
	return parseResults(v.Str)
}

// parseResults parses a JSON object mapping "chart.trace" keys to string
// encoded numbers. Results are sorted by key.
func parseResults(data string) ([]result, error) {
	if !gjson.Valid(data) {
		return nil, fmt.Errorf("%w: invalid JSON", errext.ErrMalformedResults)
	}
	root := gjson.Parse(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected an object, got %s", errext.ErrMalformedResults, root.Type)
	}

	var (
		results []result
		seen    = make(map[string]bool)
		err     error
	)
	root.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if seen[k] {
			err = fmt.Errorf("%w: duplicate key %q", errext.ErrMalformedResults, k)
			return false
		}
		seen[k] = true

		var r result
		if r, err = parseResult(k, value); err != nil {
			return false
		}
		results = append(results, r)
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].chart != results[j].chart {
			return results[i].chart < results[j].chart
		}
		return results[i].trace < results[j].trace
	})

	return results, nil
}

func parseResult(key string, value gjson.Result) (result, error) {
	chart, trace, ok := strings.Cut(key, ".")
	if !ok || chart == "" || trace == "" {
		return result{}, fmt.Errorf("%w: key %q is not chart.trace", errext.ErrMalformedResults, key)
	}
	if value.Type != gjson.String {
		return result{}, fmt.Errorf("%w: value of %q is a %s, not a string", errext.ErrMalformedResults, key, value.Type)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return result{}, fmt.Errorf("%w: value of %q is not a number: %q", errext.ErrMalformedResults, key, value.Str)
	}
	return result{chart: chart, trace: trace, value: f}, nil
}

// Package results collects the values reported by page measurements.
package results

import (
	"errors"
	"fmt"
	"math"

	"github.com/browserbench/browserbench/api"
	"github.com/browserbench/browserbench/pageset"
)

var _ api.PageResults = &PageResults{}

// Value is a single reported trace.
type Value struct {
	Page     string
	Chart    string
	Trace    string
	Units    string
	DataType api.DataType
	Values   []float64
	IsList   bool
}

// Name returns the "chart.trace" name of the value.
func (v Value) Name() string {
	return v.Chart + "." + v.Trace
}

// PageResults holds the values reported for one page.
type PageResults struct {
	page   *pageset.Page
	values []Value
	seen   map[string]struct{}
}

// NewPageResults returns an empty result collector for page.
func NewPageResults(page *pageset.Page) *PageResults {
	return &PageResults{
		page: page,
		seen: make(map[string]struct{}),
	}
}

// Page returns the page the results belong to.
func (r *PageResults) Page() *pageset.Page {
	return r.page
}

// Add reports a single value.
func (r *PageResults) Add(trace, units string, value float64, chart string, dataType api.DataType) error {
	return r.add(trace, units, []float64{value}, false, chart, dataType)
}

// AddList reports a list of values as one trace.
func (r *PageResults) AddList(trace, units string, values []float64, chart string, dataType api.DataType) error {
	vs := make([]float64, len(values))
	copy(vs, values)
	return r.add(trace, units, vs, true, chart, dataType)
}

func (r *PageResults) add(
	trace, units string, values []float64, isList bool, chart string, dataType api.DataType,
) error {
	if trace == "" {
		return errors.New("adding result: trace name is empty")
	}
	if chart == "" {
		chart = trace
	}
	if dataType == "" {
		dataType = api.DataTypeDefault
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("adding result %s.%s: value %v is not finite", chart, trace, v)
		}
	}

	v := Value{
		Page:     r.pageName(),
		Chart:    chart,
		Trace:    trace,
		Units:    units,
		DataType: dataType,
		Values:   values,
		IsList:   isList,
	}
	if _, ok := r.seen[v.Name()]; ok {
		return fmt.Errorf("adding result %s: already reported for this page", v.Name())
	}
	r.seen[v.Name()] = struct{}{}
	r.values = append(r.values, v)

	return nil
}

// Values returns the values in the order they were reported.
func (r *PageResults) Values() []Value {
	return r.values
}

func (r *PageResults) pageName() string {
	if r.page == nil {
		return ""
	}
	return r.page.DisplayName()
}

package results

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/browserbench/browserbench/api"
	"github.com/browserbench/browserbench/pageset"
)

// Failure records a page whose measurement failed.
type Failure struct {
	Page string
	Err  error
}

// Set accumulates the results of all the pages of a benchmark run.
type Set struct {
	values   []Value
	failures []Failure
	pages    int
}

// NewSet returns an empty result set.
func NewSet() *Set {
	return &Set{}
}

// WillMeasurePage returns the collector for the next page.
func (s *Set) WillMeasurePage(page *pageset.Page) *PageResults {
	return NewPageResults(page)
}

// DidMeasurePage merges the values of a successfully measured page.
func (s *Set) DidMeasurePage(pr *PageResults) {
	s.pages++
	s.values = append(s.values, pr.Values()...)
}

// AddFailure records a failed page. None of its values are kept.
func (s *Set) AddFailure(page *pageset.Page, err error) {
	s.failures = append(s.failures, Failure{Page: page.DisplayName(), Err: err})
}

// Values returns all the values of the successfully measured pages.
func (s *Set) Values() []Value {
	return s.values
}

// Failures returns the failed pages.
func (s *Set) Failures() []Failure {
	return s.failures
}

// SummaryRow is the aggregate of one chart.trace across pages.
type SummaryRow struct {
	Chart    string
	Trace    string
	Units    string
	DataType api.DataType
	Mean     float64
	Count    int
}

// Summary averages every chart.trace over all the reported values. Rows are
// sorted by chart then trace, with important data first.
func (s *Set) Summary() []SummaryRow {
	type acc struct {
		row SummaryRow
		sum float64
	}
	byName := make(map[string]*acc)
	for _, v := range s.values {
		a, ok := byName[v.Name()]
		if !ok {
			a = &acc{row: SummaryRow{Chart: v.Chart, Trace: v.Trace, Units: v.Units, DataType: v.DataType}}
			byName[v.Name()] = a
		}
		for _, f := range v.Values {
			a.sum += f
			a.row.Count++
		}
	}

	rows := make([]SummaryRow, 0, len(byName))
	for _, a := range byName {
		if a.row.Count > 0 {
			a.row.Mean = a.sum / float64(a.row.Count)
		}
		rows = append(rows, a.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		ri, rj := rows[i], rows[j]
		if (ri.DataType == api.DataTypeUnimportant) != (rj.DataType == api.DataTypeUnimportant) {
			return rj.DataType == api.DataTypeUnimportant
		}
		if ri.Chart != rj.Chart {
			return ri.Chart < rj.Chart
		}
		return ri.Trace < rj.Trace
	})

	return rows
}

// PrintSummary writes a human readable summary of the set to w. With noColor
// the summary is plain text even when colors are enabled.
func (s *Set) PrintSummary(w io.Writer, noColor bool) error {
	var (
		bold  = sprintFunc(noColor, color.Bold)
		faint = sprintFunc(noColor, color.Faint)
		red   = sprintFunc(noColor, color.FgRed)
		sb    strings.Builder
	)

	fmt.Fprintf(&sb, "%s %d page(s) measured, %d failed\n", bold("pages:"), s.pages, len(s.failures))
	for _, row := range s.Summary() {
		line := fmt.Sprintf("  %s.%s = %.4g %s (n=%d)", row.Chart, row.Trace, row.Mean, row.Units, row.Count)
		if row.DataType == api.DataTypeUnimportant {
			line = faint(line)
		}
		sb.WriteString(line + "\n")
	}
	for _, f := range s.failures {
		fmt.Fprintf(&sb, "  %s %s: %v\n", red("FAILED"), f.Page, f.Err)
	}

	_, err := io.WriteString(w, sb.String())
	return err //nolint:wrapcheck
}

func sprintFunc(noColor bool, attr color.Attribute) func(a ...any) string {
	c := color.New(attr)
	if noColor {
		c.DisableColor()
	}
	return c.SprintFunc()
}

package api

// DataType classifies a reported value.
type DataType string

// Data types understood by the results sink.
const (
	DataTypeDefault     DataType = "default"
	DataTypeUnimportant DataType = "unimportant"
)

// PageResults collects the values measured on a single page.
// An empty chart name reports the value under a chart named after the trace.
type PageResults interface {
	Add(trace, units string, value float64, chart string, dataType DataType) error
	AddList(trace, units string, values []float64, chart string, dataType DataType) error
}

package stats

// CountStat is one bar of a chart: a label and its measured value.
type CountStat struct {
	Type  string  `json:"type"`
	Count float64 `json:"cnt"`
}

// Alert is an informational message shown above the charts.
type Alert struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AlertInfo marks a purely informational alert.
const AlertInfo = "info"

package score

// SignalType names a diagnostic signal
type SignalType string

const (
	SignalContribution SignalType = "source_contribution"
	SignalTrust        SignalType = "trust_score"
	SignalConflict     SignalType = "conflict"
	SignalUnofficial   SignalType = "unofficial_url"
)

// Severity grades a signal
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Signal explains one input to the score. Data carries the numbers and the formula used.
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

package message

import (
	"go.chrisrx.dev/modelserver/guard"
)

type Severity int

const (
	SeverityOK      Severity = 0
	SeverityInfo    Severity = 1
	SeverityWarning Severity = 2
	SeverityError   Severity = 4
	SeverityCancel  Severity = 8
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCancel:
		return "CANCEL"
	default:
		return "UNKNOWN"
	}
}

// Diagnostic is a validation result. Children hold the per-element results.
type Diagnostic struct {
	Severity Severity     `json:"severity"`
	Message  string       `json:"message"`
	Source   string       `json:"source,omitempty"`
	Code     int          `json:"code,omitempty"`
	ID       string       `json:"id,omitempty"`
	Data     []any        `json:"data,omitempty"`
	Children []Diagnostic `json:"children,omitempty"`
}

var DiagnosticGuard = guard.Struct[Diagnostic](
	guard.Has("severity", guard.IsNumber),
	guard.Has("message", guard.IsString),
)

// Worst returns the highest severity in the tree rooted at d.
func (d Diagnostic) Worst() Severity {
	worst := d.Severity
	for _, c := range d.Children {
		if s := c.Worst(); s > worst {
			worst = s
		}
	}
	return worst
}

package simulate

import (
	"fmt"
	"strings"

	"github.com/fxnlabs/tileplan/internal/planerr"
)

// ReportMode decides how a verification run reports its result. It is always
// passed in by the caller.
type ReportMode int

const (
	// Skip reports a blueprint the device cannot run as skipped.
	Skip ReportMode = iota
	// Fail reports a blueprint the device cannot run as a failure.
	Fail
	// Print always fails and includes every compared value in the error.
	Print
)

var reportModeNames = map[ReportMode]string{
	Skip:  "skip",
	Fail:  "fail",
	Print: "print",
}

func (m ReportMode) String() string {
	if name, ok := reportModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ReportMode(%d)", int(m))
}

// ParseReportMode accepts the names printed by String, case-insensitively.
func ParseReportMode(s string) (ReportMode, error) {
	for m, name := range reportModeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return Skip, fmt.Errorf("unknown report mode %q", s)
}

func (m ReportMode) MarshalText() ([]byte, error) {
	name, ok := reportModeNames[m]
	if !ok {
		return nil, fmt.Errorf("unknown report mode %d", int(m))
	}
	return []byte(name), nil
}

func (m *ReportMode) UnmarshalText(text []byte) error {
	parsed, err := ParseReportMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Outcome is the verdict of one verification run.
type Outcome int

const (
	Passed Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "passed":
		*o = Passed
	case "skipped":
		*o = Skipped
	case "failed":
		*o = Failed
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}
	return nil
}

// Judge turns the error of a run into an outcome. Only Unavailable setup
// errors can be skipped, and only in Skip mode.
func Judge(err error, mode ReportMode) Outcome {
	if err == nil {
		return Passed
	}
	if mode == Skip && planerr.IsUnavailable(err) {
		return Skipped
	}
	return Failed
}

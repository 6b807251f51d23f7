package ecrop

import "fmt"

// OutcomeKind is the result class of processing one survey row
type OutcomeKind int

const (
	OutcomeSkipped OutcomeKind = iota
	OutcomeFailed
	OutcomeUpdated
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeUpdated:
		return "updated"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the typed result of a row. Err carries one of the package sentinels
// for Skipped and Failed.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

func updated() Outcome {
	return Outcome{Kind: OutcomeUpdated}
}

func skipped(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason, Err: err}
}

func failed(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason, Err: err}
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s (%s)", o.Kind, o.Reason)
}

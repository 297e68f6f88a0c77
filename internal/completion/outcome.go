package completion

import "fmt"

// OutcomeKind tags the result of one completion attempt.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeRetryable
	OutcomeNonRetryable
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeNonRetryable:
		return "non_retryable"
	default:
		return "unknown"
	}
}

// ReasonKind classifies a failed attempt.
type ReasonKind string

const (
	ReasonTransient    ReasonKind = "transient"    // network, timeout, 408, 429, 5xx, empty choices
	ReasonRejected     ReasonKind = "rejected"     // 400, 404, 413, 422
	ReasonUnauthorized ReasonKind = "unauthorized" // 401, 403
)

// Reason describes why an attempt failed. Detail is for logs only.
type Reason struct {
	Kind   ReasonKind
	Status int
	Detail string
}

func (r Reason) String() string {
	if r.Status != 0 {
		return fmt.Sprintf("%s (http %d): %s", r.Kind, r.Status, r.Detail)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Detail)
}

// Outcome is the classified result of one request.
type Outcome struct {
	Kind   OutcomeKind
	Text   string
	Reason Reason
}

func Ok(text string) Outcome {
	return Outcome{Kind: OutcomeOK, Text: text}
}

func Retryable(r Reason) Outcome {
	return Outcome{Kind: OutcomeRetryable, Reason: r}
}

func NonRetryable(r Reason) Outcome {
	return Outcome{Kind: OutcomeNonRetryable, Reason: r}
}

// metricLabel collapses an outcome into a bounded label value.
func (o Outcome) metricLabel() string {
	if o.Kind == OutcomeOK {
		return "ok"
	}
	return string(o.Reason.Kind)
}

// classifyStatus maps a non-2xx HTTP status to an outcome.
func classifyStatus(status int, detail string) Outcome {
	r := Reason{Status: status, Detail: detail}
	switch {
	case status == 401 || status == 403:
		r.Kind = ReasonUnauthorized
		return NonRetryable(r)
	case status == 408 || status == 429 || status >= 500:
		r.Kind = ReasonTransient
		return Retryable(r)
	default:
		// 400, 404, 413, 422 and any other 4xx: the request itself is refused
		r.Kind = ReasonRejected
		return NonRetryable(r)
	}
}

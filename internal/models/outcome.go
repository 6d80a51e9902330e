package models

// FailureReason classifies why a product URL produced no record.
type FailureReason string

const (
	ReasonInvalidInputURL    FailureReason = "InvalidInputUrl"
	ReasonTransportError     FailureReason = "TransportError"
	ReasonHTTPStatusError    FailureReason = "HttpStatusError"
	ReasonSoftBlockDetected  FailureReason = "SoftBlockDetected"
	ReasonExtractionEmpty    FailureReason = "ExtractionEmpty"
	ReasonMaxRetriesExceeded FailureReason = "MaxRetriesExceeded"
)

// ScrapeOutcome is either a Success carrying a record or a Failure carrying a
// reason. Exactly one of Record and Reason is set.
type ScrapeOutcome struct {
	URL      string          `json:"url"`
	Record   *ProductRecord  `json:"record,omitempty"`
	Reason   FailureReason   `json:"reason,omitempty"`
	Err      error           `json:"-"`
	Error    string          `json:"error,omitempty"`
	Attempts int             `json:"attempts"`
	History  []FailureReason `json:"history,omitempty"`
}

func Success(url string, record ProductRecord, attempts int, history []FailureReason) ScrapeOutcome {
	return ScrapeOutcome{URL: url, Record: &record, Attempts: attempts, History: history}
}

func Failure(url string, reason FailureReason, err error, attempts int, history []FailureReason) ScrapeOutcome {
	o := ScrapeOutcome{URL: url, Reason: reason, Err: err, Attempts: attempts, History: history}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

func (o ScrapeOutcome) OK() bool {
	return o.Record != nil
}

// BatchStats counts terminal outcomes of scheduled work.
type BatchStats struct {
	SuccessCount int                   `json:"success_count"`
	FailureCount int                   `json:"failure_count"`
	Failures     map[FailureReason]int `json:"failures,omitempty"`
}

func (s BatchStats) Total() int {
	return s.SuccessCount + s.FailureCount
}

// Merge returns the sum of s and other without mutating either.
func (s BatchStats) Merge(other BatchStats) BatchStats {
	out := BatchStats{
		SuccessCount: s.SuccessCount + other.SuccessCount,
		FailureCount: s.FailureCount + other.FailureCount,
		Failures:     make(map[FailureReason]int, len(s.Failures)+len(other.Failures)),
	}
	for k, v := range s.Failures {
		out.Failures[k] += v
	}
	for k, v := range other.Failures {
		out.Failures[k] += v
	}
	return out
}

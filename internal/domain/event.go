package domain

// EventStatus is the completion state reported by the external data source.
type EventStatus string

const (
	EventStatusFinal      EventStatus = "final"
	EventStatusPre        EventStatus = "pre"
	EventStatusInProgress EventStatus = "in"
	EventStatusError      EventStatus = "error"
)

// EventRecord is the raw scoreboard snapshot produced by a data source. It is
// transient: it flows from an oracle callback through the decider and is never
// persisted, except as an opaque archived transcript.
//
// A negative score means the source could not parse the score.
type EventRecord struct {
	HomeTeam  string      `json:"home_team"`
	AwayTeam  string      `json:"away_team"`
	HomeScore int32       `json:"home_score"`
	AwayScore int32       `json:"away_score"`
	Status    EventStatus `json:"event_status"`
	Err       string      `json:"error"`
}

// Final reports whether the underlying event has completed.
func (e *EventRecord) Final() bool {
	return e.Status == EventStatusFinal
}

// Verdict is the resolution decider's output for one (market, event) pair.
// It is transient and re-derivable from its inputs alone.
type Verdict struct {
	// Outcome is the winning outcome index, or OutcomeUnresolved when no
	// outcome could be determined.
	Outcome    int32
	Confidence float64
	Reason     string
}

// Indeterminate reports whether the verdict failed to pick an outcome.
func (v Verdict) Indeterminate() bool {
	return v.Outcome < 0
}

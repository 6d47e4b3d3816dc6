package models

// Outcome classifies what an upsert did to a natural key in the current vintage.
type Outcome string

const (
	OutcomeCreated      Outcome = "created"
	OutcomeYearExtended Outcome = "year_extended"
	OutcomeUnchanged    Outcome = "unchanged"
)

// ClassifyOutcome derives the outcome from whether the key was new and whether the vintage
// was already attached before this call.
func ClassifyOutcome(isNew, alreadyPresent bool) Outcome {
	switch {
	case isNew:
		return OutcomeCreated
	case alreadyPresent:
		return OutcomeUnchanged
	default:
		return OutcomeYearExtended
	}
}

// UpsertResult is returned by natural-key upserts
type UpsertResult[T any] struct {
	Entity *T
	IsNew  bool
}

// OutcomeCounts tallies outcomes for one level run.
type OutcomeCounts struct {
	Created      int `json:"created"`
	YearExtended int `json:"year_extended"`
	Unchanged    int `json:"unchanged"`
}

func (c *OutcomeCounts) Add(o Outcome) {
	switch o {
	case OutcomeCreated:
		c.Created++
	case OutcomeYearExtended:
		c.YearExtended++
	case OutcomeUnchanged:
		c.Unchanged++
	}
}

func (c OutcomeCounts) Total() int {
	return c.Created + c.YearExtended + c.Unchanged
}

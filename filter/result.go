package filter

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/youssefsiam38/agentloop/types"
)

// IDSet is a set of message ids. A nil IDSet is empty.
type IDSet map[string]struct{}

// NewIDSet creates a set holding ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of ids.
func (s IDSet) Len() int {
	return len(s)
}

// Union returns a new set holding the ids of both sets.
func (s IDSet) Union(other IDSet) IDSet {
	out := make(IDSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the ids in lexical order.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarshalJSON encodes the set as a sorted array.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of ids.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// Result is the output of a strategy or of a whole pipeline run.
type Result struct {
	Messages      []*types.Message `json:"messages"`
	OriginalCount int              `json:"original_count"`
	FilteredCount int              `json:"filtered_count"`
	RemovedIDs    IDSet            `json:"removed_message_ids"`
	StrategyUsed  string           `json:"strategy_used"`
	Duration      time.Duration    `json:"duration_ns"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}

// DurationMs returns the duration in milliseconds.
func (r *Result) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Changed reports whether the result differs from its input.
func (r *Result) Changed() bool {
	return r.RemovedIDs.Len() > 0 || r.FilteredCount != r.OriginalCount
}

// unchanged returns a result passing messages through under label.
func unchanged(messages []*types.Message, label string) *Result {
	return &Result{
		Messages:      messages,
		OriginalCount: len(messages),
		FilteredCount: len(messages),
		RemovedIDs:    IDSet{},
		StrategyUsed:  label,
		Metadata:      map[string]any{},
	}
}

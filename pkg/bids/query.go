package bids

import (
	"encoding/json"
	"fmt"
	"os"
)

// Filter is a query field accepting either the literal "all" or an explicit
// list of values. A single scalar is treated as a one-element list.
type Filter struct {
	All    bool
	Values []string
}

// Matches reports whether a value passes the filter. An unset filter (zero
// value) matches everything.
func (f Filter) Matches(value string) bool {
	if f.All || (len(f.Values) == 0) {
		return true
	}
	for _, v := range f.Values {
		if v == value {
			return true
		}
	}
	return false
}

// IsZero reports whether the filter was absent from the query.
func (f Filter) IsZero() bool {
	return !f.All && len(f.Values) == 0
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "all" {
			f.All = true
			return nil
		}
		f.Values = []string{s}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("filter must be \"all\", a string or a string list: %w", err)
	}
	f.Values = list
	return nil
}

// Selection is one query against a dataset: which datatype directory to
// scan, which entity values to keep, and what to derive from the matches.
type Selection struct {
	Datatype      string `json:"datatype"`
	Suffix        string `json:"suffix,omitempty"`
	Subjects      Filter `json:"subjects,omitempty"`
	Sessions      Filter `json:"sessions,omitempty"`
	Task          Filter `json:"task,omitempty"`
	Run           Filter `json:"run,omitempty"`
	Acq           Filter `json:"acq,omitempty"`
	IncludeEvents bool   `json:"include_events,omitempty"`
	// ExtractSidecarParams names sidecar JSON keys to lift into the job
	// inputs, converted to snake_case.
	ExtractSidecarParams []string `json:"extract_sidecar_params,omitempty"`
}

// Query maps job input names to selections.
type Query struct {
	Selections map[string]Selection `json:"selections"`
}

// ParseQueryFile reads and decodes a query definition.
func ParseQueryFile(path string) (*Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query file: %w", err)
	}

	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode query file: %w", err)
	}
	if len(q.Selections) == 0 {
		return nil, fmt.Errorf("query defines no selections")
	}
	return &q, nil
}

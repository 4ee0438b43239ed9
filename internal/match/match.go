// Package match defines the normalized match record and the comparison rules
// used to decide whether a record is new, changed, or unchanged.
package match

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
)

// StateFinal is the feed's game state for a completed match.
const StateFinal = "final"

// Match is one game's state at one point in time.
type Match struct {
	ID               int64   `json:"id"`
	ProcessTimeEpoch int64   `json:"processTimeEpoch"`
	StartTimeEpoch   int64   `json:"startTimeEpoch"`
	MatchState       string  `json:"matchState"`
	Division         string  `json:"division"`
	Gender           string  `json:"gender"`
	UpdatedAt        int64   `json:"updatedAt"`
	AwayTeam         *string `json:"awayTeam"`
	AwayScore        *int64  `json:"awayScore"`
	AwayConference   *string `json:"awayConference"`
	HomeTeam         *string `json:"homeTeam"`
	HomeScore        *int64  `json:"homeScore"`
	HomeConference   *string `json:"homeConference"`
}

// Key is the composite persistence identity of a match.
type Key struct {
	ID             int64
	StartTimeEpoch int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d@%d", k.ID, k.StartTimeEpoch)
}

// Key returns the match's composite key.
func (m Match) Key() Key {
	return Key{ID: m.ID, StartTimeEpoch: m.StartTimeEpoch}
}

// IsFinal reports whether the match has finished.
func (m Match) IsFinal() bool {
	return m.MatchState == StateFinal
}

// ComparedFields are the attributes that decide whether a stored match changed.
// processTimeEpoch and updatedAt move every cycle and are deliberately absent.
var ComparedFields = []string{
	"id",
	"startTimeEpoch",
	"matchState",
	"division",
	"gender",
	"awayTeam",
	"awayScore",
	"awayConference",
	"homeTeam",
	"homeScore",
	"homeConference",
}

// requiredFields must be present on every queue message.
var requiredFields = []string{
	"id",
	"startTimeEpoch",
	"matchState",
	"division",
	"gender",
	"updatedAt",
	"awayTeam",
	"awayScore",
	"awayConference",
	"homeTeam",
	"homeScore",
	"homeConference",
}

// scalarFields cannot be null: they form the key or route the record.
var scalarFields = []string{
	"id",
	"startTimeEpoch",
	"updatedAt",
	"matchState",
	"division",
	"gender",
}

// Document is the attribute map form of a persisted match. A missing key
// means the stored item never had that attribute.
type Document map[string]json.RawMessage

// Document renders the match as an attribute map.
func (m Match) Document() (Document, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal match: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal match document: %w", err)
	}
	return doc, nil
}

// Match decodes a complete document back into a Match.
func (d Document) Match() (Match, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return Match{}, fmt.Errorf("marshal document: %w", err)
	}
	var m Match
	if err := json.Unmarshal(data, &m); err != nil {
		return Match{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return m, nil
}

// Decode parses a queue message body into a Match. Every field but
// processTimeEpoch must be present; failures are marked malformed.
func Decode(body []byte) (Match, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return Match{}, faults.Malformed(fmt.Errorf("decode match message: %w", err))
	}
	if doc == nil {
		return Match{}, faults.Malformedf("decode match message: empty document")
	}
	for _, field := range requiredFields {
		if _, ok := doc[field]; !ok {
			return Match{}, faults.Malformedf("decode match message: missing required field %q", field)
		}
	}
	for _, field := range scalarFields {
		if bytes.Equal(bytes.TrimSpace(doc[field]), []byte("null")) {
			return Match{}, faults.Malformedf("decode match message: field %q is null", field)
		}
	}
	var m Match
	if err := json.Unmarshal(body, &m); err != nil {
		return Match{}, faults.Malformed(fmt.Errorf("decode match message: %w", err))
	}
	return m, nil
}

// Encode renders the queue message body for a match.
func Encode(m Match) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode match: %w", err)
	}
	return data, nil
}

// Diff lists the compared fields on which stored and incoming disagree,
// including fields missing from stored. An empty result means unchanged.
func Diff(stored Document, incoming Match) ([]string, error) {
	doc, err := incoming.Document()
	if err != nil {
		return nil, err
	}
	var changed []string
	for _, field := range ComparedFields {
		have, ok := stored[field]
		if !ok {
			changed = append(changed, field)
			continue
		}
		equal, err := sameValue(have, doc[field])
		if err != nil {
			return nil, fmt.Errorf("compare %s: %w", field, err)
		}
		if !equal {
			changed = append(changed, field)
		}
	}
	return changed, nil
}

func sameValue(a, b json.RawMessage) (bool, error) {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true, nil
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false, fmt.Errorf("decode stored value: %w", err)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false, fmt.Errorf("decode incoming value: %w", err)
	}
	switch x := av.(type) {
	case float64:
		y, ok := bv.(float64)
		return ok && x == y, nil
	case string:
		y, ok := bv.(string)
		return ok && x == y, nil
	case nil:
		return bv == nil, nil
	case bool:
		y, ok := bv.(bool)
		return ok && x == y, nil
	default:
		return false, nil
	}
}

// SortBatch orders matches by gender ascending, final matches first, then
// start time ascending. The sort is stable so ties keep discovery order.
func SortBatch(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Gender != b.Gender {
			return a.Gender < b.Gender
		}
		if a.IsFinal() != b.IsFinal() {
			return a.IsFinal()
		}
		return a.StartTimeEpoch < b.StartTimeEpoch
	})
}

// Clone returns a deep copy so callers can re-stamp fields without aliasing.
func (m Match) Clone() Match {
	out := m
	out.AwayTeam = clonePtr(m.AwayTeam)
	out.AwayScore = clonePtr(m.AwayScore)
	out.AwayConference = clonePtr(m.AwayConference)
	out.HomeTeam = clonePtr(m.HomeTeam)
	out.HomeScore = clonePtr(m.HomeScore)
	out.HomeConference = clonePtr(m.HomeConference)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

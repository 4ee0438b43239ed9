// Package scoreboard fetches NCAA scoreboard documents and normalizes their
// games into match records.
package scoreboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
)

// UpdatedAtLayout is the feed's fixed-width updated_at format.
const UpdatedAtLayout = "01-02-2006 15:04:05"

// feedDocument is the top-level scoreboard body. Games stay raw so one bad
// wrapper cannot fail the whole document.
type feedDocument struct {
	UpdatedAt string            `json:"updated_at"`
	Games     []json.RawMessage `json:"games"`
}

// GameWrapper is one entry of the feed's games array.
type GameWrapper struct {
	Game *Game `json:"game"`
}

// Game is the feed's game object. Numeric fields are kept raw because the
// feed emits them as strings or numbers.
type Game struct {
	GameID         json.RawMessage `json:"gameID"`
	StartTimeEpoch json.RawMessage `json:"startTimeEpoch"`
	GameState      string          `json:"gameState"`
	Home           *Side           `json:"home"`
	Away           *Side           `json:"away"`
}

// Side is one team's entry within a game.
type Side struct {
	Names       *Names          `json:"names"`
	Score       json.RawMessage `json:"score"`
	Conferences json.RawMessage `json:"conferences"`
}

// Names carries the team's display names.
type Names struct {
	Full  *string `json:"full"`
	Short *string `json:"short"`
}

type conference struct {
	ConferenceName *string `json:"conferenceName"`
}

// Payload is a decoded scoreboard document.
type Payload struct {
	UpdatedAt int64
	Games     []json.RawMessage
}

// decodeFeed parses a scoreboard body. An empty games array yields an empty
// payload without requiring updated_at.
func decodeFeed(body []byte) (Payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Payload{}, nil
	}
	var doc feedDocument
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return Payload{}, faults.Malformed(fmt.Errorf("decode scoreboard: %w", err))
	}
	if len(doc.Games) == 0 {
		return Payload{}, nil
	}
	updatedAt, err := ParseUpdatedAt(doc.UpdatedAt)
	if err != nil {
		return Payload{}, err
	}
	return Payload{UpdatedAt: updatedAt, Games: doc.Games}, nil
}

// ParseUpdatedAt converts the feed's updated_at string to epoch seconds (UTC).
func ParseUpdatedAt(raw string) (int64, error) {
	t, err := time.ParseInLocation(UpdatedAtLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return 0, faults.Malformed(fmt.Errorf("parse updated_at %q: %w", raw, err))
	}
	return t.Unix(), nil
}

// decodeWrapper parses one games entry.
func decodeWrapper(raw json.RawMessage) (GameWrapper, error) {
	var w GameWrapper
	if err := sonic.Unmarshal(raw, &w); err != nil {
		return GameWrapper{}, faults.Malformed(fmt.Errorf("decode game wrapper: %w", err))
	}
	return w, nil
}

// coerceInt reads a string-or-number field. Absent, null and empty-string
// values return nil.
func coerceInt(field string, raw json.RawMessage) (*int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := sonic.Unmarshal(raw, &s); err != nil {
			return nil, faults.Malformed(fmt.Errorf("coerce %s: %w", field, err))
		}
		text = strings.TrimSpace(s)
		if text == "" {
			return nil, nil
		}
	}
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return &v, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != float64(int64(f)) {
		return nil, faults.Malformedf("coerce %s: %q is not an integer", field, text)
	}
	v := int64(f)
	return &v, nil
}

// firstConference returns the first conference's name when the field is a
// non-empty list.
func firstConference(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var list []conference
	if err := sonic.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return nil
	}
	return list[0].ConferenceName
}

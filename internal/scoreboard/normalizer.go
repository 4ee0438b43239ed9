package scoreboard

import (
	"encoding/json"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/locator"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
)

// Normalize converts one raw games entry into a Match. It returns (nil, nil)
// when the entry is not identifiable (no game, a missing side, or a missing
// names object) and a malformed error when a field cannot be coerced.
func Normalize(raw json.RawMessage, updatedAt int64, loc locator.Locator, processTime int64) (*match.Match, error) {
	wrapper, err := decodeWrapper(raw)
	if err != nil {
		return nil, err
	}
	return NormalizeGame(wrapper.Game, updatedAt, loc, processTime)
}

// NormalizeGame converts a decoded game into a Match.
func NormalizeGame(g *Game, updatedAt int64, loc locator.Locator, processTime int64) (*match.Match, error) {
	if g == nil || g.Home == nil || g.Away == nil {
		return nil, nil
	}
	if g.Home.Names == nil || g.Away.Names == nil {
		return nil, nil
	}

	id, err := coerceInt("gameID", g.GameID)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, faults.Malformedf("normalize game: gameID is missing")
	}
	start, err := coerceInt("startTimeEpoch", g.StartTimeEpoch)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, faults.Malformedf("normalize game %d: startTimeEpoch is missing", *id)
	}
	homeScore, err := coerceInt("home.score", g.Home.Score)
	if err != nil {
		return nil, err
	}
	awayScore, err := coerceInt("away.score", g.Away.Score)
	if err != nil {
		return nil, err
	}

	return &match.Match{
		ID:               *id,
		ProcessTimeEpoch: processTime,
		StartTimeEpoch:   *start,
		MatchState:       g.GameState,
		Division:         string(loc.Division),
		Gender:           string(loc.Gender),
		UpdatedAt:        updatedAt,
		AwayTeam:         g.Away.Names.Full,
		AwayScore:        awayScore,
		AwayConference:   firstConference(g.Away.Conferences),
		HomeTeam:         g.Home.Names.Full,
		HomeScore:        homeScore,
		HomeConference:   firstConference(g.Home.Conferences),
	}, nil
}

// Package fixtures holds the seed dataset served by the mock server and used
// by clients as a fallback when the match API cannot be reached.
package fixtures

import (
	"time"

	"github.com/npezzotti/go-matchcenter/internal/types"
)

// Matches returns two in-progress matches with start and event times relative
// to now.
func Matches(now time.Time) []types.MatchDetail {
	now = now.UTC()
	return []types.MatchDetail{
		{
			Match: types.Match{
				Id:        "1",
				HomeTeam:  types.Team{Id: "man-utd", Name: "Manchester United", ShortName: "MUN"},
				AwayTeam:  types.Team{Id: "liverpool", Name: "Liverpool", ShortName: "LIV"},
				HomeScore: 1,
				AwayScore: 1,
				Minute:    23,
				Status:    types.StatusFirstHalf,
				StartTime: now.Add(-23 * time.Minute),
			},
			Events: []types.MatchEvent{
				{
					Id:           "evt-1",
					Type:         types.EventGoal,
					Minute:       12,
					Team:         types.SideHome,
					Player:       "Marcus Rashford",
					AssistPlayer: "Bruno Fernandes",
					Description:  "Goal by Marcus Rashford (assisted by Bruno Fernandes)",
					Timestamp:    now.Add(-11 * time.Minute),
				},
				{
					Id:           "evt-2",
					Type:         types.EventGoal,
					Minute:       18,
					Team:         types.SideAway,
					Player:       "Mohamed Salah",
					AssistPlayer: "Trent Alexander-Arnold",
					Description:  "Goal by Mohamed Salah (assisted by Trent Alexander-Arnold)",
					Timestamp:    now.Add(-5 * time.Minute),
				},
			},
			Statistics: types.MatchStats{
				Possession:    types.StatPair{Home: 48, Away: 52},
				Shots:         types.StatPair{Home: 6, Away: 8},
				ShotsOnTarget: types.StatPair{Home: 3, Away: 4},
				Corners:       types.StatPair{Home: 2, Away: 3},
				Fouls:         types.StatPair{Home: 4, Away: 5},
				YellowCards:   types.StatPair{Home: 0, Away: 1},
			},
		},
		{
			Match: types.Match{
				Id:        "2",
				HomeTeam:  types.Team{Id: "arsenal", Name: "Arsenal", ShortName: "ARS"},
				AwayTeam:  types.Team{Id: "chelsea", Name: "Chelsea", ShortName: "CHE"},
				HomeScore: 2,
				AwayScore: 0,
				Minute:    67,
				Status:    types.StatusSecondHalf,
				StartTime: now.Add(-90 * time.Minute),
			},
			Events: []types.MatchEvent{
				{
					Id:          "evt-3",
					Type:        types.EventGoal,
					Minute:      25,
					Team:        types.SideHome,
					Player:      "Bukayo Saka",
					Description: "Goal by Bukayo Saka",
					Timestamp:   now.Add(-42 * time.Minute),
				},
				{
					Id:           "evt-4",
					Type:         types.EventGoal,
					Minute:       52,
					Team:         types.SideHome,
					Player:       "Gabriel Jesus",
					AssistPlayer: "Martin Odegaard",
					Description:  "Goal by Gabriel Jesus (assisted by Martin Odegaard)",
					Timestamp:    now.Add(-15 * time.Minute),
				},
			},
			Statistics: types.MatchStats{
				Possession:    types.StatPair{Home: 62, Away: 38},
				Shots:         types.StatPair{Home: 14, Away: 5},
				ShotsOnTarget: types.StatPair{Home: 7, Away: 2},
				Corners:       types.StatPair{Home: 6, Away: 2},
				Fouls:         types.StatPair{Home: 6, Away: 9},
				YellowCards:   types.StatPair{Home: 1, Away: 2},
			},
		},
	}
}

// Summaries returns the list-view form of Matches.
func Summaries(now time.Time) []types.Match {
	details := Matches(now)
	matches := make([]types.Match, len(details))
	for i, d := range details {
		matches[i] = d.Match
	}
	return matches
}

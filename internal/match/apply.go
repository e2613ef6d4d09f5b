package match

import (
	"slices"

	"github.com/npezzotti/go-matchcenter/internal/types"
)

// The Apply functions never mutate their input. Each returns a new
// snapshot that shares nothing mutable with the old one.

func Clone(d types.MatchDetail) types.MatchDetail {
	d.Events = slices.Clone(d.Events)
	return d
}

// ApplyScore replaces both scores. Nothing else changes.
func ApplyScore(d types.MatchDetail, u types.ScoreUpdate) types.MatchDetail {
	d = Clone(d)
	d.HomeScore = u.HomeScore
	d.AwayScore = u.AwayScore
	return d
}

// AppendEvent appends e in arrival order without deduplication.
func AppendEvent(d types.MatchDetail, e types.MatchEvent) types.MatchDetail {
	events := make([]types.MatchEvent, len(d.Events), len(d.Events)+1)
	copy(events, d.Events)
	d.Events = append(events, e)
	return d
}

// ApplyStats replaces the whole statistics record.
func ApplyStats(d types.MatchDetail, s types.MatchStats) types.MatchDetail {
	d = Clone(d)
	d.Statistics = s
	return d
}

// ApplyStatus replaces phase and minute together.
func ApplyStatus(d types.MatchDetail, s types.StatusChange) types.MatchDetail {
	d = Clone(d)
	d.Status = s.Status
	d.Minute = s.Minute
	return d
}

// SortedEvents returns the timeline ordered by minute ascending, keeping
// arrival order between events of the same minute. Storage order is not
// affected.
func SortedEvents(events []types.MatchEvent) []types.MatchEvent {
	out := slices.Clone(events)
	slices.SortStableFunc(out, func(a, b types.MatchEvent) int {
		return a.Minute - b.Minute
	})
	return out
}

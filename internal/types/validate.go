package types

import (
	"errors"
	"fmt"
)

var ErrInvalid = errors.New("invalid payload")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (s MatchStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusFirstHalf, StatusHalfTime, StatusSecondHalf, StatusFullTime:
		return true
	}
	return false
}

func (t EventType) Valid() bool {
	switch t {
	case EventGoal, EventYellowCard, EventRedCard, EventSubstitution, EventFoul, EventShot:
		return true
	}
	return false
}

func (s Side) Valid() bool {
	return s == SideHome || s == SideAway
}

func (t Team) Validate() error {
	if t.Id == "" || t.Name == "" || t.ShortName == "" {
		return invalid("team requires id, name and shortName")
	}
	return nil
}

func (m Match) Validate() error {
	if m.Id == "" {
		return invalid("match id is empty")
	}
	if err := m.HomeTeam.Validate(); err != nil {
		return fmt.Errorf("home team: %w", err)
	}
	if err := m.AwayTeam.Validate(); err != nil {
		return fmt.Errorf("away team: %w", err)
	}
	if m.HomeScore < 0 || m.AwayScore < 0 {
		return invalid("negative score %d-%d", m.HomeScore, m.AwayScore)
	}
	if m.Minute < 0 {
		return invalid("negative minute %d", m.Minute)
	}
	if !m.Status.Valid() {
		return invalid("unknown status %q", m.Status)
	}
	return nil
}

func (d MatchDetail) Validate() error {
	if err := d.Match.Validate(); err != nil {
		return err
	}
	for i, ev := range d.Events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}

func (e MatchEvent) Validate() error {
	if e.Id == "" {
		return invalid("event id is empty")
	}
	if !e.Type.Valid() {
		return invalid("unknown event type %q", e.Type)
	}
	if !e.Team.Valid() {
		return invalid("unknown team side %q", e.Team)
	}
	if e.Minute < 0 {
		return invalid("negative minute %d", e.Minute)
	}
	return nil
}

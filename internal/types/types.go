package types

import (
	"time"
)

type MatchStatus string

const (
	StatusNotStarted MatchStatus = "NOT_STARTED"
	StatusFirstHalf  MatchStatus = "FIRST_HALF"
	StatusHalfTime   MatchStatus = "HALF_TIME"
	StatusSecondHalf MatchStatus = "SECOND_HALF"
	StatusFullTime   MatchStatus = "FULL_TIME"
)

// Live reports whether the ball is in play.
func (s MatchStatus) Live() bool {
	return s == StatusFirstHalf || s == StatusSecondHalf
}

type EventType string

const (
	EventGoal         EventType = "GOAL"
	EventYellowCard   EventType = "YELLOW_CARD"
	EventRedCard      EventType = "RED_CARD"
	EventSubstitution EventType = "SUBSTITUTION"
	EventFoul         EventType = "FOUL"
	EventShot         EventType = "SHOT"
)

type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

type Team struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
}

type Match struct {
	Id        string      `json:"id"`
	HomeTeam  Team        `json:"homeTeam"`
	AwayTeam  Team        `json:"awayTeam"`
	HomeScore int         `json:"homeScore"`
	AwayScore int         `json:"awayScore"`
	Minute    int         `json:"minute"`
	Status    MatchStatus `json:"status"`
	StartTime time.Time   `json:"startTime"`
}

// MatchDetail is the full snapshot of one match, including its timeline
// and statistics.
type MatchDetail struct {
	Match
	Events     []MatchEvent `json:"events"`
	Statistics MatchStats   `json:"statistics"`
}

type MatchEvent struct {
	Id           string    `json:"id"`
	Type         EventType `json:"type"`
	Minute       int       `json:"minute"`
	Team         Side      `json:"team"`
	Player       string    `json:"player,omitempty"`
	AssistPlayer string    `json:"assistPlayer,omitempty"`
	Description  string    `json:"description"`
	Timestamp    time.Time `json:"timestamp"`
}

type StatPair struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

type MatchStats struct {
	Possession    StatPair `json:"possession"`
	Shots         StatPair `json:"shots"`
	ShotsOnTarget StatPair `json:"shotsOnTarget"`
	Corners       StatPair `json:"corners"`
	Fouls         StatPair `json:"fouls"`
	YellowCards   StatPair `json:"yellowCards"`
	RedCards      StatPair `json:"redCards"`
}

// ChatMessage is a single line of match chat. Id is assigned by the server;
// TempId is the client correlation token echoed back on acknowledgment and
// broadcast.
type ChatMessage struct {
	Id        string    `json:"id,omitempty"`
	MatchId   string    `json:"matchId"`
	UserId    string    `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	TempId    string    `json:"tempId,omitempty"`
}

type PresenceAction string

const (
	PresenceJoined PresenceAction = "joined"
	PresenceLeft   PresenceAction = "left"
)

// PresenceNotice records a user joining or leaving a chat room.
type PresenceNotice struct {
	Username  string         `json:"username"`
	Action    PresenceAction `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
}

package events

import (
	"github.com/biswa/coduel-signal/internal/match"
	"github.com/biswa/coduel-signal/internal/perf"
)

// Outbound event names.
const (
	RoomJoinedEvent         Name = "room-joined"
	RoomFullEvent           Name = "room-full"
	PlayerJoinedEvent       Name = "player-joined"
	PlayerLeftEvent         Name = "player-left"
	UserLeftEvent           Name = "user-left"
	SettingsUpdatedEvent    Name = "settings-updated"
	PlayerReadyUpdateEvent  Name = "player-ready-update"
	RoomStateEvent          Name = "room-state"
	OpponentCodeUpdateEvent Name = "opponent-code-update"
	MatchStartedEvent       Name = "match-started"
	OpponentSubmittedEvent  Name = "opponent-submitted"
	SubmissionRejectedEvent Name = "submission-rejected"
	MatchResultEvent        Name = "match-result"
	NextRoundEvent          Name = "next-round"
	MatchTimeoutEvent       Name = "match-timeout"
	MatchCompleteEvent      Name = "match-complete"
	TimeExpiredEvent        Name = "time-expired"
	ErrorEvent              Name = "error"
)

// Outbound is a message sent to clients.
type Outbound interface {
	Event() Name
}

// Emitter delivers outbound messages. conn and room are transport identifiers.
type Emitter interface {
	Join(conn, room string)
	Leave(conn, room string)
	// ToRoom sends to every member of room.
	ToRoom(room string, msg Outbound)
	// ToOthers sends to every member of room except conn.
	ToOthers(room, conn string, msg Outbound)
	// ToConn sends to a single connection.
	ToConn(conn string, msg Outbound)
}

type PlayerView struct {
	Username string `json:"username"`
	SocketID string `json:"socketId"`
	Role     string `json:"role"`
	Ready    bool   `json:"ready"`
}

type SpectatorView struct {
	Username string `json:"username"`
}

// Settings mirrors the room settings on the wire.
type Settings struct {
	SpectatorEnabled bool   `json:"spectatorEnabled"`
	Difficulty       string `json:"difficulty"`
	Language         string `json:"language"`
	TimeLimit        string `json:"timeLimit"`
	Rounds           int    `json:"rounds"`
}

type RoomSnapshot struct {
	Players    []PlayerView    `json:"players"`
	Spectators []SpectatorView `json:"spectators"`
	Settings   Settings        `json:"settings"`
	Match      *match.State    `json:"match,omitempty"`
}

type RoomJoined struct {
	RoomCode  string       `json:"roomCode"`
	Role      string       `json:"role"`
	RoomState RoomSnapshot `json:"roomState"`
}

type RoomFull struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
}

type PlayerJoined struct {
	Username string       `json:"username"`
	Role     string       `json:"role"`
	Players  []PlayerView `json:"players"`
}

type PlayerLeft struct {
	Username string       `json:"username"`
	Role     string       `json:"role"`
	Players  []PlayerView `json:"players"`
}

type UserLeft struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type SettingsUpdated struct {
	Settings Settings `json:"settings"`
}

type PlayerReadyUpdate struct {
	Players []PlayerView `json:"players"`
}

type RoomState struct {
	Players  []PlayerView `json:"players"`
	Settings Settings     `json:"settings"`
	Match    *match.State `json:"match,omitempty"`
}

type OpponentCodeUpdate struct {
	SocketID string `json:"socketId"`
	Code     string `json:"code"`
	Language string `json:"language"`
	Username string `json:"username"`
}

type MatchStarted struct {
	Settings    Settings `json:"settings"`
	Round       int      `json:"round"`
	TotalRounds int      `json:"totalRounds"`
}

type OpponentSubmitted struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

type SubmissionRejected struct {
	SubmissionID string `json:"submissionId"`
	Message      string `json:"message"`
}

type MatchResult struct {
	Round         int                      `json:"round"`
	Winner        string                   `json:"winner"`
	Comparison    perf.Outcome             `json:"comparison"`
	Performance   map[string]perf.Snapshot `json:"performance"`
	Scores        map[string]int           `json:"scores"`
	Standings     []match.Standing         `json:"standings"`
	Status        match.Status             `json:"status"`
	RoundsPlayed  int                      `json:"roundsPlayed"`
	TotalRounds   int                      `json:"totalRounds"`
	OverallWinner string                   `json:"overallWinner,omitempty"`
}

type NextRound struct {
	Round       int  `json:"round"`
	TotalRounds int  `json:"totalRounds"`
	Tiebreak    bool `json:"tiebreak"`
}

type MatchTimeout struct {
	Round       int      `json:"round"`
	Message     string   `json:"message"`
	Submissions []string `json:"submissions"`
}

type MatchComplete struct {
	OverallWinner string              `json:"overallWinner"`
	Scores        map[string]int      `json:"scores"`
	Standings     []match.Standing    `json:"standings"`
	RoundResults  []match.RoundResult `json:"roundResults"`
	Message       string              `json:"message,omitempty"`
}

type TimeExpired struct {
	Round int `json:"round"`
}

type Error struct {
	Message string `json:"message"`
}

func (RoomJoined) Event() Name         { return RoomJoinedEvent }
func (RoomFull) Event() Name           { return RoomFullEvent }
func (PlayerJoined) Event() Name       { return PlayerJoinedEvent }
func (PlayerLeft) Event() Name         { return PlayerLeftEvent }
func (UserLeft) Event() Name           { return UserLeftEvent }
func (SettingsUpdated) Event() Name    { return SettingsUpdatedEvent }
func (PlayerReadyUpdate) Event() Name  { return PlayerReadyUpdateEvent }
func (RoomState) Event() Name          { return RoomStateEvent }
func (OpponentCodeUpdate) Event() Name { return OpponentCodeUpdateEvent }
func (MatchStarted) Event() Name       { return MatchStartedEvent }
func (OpponentSubmitted) Event() Name  { return OpponentSubmittedEvent }
func (SubmissionRejected) Event() Name { return SubmissionRejectedEvent }
func (MatchResult) Event() Name        { return MatchResultEvent }
func (NextRound) Event() Name          { return NextRoundEvent }
func (MatchTimeout) Event() Name       { return MatchTimeoutEvent }
func (MatchComplete) Event() Name      { return MatchCompleteEvent }
func (TimeExpired) Event() Name        { return TimeExpiredEvent }
func (Error) Event() Name              { return ErrorEvent }

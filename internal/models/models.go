package models

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/biswa/coduel-signal/internal/match"
)

const MaxPlayers = 2

var (
	ErrRoomFull         = eris.New("room is full")
	ErrAlreadyJoined    = eris.New("connection already joined this room")
	ErrNotPlayer        = eris.New("not a player in this room")
	ErrNotAuthority     = eris.New("only the host can do that")
	ErrMatchNotStarted  = eris.New("match has not started")
	ErrAlreadySubmitted = eris.New("already submitted this round")
	ErrRoomClosed       = eris.New("room closed")
	ErrInvalidRole      = eris.New("invalid role")
	ErrNameTaken        = eris.New("name already taken by a player in this room")
)

type Role string

const (
	RoleHost      Role = "host"
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// ParseRole maps a requested role to a Role. An empty string requests a player seat.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RolePlayer, nil
	case RoleHost, RolePlayer, RoleSpectator:
		return Role(s), nil
	}
	return "", eris.Wrapf(ErrInvalidRole, "%q", s)
}

// Active reports whether the role competes in matches.
func (r Role) Active() bool {
	return r == RoleHost || r == RolePlayer
}

type Participant struct {
	ConnID string
	Name   string
	Role   Role
	Ready  bool
}

type Submission struct {
	SubmissionID string
	ConnID       string
	Name         string
	SubmittedAt  time.Time
}

// Room is a single duel session. Mu must be held for every method call.
type Room struct {
	Code      string
	Settings  Settings
	Match     *match.State
	CreatedAt time.Time
	Mu        sync.Mutex

	players     []*Participant
	spectators  []*Participant
	liveCode    map[string]string
	submissions map[string]Submission
	stalled     bool
	round       int
	timer       *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func newRoom(parent context.Context, code string) *Room {
	ctx, cancel := context.WithCancel(parent)
	return &Room{
		Code:        code,
		Settings:    DefaultSettings(),
		CreatedAt:   time.Now(),
		liveCode:    make(map[string]string),
		submissions: make(map[string]Submission),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is cancelled when the room is removed from its registry.
func (r *Room) Context() context.Context {
	return r.ctx
}

// Closed reports whether the room was removed from its registry.
func (r *Room) Closed() bool {
	return r.closed
}

func (r *Room) close() {
	r.closed = true
	r.StopTimer()
	r.cancel()
}

// Join seats a participant. Players beyond MaxPlayers are refused; spectators are unlimited.
// Only the first seat can be the host, a later host request is seated as a player.
func (r *Room) Join(connID, name string, role Role) (Participant, error) {
	if r.closed {
		return Participant{}, ErrRoomClosed
	}
	if r.find(connID) != nil {
		return Participant{}, ErrAlreadyJoined
	}
	p := &Participant{ConnID: connID, Name: name, Role: role}
	if role.Active() {
		if len(r.players) >= MaxPlayers {
			return Participant{}, ErrRoomFull
		}
		for _, other := range r.players {
			if other.Name == name {
				return Participant{}, eris.Wrapf(ErrNameTaken, "%q", name)
			}
		}
		if len(r.players) > 0 {
			p.Role = RolePlayer
		}
		p.Ready = p.Role == RoleHost
		r.players = append(r.players, p)
		r.liveCode[connID] = ""
	} else {
		r.spectators = append(r.spectators, p)
	}
	return *p, nil
}

// Leave removes the connection from the room along with its live code and pending submission.
func (r *Room) Leave(connID string) (Participant, bool) {
	for i, p := range r.players {
		if p.ConnID == connID {
			r.players = append(r.players[:i], r.players[i+1:]...)
			delete(r.liveCode, connID)
			delete(r.submissions, connID)
			return *p, true
		}
	}
	for i, p := range r.spectators {
		if p.ConnID == connID {
			r.spectators = append(r.spectators[:i], r.spectators[i+1:]...)
			return *p, true
		}
	}
	return Participant{}, false
}

// Empty reports whether nobody is left in the room.
func (r *Room) Empty() bool {
	return len(r.players) == 0 && len(r.spectators) == 0
}

func (r *Room) Has(connID string) bool {
	return r.find(connID) != nil
}

func (r *Room) find(connID string) *Participant {
	if p := r.player(connID); p != nil {
		return p
	}
	for _, p := range r.spectators {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (r *Room) player(connID string) *Participant {
	for _, p := range r.players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// Player returns the seated player for connID.
func (r *Room) Player(connID string) (Participant, bool) {
	p := r.player(connID)
	if p == nil {
		return Participant{}, false
	}
	return *p, true
}

// Players returns the seated players in join order. Index 0 is the authority.
func (r *Room) Players() []Participant {
	out := make([]Participant, len(r.players))
	for i, p := range r.players {
		out[i] = *p
	}
	return out
}

func (r *Room) Spectators() []Participant {
	out := make([]Participant, len(r.spectators))
	for i, p := range r.spectators {
		out[i] = *p
	}
	return out
}

// IsAuthority reports whether connID holds the first player seat.
func (r *Room) IsAuthority(connID string) bool {
	return len(r.players) > 0 && r.players[0].ConnID == connID
}

// UpdateSettings merges patch into the settings when connID is the authority.
func (r *Room) UpdateSettings(connID string, patch map[string]any) error {
	if !r.IsAuthority(connID) {
		return ErrNotAuthority
	}
	r.Settings = r.Settings.Merge(patch)
	return nil
}

// SetReady flips the ready flag of a seated player.
func (r *Room) SetReady(connID string, ready bool) error {
	p := r.player(connID)
	if p == nil {
		return ErrNotPlayer
	}
	p.Ready = ready
	return nil
}

// SetCode stores the latest editor contents of a seated player.
func (r *Room) SetCode(connID, code string) error {
	if r.player(connID) == nil {
		return ErrNotPlayer
	}
	r.liveCode[connID] = code
	return nil
}

// LiveCode returns the last editor contents a player sent.
func (r *Room) LiveCode(connID string) string {
	return r.liveCode[connID]
}

// StartMatch (re)initializes the match for the current players and clears pending submissions.
func (r *Room) StartMatch(connID string) error {
	if !r.IsAuthority(connID) {
		return ErrNotAuthority
	}
	names := make([]string, 0, len(r.players))
	for _, p := range r.players {
		names = append(names, p.Name)
	}
	r.Match = match.New(r.Settings.Rounds, names)
	r.ClearSubmissions()
	return nil
}

// Submit records a player's submission for the current round. A player whose
// round stalled on a timeout may replace an earlier submission.
func (r *Room) Submit(connID, submissionID string, now time.Time) (Submission, error) {
	p := r.player(connID)
	if p == nil {
		return Submission{}, ErrNotPlayer
	}
	if r.Match == nil {
		return Submission{}, ErrMatchNotStarted
	}
	if r.Match.Completed() {
		return Submission{}, match.ErrMatchCompleted
	}
	if _, ok := r.submissions[connID]; ok && !r.stalled {
		return Submission{}, ErrAlreadySubmitted
	}
	sub := Submission{
		SubmissionID: submissionID,
		ConnID:       connID,
		Name:         p.Name,
		SubmittedAt:  now,
	}
	r.submissions[connID] = sub
	return sub, nil
}

// AllSubmitted reports whether both seats are filled and each player has a pending submission.
func (r *Room) AllSubmitted() bool {
	if len(r.players) < MaxPlayers {
		return false
	}
	for _, p := range r.players {
		if _, ok := r.submissions[p.ConnID]; !ok {
			return false
		}
	}
	return true
}

// Pending returns pending submissions ordered by submission time.
func (r *Room) Pending() []Submission {
	out := make([]Submission, 0, len(r.submissions))
	for _, s := range r.submissions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].SubmissionID < out[j].SubmissionID
	})
	return out
}

// Tracks reports whether every given submission ID is still pending.
func (r *Room) Tracks(ids ...string) bool {
	if len(ids) == 0 {
		return false
	}
	pending := make(map[string]bool, len(r.submissions))
	for _, s := range r.submissions {
		pending[s.SubmissionID] = true
	}
	for _, id := range ids {
		if !pending[id] {
			return false
		}
	}
	return true
}

// ClearSubmissions drops every pending submission and opens a new round.
func (r *Room) ClearSubmissions() {
	r.submissions = make(map[string]Submission)
	r.stalled = false
	r.round++
}

// Stall marks the current round as abandoned by the poller so players may resubmit.
func (r *Room) Stall() {
	r.stalled = true
}

// Unstall closes the resubmission window once a new attempt is scheduled.
func (r *Room) Unstall() {
	r.stalled = false
}

// Stalled reports whether the last resolution attempt timed out.
func (r *Room) Stalled() bool {
	return r.stalled
}

// RoundToken changes every time the pending submissions are cleared.
func (r *Room) RoundToken() int {
	return r.round
}

// StartTimer replaces the round timer.
func (r *Room) StartTimer(d time.Duration, fn func()) {
	r.StopTimer()
	r.timer = time.AfterFunc(d, fn)
}

func (r *Room) StopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

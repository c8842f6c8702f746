// Package handlers routes duel messages to rooms and announces what happened.
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/biswa/coduel-signal/internal/events"
	"github.com/biswa/coduel-signal/internal/match"
	"github.com/biswa/coduel-signal/internal/models"
	"github.com/biswa/coduel-signal/internal/perf"
	"github.com/biswa/coduel-signal/internal/poller"
)

// Scheduler starts a resolution attempt for a round whose submissions are all in.
type Scheduler interface {
	Schedule(ctx context.Context, code string, subs []models.Submission)
}

var _ poller.Target = &Handler{}

type Handler struct {
	rooms     *models.Registry
	emit      events.Emitter
	scheduler Scheduler
	cmp       perf.Comparator
	logger    zerolog.Logger
	now       func() time.Time

	mu          sync.Mutex
	memberships map[string]map[string]struct{}
}

func New(rooms *models.Registry, emit events.Emitter, scheduler Scheduler, cmp perf.Comparator,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		rooms:       rooms,
		emit:        emit,
		scheduler:   scheduler,
		cmp:         cmp,
		logger:      logger.With().Str("component", "handlers").Logger(),
		now:         time.Now,
		memberships: make(map[string]map[string]struct{}),
	}
}

// Dispatch handles one inbound message from conn. Messages for the same room are
// applied one at a time under the room lock.
func (h *Handler) Dispatch(conn string, msg events.Inbound) {
	switch m := msg.(type) {
	case events.JoinRoom:
		h.HandleJoinRoom(conn, m)
	case events.UpdateSettings:
		h.HandleUpdateSettings(conn, m)
	case events.PlayerReady:
		h.HandlePlayerReady(conn, m)
	case events.CodeChange:
		h.HandleCodeChange(conn, m)
	case events.StartMatch:
		h.HandleStartMatch(conn, m)
	case events.SubmitCode:
		h.HandleSubmitCode(conn, m)
	case events.Disconnect:
		h.HandleDisconnect(conn)
	default:
		h.logger.Warn().Str("conn", conn).Msgf("unhandled message %T", msg)
	}
}

// withRoom runs fn under the lock of an existing, open room. Messages for unknown rooms are dropped.
func (h *Handler) withRoom(code string, fn func(room *models.Room)) bool {
	room, ok := h.rooms.Get(code)
	if !ok {
		h.logger.Debug().Str("room", code).Msg("dropping message for unknown room")
		return false
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	if room.Closed() {
		return false
	}
	fn(room)
	return true
}

func (h *Handler) HandleJoinRoom(conn string, m events.JoinRoom) {
	role, err := models.ParseRole(m.Role)
	if err != nil {
		h.emit.ToConn(conn, events.Error{Message: err.Error()})
		return
	}

	var room *models.Room
	for {
		room = h.rooms.GetOrCreate(m.RoomCode)
		room.Mu.Lock()
		if !room.Closed() {
			break
		}
		room.Mu.Unlock()
	}
	defer room.Mu.Unlock()

	p, err := room.Join(conn, m.Name(), role)
	if err != nil {
		if room.Empty() {
			h.rooms.Remove(room)
		}
		switch {
		case eris.Is(err, models.ErrRoomFull):
			h.emit.ToConn(conn, events.RoomFull{RoomCode: room.Code, Message: "Room is full"})
		default:
			h.emit.ToConn(conn, events.Error{Message: err.Error()})
		}
		h.logger.Info().Str("room", room.Code).Str("conn", conn).Err(err).Msg("join refused")
		return
	}

	h.emit.Join(conn, room.Code)
	h.track(conn, room.Code)

	h.emit.ToConn(conn, events.RoomJoined{
		RoomCode:  room.Code,
		Role:      string(p.Role),
		RoomState: Snapshot(room),
	})
	h.emit.ToRoom(room.Code, events.PlayerJoined{
		Username: p.Name,
		Role:     string(p.Role),
		Players:  playerViews(room),
	})
	h.emit.ToConn(conn, events.RoomState{
		Players:  playerViews(room),
		Settings: settingsView(room.Settings),
		Match:    room.Match.Clone(),
	})
	h.logger.Info().Str("room", room.Code).Str("conn", conn).Msgf("%s joined as %s", p.Name, p.Role)
}

func (h *Handler) HandleUpdateSettings(conn string, m events.UpdateSettings) {
	h.withRoom(m.RoomCode, func(room *models.Room) {
		if err := room.UpdateSettings(conn, m.Settings); err != nil {
			h.emit.ToConn(conn, events.Error{Message: err.Error()})
			return
		}
		h.emit.ToRoom(room.Code, events.SettingsUpdated{Settings: settingsView(room.Settings)})
		h.logger.Debug().Str("room", room.Code).Interface("settings", room.Settings).Msg("settings updated")
	})
}

func (h *Handler) HandlePlayerReady(conn string, m events.PlayerReady) {
	h.withRoom(m.RoomCode, func(room *models.Room) {
		if err := room.SetReady(conn, m.Ready); err != nil {
			h.emit.ToConn(conn, events.Error{Message: err.Error()})
			return
		}
		h.emit.ToRoom(room.Code, events.PlayerReadyUpdate{Players: playerViews(room)})
	})
}

func (h *Handler) HandleCodeChange(conn string, m events.CodeChange) {
	h.withRoom(m.RoomCode, func(room *models.Room) {
		if err := room.SetCode(conn, m.Code); err != nil {
			h.emit.ToConn(conn, events.Error{Message: err.Error()})
			return
		}
		p, _ := room.Player(conn)
		language := m.Language
		if language == "" {
			language = room.Settings.Language
		}
		h.emit.ToOthers(room.Code, conn, events.OpponentCodeUpdate{
			SocketID: conn,
			Code:     m.Code,
			Language: language,
			Username: p.Name,
		})
	})
}

func (h *Handler) HandleStartMatch(conn string, m events.StartMatch) {
	h.withRoom(m.RoomCode, func(room *models.Room) {
		if err := room.StartMatch(conn); err != nil {
			h.emit.ToConn(conn, events.Error{Message: err.Error()})
			return
		}
		h.emit.ToRoom(room.Code, events.MatchStarted{
			Settings:    settingsView(room.Settings),
			Round:       room.Match.CurrentRound(),
			TotalRounds: room.Match.TotalRounds,
		})
		h.startRoundTimer(room)
		h.logger.Info().Str("room", room.Code).Int("rounds", room.Match.TotalRounds).Msg("match started")
	})
}

func (h *Handler) HandleSubmitCode(conn string, m events.SubmitCode) {
	h.withRoom(m.RoomCode, func(room *models.Room) {
		sub, err := room.Submit(conn, m.SubmissionID, h.now())
		switch {
		case eris.Is(err, match.ErrMatchCompleted):
			complete := completeMessage(room.Match)
			complete.Message = err.Error()
			h.emit.ToConn(conn, complete)
			return
		case err != nil:
			h.emit.ToConn(conn, events.SubmissionRejected{SubmissionID: m.SubmissionID, Message: err.Error()})
			return
		}

		h.emit.ToOthers(room.Code, conn, events.OpponentSubmitted{SocketID: conn, Username: sub.Name})
		h.logger.Info().Str("room", room.Code).Str("conn", conn).Str("submission", sub.SubmissionID).
			Msg("submission recorded")

		if room.AllSubmitted() {
			room.Unstall()
			h.scheduler.Schedule(room.Context(), room.Code, room.Pending())
		}
	})
}

func (h *Handler) HandleDisconnect(conn string) {
	for _, code := range h.untrack(conn) {
		h.withRoom(code, func(room *models.Room) {
			p, ok := room.Leave(conn)
			if !ok {
				return
			}
			h.emit.Leave(conn, room.Code)
			if p.Role.Active() {
				h.emit.ToRoom(room.Code, events.PlayerLeft{
					Username: p.Name,
					Role:     string(p.Role),
					Players:  playerViews(room),
				})
			} else {
				h.emit.ToRoom(room.Code, events.UserLeft{Username: p.Name, Role: string(p.Role)})
			}
			h.logger.Info().Str("room", room.Code).Str("conn", conn).Msgf("%s left", p.Name)

			if room.Empty() {
				h.rooms.Remove(room)
				h.logger.Info().Str("room", room.Code).Msg("room deleted (empty)")
			}
		})
	}
}

// Tracked reports whether the room still waits on exactly these submissions.
func (h *Handler) Tracked(code string, ids []string) bool {
	tracked := false
	h.withRoom(code, func(room *models.Room) {
		tracked = room.Tracks(ids...)
	})
	return tracked
}

// Resolve decides the round once both results are in. It is a no-op when the
// submissions were already cleared, so a round is never announced twice.
func (h *Handler) Resolve(code string, subs []models.Submission, snaps []perf.Snapshot) {
	if len(subs) != 2 || len(snaps) != 2 {
		h.logger.Error().Str("room", code).Int("submissions", len(subs)).Msg("resolve needs exactly two submissions")
		return
	}
	h.withRoom(code, func(room *models.Room) {
		if room.Match == nil || !room.Tracks(subs[0].SubmissionID, subs[1].SubmissionID) {
			return
		}
		res, err := room.Match.Resolve(h.cmp, subs[0].Name, snaps[0], subs[1].Name, snaps[1], h.now())
		room.ClearSubmissions()
		room.StopTimer()
		if err != nil {
			h.logger.Warn().Str("room", code).Err(err).Msg("round not resolved")
			return
		}

		state := room.Match
		h.emit.ToRoom(code, events.MatchResult{
			Round:         res.Round,
			Winner:        res.Winner,
			Comparison:    res.Comparison,
			Performance:   res.Snapshots,
			Scores:        copyScores(state.Scores),
			Standings:     state.Standings(),
			Status:        state.Status,
			RoundsPlayed:  state.RoundsPlayed,
			TotalRounds:   state.TotalRounds,
			OverallWinner: state.OverallWinner,
		})
		h.logger.Info().Str("room", code).Int("round", res.Round).Str("winner", res.Winner).
			Str("reason", string(res.Comparison.Reason)).Msg("round resolved")

		if state.Completed() {
			h.emit.ToRoom(code, completeMessage(state))
			h.logger.Info().Str("room", code).Str("winner", state.OverallWinner).Msg("match complete")
			return
		}
		h.emit.ToRoom(code, events.NextRound{
			Round:       state.CurrentRound(),
			TotalRounds: state.TotalRounds,
			Tiebreak:    state.Status == match.StatusTiebreak,
		})
		h.startRoundTimer(room)
	})
}

// Expire announces that the results of a round never arrived. The submissions stay
// queued and either player may submit again to retry.
func (h *Handler) Expire(code string, subs []models.Submission) {
	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.SubmissionID
	}
	h.withRoom(code, func(room *models.Room) {
		if !room.Tracks(ids...) {
			return
		}
		room.Stall()
		round := 0
		if room.Match != nil {
			round = room.Match.CurrentRound()
		}
		h.emit.ToRoom(code, events.MatchTimeout{
			Round:       round,
			Message:     "Timed out waiting for results. Submit again to retry.",
			Submissions: ids,
		})
	})
}

// Snapshot returns the public view of a room. The caller must hold room.Mu.
func Snapshot(room *models.Room) events.RoomSnapshot {
	spectators := make([]events.SpectatorView, 0)
	for _, s := range room.Spectators() {
		spectators = append(spectators, events.SpectatorView{Username: s.Name})
	}
	return events.RoomSnapshot{
		Players:    playerViews(room),
		Spectators: spectators,
		Settings:   settingsView(room.Settings),
		Match:      room.Match.Clone(),
	}
}

// Lookup returns the snapshot of a live room.
func (h *Handler) Lookup(code string) (events.RoomSnapshot, bool) {
	var snap events.RoomSnapshot
	ok := h.withRoom(code, func(room *models.Room) {
		snap = Snapshot(room)
	})
	return snap, ok
}

func (h *Handler) startRoundTimer(room *models.Room) {
	limit, ok := room.Settings.RoundTimeout()
	if !ok || room.Match == nil || room.Match.Completed() {
		room.StopTimer()
		return
	}
	token := room.RoundToken()
	round := room.Match.CurrentRound()
	room.StartTimer(limit, func() {
		h.withRoom(room.Code, func(cur *models.Room) {
			if cur != room || cur.RoundToken() != token || cur.Match == nil || cur.Match.Completed() {
				return
			}
			h.emit.ToRoom(cur.Code, events.TimeExpired{Round: round})
		})
	})
}

func (h *Handler) track(conn, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.memberships[conn]
	if !ok {
		rooms = make(map[string]struct{})
		h.memberships[conn] = rooms
	}
	rooms[code] = struct{}{}
}

func (h *Handler) untrack(conn string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	codes := make([]string, 0, len(h.memberships[conn]))
	for code := range h.memberships[conn] {
		codes = append(codes, code)
	}
	delete(h.memberships, conn)
	return codes
}

func playerViews(room *models.Room) []events.PlayerView {
	players := room.Players()
	out := make([]events.PlayerView, len(players))
	for i, p := range players {
		out[i] = events.PlayerView{Username: p.Name, SocketID: p.ConnID, Role: string(p.Role), Ready: p.Ready}
	}
	return out
}

func settingsView(s models.Settings) events.Settings {
	return events.Settings(s)
}

func completeMessage(state *match.State) events.MatchComplete {
	return events.MatchComplete{
		OverallWinner: state.OverallWinner,
		Scores:        copyScores(state.Scores),
		Standings:     state.Standings(),
		RoundResults:  append([]match.RoundResult{}, state.Rounds...),
	}
}

func copyScores(scores map[string]int) map[string]int {
	out := make(map[string]int, len(scores))
	for k, v := range scores {
		out[k] = v
	}
	return out
}

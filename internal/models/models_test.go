package models

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biswa/coduel-signal/internal/match"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fullRoom(t *testing.T) *Room {
	t.Helper()
	room := newRoom(context.Background(), "ABCD1234")
	_, err := room.Join("c1", "alice", RoleHost)
	require.NoError(t, err)
	_, err = room.Join("c2", "bob", RolePlayer)
	require.NoError(t, err)
	return room
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "", want: RolePlayer},
		{in: "host", want: RoleHost},
		{in: "player", want: RolePlayer},
		{in: "spectator", want: RoleSpectator},
		{in: "admin", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if tt.wantErr {
			assert.True(t, eris.Is(err, ErrInvalidRole), tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestJoinCapsPlayers(t *testing.T) {
	room := fullRoom(t)

	_, err := room.Join("c3", "carol", RolePlayer)
	assert.True(t, eris.Is(err, ErrRoomFull))
	_, err = room.Join("c4", "dave", RoleHost)
	assert.True(t, eris.Is(err, ErrRoomFull))

	players := room.Players()
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Name)
	assert.True(t, players[0].Ready)
	assert.False(t, players[1].Ready)
	assert.True(t, room.IsAuthority("c1"))
	assert.False(t, room.IsAuthority("c2"))

	for i := 0; i < 5; i++ {
		_, err := room.Join(string(rune('s'+i)), "watcher", RoleSpectator)
		require.NoError(t, err)
	}
	assert.Len(t, room.Spectators(), 5)
	assert.Len(t, room.Players(), 2)

	_, err = room.Join("c1", "alice", RolePlayer)
	assert.True(t, eris.Is(err, ErrAlreadyJoined))
}

func TestLeaveDropsCodeAndSubmission(t *testing.T) {
	room := fullRoom(t)
	require.NoError(t, room.SetCode("c2", "int main() {}"))
	require.NoError(t, room.StartMatch("c1"))
	_, err := room.Submit("c2", "sub-b", t0)
	require.NoError(t, err)

	p, ok := room.Leave("c2")
	require.True(t, ok)
	assert.Equal(t, "bob", p.Name)
	assert.Empty(t, room.LiveCode("c2"))
	assert.Empty(t, room.Pending())
	assert.False(t, room.Tracks("sub-b"))

	_, ok = room.Leave("c2")
	assert.False(t, ok)
	assert.False(t, room.Empty())
	room.Leave("c1")
	assert.True(t, room.Empty())
}

func TestAuthorityRules(t *testing.T) {
	room := fullRoom(t)

	err := room.UpdateSettings("c2", map[string]any{"rounds": 5})
	assert.True(t, eris.Is(err, ErrNotAuthority))
	assert.Equal(t, 3, room.Settings.Rounds)

	require.NoError(t, room.UpdateSettings("c1", map[string]any{"rounds": "5", "language": "python", "bogus": 1}))
	assert.Equal(t, 5, room.Settings.Rounds)
	assert.Equal(t, "python", room.Settings.Language)
	assert.Equal(t, "fast", room.Settings.Difficulty)

	assert.True(t, eris.Is(room.StartMatch("c2"), ErrNotAuthority))
	assert.Nil(t, room.Match)
	require.NoError(t, room.StartMatch("c1"))
	assert.Equal(t, 5, room.Match.TotalRounds)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, room.Match.Scores)
}

func TestSetReadyAndCodeRequirePlayer(t *testing.T) {
	room := fullRoom(t)
	_, err := room.Join("s1", "watcher", RoleSpectator)
	require.NoError(t, err)

	assert.True(t, eris.Is(room.SetReady("s1", true), ErrNotPlayer))
	assert.True(t, eris.Is(room.SetCode("s1", "x"), ErrNotPlayer))
	require.NoError(t, room.SetReady("c2", true))
	assert.True(t, room.Players()[1].Ready)
}

func TestSubmitRules(t *testing.T) {
	room := fullRoom(t)

	_, err := room.Submit("c1", "a1", t0)
	assert.True(t, eris.Is(err, ErrMatchNotStarted))

	require.NoError(t, room.StartMatch("c1"))
	_, err = room.Submit("c1", "a1", t0)
	require.NoError(t, err)
	assert.False(t, room.AllSubmitted())

	_, err = room.Submit("c1", "a2", t0.Add(time.Second))
	assert.True(t, eris.Is(err, ErrAlreadySubmitted))

	_, err = room.Submit("c2", "b1", t0.Add(-time.Second))
	require.NoError(t, err)
	assert.True(t, room.AllSubmitted())

	pending := room.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "b1", pending[0].SubmissionID)
	assert.Equal(t, "bob", pending[0].Name)
	assert.True(t, room.Tracks("a1", "b1"))

	room.Stall()
	_, err = room.Submit("c1", "a2", t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, room.Tracks("a1", "b1"))
	assert.True(t, room.Tracks("a2", "b1"))

	token := room.RoundToken()
	room.ClearSubmissions()
	assert.NotEqual(t, token, room.RoundToken())
	assert.False(t, room.Stalled())
	assert.Empty(t, room.Pending())
}

func TestSubmitAfterCompletion(t *testing.T) {
	room := fullRoom(t)
	require.NoError(t, room.UpdateSettings("c1", map[string]any{"rounds": 1}))
	require.NoError(t, room.StartMatch("c1"))
	room.Match.Status = match.StatusCompleted

	_, err := room.Submit("c1", "late", t0)
	assert.True(t, eris.Is(err, match.ErrMatchCompleted))
	assert.Empty(t, room.Pending())
}

func TestRoundTimeout(t *testing.T) {
	tests := []struct {
		limit string
		want  time.Duration
		ok    bool
	}{
		{limit: "none"},
		{limit: ""},
		{limit: "garbage"},
		{limit: "0"},
		{limit: "15", want: 15 * time.Minute, ok: true},
		{limit: "90s", want: 90 * time.Second, ok: true},
		{limit: "-5m"},
	}
	for _, tt := range tests {
		s := DefaultSettings()
		s.TimeLimit = tt.limit
		got, ok := s.RoundTimeout()
		assert.Equal(t, tt.ok, ok, tt.limit)
		assert.Equal(t, tt.want, got, tt.limit)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry(context.Background())
	assert.Equal(t, 0, reg.Len())

	room := reg.GetOrCreate("R1")
	assert.Same(t, room, reg.GetOrCreate("R1"))
	room.Mu.Lock()
	_, err := room.Join("c1", "alice", RoleHost)
	require.NoError(t, err)
	require.NoError(t, room.UpdateSettings("c1", map[string]any{"rounds": 7}))
	room.Leave("c1")
	reg.Remove(room)
	room.Mu.Unlock()

	_, ok := reg.Get("R1")
	assert.False(t, ok)
	assert.True(t, room.Closed())
	assert.Error(t, room.Context().Err())

	_, err = room.Join("c9", "late", RolePlayer)
	assert.True(t, eris.Is(err, ErrRoomClosed))

	fresh := reg.GetOrCreate("R1")
	assert.NotSame(t, room, fresh)
	assert.Equal(t, DefaultSettings(), fresh.Settings)
	assert.Nil(t, fresh.Match)
}

func TestRegistryConcurrentCreate(t *testing.T) {
	reg := NewRegistry(context.Background())
	rooms := make([]*Room, 32)
	var wg sync.WaitGroup
	for i := range rooms {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = reg.GetOrCreate("same")
		}(i)
	}
	wg.Wait()
	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := NewRegistry(ctx)
	a := reg.GetOrCreate("A")
	b := reg.GetOrCreate("B")
	assert.Equal(t, []*Room{a, b}, reg.All())

	reg.Close()
	assert.Equal(t, 0, reg.Len())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Error(t, b.Context().Err())
}

func TestSecondHostSeatedAsPlayer(t *testing.T) {
	room := newRoom(context.Background(), "ABCD1234")
	_, err := room.Join("c1", "alice", RoleHost)
	require.NoError(t, err)

	p, err := room.Join("c2", "bob", RoleHost)
	require.NoError(t, err)
	assert.Equal(t, RolePlayer, p.Role)
	assert.False(t, p.Ready)

	players := room.Players()
	require.Len(t, players, 2)
	assert.Equal(t, RoleHost, players[0].Role)
	assert.Equal(t, RolePlayer, players[1].Role)
	assert.True(t, room.IsAuthority("c1"))
	assert.False(t, room.IsAuthority("c2"))
}

func TestJoinRejectsTakenPlayerName(t *testing.T) {
	room := newRoom(context.Background(), "ABCD1234")
	_, err := room.Join("c1", "alice", RoleHost)
	require.NoError(t, err)

	_, err = room.Join("c2", "alice", RolePlayer)
	assert.True(t, eris.Is(err, ErrNameTaken))
	assert.Len(t, room.Players(), 1)

	_, err = room.Join("s1", "alice", RoleSpectator)
	require.NoError(t, err)

	room.Leave("c1")
	_, err = room.Join("c3", "alice", RolePlayer)
	require.NoError(t, err)
}

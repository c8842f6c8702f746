package models

import (
	"context"
	"sort"
	"sync"
)

// Registry owns every live room. Lock order is room then registry:
// callers may hold a room lock when calling into the registry, never the reverse.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	ctx   context.Context
}

// NewRegistry creates an empty registry. Rooms inherit ctx and are cancelled with it.
func NewRegistry(ctx context.Context) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		ctx:   ctx,
	}
}

// GetOrCreate returns the room for code, creating it on first use.
func (rm *Registry) GetOrCreate(code string) *Room {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if room, ok := rm.rooms[code]; ok {
		return room
	}
	room := newRoom(rm.ctx, code)
	rm.rooms[code] = room
	return room
}

func (rm *Registry) Get(code string) (*Room, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	room, ok := rm.rooms[code]
	return room, ok
}

// Remove drops room from the registry and closes it. The caller must hold room.Mu.
func (rm *Registry) Remove(room *Room) {
	rm.mu.Lock()
	if cur, ok := rm.rooms[room.Code]; ok && cur == room {
		delete(rm.rooms, room.Code)
	}
	rm.mu.Unlock()
	room.close()
}

// All returns the live rooms sorted by code.
func (rm *Registry) All() []*Room {
	rm.mu.RLock()
	out := make([]*Room, 0, len(rm.rooms))
	for _, room := range rm.rooms {
		out = append(out, room)
	}
	rm.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (rm *Registry) Len() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}

// Close removes and closes every room.
func (rm *Registry) Close() {
	rm.mu.Lock()
	rooms := rm.rooms
	rm.rooms = make(map[string]*Room)
	rm.mu.Unlock()

	for _, room := range rooms {
		room.Mu.Lock()
		room.close()
		room.Mu.Unlock()
	}
}

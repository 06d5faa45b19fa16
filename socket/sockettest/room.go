package sockettest

import (
	"sort"
	"sync"
)

type roomManager struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Peer
}

func newRoomManager() *roomManager {
	return &roomManager{rooms: make(map[string]map[string]*Peer)}
}

func (rm *roomManager) join(name string, p *Peer) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, ok := rm.rooms[name]
	if !ok {
		room = make(map[string]*Peer)
		rm.rooms[name] = room
	}
	room[p.id] = p
}

func (rm *roomManager) leave(name, peerID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, ok := rm.rooms[name]
	if !ok {
		return
	}
	delete(room, peerID)
	if len(room) == 0 {
		delete(rm.rooms, name)
	}
}

func (rm *roomManager) leaveAll(peerID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for name, room := range rm.rooms {
		delete(room, peerID)
		if len(room) == 0 {
			delete(rm.rooms, name)
		}
	}
}

func (rm *roomManager) members(name string) []*Peer {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	peers := make([]*Peer, 0, len(rm.rooms[name]))
	for _, p := range rm.rooms[name] {
		peers = append(peers, p)
	}
	return peers
}

func (rm *roomManager) roomsOf(peerID string) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	var names []string
	for name, room := range rm.rooms {
		if _, ok := room[peerID]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

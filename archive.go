package main

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/v2"
)

// matchArchive is an optional append-only journal of finished games and chat
// traffic. Keys are 8-byte big-endian sequence numbers. The engine never
// reads it back; it exists for operators. A nil archive is a no-op.
type matchArchive struct {
	db   *pebble.DB
	mu   sync.Mutex
	next uint64
}

type archiveRecord struct {
	Kind       string          `json:"kind"`
	Lobby      string          `json:"lobby"`
	Time       int64           `json:"time"`
	Winner     string          `json:"winner,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	FinalRoles map[string]Role `json:"finalRoles,omitempty"`
	Chat       *ChatMessage    `json:"chat,omitempty"`
}

func openMatchArchive(dir string) (*matchArchive, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	a := &matchArchive{db: db}
	it, err := db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	if it.Last() && len(it.Key()) >= 8 {
		a.next = binary.BigEndian.Uint64(it.Key()[:8]) + 1
	}
	return a, nil
}

func (a *matchArchive) append(rec archiveRecord) {
	if a == nil || a.db == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, a.next)
	a.next++
	val, _ := json.Marshal(rec)
	_ = a.db.Set(key, val, pebble.Sync)
}

func (a *matchArchive) recordGameOver(lobby, winner, reason string, roles map[string]Role) {
	a.append(archiveRecord{
		Kind:       "game-over",
		Lobby:      lobby,
		Time:       time.Now().UnixMilli(),
		Winner:     winner,
		Reason:     reason,
		FinalRoles: roles,
	})
}

func (a *matchArchive) recordChat(lobby string, msg ChatMessage) {
	a.append(archiveRecord{
		Kind:  "chat",
		Lobby: lobby,
		Time:  time.Now().UnixMilli(),
		Chat:  &msg,
	})
}

func (a *matchArchive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

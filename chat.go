package main

import (
	"time"

	"github.com/rs/zerolog/log"
)

// chat logs keep the most recent entries only; the optional archive is the
// place for full retention
const chatLogCap = 500

func appendCapped(logs []ChatMessage, msg ChatMessage) []ChatMessage {
	if len(logs) >= chatLogCap {
		logs = logs[1:]
	}
	return append(logs, msg)
}

// handleChat relays to exactly one of the two channels. Senders whose
// claimed scope does not match their aliveness are dropped.
func (l *Lobby) handleChat(s session, message string, isSpectator bool) {
	if l.gameOver {
		return
	}
	p := l.playerBySession(s.id())
	if p == nil {
		log.Debug().Str("lobby", l.code).Msg("chat from unknown session")
		return
	}
	clean := sanitizeMessage(message)
	if clean == "" {
		return
	}
	msg := ChatMessage{
		PlayerName:  p.Name,
		Message:     clean,
		Timestamp:   time.Now().UnixMilli(),
		IsSpectator: isSpectator,
	}
	alive := l.alive[p.Name]
	switch {
	case isSpectator && !alive:
		l.spectatorChatLog = appendCapped(l.spectatorChatLog, msg)
		ev := ServerEvent{Type: EvSpectatorChat, Data: msg}
		for _, other := range l.players {
			if !l.alive[other.Name] && other.connected() {
				other.sess.deliver(ev)
			}
		}
		l.archive.recordChat(l.code, msg)
	case !isSpectator && alive:
		l.chatLog = appendCapped(l.chatLog, msg)
		ev := ServerEvent{Type: EvChatMessage, Data: msg}
		for _, other := range l.players {
			if l.alive[other.Name] && other.connected() {
				other.sess.deliver(ev)
			}
		}
		l.archive.recordChat(l.code, msg)
	default:
		log.Debug().Str("lobby", l.code).Str("player", p.Name).Bool("spectator", isSpectator).Msg("chat scope mismatch")
	}
}

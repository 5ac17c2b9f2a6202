package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatReachesLivingPlayersOnly(t *testing.T) {
	l, recs := votingLobby(t, GameConfig{MafiaCount: 1})
	delete(l.alive, "d")
	clearAll(recs)

	l.handleChat(recs["b"], "anyone suspicious?", false)

	for _, name := range []string{"a", "b", "c", "e"} {
		ev := recs[name].last(EvChatMessage)
		require.NotNil(t, ev, name)
		msg := ev.Data.(ChatMessage)
		assert.Equal(t, "b", msg.PlayerName)
		assert.Equal(t, "anyone suspicious?", msg.Message)
		assert.False(t, msg.IsSpectator)
	}
	assert.Nil(t, recs["d"].last(EvChatMessage))
	require.Len(t, l.chatLog, 1)
}

func TestSpectatorChatReachesDeadPlayersOnly(t *testing.T) {
	l, recs := votingLobby(t, GameConfig{MafiaCount: 1})
	delete(l.alive, "d")
	delete(l.alive, "e")
	clearAll(recs)

	l.handleChat(recs["d"], "called it", true)

	require.NotNil(t, recs["e"].last(EvSpectatorChat))
	require.NotNil(t, recs["d"].last(EvSpectatorChat))
	for _, name := range []string{"a", "b", "c"} {
		assert.Nil(t, recs[name].last(EvSpectatorChat), name)
	}
	require.Len(t, l.spectatorChatLog, 1)
	assert.Empty(t, l.chatLog)
}

func TestChatScopeMismatchDropped(t *testing.T) {
	l, recs := votingLobby(t, GameConfig{MafiaCount: 1})
	delete(l.alive, "d")
	clearAll(recs)

	// a living player cannot post into the spectator channel
	l.handleChat(recs["b"], "peeking", true)
	// a dead player cannot post into the living channel
	l.handleChat(recs["d"], "I'm back", false)

	assert.Empty(t, l.chatLog)
	assert.Empty(t, l.spectatorChatLog)
	assert.Nil(t, recs["d"].last(EvSpectatorChat))
	assert.Nil(t, recs["b"].last(EvChatMessage))
}

func TestChatSanitized(t *testing.T) {
	l, recs := votingLobby(t, GameConfig{MafiaCount: 1})
	clearAll(recs)

	l.handleChat(recs["b"], "<b>hi</b><script>alert(1)</script>", false)

	ev := recs["c"].last(EvChatMessage)
	require.NotNil(t, ev)
	assert.Equal(t, "hi", ev.Data.(ChatMessage).Message)
}

func TestEmptyChatDropped(t *testing.T) {
	l, recs := votingLobby(t, GameConfig{MafiaCount: 1})
	clearAll(recs)

	l.handleChat(recs["b"], "   ", false)
	l.handleChat(recs["b"], "<script>only markup</script>", false)

	assert.Empty(t, l.chatLog)
	assert.Nil(t, recs["c"].last(EvChatMessage))
}

func TestChatRejectedAfterGameOver(t *testing.T) {
	l, recs := votingLobby(t, GameConfig{MafiaCount: 1})
	l.gameOver = true
	clearAll(recs)

	l.handleChat(recs["b"], "good game", false)

	assert.Empty(t, l.chatLog)
	assert.Nil(t, recs["c"].last(EvChatMessage))
}

func TestChatFromUnknownSessionDropped(t *testing.T) {
	l, recs := votingLobby(t, GameConfig{MafiaCount: 1})
	clearAll(recs)

	l.handleChat(&recorder{sid: "s-stranger"}, "hello", false)

	assert.Empty(t, l.chatLog)
	assert.Nil(t, recs["b"].last(EvChatMessage))
}

func TestChatLogCapped(t *testing.T) {
	var logs []ChatMessage
	for i := 0; i < chatLogCap+10; i++ {
		logs = appendCapped(logs, ChatMessage{Message: fmt.Sprintf("m%d", i)})
	}
	require.Len(t, logs, chatLogCap)
	assert.Equal(t, "m10", logs[0].Message)
	assert.Equal(t, fmt.Sprintf("m%d", chatLogCap+9), logs[chatLogCap-1].Message)
}

func TestSpectatorHistoryDeliveredOnDeath(t *testing.T) {
	l, recs := votingLobby(t, GameConfig{MafiaCount: 1})
	delete(l.alive, "d")
	l.handleChat(recs["d"], "lonely in here", true)
	clearAll(recs)

	delete(l.alive, "e")
	l.sendSpectatorView(l.findPlayer("e"))

	roles := recs["e"].last(EvSpectatorRoles)
	require.NotNil(t, roles)
	assert.Equal(t, RoleMafia, roles.Data.(SpectatorRolesData).AllRoles["a"])
	history := recs["e"].last(EvSpectatorChatHistory)
	require.NotNil(t, history)
	msgs := history.Data.(SpectatorChatHistoryData).Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "lonely in here", msgs[0].Message)
}

package main

import (
	"time"

	"github.com/rs/zerolog/log"
)

type Role string

const (
	RoleMafia     Role = "Mafia"
	RoleQueen     Role = "Queen"
	RoleDetective Role = "Detective"
	RoleCitizen   Role = "Citizen"
)

type Phase string

const (
	PhaseForming  Phase = "forming"
	PhaseNight    Phase = "night"
	PhaseDay      Phase = "day"
	PhasePaused   Phase = "paused"
	PhaseGameOver Phase = "game-over"
)

type timerPurpose string

const (
	timerRoleReveal timerPurpose = "role-reveal"
	timerTieDelay   timerPurpose = "tie-delay"
	timerRoundGap   timerPurpose = "round-gap"
	timerPauseForce timerPurpose = "pause-force"
	timerRetention  timerPurpose = "retention"
)

const (
	roleRevealDelay  = 2 * time.Second
	tieAnnounceDelay = 3 * time.Second
	roundGapDelay    = 5 * time.Second
	pauseForceAfter  = 10 * time.Minute
	retentionWindow  = 30 * time.Minute
)

// session is the transport handle for one connection. The lobby never owns
// it; a Player just points at the current one, if any.
type session interface {
	id() string
	deliver(ev ServerEvent)
	active() bool
}

type Player struct {
	Name string
	Role Role
	sess session
}

func (p *Player) connected() bool {
	return p.sess != nil && p.sess.active()
}

type pauseSnapshot struct {
	during       Phase
	votes        map[string]string
	nightActions map[string]string
	mafiaVotes   map[string]string
	waitingFor   string
}

// Lobby owns one game instance. All state below commands is mutated only
// from the command loop goroutine.
type Lobby struct {
	code     string
	registry *Registry
	archive  *matchArchive

	commands chan func(*Lobby)
	closing  chan struct{}
	timers   map[timerPurpose]*time.Timer

	players []*Player
	config  GameConfig

	phase         Phase
	rolesAssigned bool
	gameOver      bool

	alive        map[string]bool
	votes        map[string]string
	revotePool   []string
	nightActions map[string]string
	mafiaVotes   map[string]string
	snapshot     *pauseSnapshot

	chatLog          []ChatMessage
	spectatorChatLog []ChatMessage
}

func newLobby(code string, names []string, cfg GameConfig, reg *Registry, arc *matchArchive) *Lobby {
	l := &Lobby{
		code:         code,
		registry:     reg,
		archive:      arc,
		commands:     make(chan func(*Lobby), 256),
		closing:      make(chan struct{}),
		timers:       make(map[timerPurpose]*time.Timer),
		config:       cfg,
		phase:        PhaseForming,
		alive:        make(map[string]bool),
		votes:        make(map[string]string),
		nightActions: make(map[string]string),
		mafiaVotes:   make(map[string]string),
	}
	for _, name := range names {
		l.players = append(l.players, &Player{Name: name})
	}
	return l
}

func (l *Lobby) start() {
	go l.loop()
}

func (l *Lobby) loop() {
	for {
		select {
		case fn := <-l.commands:
			fn(l)
		case <-l.closing:
			for _, t := range l.timers {
				t.Stop()
			}
			return
		}
	}
}

func (l *Lobby) enqueue(fn func(*Lobby)) {
	select {
	case l.commands <- fn:
	default:
		// backpressure: drop oldest pending command
		select {
		case <-l.commands:
		default:
		}
		l.commands <- fn
	}
}

func (l *Lobby) close() {
	close(l.closing)
}

// armTimer schedules fn through the command loop, superseding any pending
// timer of the same purpose. A fired timer removes its own map entry, so the
// map holds pending timers only.
func (l *Lobby) armTimer(p timerPurpose, d time.Duration, fn func(*Lobby)) {
	if t, ok := l.timers[p]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.enqueue(func(l *Lobby) {
			if l.timers[p] == t {
				delete(l.timers, p)
			}
			fn(l)
		})
	})
	l.timers[p] = t
}

func (l *Lobby) cancelTimer(p timerPurpose) {
	if t, ok := l.timers[p]; ok {
		t.Stop()
		delete(l.timers, p)
	}
}

func (l *Lobby) findPlayer(name string) *Player {
	for _, p := range l.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (l *Lobby) playerBySession(sid string) *Player {
	for _, p := range l.players {
		if p.sess != nil && p.sess.id() == sid {
			return p
		}
	}
	return nil
}

func (l *Lobby) playerNames() []string {
	names := make([]string, 0, len(l.players))
	for _, p := range l.players {
		names = append(names, p.Name)
	}
	return names
}

func (l *Lobby) aliveNames() []string {
	names := make([]string, 0, len(l.alive))
	for _, p := range l.players {
		if l.alive[p.Name] {
			names = append(names, p.Name)
		}
	}
	return names
}

func (l *Lobby) allConnected() bool {
	for _, p := range l.players {
		if !p.connected() {
			return false
		}
	}
	return true
}

func (l *Lobby) allRoles() map[string]Role {
	roles := make(map[string]Role, len(l.players))
	for _, p := range l.players {
		roles[p.Name] = p.Role
	}
	return roles
}

func (l *Lobby) roundTimer() *int {
	if l.config.RoundTimer > 0 {
		t := l.config.RoundTimer
		return &t
	}
	return nil
}

func (l *Lobby) broadcast(ev ServerEvent) {
	for _, p := range l.players {
		if p.connected() {
			p.sess.deliver(ev)
		}
	}
}

func (l *Lobby) handleJoin(s session, name string) {
	if l.gameOver {
		s.deliver(ServerEvent{Type: EvJoinError, Data: JoinErrorData{Message: "Lobby not found or game is over."}})
		return
	}
	p := l.findPlayer(name)
	if p == nil {
		s.deliver(ServerEvent{Type: EvJoinError, Data: JoinErrorData{Message: "Player name not found in this lobby."}})
		return
	}
	if p.connected() && p.sess.id() != s.id() {
		s.deliver(ServerEvent{Type: EvJoinError, Data: JoinErrorData{Message: "A player with this name is already connected to the lobby."}})
		return
	}
	p.sess = s
	l.registry.bind(s.id(), l)
	s.deliver(ServerEvent{Type: EvJoinedLobby, Data: JoinedLobbyData{Name: name, GameConfig: l.config, LobbyCode: l.code}})
	log.Info().Str("lobby", l.code).Str("player", name).Msg("player joined")

	if !l.rolesAssigned {
		if l.allConnected() {
			l.assignRoles()
		}
		return
	}

	// Reconnection into a running game: resend the private view.
	s.deliver(ServerEvent{Type: EvRoleAssigned, Data: l.roleView(p)})
	if !l.alive[name] {
		l.sendSpectatorView(p)
	}
	if l.phase == PhasePaused {
		l.checkResume()
		return
	}
	l.sendPhaseView(s)
}

// sendPhaseView catches a single reconnected session up with the phase in
// progress, without touching anything broadcast-wide.
func (l *Lobby) sendPhaseView(s session) {
	switch l.phase {
	case PhaseDay:
		if l.revotePool != nil {
			s.deliver(ServerEvent{Type: EvRevotePhase, Data: RevotePhaseData{
				TiedPlayers:  l.revotePool,
				AlivePlayers: l.aliveNames(),
				Timer:        l.roundTimer(),
			}})
		} else {
			s.deliver(ServerEvent{Type: EvDayPhase, Data: DayPhaseData{
				AlivePlayers: l.aliveNames(),
				Timer:        l.roundTimer(),
			}})
		}
		s.deliver(ServerEvent{Type: EvVoteUpdate, Data: l.voteUpdate()})
	case PhaseNight:
		s.deliver(ServerEvent{Type: EvNightPhase, Data: NightPhaseData{
			Phase:        l.nightStep(),
			AlivePlayers: l.aliveNames(),
			Timer:        l.roundTimer(),
		}})
	}
}

func (l *Lobby) sendSpectatorView(p *Player) {
	if !p.connected() {
		return
	}
	p.sess.deliver(ServerEvent{Type: EvSpectatorRoles, Data: SpectatorRolesData{AllRoles: l.allRoles()}})
	history := l.spectatorChatLog
	if history == nil {
		history = []ChatMessage{}
	}
	p.sess.deliver(ServerEvent{Type: EvSpectatorChatHistory, Data: SpectatorChatHistoryData{Messages: history}})
}

func (l *Lobby) handleDisconnect(sid string) {
	p := l.playerBySession(sid)
	if p == nil {
		return
	}
	p.sess = nil
	log.Info().Str("lobby", l.code).Str("player", p.Name).Msg("player disconnected")
	if l.alive[p.Name] && (l.phase == PhaseNight || l.phase == PhaseDay) {
		l.pauseGame(p.Name)
	}
}

func (l *Lobby) handleReplay(s session) {
	if !l.gameOver {
		log.Debug().Str("lobby", l.code).Msg("replay requested before game over")
		return
	}
	if l.playerBySession(s.id()) == nil {
		log.Debug().Str("lobby", l.code).Msg("replay requested by non-participant")
		return
	}
	l.cancelTimer(timerRetention)
	l.resetForReplay()
	l.broadcast(ServerEvent{Type: EvReplayStarted})
	log.Info().Str("lobby", l.code).Msg("replay started")
	if l.allConnected() {
		l.armTimer(timerRoleReveal, roleRevealDelay, func(l *Lobby) {
			if !l.rolesAssigned && l.allConnected() {
				l.assignRoles()
			}
		})
	}
}

func (l *Lobby) resetForReplay() {
	for _, p := range []timerPurpose{timerRoleReveal, timerTieDelay, timerRoundGap, timerPauseForce} {
		l.cancelTimer(p)
	}
	l.phase = PhaseForming
	l.rolesAssigned = false
	l.gameOver = false
	l.alive = make(map[string]bool)
	l.votes = make(map[string]string)
	l.revotePool = nil
	l.nightActions = make(map[string]string)
	l.mafiaVotes = make(map[string]string)
	l.snapshot = nil
	l.chatLog = nil
	l.spectatorChatLog = nil
	for _, p := range l.players {
		p.Role = ""
	}
}

package main

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// startDay enters the voting phase. The outcome of the preceding night is
// delivered per recipient so the investigation result reaches detectives
// only; everyone else sees null for that field.
func (l *Lobby) startDay(outcome *nightOutcome) {
	if l.gameOver {
		return
	}
	l.phase = PhaseDay
	l.votes = make(map[string]string)
	l.revotePool = nil

	base := DayPhaseData{
		AlivePlayers: l.aliveNames(),
		Timer:        l.roundTimer(),
	}
	if outcome != nil {
		base.ShowNightResults = true
		base.Eliminated = nullable(outcome.eliminated)
		base.Protected = nullable(outcome.protected)
	}
	for _, p := range l.players {
		if !p.connected() {
			continue
		}
		data := base
		if outcome != nil && p.Role == RoleDetective {
			data.InvestigationResults = outcome.investigation
		}
		p.sess.deliver(ServerEvent{Type: EvDayPhase, Data: data})
	}
	log.Debug().Str("lobby", l.code).Int("alive", len(l.alive)).Msg("day started")
}

func (l *Lobby) handleVote(s session, target string) {
	if l.phase != PhaseDay {
		log.Debug().Str("lobby", l.code).Msg("vote outside day phase")
		return
	}
	p := l.playerBySession(s.id())
	if p == nil || !l.alive[p.Name] {
		log.Debug().Str("lobby", l.code).Msg("vote from dead or unknown player")
		return
	}
	if _, voted := l.votes[p.Name]; voted {
		log.Debug().Str("lobby", l.code).Str("player", p.Name).Msg("duplicate vote, retract first")
		return
	}
	if l.revotePool != nil && !slices.Contains(l.revotePool, target) {
		log.Debug().Str("lobby", l.code).Str("player", p.Name).Str("target", target).Msg("vote outside revote candidates")
		return
	}
	l.votes[p.Name] = target
	l.broadcast(ServerEvent{Type: EvVoteUpdate, Data: l.voteUpdate()})
	l.checkVotingComplete()
}

func (l *Lobby) handleRetractVote(s session) {
	if l.phase != PhaseDay {
		log.Debug().Str("lobby", l.code).Msg("retract outside day phase")
		return
	}
	p := l.playerBySession(s.id())
	if p == nil || !l.alive[p.Name] {
		return
	}
	if _, voted := l.votes[p.Name]; !voted {
		log.Debug().Str("lobby", l.code).Str("player", p.Name).Msg("retract without a vote")
		return
	}
	delete(l.votes, p.Name)
	l.broadcast(ServerEvent{Type: EvVoteUpdate, Data: l.voteUpdate()})
}

func (l *Lobby) voteUpdate() VoteUpdateData {
	counts := make(map[string]int)
	details := make(map[string][]string)
	hasVoted := make([]string, 0, len(l.votes))
	for voter, target := range l.votes {
		hasVoted = append(hasVoted, voter)
		counts[target]++
		details[target] = append(details[target], voter)
	}
	sort.Strings(hasVoted)
	for _, voters := range details {
		sort.Strings(voters)
	}
	return VoteUpdateData{
		VoteCounts:        counts,
		VoteDetails:       details,
		TotalVotes:        len(l.votes),
		TotalAlivePlayers: len(l.alive),
		HasVoted:          hasVoted,
	}
}

func tallyVotes(votes map[string]string) (counts map[string]int, max int, leaders []string) {
	counts = make(map[string]int)
	for _, target := range votes {
		counts[target]++
	}
	for target, n := range counts {
		if n > max {
			max = n
			leaders = []string{target}
		} else if n == max {
			leaders = append(leaders, target)
		}
	}
	sort.Strings(leaders)
	return counts, max, leaders
}

func (l *Lobby) checkVotingComplete() {
	if len(l.votes) < len(l.alive) {
		return
	}
	counts, max, leaders := tallyVotes(l.votes)

	if len(leaders) > 1 && max > 0 {
		l.votes = make(map[string]string)
		l.broadcast(ServerEvent{Type: EvVoteTie, Data: VoteTieData{
			TiedPlayers: leaders,
			Votes:       counts,
			Message:     fmt.Sprintf("Tie between %s! Revoting required.", strings.Join(leaders, ", ")),
		}})
		log.Info().Str("lobby", l.code).Strs("tied", leaders).Msg("vote tied, revote scheduled")
		l.armTimer(timerTieDelay, tieAnnounceDelay, func(l *Lobby) {
			if l.gameOver {
				return
			}
			l.beginRevote(leaders)
		})
		return
	}

	var eliminated *string
	var eliminatedRole *Role
	if len(leaders) == 1 && max > 0 {
		name := leaders[0]
		if l.config.ShowVotedRoles {
			if p := l.findPlayer(name); p != nil {
				role := p.Role
				eliminatedRole = &role
			}
		}
		delete(l.alive, name)
		eliminated = &name
		log.Info().Str("lobby", l.code).Str("player", name).Msg("eliminated by vote")
		if victim := l.findPlayer(name); victim != nil {
			l.sendSpectatorView(victim)
		}
	}

	l.votes = make(map[string]string)
	l.revotePool = nil
	l.broadcast(ServerEvent{Type: EvVoteResults, Data: VoteResultsData{
		Eliminated:     eliminated,
		EliminatedRole: eliminatedRole,
		Votes:          counts,
		AlivePlayers:   l.aliveNames(),
	}})

	if l.evaluateWin() {
		return
	}
	l.armTimer(timerRoundGap, roundGapDelay, func(l *Lobby) {
		if l.gameOver {
			return
		}
		if l.phase == PhasePaused {
			// the gap elapsed during the pause; resume straight into night
			l.snapshot.during = PhaseNight
			l.snapshot.votes = make(map[string]string)
			l.snapshot.nightActions = make(map[string]string)
			l.snapshot.mafiaVotes = make(map[string]string)
			return
		}
		l.startNight()
	})
}

// beginRevote restricts the ballot to the tied candidates. While paused it
// only records the restriction; resume announces it.
func (l *Lobby) beginRevote(leaders []string) {
	l.revotePool = leaders
	if l.phase == PhasePaused {
		return
	}
	l.broadcastRevote()
}

func (l *Lobby) broadcastRevote() {
	l.broadcast(ServerEvent{Type: EvRevotePhase, Data: RevotePhaseData{
		TiedPlayers:  l.revotePool,
		AlivePlayers: l.aliveNames(),
		Timer:        l.roundTimer(),
	}})
	l.broadcast(ServerEvent{Type: EvVoteUpdate, Data: l.voteUpdate()})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package web

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/onwgo/server/internal/app"
	"github.com/onwgo/server/internal/game"
	"github.com/onwgo/server/internal/lobby"
	"github.com/onwgo/server/internal/registry"
)

// GameApp is the browser game application. Each phase becomes a phase-info
// event, an output block, and an action list with the legal moves.
type GameApp struct {
	core *app.Core
	sink EventSink

	// cards caches one shuffled deal snapshot for the deck-count table so the
	// display stays stable across updates.
	cards   []game.Card
	actions []Action
	handlers map[int]func()
	ready   bool
	tmFirst string
}

func newGameApp(core *app.Core, sink EventSink) *GameApp {
	g := &GameApp{core: core, sink: sink}
	g.rebuildPhase()
	return g
}

func (g *GameApp) Kind() registry.Kind { return registry.KindWeb }
func (g *GameApp) UserID() string      { return g.core.User }
func (g *GameApp) Resource() string    { return GameResource }

func (g *GameApp) emit(ev map[string]any) {
	if g.sink != nil {
		g.sink.SendEvent(ev)
	}
}

func (g *GameApp) ProduceCompatible(kind registry.Kind, avatar registry.Avatar) registry.Application {
	if kind == registry.KindWeb {
		g.sink = sinkOf(avatar)
		g.refreshAll()
		return g
	}
	return g.core.Deps.NewTerminalApp(g.core.User, avatar, g.core.Lobby.Serialize())
}

func (g *GameApp) ReceiveSignal(sig registry.Signal) {
	switch sig.Name {
	case registry.SigNextPhase:
		g.ready = false
		g.tmFirst = ""
		g.rebuildPhase()
		g.emitPhase()
	case registry.SigChatMessage:
		g.emitLastChat()
	case registry.SigNewSettings:
		if settings, ok := sig.Payload.(registry.Settings); ok {
			g.emit(settingsInfoEvent(settings))
		}
	case registry.SigReset:
		g.cards = nil
		g.ready = false
		g.tmFirst = ""
		g.refreshAll()
	case registry.SigShutdown:
		initiator := g.core.User
		if p, ok := sig.Payload.(app.ShutdownPayload); ok {
			initiator = p.Initiator
		}
		g.handleShutdown(initiator)
	default:
		g.core.Deps.Log.Debug("unknown signal", zap.String("signal", sig.Name))
	}
}

func (g *GameApp) emitLastChat() {
	s := g.core.Session()
	if s == nil {
		return
	}
	lines := s.Chat.Lines()
	if len(lines) == 0 {
		return
	}
	last := lines[len(lines)-1]
	g.emit(chatEvent(last.Sender, last.Text))
}

// handleShutdown tears this user's game binding down and hands the client
// back to the lobby resource. Only the other members are told who left.
func (g *GameApp) handleShutdown(initiator string) {
	g.core.LeaveCurrentSession()
	if initiator != g.core.User {
		g.emit(shutDownEvent(fmt.Sprintf("%s has left the game.", initiator)))
	}
	l := newLobby(g.core.Deps, g.core.User, g.sink)
	g.core.Deps.Users.Register(g.core.User).App = l
	l.core.Lobby.Fire(lobby.Initialize)
}

// HandleAction dispatches one posted action id, then pushes the phase state
// the action left behind.
func (g *GameApp) HandleAction(id int) {
	fn, ok := g.handlers[id]
	if !ok {
		g.core.Deps.Log.Debug("unmapped action", zap.Int("id", id))
		return
	}
	fn()
	g.rebuildPhase()
	g.emitPhase()
}

// HandleChat appends one chat line to the session ring.
func (g *GameApp) HandleChat(text string) {
	g.core.SendChat(text)
}

// Logoff shuts the whole session down; the game cannot continue without
// this player. The departure is applied synchronously: the other members are
// signalled and this user's membership is dropped at once, so the transport
// can delete the registry entry right after without a queued self-delivery
// resurrecting it.
func (g *GameApp) Logoff() {
	s := g.core.Session()
	if s == nil {
		return
	}
	g.core.Deps.Bus.SendToMembers(s.ID,
		registry.Signal{Name: registry.SigShutdown, Payload: app.ShutdownPayload{Initiator: g.core.User}},
		registry.SendOpts{IncludeInvited: true, Exclude: []string{g.core.User}})
	g.core.LeaveCurrentSession()
}

// ApplySettings resets the game with new settings, owner only.
func (g *GameApp) ApplySettings(settings registry.Settings) {
	if err := g.core.ResetGame(settings); err != nil {
		g.emit(outputEvent("Only the session administrator can modify game settings."))
	}
}

// RequestUpdate re-emits one client element on demand.
func (g *GameApp) RequestUpdate(key string) {
	m := g.core.Game()
	if m == nil {
		return
	}
	switch key {
	case "actions":
		g.emit(actionsEvent(g.actions))
	case "phase-info":
		title, desc := g.phaseText(m)
		g.emit(phaseInfoEvent(title, desc))
	case "player-info":
		g.emitPlayerInfo(m)
	case "game-info":
		g.emitGameInfo(m)
	case "output":
		g.emitPhase()
	case "request-all":
		g.refreshAll()
	}
}

// refreshAll pushes every client element, used on install and reconnect.
func (g *GameApp) refreshAll() {
	m := g.core.Game()
	if m == nil {
		return
	}
	g.emitPlayerInfo(m)
	g.emitGameInfo(m)
	if s := g.core.Session(); s != nil {
		g.emit(settingsInfoEvent(s.Settings))
	}
	g.rebuildPhase()
	g.emitPhase()
}

func (g *GameApp) emitPlayerInfo(m *game.Machine) {
	cardName := ""
	if card, ok := m.PlayerCard(g.core.User); ok {
		cardName = card.String()
	}
	g.emit(playerInfoEvent(g.core.User, cardName))
}

func (g *GameApp) emitGameInfo(m *game.Machine) {
	if g.cards == nil {
		g.cards = m.QueryCards()
	}
	counts := make(map[string]int)
	for _, c := range g.cards {
		counts[c.String()]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][2]any, 0, len(names))
	for _, name := range names {
		rows = append(rows, [2]any{name, counts[name]})
	}
	g.emit(gameInfoEvent(rows))
}

func (g *GameApp) signalAdvance() {
	g.ready = true
	if err := g.core.AdvanceGame(); err != nil {
		g.core.Deps.Log.Debug("advance rejected", zap.Error(err))
	}
}

// active reports whether the user was dealt the role of the current phase.
func (g *GameApp) active(m *game.Machine) bool {
	role, ok := game.PhaseRole(phaseOf(m.State()))
	if !ok {
		return true
	}
	card, _ := m.OriginalCard(g.core.User)
	return card == role
}

// phaseOf collapses the power sub-states onto their night phase.
func phaseOf(s game.State) game.State {
	switch s {
	case game.StateSeerPowerActivated:
		return game.StateSeerPhase
	case game.StateRobberPowerActivated:
		return game.StateRobberPhase
	case game.StateTroublemakerPowerActivated:
		return game.StateTroublemakerPhase
	}
	return s
}

func (g *GameApp) otherPlayers(m *game.Machine) []string {
	var out []string
	for _, p := range m.Players() {
		if p != g.core.User {
			out = append(out, p)
		}
	}
	return out
}

func (g *GameApp) phaseText(m *game.Machine) (string, string) {
	switch phaseOf(m.State()) {
	case game.StateCardsDealt:
		return "Twilight",
			"The village has been invaded by ghastly werewolves!  These bloodthirsty shape changers want to take over the village.  But the villagers know they are weakest at daybreak, and that is when they will strike at their enemy.  In this game, you will take on the role of a villager or a werewolf.  At daybreak, the entire village votes on who lives and who dies.  If a werewolf is slain, the villagers win.  If no werewolves are slain, the werewolf team wins.  If no players are werewolves, the villagers only win if no one dies."
	case game.StateWerewolfPhase:
		return "Werewolf Phase",
			"During this phase, all werewolves open their eyes and look at each other."
	case game.StateMinionPhase:
		return "Minion Phase",
			"During this phase, the minion opens his eyes and sees the werewolves, but they cannot see the minion."
	case game.StateSeerPhase:
		return "Seer Phase",
			"The seer can use her mystic powers to view 1 player's card, or 2 table cards."
	case game.StateRobberPhase:
		return "Robber Phase",
			"The robber may exchange his card with another player's card.  He looks at the card he has robbed, and is now on that team.  The player receiving the robber card is on the village team."
	case game.StateTroublemakerPhase:
		return "Troublemaker Phase",
			"The troublemaker may exchange the cards of 2 other players without looking at them."
	case game.StateInsomniacPhase:
		return "Insomniac Phase",
			"The insomniac wakes up in the middle of the night and checks to see if her card has been changed."
	case game.StateDaybreak:
		desc := "It is now daybreak.  Everyone should discuss what happened the night before.  Each player will then have one vote to decide who should be eliminated.  If at least 1 player has more than 1 vote, the player with the most votes is eliminated!"
		if card, _ := m.PlayerCard(g.core.User); card == game.Hunter {
			desc += "\n\nIf the hunter is eliminated, the player he voted for is also eliminated."
		} else if card, _ := m.PlayerCard(g.core.User); card == game.Tanner {
			desc += "\n\nThe tanner only wins if he is eliminated."
		}
		return "Daybreak", desc
	case game.StateEndgame:
		return "Post Game Results", "The game is now over.  Time to see who won!"
	}
	return "", ""
}

// emitPhase pushes the phase-info, output block, and action list for the
// current phase.
func (g *GameApp) emitPhase() {
	m := g.core.Game()
	if m == nil {
		return
	}
	title, desc := g.phaseText(m)
	g.emit(phaseInfoEvent(title, desc))
	if phaseOf(m.State()) == game.StateEndgame {
		g.emitEndgame(m)
	} else {
		g.emit(outputEvent(g.outputText(m)))
	}
	g.emit(actionsEvent(g.actions))
}

const sleepingText = "Zzzzz ...  You are sleeping."

// outputText builds the informational block shown alongside the actions.
func (g *GameApp) outputText(m *game.Machine) string {
	switch phaseOf(m.State()) {
	case game.StateWerewolfPhase:
		if !g.active(m) {
			return sleepingText
		}
		out := "You look around and see other werewolves ..."
		for _, w := range m.IdentifyWerewolves() {
			out += "\n" + w
		}
		return out
	case game.StateMinionPhase:
		if !g.active(m) {
			return sleepingText
		}
		out := "You look around for werewolves ..."
		for _, w := range m.IdentifyWerewolves() {
			out += "\n" + w
		}
		return out
	case game.StateSeerPhase:
		if !g.active(m) {
			return sleepingText
		}
		if m.State() == game.StateSeerPhase {
			return "Choose an option ..."
		}
		reveal, err := m.QuerySeerReveal()
		if err != nil {
			return ""
		}
		if reveal.FromTable {
			return fmt.Sprintf("Your mystic powers reveal the following table cards ...\n%s\n%s",
				reveal.TableCards[0], reveal.TableCards[1])
		}
		return fmt.Sprintf("Your mystic powers fortell that %s has the %s card.",
			reveal.Player, reveal.PlayerCard)
	case game.StateRobberPhase:
		if !g.active(m) {
			return sleepingText
		}
		if m.State() == game.StateRobberPhase {
			return "Choose an option ..."
		}
		if card, victim, err := m.QueryRobbedCard(); err == nil {
			return fmt.Sprintf("You stole the %s card from %s.", card, victim)
		}
		return "You chose not to steal."
	case game.StateTroublemakerPhase:
		if !g.active(m) {
			return sleepingText
		}
		if m.State() == game.StateTroublemakerPhase {
			return "Choose an option ..."
		}
		return "Your trouble is done."
	case game.StateInsomniacPhase:
		if !g.active(m) {
			return sleepingText
		}
		_, card, err := m.QueryInsomniacCard()
		if err != nil {
			return ""
		}
		if card == game.Insomniac {
			return "Your card has NOT changed."
		}
		return fmt.Sprintf("Your card has been switched with the %s card!", card)
	case game.StateDaybreak:
		if m.HasVoted(g.core.User) {
			return "Waiting for other players ..."
		}
		return "Vote to eliminate player ..."
	}
	return ""
}

func (g *GameApp) emitEndgame(m *game.Machine) {
	res, err := m.PostGameResults()
	if err != nil {
		return
	}
	players := make([]string, 0, len(res.PlayerOriginal))
	for p := range res.PlayerOriginal {
		players = append(players, p)
	}
	sort.Strings(players)
	g.emit(postGameResultsEvent(res, winnerText(res.Winner), players))
}

func winnerText(w game.Winner) string {
	switch w {
	case game.Village:
		return "A Village Victory!"
	case game.WerewolfTeam:
		return "A Werewolf Victory!"
	case game.TannerAlone:
		return "A Tanner Victory!"
	case game.TannerAndVillage:
		return "A Tanner and Village Victory!"
	}
	return "No One Wins!"
}

const advancePost = "Waiting for other players ..."

// rebuildPhase rebinds the action ids for the current phase.
func (g *GameApp) rebuildPhase() {
	m := g.core.Game()
	g.actions = nil
	g.handlers = map[int]func(){}
	if m == nil {
		return
	}
	// A player who has signaled readiness gets no further moves this phase.
	if g.ready && phaseOf(m.State()) != game.StateEndgame {
		return
	}
	advance := func() {
		g.actions = append(g.actions, Action{"Advance Phase", 0, advancePost})
		g.handlers[0] = g.signalAdvance
	}
	switch phaseOf(m.State()) {
	case game.StateCardsDealt, game.StateWerewolfPhase, game.StateMinionPhase,
		game.StateInsomniacPhase:
		advance()
	case game.StateSeerPhase:
		if !g.active(m) || m.State() != game.StateSeerPhase {
			advance()
			return
		}
		g.actions = append(g.actions, Action{"Examine 2 table cards.", 0, ""})
		g.handlers[0] = func() { g.seerExamineTable(m) }
		for n, player := range g.otherPlayers(m) {
			p := player
			g.actions = append(g.actions, Action{fmt.Sprintf("Examine %s's card.", p), n + 1, ""})
			g.handlers[n+1] = func() { g.seerExaminePlayer(m, p) }
		}
	case game.StateRobberPhase:
		if !g.active(m) || m.State() != game.StateRobberPhase {
			advance()
			return
		}
		g.actions = append(g.actions, Action{"Don't rob anyone.", 0, ""})
		g.handlers[0] = func() {
			if err := m.SkipRobberPower(); err != nil {
				g.core.Deps.Log.Debug("robber skip rejected", zap.Error(err))
			}
		}
		for n, player := range g.otherPlayers(m) {
			p := player
			g.actions = append(g.actions, Action{fmt.Sprintf("Rob %s's card.", p), n + 1, ""})
			g.handlers[n+1] = func() {
				if _, err := m.UseRobberPower(g.core.User, p); err != nil {
					g.core.Deps.Log.Debug("rob rejected", zap.Error(err))
				}
			}
		}
	case game.StateTroublemakerPhase:
		if !g.active(m) || m.State() != game.StateTroublemakerPhase {
			advance()
			return
		}
		g.actions = append(g.actions, Action{"Don't cause trouble.", 0, ""})
		g.handlers[0] = func() {
			g.tmFirst = ""
			if err := m.SkipTroublemakerPower(); err != nil {
				g.core.Deps.Log.Debug("troublemaker skip rejected", zap.Error(err))
			}
		}
		for n, player := range g.otherPlayers(m) {
			p := player
			switch {
			case g.tmFirst == "":
				g.actions = append(g.actions, Action{fmt.Sprintf("Exchange %s's card ...", p), n + 1, ""})
				g.handlers[n+1] = func() { g.tmFirst = p }
			case p == g.tmFirst:
				// Skip the already-selected player.
			default:
				first := g.tmFirst
				g.actions = append(g.actions, Action{
					fmt.Sprintf("Exchange %s's card with %s's card.", first, p), n + 1, ""})
				g.handlers[n+1] = func() {
					g.tmFirst = ""
					if err := m.UseTroublemakerPower(g.core.User, first, p); err != nil {
						g.core.Deps.Log.Debug("troublemaker swap rejected", zap.Error(err))
					}
				}
			}
		}
	case game.StateDaybreak:
		if m.HasVoted(g.core.User) {
			return
		}
		for n, player := range m.Players() {
			p := player
			label := p
			if p == g.core.User {
				label = "yourself"
			}
			g.actions = append(g.actions, Action{
				fmt.Sprintf("Vote to eliminate %s.", label), n, "Vote cast."})
			g.handlers[n] = func() { g.vote(p) }
		}
	case game.StateEndgame:
		// Results only; no further moves.
	}
}

func (g *GameApp) seerExamineTable(m *game.Machine) {
	a := g.core.Deps.Rand.Intn(3)
	b := (a + 1 + g.core.Deps.Rand.Intn(2)) % 3
	if _, err := m.UseSeerPowerOnTable(a, b); err != nil {
		g.core.Deps.Log.Debug("seer table view rejected", zap.Error(err))
	}
}

func (g *GameApp) seerExaminePlayer(m *game.Machine, player string) {
	if _, err := m.UseSeerPowerOnPlayer(g.core.User, player); err != nil {
		g.core.Deps.Log.Debug("seer view rejected", zap.Error(err))
	}
}

func (g *GameApp) vote(target string) {
	g.ready = true
	if err := g.core.VoteGame(target); err != nil {
		g.core.Deps.Log.Debug("vote rejected", zap.Error(err))
	}
}

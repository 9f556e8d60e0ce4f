package terminal

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/onwgo/server/internal/app"
	"github.com/onwgo/server/internal/game"
	"github.com/onwgo/server/internal/lobby"
	"github.com/onwgo/server/internal/registry"
	"github.com/onwgo/server/internal/term"
)

// GameApp renders the running game: the player panel, the deck table, and the
// phase panel with its per-phase key bindings.
type GameApp struct {
	screen

	// cards caches one shuffled deal snapshot for the deck-count table so the
	// display stays stable across redraws.
	cards   []game.Card
	ready   bool
	newChat bool
	tmFirst string

	equator int
	midway  int
}

// newGame continues from a lobby screen; core, surface, and size carry over.
func newGame(from *screen) *GameApp {
	g := &GameApp{screen: *from}
	g.dialog = nil
	g.render = g.draw
	g.global = g.globalKey
	return g
}

func (g *GameApp) Kind() registry.Kind { return registry.KindTerminal }
func (g *GameApp) UserID() string      { return g.core.User }

func (g *GameApp) ProduceCompatible(kind registry.Kind, avatar registry.Avatar) registry.Application {
	if kind == registry.KindTerminal {
		g.rebind(surfaceOf(avatar))
		return g
	}
	return g.core.Deps.NewWebApp(g.core.User, avatar, g.core.Lobby.Serialize())
}

func (g *GameApp) ReceiveSignal(sig registry.Signal) {
	switch sig.Name {
	case registry.SigNextPhase:
		g.ready = false
		g.tmFirst = ""
		g.requestRedraw()
	case registry.SigChatMessage:
		if g.dialog == nil {
			g.newChat = true
		}
		g.requestRedraw()
	case registry.SigNewSettings:
		g.requestRedraw()
	case registry.SigReset:
		g.cards = nil
		g.ready = false
		g.tmFirst = ""
		g.requestRedraw()
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

// handleShutdown tears this user's game binding down. The initiator drops to
// the lobby at once; everyone else first sees who left.
func (g *GameApp) handleShutdown(initiator string) {
	g.core.LeaveCurrentSession()
	if initiator == g.core.User {
		g.backToLobby()
		return
	}
	msg := fmt.Sprintf("%s has left the game.", initiator)
	g.installDialog(newSystemMessageDialog(&g.screen, msg, g.backToLobby))
}

// backToLobby replaces this application with a fresh lobby one.
func (g *GameApp) backToLobby() {
	l := newLobby(g.core.Deps, g.core.User, g.surf)
	l.width, l.height = g.width, g.height
	g.core.Deps.Users.Register(g.core.User).App = l
	l.core.Lobby.Fire(lobby.Initialize)
}

func (g *GameApp) globalKey(k term.Key) bool {
	switch k {
	case 'h':
		g.installDialog(newHelpDialog(&g.screen))
		return true
	case term.KeyTab:
		g.newChat = false
		g.installDialog(newChatDialog(&g.screen))
		return true
	case term.KeyCtrlA:
		g.showSessionAdmin()
		return true
	case term.KeyCtrlX:
		g.core.ShutdownSession()
		return true
	}
	return false
}

func (g *GameApp) showSessionAdmin() {
	s := g.core.Session()
	if s != nil && s.Owner == g.core.User {
		g.installDialog(newSessionAdminDialog(&g.screen))
		return
	}
	g.installDialog(newBriefMessageDialog(&g.screen,
		"Only the session administrator can modify game settings."))
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

// phaseOf collapses the power sub-states onto their night phase for display.
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

// otherPlayers lists the members excluding the user, sorted.
func (g *GameApp) otherPlayers(m *game.Machine) []string {
	var out []string
	for _, p := range m.Players() {
		if p != g.core.User {
			out = append(out, p)
		}
	}
	return out
}

// ---- rendering ----

func (g *GameApp) draw() {
	m := g.core.Game()
	if m == nil {
		return
	}
	g.drawGameBorder()
	g.drawPlayerArea(m)
	g.drawGameInfoArea(m)
	g.drawPhaseArea(m)
}

// drawGameBorder frames the screen and splits it into the four panels: the
// title, the player area, the deck table, and the phase area below.
func (g *GameApp) drawGameBorder() {
	surf, tw, th := g.surf, g.width, g.height
	g.drawOuterBorder()

	title := " Werewolves! "
	x := (tw - term.DisplayWidth(title) - 2) / 2
	surf.Cursor(x, 0)
	surf.Write(term.DHorizTUp + term.Bold(title) + term.DHorizTUp)
	surf.Cursor(x, 1)
	surf.Write(term.DownLeftCorner + repeat(term.Horizontal, term.DisplayWidth(title)) + term.DownRightCorner)

	equator := th / 2
	if equator < 7 {
		equator = 7
	}
	surf.Cursor(0, equator)
	surf.Write(term.DVertTLeft)
	surf.Write(repeat(term.Horizontal, tw-2))
	surf.Write(term.DVertTRight)

	midway := tw / 2
	for y := 2; y < th-1; y++ {
		surf.Cursor(midway, y)
		surf.Write(term.Vertical)
	}
	surf.Cursor(midway, equator)
	surf.Write(term.Cross)
	surf.Cursor(midway, th-1)
	surf.Write(term.DHorizTDown)

	g.equator = equator
	g.midway = midway
}

func (g *GameApp) drawPlayerArea(m *game.Machine) {
	surf := g.surf
	name := g.core.User
	if len(name) > 10 {
		name = name[:10]
	}
	surf.Cursor(2, 3)
	surf.Write(term.Bold("Player: ") + name)
	row := 4
	if card, ok := m.PlayerCard(g.core.User); ok {
		surf.Cursor(2, row)
		surf.Write(term.Bold("Dealt role: ") + card.String())
		row++
		if roles := g.core.Deps.Roles; roles != nil {
			if entry := roles.Get(card.String()); entry != nil && entry.Description != "" {
				for _, line := range term.WrapParas(entry.Description, g.midway-4) {
					surf.Cursor(2, row)
					surf.Write(line)
					row++
				}
			}
		}
	}
	if g.newChat {
		surf.Cursor(2, row)
		surf.Write(term.Bold("New chat message"))
	}
}

// drawGameInfoArea draws the "Cards Used in the Game" name/count table in the
// upper right panel.
func (g *GameApp) drawGameInfoArea(m *game.Machine) {
	surf := g.surf
	if g.cards == nil {
		g.cards = m.QueryCards()
	}
	counts := make(map[string]int)
	for _, c := range g.cards {
		counts[c.String()]++
	}
	names := make([]string, 0, len(counts))
	colW := 0
	for name := range counts {
		names = append(names, name)
		if len(name) > colW {
			colW = len(name)
		}
	}
	sort.Strings(names)
	colW += 3

	frameW := g.width - g.midway
	heading := "Cards Used in the Game"
	surf.Cursor(g.midway+(frameW-term.DisplayWidth(heading))/2, 1)
	surf.Write(term.Bold(heading))

	x := g.midway + (frameW-(colW+6))/2
	row := 3
	surf.Cursor(x, row)
	surf.Write(term.Underline(fmt.Sprintf("%-*s Count", colW, "Card")))
	for _, name := range names {
		row++
		surf.Cursor(x, row)
		if row >= g.equator-1 {
			surf.Write("more ...")
			break
		}
		surf.Write(fmt.Sprintf("%*s %5d", colW, name, counts[name]))
	}
}

// drawPhaseArea renders the lower panels for the current phase and rebuilds
// the command table to match.
func (g *GameApp) drawPhaseArea(m *game.Machine) {
	g.commands = map[term.Key]func(){}
	g.wildcard = nil
	switch phaseOf(m.State()) {
	case game.StateCardsDealt:
		g.drawTwilight()
		g.wildcard = g.signalAdvance
	case game.StateWerewolfPhase:
		g.drawWerewolfMinion(m, "Werewolf Phase",
			"During this phase, all werewolves open their eyes and look at each other.",
			"You look around and see other werewolves ...")
		g.commands[term.KeyEnter] = g.signalAdvance
	case game.StateMinionPhase:
		g.drawWerewolfMinion(m, "Minion Phase",
			"During this phase, the minion opens his eyes and sees the werewolves, but they cannot see the minion.",
			"You look around for werewolves ...")
		g.commands[term.KeyEnter] = g.signalAdvance
	case game.StateSeerPhase:
		g.drawSeer(m)
	case game.StateRobberPhase:
		g.drawRobber(m)
	case game.StateTroublemakerPhase:
		g.drawTroublemaker(m)
	case game.StateInsomniacPhase:
		g.drawInsomniac(m)
		g.commands[term.KeyEnter] = g.signalAdvance
	case game.StateDaybreak:
		g.drawDaybreak(m)
	case game.StateEndgame:
		g.drawEndgame(m)
	}
}

// drawPhaseInfo writes the phase title and description in the lower-left
// panel, plus the key hint line. Returns the last row used.
func (g *GameApp) drawPhaseInfo(title, desc, keyHelp string) int {
	surf, th := g.surf, g.height
	frameW := g.midway
	row := g.equator + 1
	surf.Cursor((frameW-term.DisplayWidth(title))/2, row)
	surf.Write(term.Bold(title))
	lines := term.WrapParas(desc, frameW-4)
	maxW := 0
	for _, line := range lines {
		if w := term.DisplayWidth(line); w > maxW {
			maxW = w
		}
	}
	row = g.writeLines((frameW-maxW)/2, row+2, th-4, lines)
	heading := keyHelp
	if g.ready {
		heading = "Waiting for other players ..."
	}
	surf.Cursor((frameW-term.DisplayWidth(heading))/2, th-2)
	surf.Write(heading)
	return row
}

// drawRightPanel writes wrapped text in the lower-right panel.
func (g *GameApp) drawRightPanel(startRow int, text string, extra []string) {
	frameW := g.width - g.midway
	lines := term.WrapParas(text, frameW-4)
	lines = append(lines, extra...)
	g.writeLines(g.midway+2, startRow, g.height-2, lines)
}

func (g *GameApp) drawSleeping() {
	surf := g.surf
	frameW := g.width - g.midway
	msg := "Zzzzz ...  You are sleeping."
	surf.Cursor(g.midway+(frameW-term.DisplayWidth(msg))/2, g.equator+1)
	surf.Write(msg)
}

func (g *GameApp) drawTwilight() {
	g.drawPhaseInfo("Twilight",
		"The village has been invaded by ghastly werewolves!  These bloodthirsty shape changers want to take over the village.  But the villagers know they are weakest at daybreak, and that is when they will strike at their enemy.  In this game, you will take on the role of a villager or a werewolf.  At daybreak, the entire village votes on who lives and who dies.  If a werewolf is slain, the villagers win.  If no werewolves are slain, the werewolf team wins.  If no players are werewolves, the villagers only win if no one dies.",
		"Press a key to continue ...")
}

func (g *GameApp) drawWerewolfMinion(m *game.Machine, title, desc, lookMsg string) {
	g.drawPhaseInfo(title, desc, "Press ENTER to continue ...")
	if !g.active(m) {
		g.drawSleeping()
		return
	}
	g.drawRightPanel(g.equator+2, lookMsg, m.IdentifyWerewolves())
}

func (g *GameApp) drawSeer(m *game.Machine) {
	desc := "The seer can use her mystic powers to view 1 player's card, or 2 table cards."
	if !g.active(m) {
		g.drawPhaseInfo("Seer Phase", desc, "Press ENTER to continue ...")
		g.drawSleeping()
		g.commands[term.KeyEnter] = g.signalAdvance
		return
	}
	if m.State() == game.StateSeerPhase {
		g.drawPhaseInfo("Seer Phase", desc, "Choose an option ...")
		others := g.otherPlayers(m)
		choices := []string{"t - Examine 2 table cards."}
		g.commands['t'] = func() { g.seerExamineTable(m) }
		for n, player := range others {
			choices = append(choices, fmt.Sprintf("%d - Examine %s's card.", n+1, player))
			p := player
			g.commands[term.Key('1'+n)] = func() { g.seerExaminePlayer(m, p) }
		}
		g.drawRightPanel(g.equator+2, "Choose:", choices)
		return
	}
	// Power already activated: show what the seer learned.
	g.drawPhaseInfo("Seer Phase", desc, "Press ENTER to continue ...")
	g.commands[term.KeyEnter] = g.signalAdvance
	reveal, err := m.QuerySeerReveal()
	if err != nil {
		return
	}
	if reveal.FromTable {
		g.drawRightPanel(g.equator+2,
			"Your mystic powers reveal the following table cards ...",
			[]string{reveal.TableCards[0].String(), reveal.TableCards[1].String()})
	} else {
		g.drawRightPanel(g.equator+2,
			fmt.Sprintf("Your mystic powers fortell that %s has the %s card.",
				reveal.Player, reveal.PlayerCard), nil)
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

func (g *GameApp) drawRobber(m *game.Machine) {
	desc := "The robber may exchange his card with another player's card.  He looks at the card he has robbed, and is now on that team.  The player receiving the robber card is on the village team."
	if !g.active(m) {
		g.drawPhaseInfo("Robber Phase", desc, "Press ENTER to continue ...")
		g.drawSleeping()
		g.commands[term.KeyEnter] = g.signalAdvance
		return
	}
	if m.State() == game.StateRobberPhase {
		g.drawPhaseInfo("Robber Phase", desc, "Choose an option ...")
		others := g.otherPlayers(m)
		choices := []string{"x - Don't rob anyone."}
		g.commands['x'] = func() {
			if err := m.SkipRobberPower(); err != nil {
				g.core.Deps.Log.Debug("robber skip rejected", zap.Error(err))
			}
		}
		for n, player := range others {
			choices = append(choices, fmt.Sprintf("%d - Rob %s's card.", n+1, player))
			p := player
			g.commands[term.Key('1'+n)] = func() {
				if _, err := m.UseRobberPower(g.core.User, p); err != nil {
					g.core.Deps.Log.Debug("rob rejected", zap.Error(err))
				}
			}
		}
		g.drawRightPanel(g.equator+2, "Choose:", choices)
		return
	}
	g.drawPhaseInfo("Robber Phase", desc, "Press ENTER to continue ...")
	g.commands[term.KeyEnter] = g.signalAdvance
	if card, victim, err := m.QueryRobbedCard(); err == nil {
		g.drawRightPanel(g.equator+2,
			fmt.Sprintf("You stole the %s card from %s.", card, victim), nil)
	} else {
		g.drawRightPanel(g.equator+2, "You chose not to steal.", nil)
	}
}

func (g *GameApp) drawTroublemaker(m *game.Machine) {
	desc := "The troublemaker may exchange the cards of 2 other players without looking at them."
	if !g.active(m) {
		g.drawPhaseInfo("Troublemaker Phase", desc, "Press ENTER to continue ...")
		g.drawSleeping()
		g.commands[term.KeyEnter] = g.signalAdvance
		return
	}
	if m.State() == game.StateTroublemakerPhase {
		g.drawPhaseInfo("Troublemaker Phase", desc, "Choose an option ...")
		others := g.otherPlayers(m)
		choices := []string{"x - Don't cause trouble."}
		g.commands['x'] = func() {
			g.tmFirst = ""
			if err := m.SkipTroublemakerPower(); err != nil {
				g.core.Deps.Log.Debug("troublemaker skip rejected", zap.Error(err))
			}
		}
		for n, player := range others {
			p := player
			switch {
			case g.tmFirst == "":
				choices = append(choices, fmt.Sprintf("%d - Exchange %s's card ...", n+1, p))
				g.commands[term.Key('1'+n)] = func() { g.tmFirst = p }
			case p == g.tmFirst:
				choices = append(choices, fmt.Sprintf("%s - already selected %s", " ", p))
			default:
				choices = append(choices, fmt.Sprintf("%d - Exchange %s's card with %s's card.", n+1, g.tmFirst, p))
				first := g.tmFirst
				g.commands[term.Key('1'+n)] = func() {
					g.tmFirst = ""
					if err := m.UseTroublemakerPower(g.core.User, first, p); err != nil {
						g.core.Deps.Log.Debug("troublemaker swap rejected", zap.Error(err))
					}
				}
			}
		}
		g.drawRightPanel(g.equator+2, "Choose:", choices)
		return
	}
	g.drawPhaseInfo("Troublemaker Phase", desc, "Press ENTER to continue ...")
	g.commands[term.KeyEnter] = g.signalAdvance
	g.drawRightPanel(g.equator+2, "Your trouble is done.", nil)
}

func (g *GameApp) drawInsomniac(m *game.Machine) {
	desc := "The insomniac wakes up in the middle of the night and checks to see if her card has been changed."
	g.drawPhaseInfo("Insomniac Phase", desc, "Press ENTER to continue ...")
	if !g.active(m) {
		g.drawSleeping()
		return
	}
	_, card, err := m.QueryInsomniacCard()
	if err != nil {
		return
	}
	text := "Your card has NOT changed."
	if card != game.Insomniac {
		text = fmt.Sprintf("Your card has been switched with the %s card!", card)
	}
	g.drawRightPanel(g.equator+2, text, nil)
}

func (g *GameApp) drawDaybreak(m *game.Machine) {
	desc := "It is now daybreak.  Everyone should discuss what happened the night before.  Each player will then have one vote to decide who should be eliminated.  If at least 1 player has more than 1 vote, the player with the most votes is eliminated!"
	if card, _ := m.PlayerCard(g.core.User); card == game.Hunter {
		desc += "\n\nIf the hunter is eliminated, the player he voted for is also eliminated."
	} else if card, _ := m.PlayerCard(g.core.User); card == game.Tanner {
		desc += "\n\nThe tanner only wins if he is eliminated."
	}
	g.drawPhaseInfo("Daybreak", desc, "Vote!")
	players := m.Players()
	choices := []string{}
	for n, player := range players {
		label := player
		if player == g.core.User {
			label = "yourself"
		}
		choices = append(choices, fmt.Sprintf("%d - %s", n+1, label))
		if !m.HasVoted(g.core.User) {
			p := player
			g.commands[term.Key('1'+n)] = func() { g.vote(p) }
		}
	}
	g.drawRightPanel(g.equator+2, "Vote to eliminate player ...", choices)
}

func (g *GameApp) vote(target string) {
	g.ready = true
	if err := g.core.VoteGame(target); err != nil {
		g.core.Deps.Log.Debug("vote rejected", zap.Error(err))
	}
}

func (g *GameApp) drawEndgame(m *game.Machine) {
	surf := g.surf
	res, err := m.PostGameResults()
	if err != nil {
		return
	}
	g.ready = false
	lastRow := g.drawPhaseInfo("Post Game Results", "The game is now over.  Time to see who won!", "")

	eliminated := make(map[string]bool, len(res.Eliminated))
	for _, p := range res.Eliminated {
		eliminated[p] = true
	}
	players := make([]string, 0, len(res.PlayerOriginal))
	for p := range res.PlayerOriginal {
		players = append(players, p)
	}
	sort.Strings(players)

	// Left panel: who was eliminated and how they voted.
	colW := (g.midway - 3) / 3
	row := lastRow + 2
	surf.Cursor(2, row)
	surf.Write(term.Underline("Player"))
	surf.Cursor(2+colW, row)
	surf.Write(term.Underline("Eliminated?"))
	surf.Cursor(2+colW*2, row)
	surf.Write(term.Underline("Voted For"))
	row++
	for _, player := range players {
		if row >= g.height-2 {
			surf.Cursor(2, row)
			surf.Write("...")
			break
		}
		surf.Cursor(2, row)
		surf.Write(player)
		if eliminated[player] {
			surf.Cursor(2+colW, row)
			surf.Write("Y")
		}
		surf.Cursor(2+colW*2, row)
		if v, ok := res.Votes[player]; ok {
			surf.Write(v)
		} else {
			surf.Write("N/A")
		}
		row++
	}

	// Right panel: winner banner plus dealt/final card matrix.
	frameW := g.width - g.midway
	banner := winnerBanner(res.Winner)
	row = g.equator + 2
	surf.Cursor(g.midway+(frameW-term.DisplayWidth(banner))/2, row)
	surf.Write(term.Bold(banner))
	colW = (frameW - 3) / 3
	col0, col1, col2 := g.midway+2, g.midway+2+colW, g.midway+2+colW*2
	row += 2
	surf.Cursor(col0, row)
	surf.Write(term.Underline("Player"))
	surf.Cursor(col1, row)
	surf.Write(term.Underline("Dealt Card"))
	surf.Cursor(col2, row)
	surf.Write(term.Underline("Final Card"))
	row++
	for _, player := range players {
		if row >= g.height-2 {
			surf.Cursor(col0, row)
			surf.Write("...")
			break
		}
		surf.Cursor(col0, row)
		surf.Write(player)
		surf.Cursor(col1, row)
		surf.Write(res.PlayerOriginal[player].String())
		surf.Cursor(col2, row)
		surf.Write(res.PlayerCurrent[player].String())
		row++
	}
	row++
	for n := 0; n < 3; n++ {
		if row >= g.height-2 {
			surf.Cursor(col0, row)
			surf.Write("...")
			break
		}
		surf.Cursor(col0, row)
		surf.Write(fmt.Sprintf("Table %d", n+1))
		surf.Cursor(col1, row)
		surf.Write(res.TableOriginal[n].String())
		surf.Cursor(col2, row)
		surf.Write(res.TableCurrent[n].String())
		row++
	}
}

func winnerBanner(w game.Winner) string {
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

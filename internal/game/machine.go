package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// ErrInvalidTransition is returned for any input the current state does not
// define. It indicates a caller bug, not a recoverable game condition.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the game machine's current position in the night cycle.
type State int

const (
	StateHavePlayers State = iota
	StateCardsDealt
	StateWerewolfPhase
	StateMinionPhase
	StateSeerPhase
	StateSeerPowerActivated
	StateRobberPhase
	StateRobberPowerActivated
	StateTroublemakerPhase
	StateTroublemakerPowerActivated
	StateInsomniacPhase
	StateDaybreak
	StateEndgame
)

var stateNames = [...]string{
	StateHavePlayers:                "have_players",
	StateCardsDealt:                 "cards_dealt",
	StateWerewolfPhase:              "werewolf_phase",
	StateMinionPhase:                "minion_phase",
	StateSeerPhase:                  "seer_phase",
	StateSeerPowerActivated:         "seer_power_activated",
	StateRobberPhase:                "robber_phase",
	StateRobberPowerActivated:       "robber_power_activated",
	StateTroublemakerPhase:          "troublemaker_phase",
	StateTroublemakerPowerActivated: "troublemaker_power_activated",
	StateInsomniacPhase:             "insomniac_phase",
	StateDaybreak:                   "daybreak",
	StateEndgame:                    "endgame",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// PhaseRole returns the role card a night phase belongs to. States that are
// not role phases (cards_dealt, daybreak, endgame, power sub-states) report
// ok=false.
func PhaseRole(s State) (Card, bool) {
	switch s {
	case StateWerewolfPhase:
		return Werewolf, true
	case StateMinionPhase:
		return Minion, true
	case StateSeerPhase:
		return Seer, true
	case StateRobberPhase:
		return Robber, true
	case StateTroublemakerPhase:
		return Troublemaker, true
	case StateInsomniacPhase:
		return Insomniac, true
	}
	return 0, false
}

// basePhase collapses a power-activated sub-state onto its night phase.
func basePhase(s State) State {
	switch s {
	case StateSeerPowerActivated:
		return StateSeerPhase
	case StateRobberPowerActivated:
		return StateRobberPhase
	case StateTroublemakerPowerActivated:
		return StateTroublemakerPhase
	}
	return s
}

// nightOrder is the phase sequence from the post-deal wait to daybreak.
var nightOrder = []State{
	StateCardsDealt,
	StateWerewolfPhase,
	StateMinionPhase,
	StateSeerPhase,
	StateRobberPhase,
	StateTroublemakerPhase,
	StateInsomniacPhase,
	StateDaybreak,
}

// SeerReveal is what the seer learned: either one player's card or two of the
// three table cards.
type SeerReveal struct {
	Player     string
	PlayerCard Card
	TablePos   [2]int
	TableCards [2]Card
	FromTable  bool
}

// Results is the full post-game report.
type Results struct {
	Winner          Winner
	Eliminated      []string
	Votes           map[string]string
	PlayerCurrent   map[string]Card
	PlayerOriginal  map[string]Card
	TableCurrent    [3]Card
	TableOriginal   [3]Card
}

// Machine is the per-session game state machine. It is pure state: all
// registry and UI side effects happen in the adapters around its calls, and
// it must only ever be touched from the core loop goroutine.
type Machine struct {
	players []string // sorted, fixed at creation
	state   State
	rng     *rand.Rand

	deck           []Card // full original deal, players then table
	playerOriginal map[string]Card
	playerCurrent  map[string]Card
	tableOriginal  [3]Card
	tableCurrent   [3]Card

	waitList map[string]struct{}

	seer       *SeerReveal
	robbed     *Card  // card the robber stole, nil until activation
	robbedFrom string

	votes      map[string]string
	eliminated []string
	winner     Winner
}

// New creates a machine in have_players with the given member set.
// rng may be nil, in which case the global source seeds a new one.
func New(players []string, rng *rand.Rand) *Machine {
	ps := make([]string, len(players))
	copy(ps, players)
	sort.Strings(ps)
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Machine{
		players: ps,
		state:   StateHavePlayers,
		rng:     rng,
	}
}

func (m *Machine) State() State      { return m.state }
func (m *Machine) Players() []string { ps := make([]string, len(m.players)); copy(ps, m.players); return ps }

// HasPlayer reports whether user is a member of this game.
func (m *Machine) HasPlayer(user string) bool {
	for _, p := range m.players {
		if p == user {
			return true
		}
	}
	return false
}

// DealCards builds and deals the deck: werewolfCount Werewolves, the enabled
// optional roles (shuffled), Villager padding up to player_count+3, truncated
// to that size, then shuffled. The last three cards go to the table.
func (m *Machine) DealCards(werewolfCount int, optional []Card) error {
	if m.state != StateHavePlayers {
		return fmt.Errorf("deal_cards in %s: %w", m.state, ErrInvalidTransition)
	}
	size := len(m.players) + 3

	deck := make([]Card, 0, size)
	for i := 0; i < werewolfCount; i++ {
		deck = append(deck, Werewolf)
	}
	opts := make([]Card, len(optional))
	copy(opts, optional)
	m.rng.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	deck = append(deck, opts...)
	for len(deck) < size {
		deck = append(deck, Villager)
	}
	deck = deck[:size]
	m.rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	m.deck = deck
	m.playerOriginal = make(map[string]Card, len(m.players))
	m.playerCurrent = make(map[string]Card, len(m.players))
	for i, p := range m.players {
		m.playerOriginal[p] = deck[i]
		m.playerCurrent[p] = deck[i]
	}
	copy(m.tableOriginal[:], deck[len(m.players):])
	m.tableCurrent = m.tableOriginal

	m.votes = make(map[string]string, len(m.players))
	m.enterState(StateCardsDealt)
	return nil
}

// enterState moves to s and resets the wait list to the full member set.
// Power sub-states keep the wait list of their night phase.
func (m *Machine) enterState(s State) {
	m.state = s
	switch s {
	case StateSeerPowerActivated, StateRobberPowerActivated, StateTroublemakerPowerActivated, StateEndgame:
		return
	}
	m.waitList = make(map[string]struct{}, len(m.players))
	for _, p := range m.players {
		m.waitList[p] = struct{}{}
	}
}

// dealtHas reports whether card appears anywhere in the original deal.
func (m *Machine) dealtHas(card Card) bool {
	for _, c := range m.deck {
		if c == card {
			return true
		}
	}
	return false
}

// nextState returns the phase after the current one, skipping every night
// phase whose role card was not dealt. Phases with no role card present are
// transparent.
func (m *Machine) nextState() State {
	cur := basePhase(m.state)
	idx := 0
	for i, s := range nightOrder {
		if s == cur {
			idx = i
			break
		}
	}
	for _, s := range nightOrder[idx+1:] {
		role, ok := PhaseRole(s)
		if ok && !m.dealtHas(role) {
			continue
		}
		return s
	}
	return StateDaybreak
}

// SignalAdvance removes user from the current wait list. When the list
// empties the machine advances to the next phase; at daybreak an empty list
// instead counts votes and enters endgame. advanced reports whether the
// phase changed.
func (m *Machine) SignalAdvance(user string) (advanced bool, err error) {
	switch m.state {
	case StateHavePlayers, StateEndgame:
		return false, fmt.Errorf("signal_advance in %s: %w", m.state, ErrInvalidTransition)
	}
	delete(m.waitList, user)
	if len(m.waitList) > 0 {
		return false, nil
	}
	if m.state == StateDaybreak {
		m.countVotes()
		m.enterState(StateEndgame)
		return true, nil
	}
	m.enterState(m.nextState())
	return true, nil
}

// WaitingOn returns the members whose advance signal is still awaited.
func (m *Machine) WaitingOn() []string {
	out := make([]string, 0, len(m.waitList))
	for p := range m.waitList {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Waiting reports whether user has not yet signalled advance this phase.
func (m *Machine) Waiting(user string) bool {
	_, ok := m.waitList[user]
	return ok
}

// IdentifyWerewolves returns the players whose dealt card is Werewolf,
// sorted. Used by the werewolf and minion observation phases.
func (m *Machine) IdentifyWerewolves() []string {
	var wolves []string
	for p, c := range m.playerOriginal {
		if c == Werewolf {
			wolves = append(wolves, p)
		}
	}
	sort.Strings(wolves)
	return wolves
}

// UseSeerPowerOnPlayer views one other player's current card. One activation
// per game.
func (m *Machine) UseSeerPowerOnPlayer(seer, target string) (Card, error) {
	if m.state != StateSeerPhase {
		return 0, fmt.Errorf("seer power in %s: %w", m.state, ErrInvalidTransition)
	}
	if seer == target {
		return 0, fmt.Errorf("seer may only view another player: %w", ErrInvalidTransition)
	}
	card, ok := m.playerCurrent[target]
	if !ok {
		return 0, fmt.Errorf("seer target %q is not a player: %w", target, ErrInvalidTransition)
	}
	m.seer = &SeerReveal{Player: target, PlayerCard: card}
	m.state = StateSeerPowerActivated
	return card, nil
}

// UseSeerPowerOnTable views two of the three table cards.
func (m *Machine) UseSeerPowerOnTable(a, b int) ([2]Card, error) {
	if m.state != StateSeerPhase {
		return [2]Card{}, fmt.Errorf("seer power in %s: %w", m.state, ErrInvalidTransition)
	}
	if a < 0 || a > 2 || b < 0 || b > 2 || a == b {
		return [2]Card{}, fmt.Errorf("seer table picks %d,%d: %w", a, b, ErrInvalidTransition)
	}
	cards := [2]Card{m.tableCurrent[a], m.tableCurrent[b]}
	m.seer = &SeerReveal{TablePos: [2]int{a, b}, TableCards: cards, FromTable: true}
	m.state = StateSeerPowerActivated
	return cards, nil
}

// QuerySeerReveal returns what the seer saw. Error before activation.
func (m *Machine) QuerySeerReveal() (SeerReveal, error) {
	if m.seer == nil {
		return SeerReveal{}, fmt.Errorf("seer power not activated: %w", ErrInvalidTransition)
	}
	return *m.seer, nil
}

// UseRobberPower swaps the robber's current card with target's and returns
// the stolen card.
func (m *Machine) UseRobberPower(robber, target string) (Card, error) {
	if m.state != StateRobberPhase {
		return 0, fmt.Errorf("robber power in %s: %w", m.state, ErrInvalidTransition)
	}
	if robber == target {
		return 0, fmt.Errorf("robber may only rob another player: %w", ErrInvalidTransition)
	}
	stolen, ok := m.playerCurrent[target]
	if !ok {
		return 0, fmt.Errorf("robber target %q is not a player: %w", target, ErrInvalidTransition)
	}
	m.playerCurrent[target] = m.playerCurrent[robber]
	m.playerCurrent[robber] = stolen
	m.robbed = &stolen
	m.robbedFrom = target
	m.state = StateRobberPowerActivated
	return stolen, nil
}

// SkipRobberPower declines the rob. The phase still counts as activated so
// the robber cannot change their mind after seeing others advance.
func (m *Machine) SkipRobberPower() error {
	if m.state != StateRobberPhase {
		return fmt.Errorf("robber skip in %s: %w", m.state, ErrInvalidTransition)
	}
	m.state = StateRobberPowerActivated
	return nil
}

// QueryRobbedCard returns the stolen card. Error before activation or if the
// rob was declined.
func (m *Machine) QueryRobbedCard() (Card, string, error) {
	if m.robbed == nil {
		return 0, "", fmt.Errorf("robber power not activated: %w", ErrInvalidTransition)
	}
	return *m.robbed, m.robbedFrom, nil
}

// UseTroublemakerPower swaps the current cards of two other players without
// revealing them.
func (m *Machine) UseTroublemakerPower(tm, a, b string) error {
	if m.state != StateTroublemakerPhase {
		return fmt.Errorf("troublemaker power in %s: %w", m.state, ErrInvalidTransition)
	}
	if a == b || a == tm || b == tm {
		return fmt.Errorf("troublemaker must pick two other distinct players: %w", ErrInvalidTransition)
	}
	ca, okA := m.playerCurrent[a]
	cb, okB := m.playerCurrent[b]
	if !okA || !okB {
		return fmt.Errorf("troublemaker targets %q,%q: %w", a, b, ErrInvalidTransition)
	}
	m.playerCurrent[a] = cb
	m.playerCurrent[b] = ca
	m.state = StateTroublemakerPowerActivated
	return nil
}

// SkipTroublemakerPower declines the swap.
func (m *Machine) SkipTroublemakerPower() error {
	if m.state != StateTroublemakerPhase {
		return fmt.Errorf("troublemaker skip in %s: %w", m.state, ErrInvalidTransition)
	}
	m.state = StateTroublemakerPowerActivated
	return nil
}

// QueryInsomniacCard locates the player dealt the Insomniac and returns that
// player's current card.
func (m *Machine) QueryInsomniacCard() (player string, card Card, err error) {
	for p, c := range m.playerOriginal {
		if c == Insomniac {
			return p, m.playerCurrent[p], nil
		}
	}
	return "", 0, fmt.Errorf("no insomniac was dealt: %w", ErrInvalidTransition)
}

// Vote records user's daybreak vote for target (possibly self) and signals
// advance implicitly. When the last vote lands, votes are counted and the
// machine enters endgame.
func (m *Machine) Vote(user, target string) (advanced bool, err error) {
	if m.state != StateDaybreak {
		return false, fmt.Errorf("vote in %s: %w", m.state, ErrInvalidTransition)
	}
	if _, ok := m.playerCurrent[target]; !ok {
		return false, fmt.Errorf("vote target %q is not a player: %w", target, ErrInvalidTransition)
	}
	m.votes[user] = target
	return m.SignalAdvance(user)
}

// HasVoted reports whether user has cast a daybreak vote.
func (m *Machine) HasVoted(user string) bool {
	_, ok := m.votes[user]
	return ok
}

// countVotes eliminates every player whose vote count is both greater than
// one and tied for the maximum. If an eliminated player currently holds the
// Hunter, the hunter's own vote target is dragged along.
func (m *Machine) countVotes() {
	counts := make(map[string]int, len(m.players))
	for _, target := range m.votes {
		counts[target]++
	}
	top := 0
	for _, n := range counts {
		if n > top {
			top = n
		}
	}
	var eliminated []string
	if top > 1 {
		for p, n := range counts {
			if n == top {
				eliminated = append(eliminated, p)
			}
		}
	}
	// Hunter drag-along.
	for _, e := range eliminated {
		if m.playerCurrent[e] == Hunter {
			victim := m.votes[e]
			found := false
			for _, x := range eliminated {
				if x == victim {
					found = true
					break
				}
			}
			if !found {
				eliminated = append(eliminated, victim)
			}
			break
		}
	}
	sort.Strings(eliminated)
	m.eliminated = eliminated
	m.winner = m.determineWinner()
}

// determineWinner applies the endgame calculus over current cards.
func (m *Machine) determineWinner() Winner {
	elimCards := make(map[Card]bool, len(m.eliminated))
	for _, p := range m.eliminated {
		elimCards[m.playerCurrent[p]] = true
	}
	playerCards := make(map[Card]bool, len(m.players))
	for _, c := range m.playerCurrent {
		playerCards[c] = true
	}

	tannerWin := elimCards[Tanner]
	villageWin := elimCards[Werewolf] || (len(m.eliminated) == 0 && !playerCards[Werewolf])
	werewolfWin := !tannerWin &&
		((playerCards[Werewolf] && !elimCards[Werewolf]) ||
			(!playerCards[Werewolf] && playerCards[Minion] && !elimCards[Minion] && len(m.eliminated) > 0))

	switch {
	case tannerWin && villageWin:
		return TannerAndVillage
	case villageWin:
		return Village
	case tannerWin:
		return TannerAlone
	case werewolfWin:
		return WerewolfTeam
	}
	return NoOne
}

// QueryCards returns a freshly shuffled copy of the original deal. Calling it
// never changes the multiset of cards.
func (m *Machine) QueryCards() []Card {
	out := make([]Card, len(m.deck))
	copy(out, m.deck)
	m.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// QueryTableCards returns a copy of the current table cards.
func (m *Machine) QueryTableCards() [3]Card { return m.tableCurrent }

// QueryPlayerCards returns a copy of the current player→card map.
func (m *Machine) QueryPlayerCards() map[string]Card {
	out := make(map[string]Card, len(m.playerCurrent))
	for p, c := range m.playerCurrent {
		out[p] = c
	}
	return out
}

// PlayerCard returns user's current card.
func (m *Machine) PlayerCard(user string) (Card, bool) {
	c, ok := m.playerCurrent[user]
	return c, ok
}

// OriginalCard returns the card user was dealt.
func (m *Machine) OriginalCard(user string) (Card, bool) {
	c, ok := m.playerOriginal[user]
	return c, ok
}

// PostGameResults reports the winner and both card maps. Error before
// endgame.
func (m *Machine) PostGameResults() (Results, error) {
	if m.state != StateEndgame {
		return Results{}, fmt.Errorf("post_game_results in %s: %w", m.state, ErrInvalidTransition)
	}
	res := Results{
		Winner:         m.winner,
		Eliminated:     append([]string(nil), m.eliminated...),
		Votes:          make(map[string]string, len(m.votes)),
		PlayerCurrent:  m.QueryPlayerCards(),
		PlayerOriginal: make(map[string]Card, len(m.playerOriginal)),
		TableCurrent:   m.tableCurrent,
		TableOriginal:  m.tableOriginal,
	}
	for p, c := range m.playerOriginal {
		res.PlayerOriginal[p] = c
	}
	for u, t := range m.votes {
		res.Votes[u] = t
	}
	return res, nil
}

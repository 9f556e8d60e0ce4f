package game

// Card is one of the nine role cards in the deck.
type Card int

const (
	Werewolf Card = iota
	Seer
	Robber
	Troublemaker
	Villager
	Minion
	Insomniac
	Hunter
	Tanner
)

var cardNames = [...]string{
	Werewolf:     "Werewolf",
	Seer:         "Seer",
	Robber:       "Robber",
	Troublemaker: "Troublemaker",
	Villager:     "Villager",
	Minion:       "Minion",
	Insomniac:    "Insomniac",
	Hunter:       "Hunter",
	Tanner:       "Tanner",
}

func (c Card) String() string {
	if c < 0 || int(c) >= len(cardNames) {
		return "Unknown"
	}
	return cardNames[c]
}

// OptionalCards are the roles a session owner can toggle on or off.
// Werewolf count is configured separately and Villagers pad the deck.
var OptionalCards = []Card{Seer, Robber, Troublemaker, Minion, Insomniac, Hunter, Tanner}

// Winner identifies which faction (or combination) won the game.
type Winner int

const (
	NoOne Winner = iota
	Village
	WerewolfTeam
	TannerAlone
	TannerAndVillage
)

var winnerNames = [...]string{
	NoOne:            "No One",
	Village:          "The Village",
	WerewolfTeam:     "The Werewolves",
	TannerAlone:      "The Tanner",
	TannerAndVillage: "The Tanner and The Village",
}

func (w Winner) String() string {
	if w < 0 || int(w) >= len(winnerNames) {
		return "Unknown"
	}
	return winnerNames[w]
}

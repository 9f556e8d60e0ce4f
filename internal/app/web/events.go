// Package web contains the browser applications: the lobby and the game,
// speaking JSON events over a per-avatar SSE channel and consuming action ids
// POSTed back by the client.
package web

import (
	"encoding/json"

	"github.com/onwgo/server/internal/game"
	"github.com/onwgo/server/internal/registry"
)

// EventSink is implemented by web avatars. Events queue there until the
// browser's SSE subscription drains them.
type EventSink interface {
	SendEvent(event map[string]any)
}

// Action is one clickable entry in the client's action list. The client
// replaces the list with PostText once the action has been posted.
type Action struct {
	Label    string
	ID       int
	PostText string
}

// MarshalJSON renders the [label, id, post_action_text] triple the client
// expects.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{a.Label, a.ID, a.PostText})
}

func statusEvent(status string) map[string]any {
	return map[string]any{"status": status}
}

func actionsEvent(actions []Action) map[string]any {
	if actions == nil {
		actions = []Action{}
	}
	return map[string]any{"actions": actions}
}

func outputEvent(msg string) map[string]any {
	return map[string]any{"output": msg}
}

func chatEvent(sender, message string) map[string]any {
	return map[string]any{"chat": map[string]any{"sender": sender, "message": message}}
}

func phaseInfoEvent(title, desc string) map[string]any {
	return map[string]any{"phase-info": []string{title, desc}}
}

func playerInfoEvent(userID, cardName string) map[string]any {
	return map[string]any{"player-info": map[string]any{"user_id": userID, "card_name": cardName}}
}

func gameInfoEvent(counts [][2]any) map[string]any {
	return map[string]any{"game-info": counts}
}

func showDialogEvent(dialogType string, actions []Action) map[string]any {
	return map[string]any{"show-dialog": map[string]any{
		"dialog-type": dialogType,
		"actions":     actions,
	}}
}

func hideDialogEvent() map[string]any {
	return map[string]any{"hide-dialog": ""}
}

func installAppEvent(resource string) map[string]any {
	return map[string]any{"install-app": resource}
}

func shutDownEvent(message string) map[string]any {
	payload := map[string]any{}
	if message != "" {
		payload["message"] = message
	}
	return map[string]any{"shut-down": payload}
}

func settingsInfoEvent(s registry.Settings) map[string]any {
	roles := map[string]bool{
		"seer":         s.Roles[game.Seer],
		"robber":       s.Roles[game.Robber],
		"troublemaker": s.Roles[game.Troublemaker],
		"minion":       s.Roles[game.Minion],
		"insomniac":    s.Roles[game.Insomniac],
		"hunter":       s.Roles[game.Hunter],
		"tanner":       s.Roles[game.Tanner],
	}
	return map[string]any{"settings-info": map[string]any{
		"roles":      roles,
		"werewolves": s.Werewolves,
	}}
}

func postGameResultsEvent(res game.Results, winnerText string, players []string) map[string]any {
	eliminated := make(map[string]bool, len(res.Eliminated))
	for _, p := range res.Eliminated {
		eliminated[p] = true
	}
	voting := make([][]any, 0, len(players))
	roleTable := make([][]string, 0, len(players))
	for _, p := range players {
		votedFor := "N/A"
		if v, ok := res.Votes[p]; ok {
			votedFor = v
		}
		voting = append(voting, []any{p, eliminated[p], votedFor})
		roleTable = append(roleTable, []string{
			p, res.PlayerOriginal[p].String(), res.PlayerCurrent[p].String(),
		})
	}
	tableRoles := make([][]string, 0, 3)
	for n := 0; n < 3; n++ {
		tableRoles = append(tableRoles, []string{
			res.TableOriginal[n].String(), res.TableCurrent[n].String(),
		})
	}
	return map[string]any{"post-game-results": map[string]any{
		"voting-table":      voting,
		"winner-text":       winnerText,
		"player-role-table": roleTable,
		"table-roles":       tableRoles,
	}}
}

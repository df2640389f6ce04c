package rcon

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// PlayerList is the parsed answer of "list".
type PlayerList struct {
	Online  int      `json:"online"`
	Max     int      `json:"max"`
	Players []string `json:"players"`
}

var listPattern = regexp.MustCompile(`(?i)There are (\d+) of a max(?: of)? (\d+) players online:?\s*(.*)`)

// ParsePlayerList parses a "list" reply. Unrecognised replies yield zero
// players out of 20.
func ParsePlayerList(resp string) PlayerList {
	m := listPattern.FindStringSubmatch(resp)
	if m == nil {
		return PlayerList{Max: 20, Players: []string{}}
	}
	online, _ := strconv.Atoi(m[1])
	maxPlayers, _ := strconv.Atoi(m[2])
	return PlayerList{Online: online, Max: maxPlayers, Players: splitNames(m[3])}
}

var whitelistPattern = regexp.MustCompile(`(?i)whitelisted players?(?:\(s\))?:\s*(.*)`)

// ParseWhitelist parses a "whitelist list" reply.
func ParseWhitelist(resp string) []string {
	m := whitelistPattern.FindStringSubmatch(resp)
	if m == nil {
		return []string{}
	}
	return splitNames(m[1])
}

func splitNames(s string) []string {
	names := []string{}
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ListPlayers runs "list".
func ListPlayers(ctx context.Context, e Execer) (PlayerList, error) {
	resp, err := e.Exec(ctx, "list")
	if err != nil {
		return PlayerList{}, err
	}
	return ParsePlayerList(resp), nil
}

func WhitelistAdd(ctx context.Context, e Execer, player string) (string, error) {
	return e.Exec(ctx, "whitelist add "+player)
}

func WhitelistRemove(ctx context.Context, e Execer, player string) (string, error) {
	return e.Exec(ctx, "whitelist remove "+player)
}

// WhitelistList returns the names on the whitelist.
func WhitelistList(ctx context.Context, e Execer) ([]string, error) {
	resp, err := e.Exec(ctx, "whitelist list")
	if err != nil {
		return nil, err
	}
	return ParseWhitelist(resp), nil
}

func WhitelistReload(ctx context.Context, e Execer) (string, error) {
	return e.Exec(ctx, "whitelist reload")
}

func WhitelistOn(ctx context.Context, e Execer) (string, error) {
	return e.Exec(ctx, "whitelist on")
}

func WhitelistOff(ctx context.Context, e Execer) (string, error) {
	return e.Exec(ctx, "whitelist off")
}

func Say(ctx context.Context, e Execer, message string) (string, error) {
	return e.Exec(ctx, "say "+message)
}

// Kick removes player from the server; reason is optional.
func Kick(ctx context.Context, e Execer, player, reason string) (string, error) {
	cmd := "kick " + player
	if reason != "" {
		cmd += " " + reason
	}
	return e.Exec(ctx, cmd)
}

func SaveAll(ctx context.Context, e Execer) (string, error) {
	return e.Exec(ctx, "save-all")
}

var blocked = map[string]bool{
	"op":        true,
	"deop":      true,
	"pardon-ip": true,
	"ban-ip":    true,
	"stop":      true,
}

// BlockedCommand reports whether command may not be sent from the console
// page. Only the first word counts; a leading slash is ignored.
func BlockedCommand(command string) bool {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(command), "/"))
	if len(fields) == 0 {
		return false
	}
	return blocked[strings.ToLower(fields[0])]
}

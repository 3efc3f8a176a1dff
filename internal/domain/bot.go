package domain

import (
	"regexp"
	"strings"
)

var botNumberPattern = regexp.MustCompile(`^bot\d+$`)

// IsBot reports whether a summoner name belongs to a synthetic participant.
// Bots have no gateway session: delivery and confirmation paths skip them
// silently.
func IsBot(summonerName string) bool {
	name := NormalizeSummonerName(summonerName)
	switch {
	case name == "":
		return false
	case strings.HasPrefix(name, "bot"):
		return true
	case strings.HasSuffix(name, "_bot"):
		return true
	case strings.Contains(name, "bot_"):
		return true
	case botNumberPattern.MatchString(name):
		return true
	}
	return false
}

package domain

import "math"

// Base MMR per rank tier. Division bonus and league points are added on top.
var tierBaseMMR = map[string]int{
	"iron":        800,
	"bronze":      1100,
	"silver":      1400,
	"gold":        1700,
	"platinum":    2000,
	"emerald":     2300,
	"diamond":     2600,
	"master":      2800,
	"grandmaster": 3000,
	"challenger":  3200,
}

var divisionBonus = map[string]int{
	"I":   150,
	"II":  100,
	"III": 50,
	"IV":  0,
}

// BaseMMRForRank maps a solo-queue rank onto the internal MMR scale. Unknown
// tiers fall back to the default rating.
func BaseMMRForRank(tier, division string, leaguePoints, defaultMMR int) int {
	base, ok := tierBaseMMR[NormalizeSummonerName(tier)]
	if !ok {
		return defaultMMR
	}
	return base + divisionBonus[division] + int(math.Round(0.8*float64(leaguePoints)))
}

// ExpectedScore is the ELO win expectation of a player rated r against an
// opposing team averaging ro.
func ExpectedScore(r, ro int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(ro-r)/400.0))
}

// LPDelta computes the signed LP change for one player. won is 1 for a win
// and 0 for a loss.
func LPDelta(k, r, ro, won int) int {
	return int(math.Round(float64(k) * (float64(won) - ExpectedScore(r, ro))))
}

// LPChanges computes per-player LP deltas for both teams once the winner is
// known. winnerTeam is 1 or 2. Keys are the players' stored summoner names.
func LPChanges(k int, team1, team2 []TeamPlayer, winnerTeam int) map[string]int {
	avg1 := AverageMMR(team1)
	avg2 := AverageMMR(team2)

	changes := make(map[string]int, len(team1)+len(team2))
	for _, p := range team1 {
		won := 0
		if winnerTeam == 1 {
			won = 1
		}
		changes[p.SummonerName] = LPDelta(k, p.MMR, avg2, won)
	}
	for _, p := range team2 {
		won := 0
		if winnerTeam == 2 {
			won = 1
		}
		changes[p.SummonerName] = LPDelta(k, p.MMR, avg1, won)
	}
	return changes
}

// TotalLP sums the absolute LP movement of a match, for analytics.
func TotalLP(changes map[string]int) int {
	total := 0
	for _, lp := range changes {
		if lp < 0 {
			total -= lp
		} else {
			total += lp
		}
	}
	return total
}

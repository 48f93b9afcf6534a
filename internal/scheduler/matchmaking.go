// Package scheduler runs the background loops that keep the platform
// moving: drawing and running matches, compiling new submissions, and
// reclaiming old match history and scratch directories.
package scheduler

import (
	"math/rand"
	"sort"

	"fairplay/pkg/models"
)

// PickNumPlayers draws a uniform player count in [min, min(max, available)].
// If available is below min, the game cannot run a match at all (0, false).
func PickNumPlayers(rng *rand.Rand, min, max, available uint) (uint, bool) {
	if available < min {
		return 0, false
	}
	hi := max
	if available < hi {
		hi = available
	}
	if hi < min {
		hi = min
	}
	return min + uint(rng.Intn(int(hi-min+1))), true
}

// botCounts maps a bot ID to how many matches it has already played for
// this game, used to weight the least-played draw.
type botCounts map[uint]int

// ChooseMatchForGame draws numPlayers distinct bots from eligible, favoring
// bots with fewer recorded participations so that new or unlucky bots catch
// up over time. Ties are broken uniformly at random. The final order is
// shuffled so a bot's history doesn't correlate with its seat number.
func ChooseMatchForGame(rng *rand.Rand, eligible []models.Bot, participations []models.MatchParticipation, numPlayers uint) []models.Bot {
	counts := make(botCounts, len(eligible))
	for _, b := range eligible {
		counts[b.ID] = 0
	}
	for _, p := range participations {
		if _, ok := counts[p.BotID]; ok {
			counts[p.BotID]++
		}
	}

	remaining := append([]models.Bot(nil), eligible...)
	chosen := make([]models.Bot, 0, numPlayers)

	for uint(len(chosen)) < numPlayers && len(remaining) > 0 {
		// Score each remaining candidate by its own participation count plus
		// the counts of the bots already chosen. The chosen part is the same
		// for every candidate, so each step picks a least-played remaining
		// bot (at random among ties); how often bots have played together is
		// not taken into account.
		best := minScore(remaining, chosen, counts)
		candidates := make([]int, 0)
		for i, b := range remaining {
			if scoreOf(b, chosen, counts) == best {
				candidates = append(candidates, i)
			}
		}
		pick := candidates[rng.Intn(len(candidates))]
		chosen = append(chosen, remaining[pick])
		remaining = append(remaining[:pick], remaining[pick+1:]...)
	}

	rng.Shuffle(len(chosen), func(i, j int) { chosen[i], chosen[j] = chosen[j], chosen[i] })
	return chosen
}

func scoreOf(candidate models.Bot, chosen []models.Bot, counts botCounts) int {
	sum := counts[candidate.ID]
	for _, c := range chosen {
		sum += counts[c.ID]
	}
	return sum
}

func minScore(remaining, chosen []models.Bot, counts botCounts) int {
	best := -1
	for _, b := range remaining {
		s := scoreOf(b, chosen, counts)
		if best == -1 || s < best {
			best = s
		}
	}
	return best
}

// sortBotsByID orders bots by ascending ID. Nothing in the repository calls
// it, the tests included.
func sortBotsByID(bots []models.Bot) {
	sort.Slice(bots, func(i, j int) bool { return bots[i].ID < bots[j].ID })
}

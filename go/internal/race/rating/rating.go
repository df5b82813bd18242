// Package rating implements the ELO arithmetic used by ranked sessions.
package rating

import "math"

// DefaultRating is the rating of a user who has never played ranked.
const DefaultRating = 1000

// Tier names, highest first.
const (
	TierApex     = "Apex"
	TierDiamond  = "Diamond"
	TierPlatinum = "Platinum"
	TierGold     = "Gold"
	TierSilver   = "Silver"
	TierBronze   = "Bronze"
)

var tiers = []struct {
	name  string
	floor int
}{
	{TierApex, 2000},
	{TierDiamond, 1750},
	{TierPlatinum, 1500},
	{TierGold, 1300},
	{TierSilver, 1150},
}

// KFactor returns the update magnitude for a player. Lower rated players swing more.
func KFactor(rating int) float64 {
	switch {
	case rating < 1400:
		return 40
	case rating < 1800:
		return 32
	default:
		return 24
	}
}

// Expected returns the probability that player beats opponent.
func Expected(player, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-player)/400))
}

// Delta returns the rating change for player given the actual score
// (1 win, 0.5 draw, 0 loss). Each side must be computed from its own pre-match rating.
func Delta(player, opponent int, score float64) int {
	k := KFactor(player)
	return int(math.Round(k * (score - Expected(player, opponent))))
}

// TierFor maps a rating to its rank tier.
func TierFor(rating int) string {
	for _, t := range tiers {
		if rating >= t.floor {
			return t.name
		}
	}
	return TierBronze
}

package stats

import (
	"math"

	"github.com/mcdev12/typerace/go/internal/race"
)

// Next computes the stats update for a user finishing a race at wpm.
// The average is a running mean rounded to a whole number.
func Next(current race.Stats, wpm float64) race.StatsUpdate {
	best := math.Max(current.BestWPM, wpm)

	prev := float64(current.RacesCompleted)
	avg := math.Round((current.AvgWPM*prev + wpm) / (prev + 1))

	return race.StatsUpdate{
		BestWPM:                 &best,
		AvgWPM:                  &avg,
		XPDelta:                 int(math.Floor(wpm / 10)),
		RacesCompletedIncrement: 1,
	}
}

// Win is the update applied to the winner of a session.
func Win() race.StatsUpdate {
	return race.StatsUpdate{WinIncrement: 1}
}

package season

import "time"

// Current describes the season that contains a given instant.
type Current struct {
	Label     string
	StartYear int
	EndYear   int
	// Spring and Summer are the meteorological onset dates, used when the
	// averaged-window boundaries cannot be determined yet.
	Spring time.Time
	Summer time.Time
}

// CurrentSeason returns the season containing now. January to June belong to
// the season that started the previous year.
func CurrentSeason(now time.Time) Current {
	start := now.Year()
	if now.Month() <= time.June {
		start--
	}
	end := start + 1
	loc := now.Location()
	return Current{
		Label:     Label(start),
		StartYear: start,
		EndYear:   end,
		Spring:    time.Date(end, time.March, 1, 0, 0, 0, 0, loc),
		Summer:    time.Date(end, time.June, 1, 0, 0, 0, 0, loc),
	}
}

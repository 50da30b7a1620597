package models

import "time"

// Duration filter keys
const (
	DurationLastMinute     = "lastMinute"
	DurationLastFiveMinute = "lastFiveMinute"
	DurationLastQuarter    = "lastQuarter"
	DurationLastHour       = "lastHour"
	DurationToday          = "today"
	DurationEver           = "ever"
)

// DurationOption is one entry of the duration filter menu
type DurationOption struct {
	Key      string        `json:"key"`
	Label    string        `json:"label"`
	Duration time.Duration `json:"duration"`
}

// Durations lists the duration filter options in menu order
var Durations = []DurationOption{
	{Key: DurationLastMinute, Label: "Last minute", Duration: time.Minute},
	{Key: DurationLastFiveMinute, Label: "Last 5 minutes", Duration: 5 * time.Minute},
	{Key: DurationLastQuarter, Label: "Last 15 minutes", Duration: 15 * time.Minute},
	{Key: DurationLastHour, Label: "Last hour", Duration: time.Hour},
	{Key: DurationToday, Label: "Today", Duration: 24 * time.Hour},
	{Key: DurationEver, Label: "Ever", Duration: 0},
}

// FindDuration resolves a filter key. Unknown keys resolve to "ever".
func FindDuration(key string) DurationOption {
	for _, d := range Durations {
		if d.Key == key {
			return d
		}
	}
	return Durations[len(Durations)-1]
}

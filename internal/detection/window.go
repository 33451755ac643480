package detection

import (
	"time"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

// LocationGroup holds the reports submitted at one location, in arrival order
type LocationGroup struct {
	Location string
	Reports  []model.Report
}

// GroupByLocation groups reports by location name. Groups are returned in
// the order each location was first seen and reports keep their arrival
// order within a group.
func GroupByLocation(reports []model.Report) []LocationGroup {
	index := make(map[string]int)
	var groups []LocationGroup

	for _, report := range reports {
		i, ok := index[report.Location]
		if !ok {
			i = len(groups)
			index[report.Location] = i
			groups = append(groups, LocationGroup{Location: report.Location})
		}
		groups[i].Reports = append(groups[i].Reports, report)
	}

	return groups
}

// WithinWindow returns the reports submitted at or after now minus window
func WithinWindow(reports []model.Report, now time.Time, window time.Duration) []model.Report {
	cutoff := now.Add(-window)

	var recent []model.Report
	for _, report := range reports {
		if !report.SubmittedAt.Before(cutoff) {
			recent = append(recent, report)
		}
	}
	return recent
}

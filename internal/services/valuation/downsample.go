package valuation

import "github.com/rjcarver/benchfolio/internal/models"

// DownsampleToWeekly keeps the last data point per ISO week.
func DownsampleToWeekly(points []models.DailyPoint) []models.DailyPoint {
	if len(points) == 0 {
		return nil
	}

	weekly := make([]models.DailyPoint, 0)
	for i, p := range points {
		if i == len(points)-1 {
			weekly = append(weekly, p)
			continue
		}
		y1, w1 := p.Date.ISOWeek()
		y2, w2 := points[i+1].Date.ISOWeek()
		if w1 != w2 || y1 != y2 {
			weekly = append(weekly, p)
		}
	}

	return weekly
}

// DownsampleToMonthly keeps the last data point per calendar month.
func DownsampleToMonthly(points []models.DailyPoint) []models.DailyPoint {
	if len(points) == 0 {
		return nil
	}

	monthly := make([]models.DailyPoint, 0)
	for i, p := range points {
		if i == len(points)-1 || points[i+1].Date.Month() != p.Date.Month() || points[i+1].Date.Year() != p.Date.Year() {
			monthly = append(monthly, p)
		}
	}

	return monthly
}

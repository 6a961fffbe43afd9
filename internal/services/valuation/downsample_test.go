package valuation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rjcarver/benchfolio/internal/models"
)

func dailyPoints(from, to time.Time) []models.DailyPoint {
	var points []models.DailyPoint
	for dd := from; !dd.After(to); dd = dd.AddDate(0, 0, 1) {
		points = append(points, models.DailyPoint{Date: dd, PortfolioValue: decimal.NewFromInt(1000)})
	}
	return points
}

func TestDownsampleToWeekly(t *testing.T) {
	// 2024-01-01 is a Monday; three full ISO weeks plus a partial one.
	points := dailyPoints(day(2024, 1, 1), day(2024, 1, 24))
	weekly := DownsampleToWeekly(points)

	if len(weekly) != 4 {
		t.Fatalf("expected 4 weekly points, got %d", len(weekly))
	}
	// Each kept point is the last of its week (Sunday), except the final
	// partial week which keeps the series' last day.
	if !weekly[0].Date.Equal(day(2024, 1, 7)) {
		t.Errorf("expected first weekly point on Sunday 2024-01-07, got %v", weekly[0].Date)
	}
	if !weekly[3].Date.Equal(day(2024, 1, 24)) {
		t.Errorf("expected last point preserved, got %v", weekly[3].Date)
	}
}

func TestDownsampleToMonthly(t *testing.T) {
	points := dailyPoints(day(2024, 1, 15), day(2024, 3, 10))
	monthly := DownsampleToMonthly(points)

	if len(monthly) != 3 {
		t.Fatalf("expected 3 monthly points, got %d", len(monthly))
	}
	if !monthly[0].Date.Equal(day(2024, 1, 31)) || !monthly[1].Date.Equal(day(2024, 2, 29)) {
		t.Errorf("expected month-end points, got %v and %v", monthly[0].Date, monthly[1].Date)
	}
	if !monthly[2].Date.Equal(day(2024, 3, 10)) {
		t.Errorf("expected last point preserved, got %v", monthly[2].Date)
	}
}

func TestDownsample_Empty(t *testing.T) {
	if got := DownsampleToWeekly(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := DownsampleToMonthly(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

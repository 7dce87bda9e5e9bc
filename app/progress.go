package app

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
)

// DefaultTotalHabits is the denominator for a day without a stored record.
const DefaultTotalHabits = 6

const rankingSize = 3

var ErrInvalidWindow = errors.New("window must be one of 7, 15, 30 or 90")

var progressWindows = []int{7, 15, 30, 90}

func ValidWindow(n int) bool {
	for _, w := range progressWindows {
		if w == n {
			return true
		}
	}
	return false
}

type ProgressInput struct {
	// StreakStart is the recovery streak start. Nil counts every day of the
	// window as part of the streak.
	StreakStart *time.Time
	// Today is interpreted in its own location; only the calendar date matters.
	Today   time.Time
	Window  int
	Records []models.DailyRecord
}

// WindowStart is the first calendar day covered by a window ending today.
func WindowStart(today time.Time, window int) time.Time {
	return calendarDay(today).AddDate(0, 0, -(window - 1))
}

// BuildProgress turns the daily records of a window into chart points.
// Days before the streak started are left out entirely.
func BuildProgress(in ProgressInput) (models.ProgressChart, error) {
	if !ValidWindow(in.Window) {
		return models.ProgressChart{}, ErrInvalidWindow
	}

	byDate := make(map[string]models.DailyRecord, len(in.Records))
	for _, rec := range in.Records {
		byDate[rec.Date] = rec
	}

	today := calendarDay(in.Today)
	streakStart := WindowStart(in.Today, in.Window)
	if in.StreakStart != nil {
		streakStart = wallClock(in.StreakStart.In(in.Today.Location()))
	}

	chart := models.ProgressChart{Points: make([]models.ChartPoint, 0, in.Window)}
	sum := 0
	for i := in.Window - 1; i >= 0; i-- {
		target := today.AddDate(0, 0, -i)
		dayNumber := int(math.Ceil(target.Sub(streakStart).Hours()/24)) + 1
		if dayNumber < 1 {
			continue
		}

		date := target.Format(models.DateLayout)
		completed, total := 0, DefaultTotalHabits
		if rec, ok := byDate[date]; ok {
			completed = rec.CompletedCount
			if rec.TotalHabits > 0 {
				total = rec.TotalHabits
			}
		}
		value := completionPercentage(completed, total)

		chart.Points = append(chart.Points, models.ChartPoint{
			Label:    fmt.Sprintf("D%d", dayNumber),
			Date:     date,
			Value:    value,
			RawCount: completed,
		})
		sum += value
		if value == 100 {
			chart.PerfectDays++
		}
	}

	if n := len(chart.Points); n > 0 {
		chart.Average = roundRatio(sum, n, 1)
	}
	return chart, nil
}

func completionPercentage(completed, total int) int {
	p := roundRatio(completed, total, 100)
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// roundRatio returns round(num/den*scale), rounding halves up.
func roundRatio(num, den, scale int) int {
	if den == 0 {
		return 0
	}
	return int(math.Floor(float64(num)/float64(den)*float64(scale) + 0.5))
}

// calendarDay maps t to midnight UTC of its local calendar date, so day
// arithmetic is not affected by DST transitions.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func wallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

type tally struct {
	order  []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(name string) {
	if _, ok := t.counts[name]; !ok {
		t.order = append(t.order, name)
	}
	t.counts[name]++
}

// top returns the first maximum in first-seen order.
func (t *tally) top(total int) *models.TallyEntry {
	var best *models.TallyEntry
	for _, name := range t.order {
		if best == nil || t.counts[name] > best.Count {
			best = &models.TallyEntry{Name: name, Count: t.counts[name]}
		}
	}
	if best != nil {
		best.Percentage = roundRatio(best.Count, total, 100)
	}
	return best
}

// ranked orders entries by count, keeping first-seen order among equals.
func (t *tally) ranked(total, limit int) []models.TallyEntry {
	out := make([]models.TallyEntry, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, models.TallyEntry{
			Name:       name,
			Count:      t.counts[name],
			Percentage: roundRatio(t.counts[name], total, 100),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// BuildTriggerInsight summarises trigger logs. Logs are read in the order
// given; that order decides ties.
func BuildTriggerInsight(logs []models.TriggerLog) models.TriggerInsight {
	insight := models.TriggerInsight{
		TotalLogs: len(logs),
		Ranking:   []models.TallyEntry{},
	}
	if len(logs) == 0 {
		return insight
	}

	emotions, contexts := newTally(), newTally()
	for _, l := range logs {
		if e := strings.TrimSpace(l.Emotion); e != "" {
			emotions.add(e)
		}
		if c := strings.TrimSpace(l.Context); c != "" {
			contexts.add(c)
		}
	}

	insight.TopEmotion = emotions.top(len(logs))
	insight.TopContext = contexts.top(len(logs))
	insight.Ranking = emotions.ranked(len(logs), rankingSize)
	return insight
}

package models

import "time"

// DateLayout is the calendar-day key used for daily records.
const DateLayout = "2006-01-02"

// DailyRecord is one user's habit completion for one calendar day.
type DailyRecord struct {
	Date           string `json:"date" firestore:"date" db:"day"`
	CompletedCount int    `json:"completedCount" firestore:"completedCount" db:"completed_count"`
	TotalHabits    int    `json:"totalHabits" firestore:"totalHabits" db:"total_habits"`
}

// TriggerLog is a craving the user logged. Entries are append-only.
type TriggerLog struct {
	ID        string    `json:"id,omitempty" firestore:"-" db:"id"`
	Emotion   string    `json:"emotion" firestore:"emotion" db:"emotion"`
	Context   string    `json:"context" firestore:"context" db:"context"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp" db:"logged_at"`
}

type ChartPoint struct {
	Label    string `json:"label"`
	Date     string `json:"date"`
	Value    int    `json:"value"`
	RawCount int    `json:"rawCount"`
}

type ProgressChart struct {
	Points      []ChartPoint `json:"points"`
	Average     int          `json:"average"`
	PerfectDays int          `json:"perfectDays"`
}

type TallyEntry struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

type TriggerInsight struct {
	TotalLogs  int          `json:"totalLogs"`
	TopEmotion *TallyEntry  `json:"topEmotion"`
	TopContext *TallyEntry  `json:"topContext"`
	Ranking    []TallyEntry `json:"ranking"`
}

// ProgressView is the payload of GET /api/progress.
type ProgressView struct {
	Window         int            `json:"window"`
	Points         []ChartPoint   `json:"points"`
	Average        int            `json:"average"`
	PerfectDays    int            `json:"perfectDays"`
	TriggerInsight TriggerInsight `json:"triggerInsight"`
}

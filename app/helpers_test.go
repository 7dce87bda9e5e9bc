package app

import (
	"runtime"
	"testing"
	"time"
)

func TestParsePositiveInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := parsePositiveInt("42")
		if err != nil || got != 42 {
			t.Fatalf("parsePositiveInt valid = (%d,%v), want (42,nil)", got, err)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		if _, err := parsePositiveInt("not-an-int"); err == nil {
			t.Fatalf("parsePositiveInt should error for invalid input")
		}
	})
	t.Run("zero", func(t *testing.T) {
		if _, err := parsePositiveInt("0"); err == nil {
			t.Fatalf("parsePositiveInt should error for zero")
		}
	})
}

func TestGetWorkerCount(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("WORKERS", "")
		if got, want := GetWorkerCount(), runtime.NumCPU(); got != want {
			t.Fatalf("GetWorkerCount default = %d, want %d", got, want)
		}
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("WORKERS", "5")
		if got := GetWorkerCount(); got != 5 {
			t.Fatalf("GetWorkerCount override = %d, want 5", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("WORKERS", "not-a-number")
		if got, want := GetWorkerCount(), runtime.NumCPU(); got != want {
			t.Fatalf("GetWorkerCount invalid fallback = %d, want %d", got, want)
		}
	})
}

func TestLoadLocation(t *testing.T) {
	loc, err := loadLocation("", "America/Mexico_City")
	if err != nil || loc.String() != "America/Mexico_City" {
		t.Fatalf("loadLocation fallback = (%v,%v)", loc, err)
	}
	loc, err = loadLocation("Europe/Madrid", "America/Mexico_City")
	if err != nil || loc.String() != "Europe/Madrid" {
		t.Fatalf("loadLocation explicit = (%v,%v)", loc, err)
	}
	loc, err = loadLocation("", "")
	if err != nil || loc != time.UTC {
		t.Fatalf("loadLocation empty = (%v,%v), want UTC", loc, err)
	}
	if _, err := loadLocation("Not/AZone", ""); err == nil {
		t.Fatalf("loadLocation should error for unknown zone")
	}
}

func TestLocalMidnight(t *testing.T) {
	loc, _ := time.LoadLocation("America/Mexico_City")
	day := time.Date(2024, 3, 10, 23, 45, 0, 0, loc)
	got := localMidnight(day, loc)
	want := time.Date(2024, 3, 10, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("localMidnight = %v, want %v", got, want)
	}
}

package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run,
// so we walk up from there. Deployed binaries fall back to the working directory.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

// DayLayout is the canonical text form of a settlement day.
const DayLayout = "2006-01-02"

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today is the current UTC day.
func Today() time.Time {
	return Day(NowFunc())
}

// Yesterday is the day before the current UTC day; nightly jobs settle it.
func Yesterday() time.Time {
	return Today().AddDate(0, 0, -1)
}

// ParseDay parses a YYYY-MM-DD day. An empty string yields Yesterday().
func ParseDay(s string) (time.Time, error) {
	s = CleanString(s)
	if s == "" {
		return Yesterday(), nil
	}
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, NewValidationError(err, FieldError{Field: "date", Error: "expected format YYYY-MM-DD"})
	}
	return Day(t), nil
}

// FormatDay formats a day as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return Day(t).Format(DayLayout)
}

var NowFunc = time.Now // mockable

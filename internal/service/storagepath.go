package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Storage paths follow <user>/<year>/<month-name>/<expenseID>-<file> in both
// backends. Segments never contain path separators, control characters or the
// characters WebDAV reserves, so the same path is valid as a blob key and as
// an OpenKM folder chain.

const (
	fallbackUserSegment = "sin-usuario"
	fallbackDateSegment = "sin-fecha"
)

var (
	reservedChars = regexp.MustCompile(`[:*?"<>|]+`)
	repeatedSpace = regexp.MustCompile(`\s{2,}`)
)

// Month names rendered in Spanish, the locale the folder tree is browsed in.
var monthNames = [12]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

func sanitizeSegment(raw, fallback string) string {
	sanitized := strings.TrimSpace(raw)
	if sanitized == "" {
		return fallback
	}
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = reservedChars.ReplaceAllString(sanitized, "")
	sanitized = repeatedSpace.ReplaceAllString(sanitized, " ")
	sanitized = strings.TrimSpace(sanitized)
	if sanitized == "" {
		return fallback
	}
	return sanitized
}

// buildDateSegmentsAt returns the [year, month] pair for a path. A nil or
// future expense date falls back to today: receipts cannot be filed under
// folders that do not exist yet.
func buildDateSegmentsAt(date *time.Time, today time.Time) [2]string {
	effective := today
	if date != nil && !date.After(today) {
		effective = *date
	}

	year := sanitizeSegment(fmt.Sprintf("%d", effective.Year()), fallbackDateSegment)
	month := sanitizeSegment(capitalize(monthNames[effective.Month()-1]), fallbackDateSegment)
	return [2]string{year, month}
}

// BuildStoragePath composes the 4-segment hierarchical path for an attached
// file. The last segment is always "<expenseID>-<sanitized file name>".
func BuildStoragePath(userName string, date *time.Time, originalFileName string, expenseID int64) []string {
	user := sanitizeSegment(userName, fallbackUserSegment)
	dateSegments := buildDateSegmentsAt(date, time.Now())
	file := fmt.Sprintf("%d-%s", expenseID, sanitizeFileName(originalFileName))
	return []string{user, dateSegments[0], dateSegments[1], file}
}

func sanitizeFileName(original string) string {
	return sanitizeSegment(original, "file-"+uuid.NewString())
}

func capitalize(value string) string {
	runes := []rune(strings.ToLower(strings.TrimSpace(value)))
	if len(runes) == 0 {
		return value
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

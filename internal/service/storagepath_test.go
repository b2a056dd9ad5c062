package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSegment(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		fallback string
		want     string
	}{
		{"clean value", "juan.perez", "x", "juan.perez"},
		{"slashes become dashes", `a/b\c`, "x", "a-b-c"},
		{"reserved chars removed", `fact:ura*?"<>|2024`, "x", "factura2024"},
		{"whitespace collapsed", "a   b", "x", "a b"},
		{"empty uses fallback", "", "sin-usuario", "sin-usuario"},
		{"only reserved uses fallback", `:*?`, "sin-usuario", "sin-usuario"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeSegment(tt.raw, tt.fallback))
		})
	}
}

func TestBuildDateSegmentsAt(t *testing.T) {
	today := time.Date(2025, time.October, 15, 12, 0, 0, 0, time.UTC)

	t.Run("past date used as-is", func(t *testing.T) {
		date := time.Date(2025, time.September, 21, 0, 0, 0, 0, time.UTC)
		got := buildDateSegmentsAt(&date, today)
		assert.Equal(t, [2]string{"2025", "Septiembre"}, got)
	})

	t.Run("nil date falls back to today", func(t *testing.T) {
		got := buildDateSegmentsAt(nil, today)
		assert.Equal(t, [2]string{"2025", "Octubre"}, got)
	})

	t.Run("future date falls back to today", func(t *testing.T) {
		date := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
		got := buildDateSegmentsAt(&date, today)
		assert.Equal(t, [2]string{"2025", "Octubre"}, got)
	})

	t.Run("month names are capitalized spanish", func(t *testing.T) {
		date := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)
		got := buildDateSegmentsAt(&date, today)
		assert.Equal(t, "Enero", got[1])
	})
}

func TestBuildStoragePath(t *testing.T) {
	date := time.Date(2025, time.September, 21, 0, 0, 0, 0, time.UTC)

	segments := BuildStoragePath("Juan Perez", &date, "ticket.jpg", 42)
	require.Len(t, segments, 4)
	assert.Equal(t, "Juan Perez", segments[0])
	assert.Equal(t, "2025", segments[1])
	assert.Equal(t, "Septiembre", segments[2])
	assert.Equal(t, "42-ticket.jpg", segments[3])
}

func TestBuildStoragePathFallbacks(t *testing.T) {
	segments := BuildStoragePath("", nil, "", 7)
	require.Len(t, segments, 4)
	assert.Equal(t, "sin-usuario", segments[0])

	// Empty file names get a generated name so two anonymous uploads
	// cannot collide.
	assert.True(t, strings.HasPrefix(segments[3], "7-file-"))

	other := BuildStoragePath("", nil, "", 7)
	assert.NotEqual(t, segments[3], other[3])
}

func TestBuildStoragePathNoReservedChars(t *testing.T) {
	date := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	segments := BuildStoragePath(`user/with\bad:chars`, &date, `re?ce*ipt|.png`, 9)

	for _, segment := range segments {
		assert.NotContains(t, segment, "/")
		assert.NotContains(t, segment, "\\")
		for _, ch := range `:*?"<>|` {
			assert.NotContains(t, segment, string(ch))
		}
	}
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPageContent_WithTitle(t *testing.T) {
	page := PageContent{Title: "Extracted", URL: "https://example.com", ExtractedAt: time.Now()}

	edited := page.WithTitle("Mine")
	assert.Equal(t, "Mine", edited.Title)
	assert.Equal(t, "Extracted", page.Title, "original must stay untouched")

	assert.Equal(t, "Extracted", page.WithTitle("").Title)
}

func TestImageOutcomeConstructors(t *testing.T) {
	ok := Succeeded("https://cdn.example.com/a.png", "Clippings/attachments/a_0.png", "attachments/a_0.png")
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Error)
	assert.NotEmpty(t, ok.LocalPath)

	bad := Failed("https://cdn.example.com/b.png", "")
	assert.False(t, bad.Success)
	assert.Empty(t, bad.LocalPath)
	assert.Empty(t, bad.RelativePath)
	assert.Equal(t, "unknown error", bad.Error)

	s, f := CountOutcomes([]ImageOutcome{ok, bad, ok})
	assert.Equal(t, 2, s)
	assert.Equal(t, 1, f)
}

package pipeline

import (
	"strings"

	"github.com/truetrack/truetrack/internal/pipeline/model"
)

// ScoreSourceCandidate rates one identity-provider result against an artist
// guess. Deterministic and integer; the reasons list feeds the selection UI.
func ScoreSourceCandidate(c model.SourceCandidate, artist string) (int, []string) {
	score := 0
	var reasons []string

	title := strings.ToLower(c.Title)
	uploader := strings.ToLower(c.Uploader)
	artist = strings.ToLower(artist)

	if artist != "" && strings.Contains(uploader, artist) {
		score += 30
		reasons = append(reasons, "uploader matches artist")
	}

	if strings.Contains(title, "official audio") {
		score += 40
		reasons = append(reasons, "official audio")
	}
	if strings.Contains(title, "remaster") {
		score += 5
		reasons = append(reasons, "remaster")
	}
	if strings.Contains(title, "lyrics") {
		score -= 30
		reasons = append(reasons, "lyrics video")
	}
	if strings.Contains(title, "live") {
		score -= 40
		reasons = append(reasons, "live version")
	}
	if strings.Contains(title, "full album") {
		score -= 100
		reasons = append(reasons, "full album")
	}

	if c.Duration >= 300 && c.Duration <= 500 {
		score += 10
		reasons = append(reasons, "expected song duration")
	}
	if c.Duration > 900 {
		score -= 80
		reasons = append(reasons, "suspiciously long duration")
	}

	return score, reasons
}

// ScoreMetadata rates one canonical-metadata record against the expected
// identity. Case-insensitive substring matching; duration within 5 seconds.
func ScoreMetadata(meta model.Metadata, expectedTitle, expectedArtist string, expectedDurationS int64) (int, []string) {
	score := 0
	var reasons []string

	title := strings.ToLower(meta.String("trackName"))
	artist := strings.ToLower(meta.String("artistName"))

	if expectedTitle != "" && strings.Contains(title, strings.ToLower(expectedTitle)) {
		score += 40
		reasons = append(reasons, "title match")
	}
	if expectedArtist != "" && strings.Contains(artist, strings.ToLower(expectedArtist)) {
		score += 40
		reasons = append(reasons, "artist match")
	}

	if millis := meta.Int64("trackTimeMillis"); millis > 0 {
		diff := millis/1000 - expectedDurationS
		if diff < 0 {
			diff = -diff
		}
		if diff < 5 {
			score += 20
			reasons = append(reasons, "duration match")
		}
	}

	return score, reasons
}

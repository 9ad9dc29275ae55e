package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/learning-accelerator/internal/domain"
)

// Normalize joins the card's content fields after cleaning each one.
// Every field is trimmed, lowercased, and has its line endings normalised.
func Normalize(card domain.ReviewCard) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	// Newline separation keeps "front" + "back" from colliding with "frontback".
	return strings.Join([]string{
		normalizePart(card.Front),
		normalizePart(card.Back),
		normalizePart(card.Context),
	}, "\n")
}

// Hash returns the SHA-256 of the normalised card content as a hex string.
// Cards imported from markdown decks use it as their stable id.
func Hash(card domain.ReviewCard) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}

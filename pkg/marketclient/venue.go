// Package marketclient is the Market Client (C4): it discovers daily
// bracket markets for (city, event_day) and fetches per-bracket mid-price
// and order-book depth, per spec.md §4.3. It also defines the Venue
// capability abstraction from §9 (replacing the source's dynamic
// duck-typed venue objects with an explicit interface).
package marketclient

import (
	"context"
	"errors"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
)

// ErrInvalidBrackets is returned when a venue's bracket set does not form
// a valid partition (§4.3, §7 INVALID_BRACKETS).
var ErrInvalidBrackets = errors.New("marketclient: bracket set is not a valid partition")

// Venue is the explicit capability set every market source implements
// (§9 "Dynamic duck-typed venues" redesign note).
type Venue interface {
	// ListBrackets discovers the bracket set for one city's event day.
	ListBrackets(ctx context.Context, city, eventDay string) ([]domain.Bracket, error)
	// Prices fetches current BracketPrice for the given market ids.
	Prices(ctx context.Context, marketIDs []string) ([]domain.BracketPrice, error)
	// ResolvesOnWholeDegrees reports whether this venue's markets settle
	// against whole-degree ground-truth readings (§4.1 double-rounding).
	ResolvesOnWholeDegrees() bool
}

// ValidatePartition checks that brackets form a valid partition per §3:
// interior brackets cover a contiguous, non-overlapping run of whole
// Fahrenheit degrees, with at most one under and one over tail.
func ValidatePartition(brackets []domain.Bracket) error {
	if len(brackets) == 0 {
		return ErrInvalidBrackets
	}

	var interior []domain.Bracket
	underCount, overCount := 0, 0

	for _, b := range brackets {
		switch {
		case b.IsUnder:
			underCount++
		case b.IsOver:
			overCount++
		default:
			if b.UpperF <= b.LowerF {
				return ErrInvalidBrackets
			}
			interior = append(interior, b)
		}
	}

	if underCount > 1 || overCount > 1 {
		return ErrInvalidBrackets
	}

	if len(interior) == 0 {
		return nil
	}

	sortByLower(interior)

	for i, b := range interior {
		if b.Width() != 1 {
			return ErrInvalidBrackets
		}
		if i > 0 && interior[i-1].UpperF != b.LowerF {
			return ErrInvalidBrackets
		}
	}

	return nil
}

func sortByLower(b []domain.Bracket) {
	for i := 1; i < len(b); i++ {
		for j := i; j > 0 && b[j].LowerF < b[j-1].LowerF; j-- {
			b[j], b[j-1] = b[j-1], b[j]
		}
	}
}

package marketclient

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
)

// ParseBracketLabel parses a free-text bracket name into a Bracket, per
// spec.md §4.3 ("58-59°F", "< 40°F", "≥ 90°F"). marketID is carried
// through unchanged.
func ParseBracketLabel(marketID, label string) (domain.Bracket, error) {
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, "°F")
	label = strings.TrimSpace(label)

	switch {
	case strings.HasPrefix(label, "<"):
		v, err := parseFloat(strings.TrimSpace(strings.TrimPrefix(label, "<")))
		if err != nil {
			return domain.Bracket{}, err
		}
		return domain.Bracket{MarketID: marketID, UpperF: v, IsUnder: true}, nil

	case strings.HasPrefix(label, "≥") || strings.HasPrefix(label, ">="):
		rest := strings.TrimPrefix(strings.TrimPrefix(label, "≥"), ">=")
		v, err := parseFloat(strings.TrimSpace(rest))
		if err != nil {
			return domain.Bracket{}, err
		}
		return domain.Bracket{MarketID: marketID, LowerF: v, IsOver: true}, nil

	case strings.Contains(label, "-"):
		// "45-46°F" names the half-open interval [45, 46): unit width,
		// matching the acceptance seed scenario in spec.md §8.
		parts := strings.SplitN(label, "-", 2)
		lower, err := parseFloat(strings.TrimSpace(parts[0]))
		if err != nil {
			return domain.Bracket{}, err
		}
		upper, err := parseFloat(strings.TrimSpace(parts[1]))
		if err != nil {
			return domain.Bracket{}, err
		}
		return domain.Bracket{MarketID: marketID, LowerF: lower, UpperF: upper}, nil

	default:
		return domain.Bracket{}, fmt.Errorf("marketclient: unrecognized bracket label %q", label)
	}
}

// ParseBracketTicker parses the teacher-venue ticker suffix convention:
// "...-B60.5" (bracket centered at 60.5, i.e. 60-61) or "...-T63"
// (threshold, direction inferred from title text). This is kept
// alongside ParseBracketLabel so the client tolerates either venue
// ticker convention (SPEC_FULL supplement).
func ParseBracketTicker(marketID, ticker, title string) (domain.Bracket, error) {
	parts := strings.Split(ticker, "-")
	if len(parts) < 2 {
		return domain.Bracket{}, fmt.Errorf("marketclient: malformed ticker %q", ticker)
	}
	spec := parts[len(parts)-1]

	switch {
	case strings.HasPrefix(spec, "B"):
		mid, err := parseFloat(spec[1:])
		if err != nil {
			return domain.Bracket{}, err
		}
		return domain.Bracket{MarketID: marketID, LowerF: mid - 0.5, UpperF: mid + 0.5}, nil

	case strings.HasPrefix(spec, "T"):
		threshold, err := parseFloat(spec[1:])
		if err != nil {
			return domain.Bracket{}, err
		}
		lowerTitle := strings.ToLower(title)
		if strings.Contains(lowerTitle, ">") || strings.Contains(lowerTitle, "above") || strings.Contains(lowerTitle, "over") {
			return domain.Bracket{MarketID: marketID, LowerF: threshold + 1, IsOver: true}, nil
		}
		return domain.Bracket{MarketID: marketID, UpperF: threshold - 1, IsUnder: true}, nil

	default:
		return domain.Bracket{}, fmt.Errorf("marketclient: unrecognized ticker spec %q", spec)
	}
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

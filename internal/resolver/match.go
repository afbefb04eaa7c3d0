// Package resolver turns raw event records into market verdicts. Everything
// in this package is pure: a verdict is re-derivable from the market and the
// event record alone, so any resolution can be audited and replayed off-line.
package resolver

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultMinTokenLen is the minimum token length considered by the
// token-equality rule of FuzzyMatch. Short tokens ("FC", "St") produce too
// many false positives between unrelated clubs.
const DefaultMinTokenLen = 4

// defaultTotalThreshold is used when no numeric threshold can be parsed from
// a total-points outcome label.
var defaultTotalThreshold = decimal.NewFromFloat(2.5)

// isDrawLabel reports whether an outcome label denotes the draw slot of a
// 3-way market.
func isDrawLabel(label string) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	return l == "draw" || l == "tie"
}

// FuzzyMatch reports whether a user-entered outcome label refers to the team
// name supplied by the data source. It matches on (a) case-insensitive
// equality, (b) either string containing the other, or (c) any token of
// label with at least d.MinTokenLen runes equalling a token of teamName
// ("Leverkusen" vs "Bayer Leverkusen"). Empty inputs never match.
func (d *Decider) FuzzyMatch(label, teamName string) bool {
	if label == "" || teamName == "" {
		return false
	}
	l := strings.ToLower(label)
	t := strings.ToLower(teamName)

	if l == t {
		return true
	}
	if strings.Contains(l, t) || strings.Contains(t, l) {
		return true
	}

	tTokens := strings.Fields(t)
	for _, lt := range strings.Fields(l) {
		if len([]rune(lt)) < d.minTokenLen() {
			continue
		}
		for _, tt := range tTokens {
			if lt == tt {
				return true
			}
		}
	}
	return false
}

// ResolveHeadToHead picks the winning slot of a 2-way or 3-way winner market.
// Slots are matched to teams by name, not by position; positional assignment
// is only the fallback when no label matches.
func (d *Decider) ResolveHeadToHead(outcomes []string, home, away int32, homeName, awayName string) (int32, string) {
	switch len(outcomes) {
	case 3:
		return d.resolveThreeWay(outcomes, home, away, homeName, awayName)
	case 2:
		return d.resolveTwoWay(outcomes, home, away, homeName, awayName)
	default:
		return -1, fmt.Sprintf("head-to-head market needs 2 or 3 outcomes, has %d", len(outcomes))
	}
}

func (d *Decider) resolveThreeWay(outcomes []string, home, away int32, homeName, awayName string) (int32, string) {
	drawIdx := -1
	for i, o := range outcomes {
		if isDrawLabel(o) {
			drawIdx = i
			break
		}
	}

	homeIdx, awayIdx := -1, -1
	for i, o := range outcomes {
		if i == drawIdx {
			continue
		}
		if homeIdx < 0 && d.FuzzyMatch(o, homeName) {
			homeIdx = i
		}
		if awayIdx < 0 && d.FuzzyMatch(o, awayName) {
			awayIdx = i
		}
	}

	// Fallback: unmatched slots take the remaining non-draw positions in
	// their original order.
	var nonDraw []int
	for i := range outcomes {
		if i != drawIdx {
			nonDraw = append(nonDraw, i)
		}
	}
	if homeIdx < 0 {
		homeIdx = nonDraw[0]
	}
	if awayIdx < 0 {
		awayIdx = nonDraw[1]
	}

	switch {
	case home > away:
		return int32(homeIdx), fmt.Sprintf("%s wins %d:%d", outcomes[homeIdx], home, away)
	case home < away:
		return int32(awayIdx), fmt.Sprintf("%s wins %d:%d", outcomes[awayIdx], away, home)
	case drawIdx >= 0:
		return int32(drawIdx), fmt.Sprintf("draw %d:%d", home, away)
	default:
		return -1, fmt.Sprintf("draw %d:%d but market has no draw outcome", home, away)
	}
}

func (d *Decider) resolveTwoWay(outcomes []string, home, away int32, homeName, awayName string) (int32, string) {
	homeIdx, awayIdx := -1, -1
	for i, o := range outcomes {
		if homeIdx < 0 && d.FuzzyMatch(o, homeName) {
			homeIdx = i
		}
		if awayIdx < 0 && d.FuzzyMatch(o, awayName) {
			awayIdx = i
		}
	}
	if homeIdx < 0 {
		homeIdx = 0
	}
	if awayIdx < 0 {
		awayIdx = 1
	}

	switch {
	case home > away:
		return int32(homeIdx), fmt.Sprintf("%s wins %d:%d", outcomes[homeIdx], home, away)
	case home < away:
		return int32(awayIdx), fmt.Sprintf("%s wins %d:%d", outcomes[awayIdx], away, home)
	default:
		// No slot can settle a 2-way market on a tie.
		return -1, fmt.Sprintf("draw %d:%d in a 2-way market", home, away)
	}
}

// ResolveTotalPoints settles an over/under market on the combined score. The
// threshold is the first whitespace-delimited token of the first outcome
// label that parses as a decimal number ("Over 2.5" -> 2.5), defaulting to
// 2.5. Slot 0 wins strictly above the threshold, slot 1 at or below it.
func (d *Decider) ResolveTotalPoints(outcomes []string, home, away int32) (int32, string) {
	threshold := defaultTotalThreshold
	if len(outcomes) > 0 {
		for _, tok := range strings.Fields(outcomes[0]) {
			if v, err := decimal.NewFromString(tok); err == nil {
				threshold = v
				break
			}
		}
	}

	total := home + away
	if decimal.NewFromInt32(total).GreaterThan(threshold) {
		return 0, fmt.Sprintf("total %d > %s (%d:%d)", total, threshold, home, away)
	}
	return 1, fmt.Sprintf("total %d <= %s (%d:%d)", total, threshold, home, away)
}

// ResolveBothScore settles a yes/no market on both teams scoring: slot 0 when
// both scores are strictly positive, slot 1 otherwise.
func (d *Decider) ResolveBothScore(home, away int32) (int32, string) {
	if home > 0 && away > 0 {
		return 0, fmt.Sprintf("both scored (%d:%d)", home, away)
	}
	return 1, fmt.Sprintf("not both scored (%d:%d)", home, away)
}

package dataprocessing

import (
	"strings"

	"parcelcli/pkg/contracts/domain"
)

// BuildSummaryText renders per-category summary lines into the text block
// shown beneath a report table, one category per line.
func BuildSummaryText(carrier domain.CarrierID, summaries []domain.CategorySummary) string {
	if len(summaries) == 0 {
		return ""
	}
	lines := make([]string, 0, len(summaries))
	for _, s := range summaries {
		lines = append(lines, s.Line(carrier))
	}
	return strings.Join(lines, "\n")
}

// IntersectSelection returns the requested categories that exist in the
// sorted universe, in universe order. Categories that disappeared after a
// new upload are silently dropped.
func IntersectSelection(universe, requested []string) []string {
	if len(requested) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(requested))
	for _, cat := range requested {
		want[cat] = struct{}{}
	}
	out := make([]string, 0, len(requested))
	for _, cat := range universe {
		if _, ok := want[cat]; ok {
			out = append(out, cat)
		}
	}
	return out
}

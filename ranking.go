package main

import (
	"regexp"
	"sort"
	"strings"
)

var (
	rankingHeaderRe = regexp.MustCompile(`(?i)final ranking:`)
	numberedLineRe  = regexp.MustCompile(`^\s*\d+[.)]\s*(.*)`)
	responseLabelRe = regexp.MustCompile(`Response ([A-Z])`)
	bareLabelRe     = regexp.MustCompile(`\b([A-Z])\b`)
)

// ParseRanking extracts an ordered list of labels from a ranker's free-text
// critique. validLabels is the label set of this deliberation ("Response A",
// "Response B", ...).
//
// Primary strategy: find the ranking section header (case-insensitive) and
// take the first label token of each numbered list line, in document order.
// Duplicates beyond the first occurrence and labels outside validLabels are
// ignored. Fallback: when the header is absent or yields nothing, every
// "Response X" occurrence in the whole text is taken in order of first
// appearance. Returns nil when both strategies find nothing; parsing never
// fails hard.
func ParseRanking(text string, validLabels []string) []string {
	valid := make(map[string]bool, len(validLabels))
	for _, label := range validLabels {
		valid[label] = true
	}

	if loc := rankingHeaderRe.FindStringIndex(text); loc != nil {
		section := text[loc[1]:]

		if parsed := parseNumberedSection(section, valid); len(parsed) > 0 {
			return parsed
		}
		// Header present but no numbered list: take label mentions from the
		// section in order.
		if parsed := collectLabelMentions(section, valid); len(parsed) > 0 {
			return parsed
		}
	}

	return collectLabelMentions(text, valid)
}

// parseNumberedSection walks the numbered list lines after the ranking
// header, taking the first valid label token of each line. A label may
// appear as "Response B" or as a bare "B".
func parseNumberedSection(section string, valid map[string]bool) []string {
	var parsed []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(section, "\n") {
		m := numberedLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rest := m[1]

		label := ""
		if lm := responseLabelRe.FindStringSubmatch(rest); lm != nil {
			label = "Response " + lm[1]
		} else if lm := bareLabelRe.FindStringSubmatch(rest); lm != nil {
			label = "Response " + lm[1]
		}

		if label == "" || !valid[label] || seen[label] {
			continue
		}
		seen[label] = true
		parsed = append(parsed, label)
	}
	return parsed
}

// collectLabelMentions takes every "Response X" occurrence in order of first
// appearance, filtered to valid labels.
func collectLabelMentions(text string, valid map[string]bool) []string {
	var parsed []string
	seen := make(map[string]bool)

	for _, m := range responseLabelRe.FindAllStringSubmatch(text, -1) {
		label := "Response " + m[1]
		if !valid[label] || seen[label] {
			continue
		}
		seen[label] = true
		parsed = append(parsed, label)
	}
	return parsed
}

// CalculateAggregateRankings folds all parsed rankings into one consensus
// ordering. Rank positions are 1-indexed within each ranking; a ranker that
// omitted a label contributes no vote for it (no worst-rank imputation).
// Output has one entry per labeled member, sorted ascending by average
// rank; members nobody ranked sort last. Ties keep original council order.
// Pure function: no I/O, inputs are not mutated.
func CalculateAggregateRankings(rankings []RankingResult, m *AnonymizationMap) []AggregateRanking {
	positions := make(map[string][]int)

	for _, ranking := range rankings {
		for i, label := range ranking.ParsedRanking {
			if m.ReverseLabel(label) == "" {
				continue
			}
			positions[label] = append(positions[label], i+1)
		}
	}

	// Labels() is council order of successes, which anchors tie-breaking.
	aggregate := make([]AggregateRanking, 0, m.Len())
	for _, label := range m.Labels() {
		entry := AggregateRanking{Model: m.ReverseLabel(label)}
		if votes := positions[label]; len(votes) > 0 {
			sum := 0
			for _, pos := range votes {
				sum += pos
			}
			entry.AverageRank = float64(sum) / float64(len(votes))
			entry.RankingsCount = len(votes)
		}
		aggregate = append(aggregate, entry)
	}

	sort.SliceStable(aggregate, func(i, j int) bool {
		a, b := aggregate[i], aggregate[j]
		if (a.RankingsCount > 0) != (b.RankingsCount > 0) {
			return a.RankingsCount > 0
		}
		if a.RankingsCount == 0 {
			return false
		}
		return a.AverageRank < b.AverageRank
	})

	return aggregate
}

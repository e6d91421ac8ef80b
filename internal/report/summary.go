package report

import (
	"fmt"
	"unicode"
)

const (
	// MaintenanceSummary is used for edits that only normalize report
	// markup without annotating any sanction.
	MaintenanceSummary = "Bot: normalize report markup"

	maxSummaryRunes  = 500
	truncationMarker = " etc."
)

// BuildSummary renders the edit summary for a run that annotated at
// least one sanction. Labels are grouped by the sections the touched
// reports live in and the whole summary is capped at maxSummaryRunes.
func BuildSummary(records []*Record) string {
	var sections []string
	seen := map[string]bool{}
	for _, r := range records {
		if r.NewText == "" || seen[r.Section] {
			continue
		}
		seen[r.Section] = true
		sections = append(sections, r.Section)
	}

	if len(sections) <= 1 {
		var section string
		if len(sections) == 1 {
			section = sections[0]
		}
		return singleSectionSummary(section, records)
	}
	return multiSectionSummary(sections, records)
}

// singleSectionSummary dedups by the exact rendered label, so the same
// subject reported twice with the same sanction shows up once. The cap
// applies here the same as in the multi-section path.
func singleSectionSummary(section string, records []*Record) string {
	summary := fmt.Sprintf("/*%s*/ Bot: ", section)
	rendered := map[string]bool{}
	first := true
	for _, r := range records {
		if r.NewText == "" || !r.Sanctioned() {
			continue
		}
		piece := subjectLabel(r)
		if rendered[piece] {
			continue
		}
		rendered[piece] = true
		if !first {
			piece = ", " + piece
		}
		if len([]rune(summary))+len([]rune(piece)) > maxSummaryRunes {
			return summary + truncationMarker
		}
		summary += piece
		first = false
	}
	return summary
}

// multiSectionSummary walks the sections in first-seen order, deduping
// by username within each section, and stops appending once the summary
// would exceed the cap.
func multiSectionSummary(sections []string, records []*Record) string {
	grouped := map[string][]*Record{}
	for _, r := range records {
		if r.NewText == "" || !r.Sanctioned() {
			continue
		}
		dup := false
		for _, prev := range grouped[r.Section] {
			if prev.User == r.User {
				dup = true
				break
			}
		}
		if !dup {
			grouped[r.Section] = append(grouped[r.Section], r)
		}
	}

	summary := "Bot:"
	for _, section := range sections {
		if len(grouped[section]) == 0 {
			continue
		}
		summary += fmt.Sprintf(" /*%s*/ ", section)
		for i, r := range grouped[section] {
			piece := subjectLabel(r)
			if i > 0 {
				piece = ", " + piece
			}
			if len([]rune(summary))+len([]rune(piece)) > maxSummaryRunes {
				return summary + truncationMarker
			}
			summary += piece
		}
	}
	return summary
}

// subjectLabel renders the user-facing link for one annotated record.
func subjectLabel(r *Record) string {
	sanction := r.Domain + r.Duration
	switch r.Kind {
	case KindUserLink, KindUserNoLink:
		maxRunes := 20
		if containsJapanese(r.User) {
			maxRunes = 10
		}
		if name := []rune(r.User); len(name) > maxRunes {
			return fmt.Sprintf("%s.. (%s)", string(name[:maxRunes]), sanction)
		}
		return fmt.Sprintf("[[Special:Contributions/%s|%s]] (%s)", r.User, r.User, sanction)
	case KindIPLink:
		return fmt.Sprintf("[[Special:Contributions/%s|%s]] (%s)", r.User, r.User, sanction)
	case KindLogID:
		return fmt.Sprintf("[[Special:Redirect/logid/%s|Logid/%s]] (%s)", r.LogID, r.LogID, sanction)
	case KindDiff:
		return fmt.Sprintf("[[Special:Diff/%s|Diff/%s]] (%s)", r.DiffID, r.DiffID, sanction)
	default:
		return fmt.Sprintf("%s (%s)", r.User, sanction)
	}
}

func containsJapanese(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) {
			return true
		}
	}
	return false
}

package report

import "regexp"

var trailingBracesRe = regexp.MustCompile(`\|*\}\}$`)

// BuildReplacements fills in NewText for every record that needs one and
// reports whether any record carries a sanction and whether anything at
// all changed. With at least one sanction the edit is a normal one; with
// only kind normalizations it is a bot maintenance edit; with neither
// there is nothing to save.
func BuildReplacements(records []*Record) (sanctioned, changed bool) {
	for _, r := range records {
		if r.Sanctioned() {
			sanctioned = true
			break
		}
	}

	if sanctioned {
		for _, r := range records {
			if r.NormalizedText != "" {
				r.NewText = r.NormalizedText
			}
			if !r.Sanctioned() {
				continue
			}
			base := r.OriginalText
			if r.NormalizedText != "" {
				base = r.NormalizedText
			}
			r.NewText = trailingBracesRe.ReplaceAllString(base, "") +
				"|" + r.Domain + r.Duration + r.Flags + r.Date + "}}"
		}
		return true, true
	}

	for _, r := range records {
		if r.NormalizedText != "" {
			r.NewText = r.NormalizedText
			changed = true
		}
	}
	return false, changed
}

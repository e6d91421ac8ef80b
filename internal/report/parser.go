package report

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Template name of the report markup unit this bot maintains.
const TemplateName = "ReportTag"

var (
	templateRe    = regexp.MustCompile(`\{\{\s*` + TemplateName + `\s*\|[^{}]*\}\}`)
	botOptOutRe   = regexp.MustCompile(`\|\s*bot\s*=\s*no`)
	botParamRe    = regexp.MustCompile(`^\s*bot\s*=`)
	statusParamRe = regexp.MustCompile(`^\s*(?:s|[Ss]tatus)\s*=\s*$`)
	closedMarkRe  = regexp.MustCompile(`^\s*(?:s|[Ss]tatus)\s*=\s*\S`)
	typeParamRe   = regexp.MustCompile(`^\s*(?:t|[Tt]ype)\s*=`)
	userParamRe   = regexp.MustCompile(`^\s*(?:1|[Uu]ser)\s*=`)
	digitsRe      = regexp.MustCompile(`^\d+$`)

	// First signature following a template: YYYY-MM-DD hh:mm (UTC),
	// month and day possibly single-digit.
	signatureRe = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2}) (\d{2}):(\d{2}) \(UTC\)`)

	headingRe     = regexp.MustCompile(`={2,5}[^\S\r\n]*.+[^\S\r\n]*={2,5}`)
	headingMarkRe = regexp.MustCompile(`^={2,5}[^\S\r\n]*|[^\S\r\n]*={2,5}$`)
)

// Parse extracts all open report templates from wikitext and returns them
// as classified records, in page order. Templates that are opted out
// (bot=no), already closed, malformed, or missing a following signature
// are dropped silently.
func Parse(wikitext string) []*Record {
	matches := templateRe.FindAllStringIndex(wikitext, -1)
	records := make([]*Record, 0, len(matches))

	for _, m := range matches {
		tl := wikitext[m[0]:m[1]]
		if botOptOutRe.MatchString(tl) {
			continue
		}

		params, open := templateParams(tl)
		if !open {
			continue
		}
		if len(params) > 2 {
			log.Debug().Str("template", tl).Msg("dropping template with excess parameters")
			continue
		}
		if len(params) == 0 {
			continue
		}

		rec := classify(params)
		if rec == nil {
			continue
		}
		rec.OriginalText = tl

		ts, ok := firstSignature(wikitext[m[1]:])
		if !ok {
			continue
		}
		rec.ReportTimestamp = ts
		rec.Section = lastSection(wikitext[:m[0]])

		if rec.User == "" && rec.LogID == "" && rec.DiffID == "" {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// templateParams splits a template into its parameters, removing bot= and
// empty status markers. The second return is false when the template is
// already closed (non-empty status value).
func templateParams(tl string) ([]string, bool) {
	inner := strings.TrimSuffix(tl, "}}")
	if i := strings.Index(inner, "|"); i >= 0 {
		inner = inner[i+1:]
	} else {
		return nil, true
	}

	var params []string
	for _, p := range strings.Split(inner, "|") {
		switch {
		case closedMarkRe.MatchString(p):
			return nil, false
		case botParamRe.MatchString(p), statusParamRe.MatchString(p):
			// dropped before classification
		default:
			params = append(params, p)
		}
	}
	return params, true
}

// classify is a pure mapping from cleaned template parameters to a
// record with its subject kind and identifier fields set. It returns
// nil for templates that are already annotated: an open report carries
// one subject parameter plus at most a type tag, so a second positional
// parameter means a result has been appended.
func classify(params []string) *Record {
	rec := &Record{}

	var typeVal string
	var rest []string
	for _, p := range params {
		if typeVal == "" && typeParamRe.MatchString(p) {
			typeVal = strings.ToLower(cleanValue(typeParamRe.ReplaceAllString(p, "")))
			continue
		}
		rest = append(rest, p)
	}
	if len(rest) > 1 {
		return nil
	}

	if typeVal == "" {
		rec.Kind = KindUserLink
		rec.User = normalizeIPv6(cleanValue(userParamRe.ReplaceAllString(rest[0], "")))
		return rec
	}

	if len(rest) == 0 {
		rec.Kind = KindUnresolvable
		return rec
	}
	subject := normalizeIPv6(cleanValue(userParamRe.ReplaceAllString(rest[0], "")))

	switch typeVal {
	case "user", "user2":
		rec.Kind = KindUserLink
		rec.User = subject
		coerceIP(rec, subject)
	case "unl", "usernolink":
		rec.Kind = KindUserNoLink
		rec.User = subject
		coerceIP(rec, subject)
	case "ip", "ip2", "ipuser", "ipuser2":
		rec.Kind = KindIPLink
		rec.User = subject
		if !IsIPAddress(subject) {
			rec.Kind = KindUserLink
			rec.NormalizedText = "{{" + TemplateName + "|" + subject + "}}"
		}
	case "log", "logid":
		rec.Kind = KindLogID
		if digitsRe.MatchString(subject) {
			rec.LogID = subject
		}
	case "dif", "diff":
		rec.Kind = KindDiff
		if digitsRe.MatchString(subject) {
			rec.DiffID = subject
		}
	case "none":
		// Free-text subject; block status can't be checked.
		rec.Kind = KindUnresolvable
	default:
		coerceIP(rec, subject)
		if rec.Kind != KindIPLink {
			rec.Kind = KindUnknown
		}
	}
	return rec
}

// coerceIP rewrites a report whose subject turns out to be an IP under
// the IP kind tag.
func coerceIP(rec *Record, subject string) {
	if !IsIPAddress(subject) {
		return
	}
	rec.Kind = KindIPLink
	rec.User = subject
	rec.NormalizedText = "{{" + TemplateName + "|t=ip|" + subject + "}}"
}

func cleanValue(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "‎", ""))
}

func normalizeIPv6(s string) string {
	if IsIPv6(s) {
		return strings.ToUpper(s)
	}
	return s
}

// firstSignature finds the first signature timestamp in text and returns
// it as a UTC instant.
func firstSignature(text string) (time.Time, bool) {
	m := signatureRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	min, _ := strconv.Atoi(m[5])
	return time.Date(year, time.Month(month), day, hour, min, 0, 0, time.UTC), true
}

// lastSection returns the title of the last heading (2-5 '=' levels)
// appearing in text, with the heading markers stripped.
func lastSection(text string) string {
	headings := headingRe.FindAllString(text, -1)
	if len(headings) == 0 {
		return ""
	}
	return headingMarkRe.ReplaceAllString(headings[len(headings)-1], "")
}

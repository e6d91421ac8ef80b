package report

import "time"

// SubjectKind classifies what a report template points at.
type SubjectKind int

const (
	KindUnknown SubjectKind = iota
	KindUserLink
	KindUserNoLink
	KindIPLink
	KindLogID
	KindDiff
	KindUnresolvable
)

func (k SubjectKind) String() string {
	switch k {
	case KindUserLink:
		return "user"
	case KindUserNoLink:
		return "usernolink"
	case KindIPLink:
		return "ip"
	case KindLogID:
		return "logid"
	case KindDiff:
		return "diff"
	case KindUnresolvable:
		return "unresolvable"
	default:
		return "unknown"
	}
}

// Record is one open report template found on the noticeboard page.
// It is created by the parser and filled in by the resolver, the
// sanction aggregator and the replacement builder, in that order.
type Record struct {
	// OriginalText is the exact template substring as it appears on the
	// page. It doubles as the replace key when the page is rewritten.
	OriginalText string

	// NewText is the computed replacement. Empty means no change.
	NewText string

	// NormalizedText is a rewrite applied when the report's kind tag is
	// wrong (an IP reported as a user or vice versa), independent of
	// whether a sanction is found.
	NormalizedText string

	// ReportTimestamp comes from the first signature following the
	// template. Records without one are discarded by the parser.
	ReportTimestamp time.Time

	// Section is the nearest preceding heading, empty if none.
	Section string

	Kind SubjectKind

	// User is the reported username or IP, either taken from the
	// template or resolved from LogID/DiffID.
	User   string
	LogID  string
	DiffID string

	// Sanction fields, set only when a qualifying sanction is found.
	Domain   string // sanction category label ("partial block ", "globally locked", ...)
	Duration string
	Flags    string
	Date     string
}

// Sanctioned reports whether a qualifying sanction was recorded.
func (r *Record) Sanctioned() bool {
	return r.Domain != "" || r.Duration != ""
}

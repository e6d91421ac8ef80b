package report

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sanctionedRecord(section, user string, kind SubjectKind) *Record {
	return &Record{
		NewText:  "{{ReportTag|x}}",
		Section:  section,
		Kind:     kind,
		User:     user,
		Duration: "indefinite",
	}
}

func TestSummarySingleSection(t *testing.T) {
	records := []*Record{
		sanctionedRecord("Reports", "Alice", KindUserLink),
		sanctionedRecord("Reports", "192.0.2.1", KindIPLink),
	}

	summary := BuildSummary(records)
	assert.Equal(t, "/*Reports*/ Bot: "+
		"[[Special:Contributions/Alice|Alice]] (indefinite), "+
		"[[Special:Contributions/192.0.2.1|192.0.2.1]] (indefinite)", summary)
}

func TestSummarySingleSectionDedupsByLabel(t *testing.T) {
	records := []*Record{
		sanctionedRecord("Reports", "Alice", KindUserLink),
		sanctionedRecord("Reports", "Alice", KindUserLink),
	}

	summary := BuildSummary(records)
	assert.Equal(t, 1, strings.Count(summary, "Alice]]"))
}

func TestSummaryMultipleSections(t *testing.T) {
	records := []*Record{
		sanctionedRecord("A", "Alice", KindUserLink),
		sanctionedRecord("B", "Bob", KindUserLink),
	}

	summary := BuildSummary(records)
	assert.Equal(t, "Bot: /*A*/ [[Special:Contributions/Alice|Alice]] (indefinite)"+
		" /*B*/ [[Special:Contributions/Bob|Bob]] (indefinite)", summary)
}

func TestSummaryMultiSectionDedupsByUserPerSection(t *testing.T) {
	records := []*Record{
		sanctionedRecord("A", "Alice", KindUserLink),
		sanctionedRecord("A", "Alice", KindUserLink),
		sanctionedRecord("B", "Alice", KindUserLink),
	}

	summary := BuildSummary(records)
	// Once per section, not once globally.
	assert.Equal(t, 2, strings.Count(summary, "Alice]]"))
}

func TestSummaryLengthCap(t *testing.T) {
	var records []*Record
	sections := []string{"One", "Two", "Three", "Four", "Five"}
	for _, sec := range sections {
		for i := 0; i < 10; i++ {
			records = append(records,
				sanctionedRecord(sec, sec+"-user-with-a-long-name-"+strings.Repeat("x", i+1), KindUserNoLink))
		}
	}

	summary := BuildSummary(records)
	assert.LessOrEqual(t, len([]rune(summary)), 500+len([]rune(" etc.")))
	assert.True(t, strings.HasSuffix(summary, " etc."))
	// At least one full label made it in before the marker.
	assert.Contains(t, summary, "(indefinite)")
}

func TestSummarySingleSectionLengthCap(t *testing.T) {
	var records []*Record
	for i := 0; i < 40; i++ {
		records = append(records,
			sanctionedRecord("Reports", fmt.Sprintf("Reported user %02d", i), KindUserNoLink))
	}

	summary := BuildSummary(records)
	assert.LessOrEqual(t, len([]rune(summary)), 500+len([]rune(" etc.")))
	assert.True(t, strings.HasSuffix(summary, " etc."))
	assert.True(t, strings.HasPrefix(summary, "/*Reports*/ Bot: "))
	assert.Contains(t, summary, "(indefinite)")
}

func TestSummaryTruncatesLongUsernames(t *testing.T) {
	long := strings.Repeat("a", 25)
	summary := BuildSummary([]*Record{sanctionedRecord("S", long, KindUserLink)})
	assert.Contains(t, summary, strings.Repeat("a", 20)+".. (indefinite)")
	assert.NotContains(t, summary, "[[Special:Contributions/"+long)
}

func TestSummaryTruncatesJapaneseNamesEarlier(t *testing.T) {
	name := strings.Repeat("あ", 12) // 12 hiragana characters
	summary := BuildSummary([]*Record{sanctionedRecord("S", name, KindUserLink)})
	assert.Contains(t, summary, strings.Repeat("あ", 10)+"..")
}

func TestSummaryLogAndDiffLabels(t *testing.T) {
	logRec := sanctionedRecord("S", "Resolved", KindLogID)
	logRec.LogID = "12345"
	diffRec := sanctionedRecord("S", "Resolved2", KindDiff)
	diffRec.DiffID = "999"

	summary := BuildSummary([]*Record{logRec, diffRec})
	assert.Contains(t, summary, "[[Special:Redirect/logid/12345|Logid/12345]] (indefinite)")
	assert.Contains(t, summary, "[[Special:Diff/999|Diff/999]] (indefinite)")
}

func TestSummaryIncludesDomain(t *testing.T) {
	r := sanctionedRecord("S", "Alice", KindUserLink)
	r.Domain = "partial block "
	r.Duration = "3 days"

	summary := BuildSummary([]*Record{r})
	assert.Contains(t, summary, "(partial block 3 days)")
}

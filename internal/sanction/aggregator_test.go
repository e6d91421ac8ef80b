package sanction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reportmark/internal/mediawiki"
	"github.com/reportmark/internal/report"
)

var (
	reportedAt = time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)
	blockedAt  = time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC)
)

type fakeAPI struct {
	mu sync.Mutex

	blocks       map[string]mediawiki.UserBlock
	ipBlocks     map[string]mediawiki.UserBlock
	locked       map[string]bool
	globalBlocks map[string]mediawiki.GlobalBlock

	userQueries   int
	ipQueries     []string
	lockQueries   []string
	globalQueries []string
}

func (f *fakeAPI) QueryBlocksByUsers(_ context.Context, users []string) ([]mediawiki.UserBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userQueries++
	var out []mediawiki.UserBlock
	for _, u := range users {
		if b, ok := f.blocks[u]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeAPI) QueryBlockByIP(_ context.Context, ip string) (*mediawiki.UserBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ipQueries = append(f.ipQueries, ip)
	if b, ok := f.ipBlocks[ip]; ok {
		return &b, nil
	}
	return nil, nil
}

func (f *fakeAPI) QueryGlobalLock(_ context.Context, user string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockQueries = append(f.lockQueries, user)
	return f.locked[user], nil
}

func (f *fakeAPI) QueryGlobalBlockByIP(_ context.Context, ip string) (*mediawiki.GlobalBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.globalQueries = append(f.globalQueries, ip)
	if b, ok := f.globalBlocks[ip]; ok {
		return &b, nil
	}
	return nil, nil
}

func newAggregator(api *fakeAPI) *Aggregator {
	return New(api, 9*time.Hour)
}

func userRecord(user string) *report.Record {
	return &report.Record{Kind: report.KindUserLink, User: user, ReportTimestamp: reportedAt}
}

func block(user, expiry string) mediawiki.UserBlock {
	return mediawiki.UserBlock{
		User:          user,
		Timestamp:     blockedAt,
		Expiry:        expiry,
		AllowUserTalk: true,
		AnonOnly:      true,
	}
}

func TestLocalBlockIndefinite(t *testing.T) {
	api := &fakeAPI{blocks: map[string]mediawiki.UserBlock{
		"Alice": block("Alice", mediawiki.ExpiryInfinity),
	}}
	rec := userRecord("Alice")

	newAggregator(api).CheckLocal(context.Background(), []*report.Record{rec})

	assert.Equal(t, "indefinite", rec.Duration)
	assert.Empty(t, rec.Domain)
	assert.Empty(t, rec.Flags)
	// 2024-01-02 04:00 UTC shifted +9h is Jan 2, 13:00 local.
	assert.Equal(t, " (1/2)", rec.Date)
}

func TestLocalBlockFiniteDuration(t *testing.T) {
	b := block("Alice", blockedAt.Add(7*24*time.Hour).Format("2006-01-02T15:04:05Z"))
	api := &fakeAPI{blocks: map[string]mediawiki.UserBlock{"Alice": b}}
	rec := userRecord("Alice")

	newAggregator(api).CheckLocal(context.Background(), []*report.Record{rec})

	assert.Equal(t, "1 week", rec.Duration)
}

func TestNewestReportWins(t *testing.T) {
	// Block predates the report: the sanction answered an older report,
	// so this record must not be annotated.
	b := block("Alice", mediawiki.ExpiryInfinity)
	b.Timestamp = reportedAt.Add(-time.Hour)
	api := &fakeAPI{blocks: map[string]mediawiki.UserBlock{"Alice": b}}
	rec := userRecord("Alice")

	newAggregator(api).CheckLocal(context.Background(), []*report.Record{rec})

	assert.False(t, rec.Sanctioned())
}

func TestBlockAtExactReportTimeQualifies(t *testing.T) {
	b := block("Alice", mediawiki.ExpiryInfinity)
	b.Timestamp = reportedAt
	api := &fakeAPI{blocks: map[string]mediawiki.UserBlock{"Alice": b}}
	rec := userRecord("Alice")

	newAggregator(api).CheckLocal(context.Background(), []*report.Record{rec})

	assert.True(t, rec.Sanctioned())
}

func TestPartialBlockDomain(t *testing.T) {
	b := block("Alice", mediawiki.ExpiryInfinity)
	b.Partial = true
	api := &fakeAPI{blocks: map[string]mediawiki.UserBlock{"Alice": b}}
	rec := userRecord("Alice")

	newAggregator(api).CheckLocal(context.Background(), []*report.Record{rec})

	assert.Equal(t, "partial block ", rec.Domain)
}

func TestRestrictionFlags(t *testing.T) {
	cases := []struct {
		name      string
		allowTalk bool
		noEmail   bool
		want      string
	}{
		{"neither", true, false, ""},
		{"talk only", false, false, " talk page restricted"},
		{"email only", true, true, " email restricted"},
		{"both", false, true, " talk page and email restricted"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := block("Alice", mediawiki.ExpiryInfinity)
			b.AllowUserTalk = tc.allowTalk
			b.NoEmail = tc.noEmail
			api := &fakeAPI{blocks: map[string]mediawiki.UserBlock{"Alice": b}}
			rec := userRecord("Alice")

			newAggregator(api).CheckLocal(context.Background(), []*report.Record{rec})

			assert.Equal(t, tc.want, rec.Flags)
		})
	}
}

func TestIPBlockSoft(t *testing.T) {
	api := &fakeAPI{ipBlocks: map[string]mediawiki.UserBlock{
		"192.0.2.1": block("192.0.2.1", mediawiki.ExpiryInfinity),
	}}
	rec := userRecord("192.0.2.1")

	newAggregator(api).CheckLocal(context.Background(), []*report.Record{rec})

	assert.Equal(t, "indefinite", rec.Duration)
	assert.Empty(t, rec.Flags)
}

func TestIPBlockHardGetsFlag(t *testing.T) {
	b := block("192.0.2.1", mediawiki.ExpiryInfinity)
	b.AnonOnly = false
	b.AllowUserTalk = false
	api := &fakeAPI{ipBlocks: map[string]mediawiki.UserBlock{"192.0.2.1": b}}
	rec := userRecord("192.0.2.1")

	newAggregator(api).CheckLocal(context.Background(), []*report.Record{rec})

	assert.Equal(t, " hardblock, talk page restricted", rec.Flags)
}

func TestIPRangeBlock(t *testing.T) {
	// The block covering the address targets a whole /24.
	b := block("192.0.2.0/24", mediawiki.ExpiryInfinity)
	api := &fakeAPI{ipBlocks: map[string]mediawiki.UserBlock{"192.0.2.17": b}}
	rec := userRecord("192.0.2.17")

	newAggregator(api).CheckLocal(context.Background(), []*report.Record{rec})

	assert.Equal(t, "range: /24 indefinite", rec.Duration)
}

func TestUserChunking(t *testing.T) {
	api := &fakeAPI{blocks: map[string]mediawiki.UserBlock{}}
	var records []*report.Record
	for i := 0; i < blockChunkSize+1; i++ {
		records = append(records, userRecord(uniqueName(i)))
	}

	newAggregator(api).CheckLocal(context.Background(), records)

	assert.Equal(t, 2, api.userQueries)
}

func uniqueName(i int) string {
	return "User-" + time.Date(2000, 1, 1, 0, 0, i, 0, time.UTC).Format("150405")
}

func TestGlobalLock(t *testing.T) {
	api := &fakeAPI{locked: map[string]bool{"Alice": true}}
	rec := userRecord("Alice")

	newAggregator(api).CheckGlobal(context.Background(), []*report.Record{rec})

	assert.Equal(t, "globally locked", rec.Domain)
	assert.Empty(t, rec.Duration, "locks have no expiry")
	assert.NotEmpty(t, rec.Date)
}

func TestGlobalBlock(t *testing.T) {
	api := &fakeAPI{globalBlocks: map[string]mediawiki.GlobalBlock{
		"192.0.2.1": {Timestamp: blockedAt, Expiry: mediawiki.ExpiryInfinity},
	}}
	rec := userRecord("192.0.2.1")

	newAggregator(api).CheckGlobal(context.Background(), []*report.Record{rec})

	assert.Equal(t, "globally blocked ", rec.Domain)
	assert.Equal(t, "indefinite", rec.Duration)
}

func TestGlobalBlockRespectsReportOrder(t *testing.T) {
	api := &fakeAPI{globalBlocks: map[string]mediawiki.GlobalBlock{
		"192.0.2.1": {Timestamp: reportedAt.Add(-time.Hour), Expiry: mediawiki.ExpiryInfinity},
	}}
	rec := userRecord("192.0.2.1")

	newAggregator(api).CheckGlobal(context.Background(), []*report.Record{rec})

	assert.False(t, rec.Sanctioned())
}

func TestLocalPrecedenceSkipsGlobalQueries(t *testing.T) {
	api := &fakeAPI{locked: map[string]bool{"Alice": true}}
	rec := userRecord("Alice")
	rec.Duration = "indefinite" // locally sanctioned earlier in the run

	newAggregator(api).CheckGlobal(context.Background(), []*report.Record{rec})

	assert.Empty(t, api.lockQueries, "locally sanctioned subjects must not be checked globally")
	assert.Empty(t, rec.Domain)
}

func TestDurationLabels(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "less than a minute"},
		{45 * time.Minute, "45 minutes"},
		{2 * time.Hour, "2 hours"},
		{24 * time.Hour, "1 day"},
		{7 * 24 * time.Hour, "1 week"},
		{31 * 24 * time.Hour, "1 month"},
		{90 * 24 * time.Hour, "3 months"},
		{400 * 24 * time.Hour, "1 year"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatDuration(tc.d), tc.d.String())
	}
}

package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC)

func newProposal() Document {
	return NewDocument(NewDocumentInput{
		TenantID:   uuid.New(),
		Title:      "Q3 proposal",
		Category:   CategoryProposal,
		TotalPages: 4,
		File:       FileInfo{FileName: "proposal.pdf", FilePath: "t/proposal_v1.pdf", FileSize: 1024, MimeType: "application/pdf"},
	}, now)
}

func activeCount(d Document) int {
	n := 0
	for _, v := range d.Versions {
		if v.IsActive {
			n++
		}
	}
	return n
}

func TestNewDocumentStartsWithActiveFirstVersion(t *testing.T) {
	d := newProposal()

	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, 1, d.CurrentVersion)
	require.Len(t, d.Versions, 1)
	assert.True(t, d.Versions[0].IsActive)
	assert.Equal(t, "proposal.pdf", d.FileName)
}

func TestVersioningKeepsExactlyOneActive(t *testing.T) {
	d := newProposal()
	user := uuid.New()

	d.AddVersion(FileInfo{FileName: "proposal-v2.pdf", FilePath: "t/p2.pdf", FileSize: 2048, MimeType: "application/pdf"}, "pricing fix", &user, now)
	d.AddVersion(FileInfo{FileName: "proposal-v3.pdf", FilePath: "t/p3.pdf", FileSize: 4096, MimeType: "application/pdf"}, "", &user, now)

	assert.Equal(t, 3, d.CurrentVersion)
	assert.Equal(t, 1, activeCount(d))
	assert.Equal(t, "t/p3.pdf", d.FilePath)

	require.NoError(t, d.RollbackToVersion(2))
	assert.Equal(t, 2, d.CurrentVersion)
	assert.Equal(t, 1, activeCount(d))
	assert.Equal(t, int64(2048), d.FileSize)
	active, ok := d.ActiveVersion()
	require.True(t, ok)
	assert.Equal(t, 2, active.VersionNumber)

	assert.ErrorIs(t, d.RollbackToVersion(9), ErrVersionNotFound)
	assert.Equal(t, 2, d.CurrentVersion)

	v := d.AddVersion(FileInfo{FileName: "proposal-v4.pdf"}, "", nil, now)
	assert.Equal(t, 4, v.VersionNumber)
	assert.Equal(t, 1, activeCount(d))
}

func TestTrackViewAggregatesPerViewer(t *testing.T) {
	d := newProposal()
	d.MarkSent()
	d.MarkSent()
	assert.Equal(t, StatusSent, d.Status)

	first := d.TrackView(ViewInput{
		ViewerEmail: "Buyer@Example.com",
		ViewTime:    200,
		Pages:       []PageView{{Page: 1, TimeSpent: 100}, {Page: 2, TimeSpent: 100}},
	}, now)
	again := d.TrackView(ViewInput{
		ViewerEmail: "buyer@example.com",
		ViewTime:    400,
		Pages:       []PageView{{Page: 1, TimeSpent: 50}, {Page: 2, TimeSpent: 50}, {Page: 3, TimeSpent: 150}, {Page: 4, TimeSpent: 150}},
	}, now.Add(time.Hour))

	assert.True(t, first)
	assert.False(t, again)
	assert.Equal(t, StatusViewed, d.Status)
	assert.Equal(t, 2, d.ViewCount)
	assert.Equal(t, 1, d.UniqueViewers)
	assert.Equal(t, 600, d.TotalViewTime)
	assert.InDelta(t, 300.0, d.AvgViewTime, 1e-9)
	assert.InDelta(t, 50.0, d.Engagement.OpenRate, 1e-9)
	assert.InDelta(t, 0.75, d.Engagement.CompletionRate, 1e-9)

	require.Len(t, d.Views, 1)
	assert.Equal(t, 2, d.Views[0].Sessions)
	assert.Equal(t, []int{1, 2, 3, 4}, d.Views[0].PagesViewed)

	require.Len(t, d.Engagement.HotSpots, 4)
	assert.Equal(t, 2, d.Engagement.HotSpots[0].Views)
	assert.InDelta(t, 75.0, d.Engagement.HotSpots[0].AvgTimeSpent, 1e-9)

	// 20 open + 22.5 completion + 15 time
	assert.Equal(t, 58, d.EngagementScore())
}

func TestEngagementScoreZeroUntilSent(t *testing.T) {
	d := newProposal()
	d.TrackView(ViewInput{ViewerEmail: "a@example.com", ViewTime: 600}, now)
	assert.Equal(t, 0, d.EngagementScore())
	assert.Zero(t, d.Engagement.OpenRate)
}

func TestTrackViewMatchesViewerID(t *testing.T) {
	d := newProposal()
	viewer := uuid.New()

	assert.True(t, d.TrackView(ViewInput{ViewerID: &viewer, ViewTime: 10}, now))
	assert.False(t, d.TrackView(ViewInput{ViewerID: &viewer, ViewTime: 10}, now))
	assert.True(t, d.TrackView(ViewInput{ViewerID: nil, ViewTime: 10}, now))
	assert.Equal(t, 2, d.UniqueViewers)
}

func TestTrackDownloadFlagsView(t *testing.T) {
	d := newProposal()
	d.TrackView(ViewInput{ViewerEmail: "buyer@example.com"}, now)

	d.TrackDownload(nil, "BUYER@example.com", now)
	d.TrackDownload(nil, "", now)

	assert.Equal(t, 2, d.DownloadCount)
	assert.Equal(t, now, *d.LastDownloadedAt)
	assert.True(t, d.Views[0].Downloaded)
}

func TestSignatureFlow(t *testing.T) {
	d := newProposal()
	require.ErrorIs(t, d.RequestSignatures(nil, now), ErrNoSigners)

	require.NoError(t, d.RequestSignatures([]Signer{{Email: "ceo@example.com"}, {Email: "CFO@example.com", Name: "CFO"}}, now))
	assert.Equal(t, StatusPendingSignature, d.Status)
	require.Len(t, d.Signatures, 2)

	_, err := d.RecordSignature("stranger@example.com", "10.0.0.1", now)
	assert.ErrorIs(t, err, ErrSignerNotFound)

	all, err := d.RecordSignature("ceo@example.com", "10.0.0.1", now)
	require.NoError(t, err)
	assert.False(t, all)
	assert.Equal(t, StatusPendingSignature, d.Status)

	_, err = d.RecordSignature("ceo@example.com", "10.0.0.1", now)
	assert.ErrorIs(t, err, ErrSignerNotFound)

	all, err = d.RecordSignature("cfo@example.com", "10.0.0.2", now)
	require.NoError(t, err)
	assert.True(t, all)
	assert.Equal(t, StatusSigned, d.Status)
}

func TestRequestingSignedSignerAgainKeepsDocumentSigned(t *testing.T) {
	d := newProposal()
	require.NoError(t, d.RequestSignatures([]Signer{{Email: "a@example.com"}}, now))
	all, err := d.RecordSignature("a@example.com", "10.0.0.1", now)
	require.NoError(t, err)
	require.True(t, all)

	require.NoError(t, d.RequestSignatures([]Signer{{Email: "A@example.com"}}, now))
	assert.Equal(t, StatusSigned, d.Status)
	assert.True(t, d.AllSigned())

	// A new signer reopens the request.
	require.NoError(t, d.RequestSignatures([]Signer{{Email: "a@example.com"}, {Email: "b@example.com"}}, now))
	assert.Equal(t, StatusPendingSignature, d.Status)
	all, err = d.RecordSignature("b@example.com", "10.0.0.2", now)
	require.NoError(t, err)
	assert.True(t, all)
	assert.Equal(t, StatusSigned, d.Status)
}

type fixedTokens string

func (f fixedTokens) Token() (string, error) { return string(f), nil }

func TestShareLinkAccess(t *testing.T) {
	d := newProposal()
	expires := now.Add(24 * time.Hour)
	maxViews := 2

	link, err := NewShareLink(fixedTokens("tok"), &d, ShareLinkOptions{
		Password:  "s3cret",
		ExpiresAt: &expires,
		MaxViews:  &maxViews,
	}, nil, now)
	require.NoError(t, err)
	assert.True(t, link.HasPassword())
	assert.NotEqual(t, "s3cret", link.PasswordHash)

	assert.NoError(t, link.CheckAccess(now, "s3cret"))
	assert.ErrorIs(t, link.CheckAccess(now, ""), ErrPasswordRequired)
	assert.ErrorIs(t, link.CheckAccess(now, "guess"), ErrWrongPassword)
	assert.ErrorIs(t, link.CheckAccess(expires, "s3cret"), ErrLinkExpired)

	link.CurrentViews = 2
	assert.ErrorIs(t, link.CheckAccess(now, "s3cret"), ErrLinkExhausted)

	link.CurrentViews = 0
	link.IsActive = false
	assert.ErrorIs(t, link.CheckAccess(now, "s3cret"), ErrLinkInactive)
}

func TestRandomTokensAreURLSafeAndDistinct(t *testing.T) {
	a, err := RandomTokens{}.Token()
	require.NoError(t, err)
	b, err := RandomTokens{}.Token()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}

package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-alert/internal/keywords"
	"github.com/jonathan/job-alert/internal/notify"
	"github.com/jonathan/job-alert/internal/scrape"
	"github.com/jonathan/job-alert/internal/types"
)

// fakeScraper returns one scripted outcome per attempt, repeating the last
// one once the script runs out.
type fakeScraper struct {
	source string
	script []func() ([]types.Posting, error)
	calls  int
}

func (f *fakeScraper) Source() string { return f.source }

func (f *fakeScraper) Scrape(ctx context.Context) ([]types.Posting, error) {
	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++
	return f.script[idx]()
}

func succeeding(source string, posts ...types.Posting) *fakeScraper {
	return &fakeScraper{source: source, script: []func() ([]types.Posting, error){
		func() ([]types.Posting, error) { return posts, nil },
	}}
}

func failing(source string, err error) *fakeScraper {
	return &fakeScraper{source: source, script: []func() ([]types.Posting, error){
		func() ([]types.Posting, error) { return nil, err },
	}}
}

// fakeStore implements StateStore and HeartbeatStore in memory with the same
// contract as the real store.
type fakeStore struct {
	mu       sync.Mutex
	notified map[types.PostKey]struct{}
	streaks  map[string]int
	meta     map[string]string

	markCalls  int
	runLogs    int
	failFilter error
	failMark   error
	failRecord error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notified: make(map[types.PostKey]struct{}),
		streaks:  make(map[string]int),
		meta:     make(map[string]string),
	}
}

func (f *fakeStore) FilterUnnotified(ctx context.Context, candidates []types.Posting) ([]types.Posting, error) {
	if f.failFilter != nil {
		return nil, f.failFilter
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Posting
	seen := make(map[types.PostKey]struct{})
	for _, p := range candidates {
		key := p.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := f.notified[key]; !ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotified(ctx context.Context, postings []types.Posting, notifiedAt time.Time) error {
	if f.failMark != nil {
		return f.failMark
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	for _, p := range postings {
		f.notified[p.Key()] = struct{}{}
	}
	return nil
}

func (f *fakeStore) RecordSiteOutcome(ctx context.Context, source string, succeeded bool, at time.Time) (int, error) {
	if f.failRecord != nil {
		return 0, f.failRecord
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if succeeded {
		f.streaks[source] = 0
	} else {
		f.streaks[source]++
	}
	return f.streaks[source], nil
}

func (f *fakeStore) LogRun(ctx context.Context, runAt time.Time, newCount, failedSiteCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runLogs++
	return nil
}

func (f *fakeStore) FailureStreak(ctx context.Context, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaks[source], nil
}

func (f *fakeStore) GetMeta(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta[key], nil
}

func (f *fakeStore) SetMeta(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[key] = value
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []notify.Summary
	err       error
}

func (f *fakeNotifier) Notify(ctx context.Context, summary notify.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.summaries = append(f.summaries, summary)
	return nil
}

func testFilter(t *testing.T) *keywords.Filter {
	t.Helper()
	filter, err := keywords.NewFilter(keywords.DefaultIncludes, keywords.DefaultExcludes)
	require.NoError(t, err)
	return filter
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, scrapers []scrape.Scraper, store *fakeStore, notifier *fakeNotifier) *Pipeline {
	t.Helper()
	return New(Config{
		RetryAttempts:  2,
		RetryDelay:     0,
		AlertThreshold: 2,
		TZ:             "Australia/Melbourne",
	}, scrapers, store, notifier, testFilter(t), testLogger())
}

func post(source, id, title string) types.Posting {
	return types.Posting{
		Source:       source,
		SourcePostID: id,
		Title:        title,
		URL:          "https://" + source + ".example/" + id,
		FetchedAt:    time.Now().UTC(),
	}
}

func TestRun_MixedSites(t *testing.T) {
	// Site A: two new postings plus one already notified. Site B: fails every
	// attempt with a pre-existing streak of 2 (threshold 2). Site C: succeeds
	// with nothing.
	alreadySent := post("woorimel", "wr_id:9", "건설 현장 경력직")
	newOne := post("woorimel", "wr_id:10", "건설 잡부 급구")
	newTwo := post("woorimel", "wr_id:11", "단기 데몰리션 인부")

	store := newFakeStore()
	store.notified[alreadySent.Key()] = struct{}{}
	store.streaks["melbsky"] = 2

	notifier := &fakeNotifier{}
	p := newTestPipeline(t, []scrape.Scraper{
		succeeding("woorimel", newOne, alreadySent, newTwo),
		failing("melbsky", errors.New("connection refused")),
		succeeding("hojubada"),
	}, store, notifier)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalCollected)
	assert.Len(t, result.NewPostings, 2)
	assert.Equal(t, 2, result.SuccessSites)
	assert.Equal(t, 1, result.FailedSites)
	assert.True(t, result.Sent)

	require.Len(t, notifier.summaries, 1)
	summary := notifier.summaries[0]
	assert.Len(t, summary.NewPostings, 2)
	require.Len(t, summary.Alerts, 1)
	assert.Equal(t, "melbsky", summary.Alerts[0].Source)
	assert.Equal(t, 3, summary.Alerts[0].Streak)

	assert.Equal(t, 0, store.streaks["woorimel"])
	assert.Equal(t, 0, store.streaks["hojubada"])
}

func TestRun_FailedSiteStreakCountsRunsNotAttempts(t *testing.T) {
	store := newFakeStore()
	store.streaks["melbsky"] = 2
	notifier := &fakeNotifier{}

	scraper := failing("melbsky", errors.New("boom"))
	p := newTestPipeline(t, []scrape.Scraper{scraper}, store, notifier)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	// Retry made two attempts, but the run records a single failure.
	assert.Equal(t, 2, scraper.calls)
	assert.Equal(t, 3, store.streaks["melbsky"])
	assert.False(t, result.Sent)
}

func TestRun_NoNewPostings_NeverNotifies(t *testing.T) {
	store := newFakeStore()
	store.streaks["melbsky"] = 5

	notifier := &fakeNotifier{}
	p := newTestPipeline(t, []scrape.Scraper{
		succeeding("woorimel"),
		failing("melbsky", errors.New("still down")),
		succeeding("hojubada"),
	}, store, notifier)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, notifier.summaries, "no new postings means no notification, whatever the streaks")
	assert.False(t, result.Sent)
	assert.Equal(t, 0, store.markCalls)
	assert.Equal(t, 6, store.streaks["melbsky"], "streak must still be recorded")
}

func TestRun_AllSitesFail_NoNotification(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, []scrape.Scraper{
		failing("woorimel", errors.New("a")),
		failing("melbsky", errors.New("b")),
		failing("hojubada", errors.New("c")),
	}, store, notifier)

	result, err := p.Run(context.Background())
	require.NoError(t, err, "site failures are data, not run failures")
	assert.Equal(t, 3, result.FailedSites)
	assert.Empty(t, notifier.summaries)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	posting := post("woorimel", "wr_id:77", "건설 인부 모집")
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, []scrape.Scraper{succeeding("woorimel", posting)}, store, notifier)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, first.NewPostings, 1)
	require.True(t, first.Sent)

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.NewPostings, "unchanged scrape results must yield zero new postings")
	assert.False(t, second.Sent)
	assert.Len(t, notifier.summaries, 1, "a posting appears in at most one payload, ever")
}

func TestRun_WithinBatchDuplicatesCollapse(t *testing.T) {
	dup := post("woorimel", "wr_id:5", "단기 알바 구함")
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, []scrape.Scraper{succeeding("woorimel", dup, dup, dup)}, store, notifier)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.NewPostings, 1, "a scraper bug repeating a key stays a single candidate")
}

func TestRun_ExcludedKeywordNeverRelevant(t *testing.T) {
	// Matches a default include and a default exclude at once; exclude wins.
	both := post("woorimel", "wr_id:8", "건설 현장 주방 보조")
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, []scrape.Scraper{succeeding("woorimel", both)}, store, notifier)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCollected)
	assert.Equal(t, 0, result.KeywordMatched)
	assert.Empty(t, notifier.summaries)
}

func TestRun_RetryRecoversTransientFailure(t *testing.T) {
	posting := post("woorimel", "wr_id:3", "잡부 모집")
	scraper := &fakeScraper{source: "woorimel", script: []func() ([]types.Posting, error){
		func() ([]types.Posting, error) { return nil, errors.New("transient") },
		func() ([]types.Posting, error) { return []types.Posting{posting}, nil },
	}}

	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, []scrape.Scraper{scraper}, store, notifier)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, scraper.calls)
	assert.Equal(t, 1, result.SuccessSites)
	assert.Equal(t, 0, store.streaks["woorimel"])
	assert.Len(t, result.NewPostings, 1)
}

func TestRun_StoreFailureIsFatalAndSendsNothing(t *testing.T) {
	posting := post("woorimel", "wr_id:4", "건설 잡부")
	store := newFakeStore()
	store.failFilter = errors.New("connection reset")
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, []scrape.Scraper{succeeding("woorimel", posting)}, store, notifier)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, notifier.summaries, "the pipeline must not guess dedupe state")
	assert.Equal(t, 0, store.markCalls)
}

func TestRun_MarkFailurePreventsSend(t *testing.T) {
	posting := post("woorimel", "wr_id:6", "건설 단기")
	store := newFakeStore()
	store.failMark = errors.New("write failed")
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, []scrape.Scraper{succeeding("woorimel", posting)}, store, notifier)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, notifier.summaries, "no payload without a confirmed commit")
}

func TestRun_DeliveryFailureStillCommits(t *testing.T) {
	posting := post("woorimel", "wr_id:12", "건설 현장직")
	store := newFakeStore()
	notifier := &fakeNotifier{err: errors.New("slack 500")}
	p := newTestPipeline(t, []scrape.Scraper{succeeding("woorimel", posting)}, store, notifier)

	result, err := p.Run(context.Background())
	require.NoError(t, err, "delivery failure is logged, not raised")
	assert.False(t, result.Sent)

	// The commit happened before delivery, so the posting never re-sends.
	notifier.err = nil
	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.NewPostings)
	assert.Empty(t, notifier.summaries)
}

func TestRun_StreakResetsAfterSuccess(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}

	runWith := func(s scrape.Scraper) {
		p := newTestPipeline(t, []scrape.Scraper{s}, store, notifier)
		_, err := p.Run(context.Background())
		require.NoError(t, err)
	}

	runWith(failing("melbsky", errors.New("down")))
	assert.Equal(t, 1, store.streaks["melbsky"])
	runWith(succeeding("melbsky"))
	assert.Equal(t, 0, store.streaks["melbsky"])
	runWith(failing("melbsky", errors.New("down again")))
	assert.Equal(t, 1, store.streaks["melbsky"], "streak restarts at 1 after any success")
}

func TestRunHeartbeat(t *testing.T) {
	store := newFakeStore()
	store.streaks["melbsky"] = 3
	notifier := &fakeNotifier{}
	sources := []string{"woorimel", "melbsky", "hojubada"}

	sent, err := RunHeartbeat(context.Background(), store, notifier, sources, "Australia/Melbourne", 2, testLogger())
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, notifier.summaries, 1)
	summary := notifier.summaries[0]
	assert.True(t, summary.Heartbeat)
	require.Len(t, summary.Alerts, 1)
	assert.Equal(t, "melbsky", summary.Alerts[0].Source)
	assert.NotEmpty(t, store.meta[NoNewHeartbeatMetaKey])

	// Immediately after sending, the heartbeat is not due again.
	sent, err = RunHeartbeat(context.Background(), store, notifier, sources, "Australia/Melbourne", 2, testLogger())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, notifier.summaries, 1)
}

package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

type stubFetcher struct {
	mu       sync.Mutex
	fetches  map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	fail     map[string]error
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{fetches: make(map[string]int)}
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (catalog.Page, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.fetches[url]++
	f.mu.Unlock()
	if err, ok := f.fail[url]; ok {
		return catalog.Page{}, err
	}
	return catalog.Page{URL: url, StatusCode: 200, Body: []byte("<html/>")}, nil
}

func (f *stubFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[url]
}

// stubSite returns a record named after the URL; extraction fails for
// URLs registered in broken.
type stubSite struct {
	broken map[string]error
	empty  map[string]bool
}

func (stubSite) Brand() string   { return "Rapsodia" }
func (stubSite) BaseURL() string { return "https://shop.example.com" }

func (stubSite) DiscoverProductURLs(string, []byte) ([]string, error)     { return nil, nil }
func (stubSite) DiscoverSubcategoryURLs(string, []byte) ([]string, error) { return nil, nil }
func (stubSite) HasProductMarkers([]byte) bool                            { return false }

func (s stubSite) ExtractProductDetails(pageURL string, _ []byte) (*catalog.ExtractedRecord, error) {
	if err, ok := s.broken[pageURL]; ok {
		return nil, err
	}
	rec := &catalog.ExtractedRecord{SourceURL: pageURL}
	if !s.empty[pageURL] {
		rec.Name = "item " + pageURL
	}
	return rec, nil
}

func (stubSite) NormalizeProductData(*catalog.ExtractedRecord) {}

func newTestExtractor(f catalog.Fetcher, s catalog.Site, cfg Config) *Extractor {
	return New(f, s, cfg, zap.NewNop())
}

func TestExtractor_DuplicateURLFetchedOnce(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	e := newTestExtractor(fetcher, stubSite{}, Config{BatchPause: time.Millisecond})

	const u = "https://shop.example.com/producto/11111111"
	outcomes, summary := e.Process(context.Background(), []string{u, u})

	require.Len(t, outcomes, 2)
	statuses := []catalog.OutcomeStatus{outcomes[0].Status, outcomes[1].Status}
	assert.ElementsMatch(t, []catalog.OutcomeStatus{catalog.OutcomeSuccess, catalog.OutcomeSkipped}, statuses)
	assert.Equal(t, 1, fetcher.count(u), "dedup guard must prevent a second fetch")
	assert.Equal(t, 2, summary.Processed)
	assert.Zero(t, summary.Failed)
}

func TestExtractor_OverlappingCallersRace(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.delay = 10 * time.Millisecond
	e := newTestExtractor(fetcher, stubSite{}, Config{})

	const u = "https://shop.example.com/producto/22222222"

	var wg sync.WaitGroup
	results := make([]catalog.Outcome, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.ExtractOne(context.Background(), u)
		}()
	}
	wg.Wait()

	successes := 0
	for _, o := range results {
		switch o.Status {
		case catalog.OutcomeSuccess:
			successes++
			require.NotNil(t, o.Record)
		case catalog.OutcomeSkipped:
			assert.Equal(t, "already processed", o.Reason)
		default:
			t.Fatalf("unexpected outcome %+v", o)
		}
	}
	assert.Equal(t, 1, successes, "exactly one caller wins the race")
	assert.Equal(t, 1, fetcher.count(u))
}

func TestExtractor_FailureLeavesURLEligible(t *testing.T) {
	t.Parallel()

	const u = "https://shop.example.com/producto/33333333"
	fetcher := newStubFetcher()
	fetcher.fail = map[string]error{u: catalog.Transient("fetch", u, errors.New("timeout"))}
	e := newTestExtractor(fetcher, stubSite{}, Config{})

	first := e.ExtractOne(context.Background(), u)
	require.Equal(t, catalog.OutcomeFailed, first.Status)

	// The failed URL was not marked extracted; a later attempt fetches
	// again and can succeed.
	fetcher.fail = nil
	second := e.ExtractOne(context.Background(), u)
	require.Equal(t, catalog.OutcomeSuccess, second.Status)
	assert.Equal(t, 2, fetcher.count(u))
}

func TestExtractor_ValidationFailureIsNotASuccess(t *testing.T) {
	t.Parallel()

	const u = "https://shop.example.com/producto/44444444"
	fetcher := newStubFetcher()
	site := stubSite{empty: map[string]bool{u: true}}
	e := newTestExtractor(fetcher, site, Config{})

	out := e.ExtractOne(context.Background(), u)
	require.Equal(t, catalog.OutcomeFailed, out.Status)
	assert.Contains(t, out.Reason, "neither name nor description")
}

func TestExtractor_ConcurrencyBounded(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.delay = 20 * time.Millisecond
	e := newTestExtractor(fetcher, stubSite{}, Config{MaxConcurrent: 3, BatchPause: time.Millisecond})

	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://shop.example.com/producto/%08d", i)
	}
	outcomes, summary := e.Process(context.Background(), urls)

	require.Len(t, outcomes, 12)
	assert.Equal(t, 12, summary.Successful)
	assert.LessOrEqual(t, fetcher.maxSeen.Load(), int32(3))
}

func TestExtractor_CancellationReturnsPartialOutcomes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	fetcher := newStubFetcher()
	e := newTestExtractor(fetcher, stubSite{}, Config{MaxConcurrent: 2, BatchPause: time.Hour})

	urls := []string{
		"https://shop.example.com/producto/00000001",
		"https://shop.example.com/producto/00000002",
		"https://shop.example.com/producto/00000003",
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	outcomes, _ := e.Process(ctx, urls)

	// The first batch completes; the batch pause is interrupted and no
	// further batch starts.
	assert.Len(t, outcomes, 2)
}

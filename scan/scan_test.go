package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketwatch/browse"
	"marketwatch/extract"
	"marketwatch/filter"
	"marketwatch/pkg/offer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSource serves canned HTML keyed by the query param of the requested URL.
type fakeSource struct {
	pages map[string]string // query value -> html
	fail  map[string]bool   // query value -> render error
	calls []string
}

func (f *fakeSource) Render(_ context.Context, pageURL string) (*browse.Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	q := u.Query().Get("query")
	f.calls = append(f.calls, q)
	if f.fail[q] {
		return nil, errors.New("navigation timeout")
	}
	html, ok := f.pages[q]
	if !ok {
		return nil, fmt.Errorf("no fixture for query %q", q)
	}
	return browse.NewDocument(pageURL, html)
}

// memRegistrar is an in-memory dedup store.
type memRegistrar struct {
	mu      sync.Mutex
	records map[string]offer.Record
	failIDs map[string]bool
}

func newMemRegistrar() *memRegistrar {
	return &memRegistrar{records: make(map[string]offer.Record)}
}

func (m *memRegistrar) TryRegister(_ context.Context, rec offer.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[rec.ID] {
		return false, errors.New("store unavailable")
	}
	if _, exists := m.records[rec.ID]; exists {
		return false, nil
	}
	m.records[rec.ID] = rec
	return true, nil
}

// recordingNotifier captures every notification.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []offer.Record
}

func (r *recordingNotifier) Notify(_ context.Context, rec offer.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, rec)
}

func listingPage(entries ...string) string {
	html := `<html><body>`
	for _, e := range entries {
		html += e
	}
	html += `</body></html>`
	return html
}

func tile(id, price, title string) string {
	return fmt.Sprintf(
		"<a href=\"/marketplace/item/%s/?tracking=1\">%s\n%s</a>", id, price, title)
}

func newTestController(t *testing.T, src Source, store Registrar, notifier Notifier, queries []offer.SearchQuery, opts filter.Options) *Controller {
	t.Helper()
	ex, err := extract.New("https://www.facebook.com", 15, discardLogger())
	require.NoError(t, err)
	return New(&Config{
		Source:     src,
		Extractor:  ex,
		Store:      store,
		Notifier:   notifier,
		Queries:    queries,
		SearchBase: "https://www.facebook.com/marketplace/category/search",
		FilterOpts: opts,
		Interval:   time.Minute,
		Logger:     discardLogger(),
	})
}

func intp(v int) *int { return &v }

func TestRunCycleRegistersAndNotifiesNewOffer(t *testing.T) {
	src := &fakeSource{pages: map[string]string{
		"bicicleta": listingPage(tile("1234567890123", "$45.000", "Bicicleta rodado 29")),
	}}
	store := newMemRegistrar()
	notifier := &recordingNotifier{}

	c := newTestController(t, src, store, notifier,
		[]offer.SearchQuery{{Query: "bicicleta", MinPrice: intp(10000), MaxPrice: intp(90000)}},
		filter.Options{})

	c.RunCycle(context.Background())

	require.Len(t, notifier.sent, 1)
	sent := notifier.sent[0]
	assert.Equal(t, "1234567890123", sent.ID)
	assert.Equal(t, "Bicicleta rodado 29", sent.Title)
	assert.Equal(t, 45000, sent.PriceNumeric)
	assert.Equal(t, offer.ConfidenceFull, sent.Confidence)

	rec, ok := store.records["1234567890123"]
	require.True(t, ok)
	assert.Equal(t, "https://www.facebook.com/marketplace/item/1234567890123/", rec.Link)
	assert.False(t, rec.FirstSeenAt.IsZero())
}

func TestRunCycleDuplicateIsSilent(t *testing.T) {
	src := &fakeSource{pages: map[string]string{
		"bicicleta": listingPage(tile("1234567890123", "$45.000", "Bicicleta rodado 29")),
	}}
	store := newMemRegistrar()
	notifier := &recordingNotifier{}

	c := newTestController(t, src, store, notifier,
		[]offer.SearchQuery{{Query: "bicicleta"}}, filter.Options{})

	c.RunCycle(context.Background())
	c.RunCycle(context.Background())

	assert.Len(t, notifier.sent, 1, "second sighting must not notify again")
	assert.Len(t, store.records, 1)
}

func TestRunCycleNegativeKeywordNeverReachesStore(t *testing.T) {
	src := &fakeSource{pages: map[string]string{
		"bicicleta": listingPage(
			tile("1111111111111", "$45.000", "Busco bicicleta urgente"),
			tile("2222222222222", "$45.000", "Bicicleta rodado 29"),
		),
	}}
	store := newMemRegistrar()
	notifier := &recordingNotifier{}

	c := newTestController(t, src, store, notifier,
		[]offer.SearchQuery{{Query: "bicicleta", MinPrice: intp(10000), MaxPrice: intp(90000)}},
		filter.Options{NegativeKeywords: []string{"busco"}})

	c.RunCycle(context.Background())

	_, rejected := store.records["1111111111111"]
	assert.False(t, rejected, "keyword-rejected offer must not be registered")
	_, accepted := store.records["2222222222222"]
	assert.True(t, accepted)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "2222222222222", notifier.sent[0].ID)
}

func TestRunCycleUnparseablePriceWithoutBoundsPasses(t *testing.T) {
	src := &fakeSource{pages: map[string]string{
		"heladera": listingPage(tile("3333333333333", "$Consultar precio", "Heladera con freezer")),
	}}
	store := newMemRegistrar()
	notifier := &recordingNotifier{}

	c := newTestController(t, src, store, notifier,
		[]offer.SearchQuery{{Query: "heladera"}}, filter.Options{})

	c.RunCycle(context.Background())

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, 0, notifier.sent[0].PriceNumeric)
	assert.Equal(t, "$Consultar precio", notifier.sent[0].PriceText)
}

func TestRunCycleOutOfRangeRejected(t *testing.T) {
	src := &fakeSource{pages: map[string]string{
		"bicicleta": listingPage(
			tile("4444444444444", "$5.000", "Bicicleta infantil"),
			tile("5555555555555", "$500.000", "Bicicleta de carbono"),
		),
	}}
	store := newMemRegistrar()
	notifier := &recordingNotifier{}

	c := newTestController(t, src, store, notifier,
		[]offer.SearchQuery{{Query: "bicicleta", MinPrice: intp(10000), MaxPrice: intp(90000)}},
		filter.Options{})

	c.RunCycle(context.Background())

	assert.Empty(t, store.records)
	assert.Empty(t, notifier.sent)
}

func TestRunCycleQueryFailureIsolated(t *testing.T) {
	src := &fakeSource{
		pages: map[string]string{
			"guitarra": listingPage(tile("6666666666666", "$120.000", "Guitarra criolla")),
		},
		fail: map[string]bool{"bicicleta": true},
	}
	store := newMemRegistrar()
	notifier := &recordingNotifier{}

	c := newTestController(t, src, store, notifier,
		[]offer.SearchQuery{{Query: "bicicleta"}, {Query: "guitarra"}}, filter.Options{})

	c.RunCycle(context.Background())

	assert.Equal(t, []string{"bicicleta", "guitarra"}, src.calls,
		"failing first query must not abort the cycle")
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "6666666666666", notifier.sent[0].ID)
}

func TestRunCycleRegistrationErrorSkipsNotification(t *testing.T) {
	src := &fakeSource{pages: map[string]string{
		"guitarra": listingPage(tile("7777777777777", "$120.000", "Guitarra criolla")),
	}}
	store := newMemRegistrar()
	store.failIDs = map[string]bool{"7777777777777": true}
	notifier := &recordingNotifier{}

	c := newTestController(t, src, store, notifier,
		[]offer.SearchQuery{{Query: "guitarra"}}, filter.Options{})

	c.RunCycle(context.Background())

	assert.Empty(t, notifier.sent, "unregistered offer must not notify")
}

func TestSearchURL(t *testing.T) {
	tests := []struct {
		name  string
		query offer.SearchQuery
		want  string
	}{
		{
			name:  "query only",
			query: offer.SearchQuery{Query: "bicicleta rodado 29"},
			want:  "https://www.facebook.com/marketplace/category/search?exact=false&query=bicicleta+rodado+29",
		},
		{
			name:  "with bounds",
			query: offer.SearchQuery{Query: "guitarra", MinPrice: intp(10000), MaxPrice: intp(90000)},
			want:  "https://www.facebook.com/marketplace/category/search?exact=false&maxPrice=90000&minPrice=10000&query=guitarra",
		},
		{
			name:  "min only",
			query: offer.SearchQuery{Query: "heladera", MinPrice: intp(50000)},
			want:  "https://www.facebook.com/marketplace/category/search?exact=false&minPrice=50000&query=heladera",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SearchURL("https://www.facebook.com/marketplace/category/search", tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	src := &fakeSource{pages: map[string]string{"x": listingPage()}}
	c := newTestController(t, src, newMemRegistrar(), &recordingNotifier{},
		[]offer.SearchQuery{{Query: "x"}}, filter.Options{})
	c.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

package intake

import (
	"context"
	"testing"

	"tariff_parser/internal/extractor"
	"tariff_parser/internal/storage"
)

type fakeTariffStore struct {
	rows    []storage.Tariff
	fail    bool
	archive bool
}

func (f *fakeTariffStore) UpsertTariff(_ context.Context, t storage.Tariff) (int64, bool, error) {
	if f.fail {
		return 0, false, context.DeadlineExceeded
	}
	f.rows = append(f.rows, t)
	return int64(len(f.rows)), f.archive, nil
}

type fakeEventStore struct {
	events []storage.ExtractionEvent
	scores [][]storage.StrategyScore
}

func (f *fakeEventStore) InsertEvent(_ context.Context, ev storage.ExtractionEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEventStore) InsertScores(_ context.Context, scores []storage.StrategyScore) error {
	f.scores = append(f.scores, scores)
	return nil
}

type fakeReviewQueue struct {
	items []storage.EnqueueParams
}

func (f *fakeReviewQueue) Enqueue(p storage.EnqueueParams) (int64, error) {
	f.items = append(f.items, p)
	return int64(len(f.items)), nil
}

func testWorker(t *testing.T, tariffs TariffStore, events EventStore, review ReviewQueue) *Worker {
	t.Helper()
	engine, err := extractor.New(extractor.Config{}, nil)
	if err != nil {
		t.Fatalf("extractor.New() error = %v", err)
	}
	return NewWorker(engine, tariffs, events, review, nil, Config{})
}

func TestProcessFlatDocument(t *testing.T) {
	tariffs := &fakeTariffStore{}
	events := &fakeEventStore{}
	review := &fakeReviewQueue{}
	w := testWorker(t, tariffs, events, review)

	line := `{"id":7,"supplier":"ACME Logistics","text":"EXW Shenzhen/Guangzhou - Moscow - $9500 per truck"}`
	res := w.Process(context.Background(), []byte(line))

	if res.Documents != 1 || res.Candidates != 2 || res.Stored != 2 {
		t.Fatalf("Process() = %+v, want 1 document, 2 candidates, 2 stored", res)
	}
	if res.Queued != 0 || len(review.items) != 0 {
		t.Errorf("successful extraction queued %d items for review, want 0", len(review.items))
	}

	if len(tariffs.rows) != 2 {
		t.Fatalf("stored %d rows, want 2", len(tariffs.rows))
	}
	row := tariffs.rows[0]
	if row.OriginCity != "Shenzhen" || row.DestinationCity != "Moscow" {
		t.Errorf("row route = %s -> %s, want Shenzhen -> Moscow", row.OriginCity, row.DestinationCity)
	}
	if row.Supplier != "ACME Logistics" || row.DocumentID != 7 {
		t.Errorf("row supplier/document = %q/%d, want ACME Logistics/7", row.Supplier, row.DocumentID)
	}
	if row.PriceUSD == nil || row.PriceUSD.String() != "9500" {
		t.Errorf("row price_usd = %v, want 9500", row.PriceUSD)
	}

	if len(events.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(events.events))
	}
	ev := events.events[0]
	if ev.Strategy != "ftl_tariff" || ev.Candidates != 2 {
		t.Errorf("event = %s/%d candidates, want ftl_tariff/2", ev.Strategy, ev.Candidates)
	}
	if len(events.scores) != 1 || len(events.scores[0]) != 5 {
		t.Errorf("recorded scores = %v, want one batch of 5", events.scores)
	}
}

func TestProcessNATSWrapper(t *testing.T) {
	tariffs := &fakeTariffStore{}
	w := testWorker(t, tariffs, nil, nil)

	line := `{"sender":{"company":"Far East Lines"},"document":{"id":"12","transport_hint":"air","text":"HKG-PEK D1357 8.90 5.50 4.85 4.57"}}`
	res := w.Process(context.Background(), []byte(line))

	if res.Documents != 1 || res.Candidates != 1 || res.Stored != 1 {
		t.Fatalf("Process() = %+v, want 1/1/1", res)
	}
	row := tariffs.rows[0]
	if row.OriginCity != "Hong Kong" || row.DestinationCity != "Beijing" {
		t.Errorf("row route = %s -> %s, want Hong Kong -> Beijing", row.OriginCity, row.DestinationCity)
	}
	// Supplier falls back to the sender company from the wrapper.
	if row.Supplier != "Far East Lines" {
		t.Errorf("row supplier = %q, want Far East Lines", row.Supplier)
	}
	if row.TransportType != "air" {
		t.Errorf("row transport = %q, want air", row.TransportType)
	}
}

func TestProcessEmptyExtractionGoesToReview(t *testing.T) {
	review := &fakeReviewQueue{}
	w := testWorker(t, nil, nil, review)

	line := `{"id":3,"text":"уважаемые коллеги, высылаем общие условия сотрудничества"}`
	res := w.Process(context.Background(), []byte(line))

	if res.Documents != 1 || res.Candidates != 0 {
		t.Fatalf("Process() = %+v, want 1 document, 0 candidates", res)
	}
	if res.Queued != 1 || len(review.items) != 1 {
		t.Fatalf("queued = %d items, want 1", len(review.items))
	}
	if review.items[0].DocumentID != 3 {
		t.Errorf("queued document_id = %d, want 3", review.items[0].DocumentID)
	}
	if review.items[0].ReceivedAt == "" {
		t.Error("queued item has no received_at timestamp")
	}
}

func TestProcessGarbageMessage(t *testing.T) {
	w := testWorker(t, nil, nil, nil)
	for _, payload := range []string{"", "not json", `{"no":"text"}`} {
		res := w.Process(context.Background(), []byte(payload))
		if res.Documents != 0 {
			t.Errorf("Process(%q) decoded %d documents, want 0", payload, res.Documents)
		}
	}
}

func TestProcessStoreFailureContinues(t *testing.T) {
	tariffs := &fakeTariffStore{fail: true}
	events := &fakeEventStore{}
	w := testWorker(t, tariffs, events, nil)

	line := `{"id":9,"text":"EXW Shenzhen - Moscow - $9500 per truck"}`
	res := w.Process(context.Background(), []byte(line))

	if res.Candidates != 1 || res.Stored != 0 {
		t.Fatalf("Process() = %+v, want 1 candidate, 0 stored", res)
	}
	// The analytics event is still recorded.
	if len(events.events) != 1 {
		t.Errorf("recorded %d events, want 1", len(events.events))
	}
}

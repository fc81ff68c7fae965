// Package intake runs the document intake worker: it subscribes to a
// NATS subject carrying extracted document text, runs the tariff
// engine on each message and hands the results to the stores.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"tariff_parser/internal/document"
	"tariff_parser/internal/extractor"
	"tariff_parser/internal/logger"
	"tariff_parser/internal/storage"
)

// Config holds the NATS subscription settings.
type Config struct {
	URL     string // NATS server URL.
	Subject string // Subject carrying document JSON.
	Queue   string // Queue group; workers in the same group share the load.
}

// DefaultConfig returns the local development settings.
func DefaultConfig() Config {
	return Config{
		URL:     nats.DefaultURL,
		Subject: "tariffs.documents",
		Queue:   "tariff-intake",
	}
}

// TariffStore persists extracted tariffs. *storage.PostgresDB satisfies it.
type TariffStore interface {
	UpsertTariff(ctx context.Context, t storage.Tariff) (int64, bool, error)
}

// EventStore records extraction analytics. *storage.ClickHouseDB satisfies it.
type EventStore interface {
	InsertEvent(ctx context.Context, ev storage.ExtractionEvent) error
	InsertScores(ctx context.Context, scores []storage.StrategyScore) error
}

// ReviewQueue receives extractions that need operator attention.
// *storage.ReviewDB satisfies it.
type ReviewQueue interface {
	Enqueue(p storage.EnqueueParams) (int64, error)
}

// Worker consumes document messages and runs extraction on them. Any
// of the stores may be nil; the corresponding step is then skipped,
// which makes a log-only dry run possible.
type Worker struct {
	engine  *extractor.Engine
	tariffs TariffStore
	events  EventStore
	review  ReviewQueue
	log     logger.Logger
	cfg     Config
}

// NewWorker builds an intake worker over the given engine and stores.
func NewWorker(engine *extractor.Engine, tariffs TariffStore, events EventStore, review ReviewQueue, log logger.Logger, cfg Config) *Worker {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if cfg.Queue == "" {
		cfg.Queue = def.Queue
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{
		engine:  engine,
		tariffs: tariffs,
		events:  events,
		review:  review,
		log:     log,
		cfg:     cfg,
	}
}

// Run connects to NATS and consumes documents until the context is
// cancelled. The subscription drains on shutdown so in-flight
// messages finish.
func (w *Worker) Run(ctx context.Context) error {
	nc, err := nats.Connect(w.cfg.URL,
		nats.Name("tariff-intake"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			w.log.Warnf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			w.log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to nats %s: %w", w.cfg.URL, err)
	}
	defer nc.Close()

	sub, err := nc.QueueSubscribe(w.cfg.Subject, w.cfg.Queue, func(msg *nats.Msg) {
		w.Process(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", w.cfg.Subject, err)
	}

	w.log.Infof("intake worker listening on %s (queue %s)", w.cfg.Subject, w.cfg.Queue)
	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		w.log.Warnf("drain subscription: %v", err)
	}
	return nil
}

// Result summarizes what one message produced.
type Result struct {
	Documents  int // Documents decoded from the message.
	Candidates int // Candidates extracted across all documents.
	Stored     int // Tariff rows written.
	Archived   int // Stored rows that superseded a previous version.
	Queued     int // Documents sent to the review queue.
}

// Process decodes one message payload and runs extraction plus
// persistence for every document in it. Store failures are logged and
// skipped; a bad message never takes the worker down.
func (w *Worker) Process(ctx context.Context, data []byte) Result {
	var res Result

	docs, kind := document.Decode(data)
	if len(docs) == 0 {
		w.log.Debugf("message carried no document text (%d bytes)", len(data))
		return res
	}
	res.Documents = len(docs)

	for _, doc := range docs {
		w.processDocument(ctx, doc, kind, &res)
	}
	return res
}

func (w *Worker) processDocument(ctx context.Context, doc *document.Document, kind string, res *Result) {
	started := time.Now()

	best, traces := w.engine.Detect(doc.Text)
	candidates := w.engine.Extract(doc.Text, extractor.Options{
		TransportHint: doc.TransportHint,
		Supplier:      doc.Supplier,
	})
	res.Candidates += len(candidates)

	strategy := best.Name
	transport := string(best.Transport)
	var confidence float64
	for _, tr := range traces {
		if tr.Selected {
			confidence = tr.Confidence
		}
	}
	// A transport hint bypasses detection; report the strategy that
	// actually produced the candidates.
	if len(candidates) > 0 {
		strategy = candidates[0].SourceStrategy
		transport = string(candidates[0].TransportType)
	}

	if w.tariffs != nil {
		for i := range candidates {
			row := storage.TariffFromCandidate(&candidates[i], int64(doc.ID), doc.FileName)
			_, archived, err := w.tariffs.UpsertTariff(ctx, row)
			if err != nil {
				w.log.Errorf("store tariff %s -> %s: %v", row.OriginCity, row.DestinationCity, err)
				continue
			}
			res.Stored++
			if archived {
				res.Archived++
			}
		}
	}

	if w.events != nil {
		ev := storage.ExtractionEvent{
			DocumentID: uint64(doc.ID),
			Timestamp:  started.UTC(),
			Supplier:   doc.Supplier,
			Source:     doc.Source,
			Strategy:   strategy,
			Transport:  transport,
			Confidence: float32(confidence),
			Candidates: uint8(min(len(candidates), 255)),
			TextSample: doc.Text,
			TextLength: uint32(len(doc.Text)),
			DurationMS: uint32(time.Since(started).Milliseconds()),
		}
		if err := w.events.InsertEvent(ctx, ev); err != nil {
			w.log.Errorf("record extraction event: %v", err)
		}
		scores := make([]storage.StrategyScore, 0, len(traces))
		for _, tr := range traces {
			scores = append(scores, storage.StrategyScore{
				DocumentID: uint64(doc.ID),
				Timestamp:  started.UTC(),
				Strategy:   tr.Name,
				Transport:  string(tr.Transport),
				Matched:    uint32(tr.Matched),
				Total:      uint32(tr.Total),
				Confidence: float32(tr.Confidence),
				Selected:   tr.Selected,
			})
		}
		if err := w.events.InsertScores(ctx, scores); err != nil {
			w.log.Errorf("record strategy scores: %v", err)
		}
	}

	// Documents that produced nothing go to review: either the text is
	// junk or the patterns missed a real rate sheet.
	if w.review != nil && len(candidates) == 0 {
		receivedAt := doc.ReceivedAt
		if receivedAt == "" {
			receivedAt = started.UTC().Format(time.RFC3339)
		}
		_, err := w.review.Enqueue(storage.EnqueueParams{
			DocumentID: int64(doc.ID),
			ReceivedAt: receivedAt,
			Supplier:   doc.Supplier,
			Strategy:   strategy,
			Transport:  transport,
			RawText:    doc.Text,
			Candidates: candidates,
			Confidence: confidence,
		})
		if err != nil {
			w.log.Errorf("enqueue for review: %v", err)
		} else {
			res.Queued++
		}
	}

	w.log.Infof("document %d (%s): strategy=%s candidates=%d in %s",
		doc.ID, kind, strategy, len(candidates), time.Since(started))
}

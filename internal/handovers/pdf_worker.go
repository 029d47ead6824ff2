package handovers

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/pkg/pdf"
	"propertyhub/owner-portal/owner-portal-backend/pkg/storage"
)

const (
	sweepBatch = 100
	pdfTimeout = 2 * time.Minute
)

// PDFQueue is a bounded job queue of handovers awaiting a certificate.
type PDFQueue struct {
	jobs chan uuid.UUID
}

func NewPDFQueue(size int) *PDFQueue {
	if size <= 0 {
		size = 64
	}
	return &PDFQueue{jobs: make(chan uuid.UUID, size)}
}

// Enqueue never blocks; a full queue leaves the job to the sweep.
func (q *PDFQueue) Enqueue(id uuid.UUID) bool {
	select {
	case q.jobs <- id:
		return true
	default:
		return false
	}
}

// PDFWorker renders acceptance certificates, stores them and records their URL.
type PDFWorker struct {
	queue     *PDFQueue
	repo      Repository
	service   Service
	storage   storage.S3Client
	generator pdf.Generator
	logger    *zap.Logger

	cron     *cron.Cron
	inflight sync.Map
	wg       sync.WaitGroup
}

func NewPDFWorker(queue *PDFQueue, repo Repository, service Service, store storage.S3Client, generator pdf.Generator, logger *zap.Logger) *PDFWorker {
	return &PDFWorker{
		queue:     queue,
		repo:      repo,
		service:   service,
		storage:   store,
		generator: generator,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start launches concurrency consumers and the recovery sweep on schedule.
// Consumers stop when ctx is cancelled; call Stop to wait for them.
func (w *PDFWorker) Start(ctx context.Context, concurrency int, schedule string) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	if schedule != "" {
		if _, err := w.cron.AddFunc(schedule, func() { w.Sweep(ctx) }); err != nil {
			return fmt.Errorf("invalid pdf sweep schedule %q: %w", schedule, err)
		}
		w.cron.Start()
	}

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.consume(ctx)
	}
	w.logger.Info("PDF worker started",
		zap.Int("concurrency", concurrency),
		zap.String("sweep", schedule))
	return nil
}

// Stop waits for the sweep and consumers to finish; cancel the Start context first.
func (w *PDFWorker) Stop() {
	<-w.cron.Stop().Done()
	w.wg.Wait()
	w.logger.Info("PDF worker stopped")
}

func (w *PDFWorker) consume(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.queue.jobs:
			if _, busy := w.inflight.LoadOrStore(id, struct{}{}); busy {
				continue
			}
			jobCtx, cancel := context.WithTimeout(ctx, pdfTimeout)
			if err := w.Process(jobCtx, id); err != nil {
				w.logger.Error("Failed to generate handover certificate",
					zap.String("handover_id", id.String()),
					zap.Error(err))
			}
			cancel()
			w.inflight.Delete(id)
		}
	}
}

// Sweep re-enqueues accepted handovers that still have no certificate.
func (w *PDFWorker) Sweep(ctx context.Context) int {
	ids, err := w.repo.ListMissingPDF(ctx, sweepBatch)
	if err != nil {
		w.logger.Warn("PDF sweep failed", zap.Error(err))
		return 0
	}
	queued := 0
	for _, id := range ids {
		if _, busy := w.inflight.Load(id); busy {
			continue
		}
		if w.queue.Enqueue(id) {
			queued++
		}
	}
	if queued > 0 {
		w.logger.Info("PDF sweep queued handovers", zap.Int("count", queued))
	}
	return queued
}

// Process renders and stores the certificate for one handover. It is a
// no-op unless the handover is accepted and has no certificate yet.
func (w *PDFWorker) Process(ctx context.Context, id uuid.UUID) error {
	h, err := w.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if h.Status != StatusAccepted || (h.PDFURL != nil && *h.PDFURL != "") {
		return nil
	}
	if w.storage == nil {
		return fmt.Errorf("object storage is not configured")
	}

	owner := h.OwnerID.String()
	if user, err := w.repo.GetUser(ctx, h.OwnerID); err == nil {
		owner = user.Name + " <" + user.Email + ">"
	}

	data, err := w.generator.Render(ctx, Certificate(h, owner))
	if err != nil {
		return fmt.Errorf("render certificate: %w", err)
	}

	key := fmt.Sprintf("handovers/%s/handover-%s.pdf", h.ID, h.ID)
	url, err := w.storage.Upload(ctx, key, bytes.NewReader(data), "application/pdf")
	if err != nil {
		return fmt.Errorf("upload certificate: %w", err)
	}

	if _, err := w.service.RecordPDF(ctx, h.ID, url); err != nil {
		return fmt.Errorf("record certificate: %w", err)
	}
	return nil
}

// Certificate lays out the acceptance certificate of h.
func Certificate(h *Handover, owner string) pdf.Document {
	doc := pdf.Document{
		Title:    "Unit Handover Certificate",
		Subtitle: "Handover " + h.ID.String(),
		Author:   "Owner Portal",
		Fields: []pdf.Field{
			{Label: "Unit", Value: h.UnitID.String()},
			{Label: "Owner", Value: owner},
			{Label: "Status", Value: string(h.Status)},
			{Label: "Scheduled", Value: stamp(h.ScheduledAt)},
			{Label: "Sent to owner", Value: stamp(h.SentAt)},
			{Label: "Accepted", Value: stamp(h.OwnerAcceptedAt)},
			{Label: "Handed over", Value: stamp(h.HandoverAt)},
		},
		Footer: "Generated by the owner portal",
	}
	if h.HandoverAt != nil {
		doc.CreatedAt = *h.HandoverAt
	}

	table := &pdf.Table{
		Headers: []string{"#", "Category", "Item", "Expected", "Actual", "Status", "Notes"},
		Widths:  []float64{8, 26, 42, 24, 24, 16, 40},
	}
	for _, it := range h.Items {
		table.Rows = append(table.Rows, []string{
			fmt.Sprint(it.SortOrder + 1), it.Category, it.Label,
			it.ExpectedValue, it.ActualValue, string(it.Status), it.Notes,
		})
	}
	doc.Table = table

	if h.Notes != "" {
		doc.Paragraphs = append(doc.Paragraphs, "Notes: "+h.Notes)
	}
	if h.Acknowledgement != "" {
		doc.Paragraphs = append(doc.Paragraphs, "Owner acknowledgement: "+h.Acknowledgement)
	}
	return doc
}

func stamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

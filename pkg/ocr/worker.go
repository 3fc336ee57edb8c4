package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/karbonuyum/platform/pkg/artifacts"
	"github.com/karbonuyum/platform/pkg/domain"
	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/observability"
	"github.com/karbonuyum/platform/pkg/store"
)

// Worker processes invoice.uploaded events: rasterize if needed, detect
// text, parse, store the extraction. Detection failures return an error so
// the runtime retries with the configured backoff; the invoice only moves to
// failed once retries are spent, via the terminal-failure hook.
type Worker struct {
	invoices   *store.InvoiceStore
	eventLog   *store.EventLogStore
	detector   TextDetector
	rasterizer Rasterizer
	artifacts  artifacts.Store
	notify     func(ctx context.Context, n *domain.Notification) error
	metrics    *observability.Metrics
	log        *slog.Logger
}

func NewWorker(
	invoices *store.InvoiceStore,
	eventLog *store.EventLogStore,
	detector TextDetector,
	rasterizer Rasterizer,
	artifactStore artifacts.Store,
	notify func(ctx context.Context, n *domain.Notification) error,
	metrics *observability.Metrics,
	log *slog.Logger,
) *Worker {
	return &Worker{
		invoices:   invoices,
		eventLog:   eventLog,
		detector:   detector,
		rasterizer: rasterizer,
		artifacts:  artifactStore,
		notify:     notify,
		metrics:    metrics,
		log:        log,
	}
}

// HandleInvoiceUploaded runs the pipeline for one invoice.
func (w *Worker) HandleInvoiceUploaded(ctx context.Context, payload []byte) error {
	var ev events.InvoiceUploaded
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("ocr: decode invoice event: %w", err)
	}

	inv, err := w.invoices.ByID(ctx, ev.InvoiceID)
	if err != nil {
		return fmt.Errorf("ocr: load invoice %d: %w", ev.InvoiceID, err)
	}
	switch inv.Status {
	case domain.InvoicePending:
		if err := w.invoices.Transition(ctx, inv.ID, domain.InvoiceProcessing); err != nil {
			return fmt.Errorf("ocr: start processing invoice %d: %w", inv.ID, err)
		}
	case domain.InvoiceProcessing:
		// A retry after an earlier attempt errored; pick up where it left off.
	default:
		w.log.Info("invoice already handled", "invoice_id", inv.ID, "status", inv.Status)
		return w.eventLog.Append(ctx, ev.EventID, ev.EventType, "skipped")
	}

	text, err := w.readText(ctx, inv)
	if err != nil {
		return fmt.Errorf("ocr: invoice %d: %w", inv.ID, err)
	}

	ext := Parse(text)
	result := store.OCRResult{
		ActivityType: ext.ActivityType,
		Quantity:     ext.Quantity,
		CostTL:       ext.CostTL,
		StartDate:    ext.StartDate,
		EndDate:      ext.EndDate,
		RawText:      text,
		Confidence:   ext.Confidence,
	}
	if err := w.invoices.Complete(ctx, inv.ID, result); err != nil {
		return fmt.Errorf("ocr: complete invoice %d: %w", inv.ID, err)
	}
	w.notifyDone(ctx, inv, ext)

	w.metrics.OCRConfidence.Record(ctx, ext.Confidence)
	w.log.Info("invoice processed",
		"invoice_id", inv.ID,
		"confidence", ext.Confidence,
		"uncertain", ext.Uncertain())
	return w.eventLog.Append(ctx, ev.EventID, ev.EventType, "processed")
}

// MarkTerminalFailure records the error on the invoice once retries are
// spent. The worker runtime calls this right before dead-lettering.
func (w *Worker) MarkTerminalFailure(ctx context.Context, payload []byte, cause error) {
	var ev events.InvoiceUploaded
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	if err := w.invoices.Fail(ctx, ev.InvoiceID, cause.Error()); err != nil {
		w.log.Error("failed to record invoice failure", "invoice_id", ev.InvoiceID, "error", err)
	}
}

func (w *Worker) notifyDone(ctx context.Context, inv *domain.Invoice, ext Extraction) {
	if w.notify == nil {
		return
	}
	message := fmt.Sprintf("%s faturası işlendi, çıkarılan verileri onaylayabilirsiniz.", inv.Filename)
	if ext.Uncertain() {
		message = fmt.Sprintf("%s faturası işlendi ancak güven puanı düşük, lütfen çıkarılan verileri kontrol edin.", inv.Filename)
	}
	n := &domain.Notification{
		UserID:     inv.UserID,
		Kind:       "invoice_processed",
		Title:      "Faturanız işlendi",
		Message:    message,
		FacilityID: &inv.FacilityID,
	}
	if err := w.notify(ctx, n); err != nil {
		w.log.Warn("invoice notification failed", "invoice_id", inv.ID, "error", err)
	}
}

func (w *Worker) readText(ctx context.Context, inv *domain.Invoice) (string, error) {
	image, err := w.artifacts.Get(ctx, inv.FilePath)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if strings.EqualFold(inv.MimeType, "application/pdf") {
		image, err = w.rasterizer.FirstPagePNG(ctx, image)
		if err != nil {
			return "", err
		}
	}
	text, err := w.detector.DetectText(ctx, image)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text detected")
	}
	return text, nil
}

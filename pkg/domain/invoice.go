package domain

import (
	"fmt"
	"time"
)

// InvoiceStatus is the OCR pipeline state of an uploaded bill.
type InvoiceStatus string

const (
	InvoicePending    InvoiceStatus = "pending"
	InvoiceProcessing InvoiceStatus = "processing"
	InvoiceCompleted  InvoiceStatus = "completed"
	InvoiceVerified   InvoiceStatus = "verified"
	InvoiceFailed     InvoiceStatus = "failed"
)

// invoiceTransitions enumerates the legal state machine:
//
//	pending → processing → completed → verified
//	                     → failed
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoicePending:    {InvoiceProcessing},
	InvoiceProcessing: {InvoiceCompleted, InvoiceFailed},
	InvoiceCompleted:  {InvoiceVerified},
}

// CanTransition reports whether from → to is a legal invoice transition.
func (s InvoiceStatus) CanTransition(to InvoiceStatus) bool {
	for _, next := range invoiceTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s InvoiceStatus) Terminal() bool {
	return len(invoiceTransitions[s]) == 0
}

// Invoice is an uploaded utility bill moving through the OCR pipeline.
// Extracted fields stay nil until the OCR worker fills them.
type Invoice struct {
	ID                    int64
	FacilityID            int64
	UserID                int64
	Filename              string
	FilePath              string
	MimeType              string
	Status                InvoiceStatus
	ExtractedActivityType *ActivityType
	ExtractedQuantity     *float64
	ExtractedCostTL       *float64
	ExtractedStartDate    *time.Time
	ExtractedEndDate      *time.Time
	ExtractedText         *string
	Confidence            float64
	ActivityDataID        *int64
	UploadedAt            time.Time
	ProcessedAt           *time.Time
}

// ReportType identifies a generated artifact kind.
type ReportType string

const (
	ReportCBAMXML     ReportType = "cbam_xml"
	ReportROIAnalysis ReportType = "roi_analysis"
	ReportCombined    ReportType = "combined"
)

// ReportStatus is the lifecycle of a report request.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportProcessing ReportStatus = "processing"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
	ReportExpired    ReportStatus = "expired"
)

// Report is an asynchronously generated artifact. Completed report files are
// deleted after ExpiresAt; the row persists as expired.
type Report struct {
	ID                  int64
	CompanyID           int64
	UserID              int64
	ReportType          ReportType
	PeriodName          string
	StartDate           time.Time
	EndDate             time.Time
	Status              ReportStatus
	TaskID              string
	FilePath            *string
	FileSizeBytes       *int64
	DownloadCount       int
	TotalSavingsTL      *float64
	ErrorMessage        *string
	NotifyUserWhenReady bool
	RequestedAt         *time.Time
	CompletedAt         *time.Time
	ExpiresAt           *time.Time
	CreatedAt           time.Time
}

// QuarterName renders a "2024-Q1" style period label for a start date.
func QuarterName(start time.Time) string {
	return fmt.Sprintf("%d-Q%d", start.Year(), (int(start.Month())-1)/3+1)
}

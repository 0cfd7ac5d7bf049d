package models

import (
	"strings"
	"time"
)

// Scan modes
const (
	ModeKeyword = "keyword"
	ModeRules   = "rules"
)

// Attachment describes a file attached to an email
type Attachment struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	AttachmentID string `json:"attachment_id"`
	Size         int64  `json:"size"`
}

// IsPDF reports whether the attachment is a PDF file
func (a Attachment) IsPDF() bool {
	return strings.HasSuffix(strings.ToLower(a.Filename), ".pdf") ||
		strings.EqualFold(a.MimeType, "application/pdf")
}

// Email holds the parts of a Gmail message the scanner works with
type Email struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"thread_id"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments"`
}

// PDFAttachments returns the PDF attachments in message order
func (e Email) PDFAttachments() []Attachment {
	var pdfs []Attachment
	for _, a := range e.Attachments {
		if a.IsPDF() {
			pdfs = append(pdfs, a)
		}
	}
	return pdfs
}

// HasPDF reports whether the email carries at least one PDF attachment
func (e Email) HasPDF() bool {
	return len(e.PDFAttachments()) > 0
}

// KeywordAnalysis is the result of matching resume text against search keywords
type KeywordAnalysis struct {
	Qualified        bool     `json:"qualified"`
	MatchPercentage  float64  `json:"match_percentage"` // 0-1
	Threshold        float64  `json:"threshold"`
	TotalKeywords    int      `json:"total_keywords"`
	MatchingKeywords []string `json:"matching_keywords"`
	MissingKeywords  []string `json:"missing_keywords"`
}

// MessageOutcome records what happened to a single email during a scan
type MessageOutcome struct {
	MessageID       string  `json:"message_id"`
	Subject         string  `json:"subject"`
	From            string  `json:"from"`
	PDFFilename     string  `json:"pdf_filename,omitempty"`
	Label           string  `json:"label,omitempty"`
	Qualified       bool    `json:"qualified"`
	MatchPercentage float64 `json:"match_percentage,omitempty"`
	Skipped         string  `json:"skipped,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Labeled reports whether a label was applied (or would be, in a dry run)
func (o MessageOutcome) Labeled() bool {
	return o.Label != ""
}

// ScanReport summarises a scan run
type ScanReport struct {
	RunID       string           `json:"run_id"`
	Mode        string           `json:"mode"`
	Criteria    string           `json:"criteria"`
	Query       string           `json:"query"`
	DryRun      bool             `json:"dry_run"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Scanned     int              `json:"scanned"`
	Labeled     int              `json:"labeled"`
	LabelCounts map[string]int   `json:"label_counts"`
	Rules       []Rule           `json:"rules,omitempty"`
	Outcomes    []MessageOutcome `json:"outcomes"`
	Evaluator   string           `json:"evaluator,omitempty"`
	LLMProvider string           `json:"llm_provider,omitempty"`
}

// Unlabeled returns how many scanned emails were left without a label
func (r ScanReport) Unlabeled() int {
	return r.Scanned - r.Labeled
}

// ScanRequest is the payload accepted by the HTTP surface
type ScanRequest struct {
	Criteria string `json:"criteria"`
	Mode     string `json:"mode"`
	DryRun   bool   `json:"dry_run"`
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/archive"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/config"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/extract"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/gmail"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/rules"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/scoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyCriteria is returned for blank search criteria or prompts
	ErrEmptyCriteria = errors.New("criteria must not be empty")
	// ErrNoReport is returned before the first scan has finished
	ErrNoReport = errors.New("no results available, run a scan first")
)

// Outcome reasons for emails that were not evaluated
const (
	SkipNoPDF       = "no pdf attachment"
	SkipUnreadable  = "pdf text could not be extracted"
	SkipAlreadyDone = "already processed"
)

const (
	evaluatorLocal   = config.EvaluationLocal
	evaluatorLLM     = config.EvaluationLLM
	evaluatorKeyword = "keyword"
)

// ProgressCallback is called to report progress during processing
type ProgressCallback func(current, total int, message string)

// Mailbox is the subset of the Gmail client the scanner uses
type Mailbox interface {
	Search(ctx context.Context, query string, max int) ([]models.Email, error)
	Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	EnsureLabel(ctx context.Context, name string) (string, error)
	AddLabel(ctx context.Context, messageID, labelID string) error
}

// History remembers which messages earlier runs already handled
type History interface {
	Processed(ctx context.Context, messageID, criteria string) (bool, error)
	RecordRun(ctx context.Context, report models.ScanReport) error
}

// Options control a scan
type Options struct {
	Query               string
	MaxEmails           int
	DryRun              bool
	SkipProcessed       bool
	ProcessOnlyFirstPDF bool
	DeleteLabel         string
	RuleEvaluation      string
	// RequestDelay is the pause between consecutive LLM calls
	RequestDelay time.Duration
	// LabelDelay is the pause after each label change
	LabelDelay time.Duration
}

// OptionsFromConfig copies the scan settings out of the configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Query:               cfg.SearchQuery,
		MaxEmails:           cfg.MaxEmails,
		ProcessOnlyFirstPDF: cfg.ProcessOnlyFirstPDF,
		DeleteLabel:         cfg.DeleteLabel,
		RuleEvaluation:      cfg.RuleEvaluation,
		RequestDelay:        cfg.RequestDelay,
		LabelDelay:          cfg.LabelDelay,
	}
}

// Scanner walks the mailbox and labels emails by keyword match or by rules
type Scanner struct {
	mailbox     Mailbox
	scorer      *scoring.Scorer
	categorizer *rules.Categorizer
	history     History
	archive     *archive.Store
	opts        Options

	extract func(data []byte) (string, error)
	sleep   func(ctx context.Context, d time.Duration) error

	mu         sync.RWMutex
	progressCb ProgressCallback
	last       *models.ScanReport
}

// NewScanner creates a scanner over the given mailbox
func NewScanner(mailbox Mailbox, scorer *scoring.Scorer, opts Options) *Scanner {
	return &Scanner{
		mailbox: mailbox,
		scorer:  scorer,
		opts:    opts,
		extract: extract.ExtractPDF,
		sleep:   sleepContext,
	}
}

// SetCategorizer enables LLM rule generation and, when configured, LLM evaluation
func (s *Scanner) SetCategorizer(c *rules.Categorizer) {
	s.categorizer = c
}

// SetHistory enables run recording and skip-processed support
func (s *Scanner) SetHistory(h History) {
	s.history = h
}

// SetArchive keeps a copy of every downloaded PDF
func (s *Scanner) SetArchive(a *archive.Store) {
	s.archive = a
}

// SetDryRun switches label changes off or on for the following scans
func (s *Scanner) SetDryRun(dryRun bool) {
	s.opts.DryRun = dryRun
}

// SetProgressCallback sets the progress callback function
func (s *Scanner) SetProgressCallback(cb ProgressCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progressCb = cb
}

// reportProgress calls the progress callback if set
func (s *Scanner) reportProgress(current, total int, message string) {
	s.mu.RLock()
	cb := s.progressCb
	s.mu.RUnlock()

	if cb != nil {
		cb(current, total, message)
	}
}

// Rules turns a prompt into rules, through the LLM when one is configured
func (s *Scanner) Rules(ctx context.Context, prompt string) ([]models.Rule, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyCriteria
	}
	if s.categorizer != nil {
		return s.categorizer.RulesFromPrompt(ctx, prompt)
	}
	log.Info().Msg("No LLM configured, parsing prompt locally")
	return rules.ParsePrompt(prompt, s.opts.DeleteLabel)
}

// ScanKeywords scores the first PDF of each email against criteria and labels
// unqualified emails with the delete label.
func (s *Scanner) ScanKeywords(ctx context.Context, criteria string) (*models.ScanReport, error) {
	criteria = strings.TrimSpace(criteria)
	if criteria == "" {
		return nil, ErrEmptyCriteria
	}

	keywords := s.scorer.Keywords(criteria)
	log.Info().Strs("keywords", keywords).Msg("Search keywords")

	report := s.newReport(models.ModeKeyword, criteria)
	report.Evaluator = evaluatorKeyword

	labelID := ""
	if !s.opts.DryRun {
		id, err := s.mailbox.EnsureLabel(ctx, s.opts.DeleteLabel)
		if err != nil {
			return nil, fmt.Errorf("failed to create label: %w", err)
		}
		labelID = id
	}

	emails, err := s.search(ctx)
	if err != nil {
		return nil, err
	}

	for i, email := range emails {
		if err := ctx.Err(); err != nil {
			return s.finish(ctx, report), err
		}
		s.reportProgress(i, len(emails), fmt.Sprintf("Scanning %q (%d/%d)", email.Subject, i+1, len(emails)))

		outcome := newOutcome(email)
		if s.skipProcessed(ctx, email, criteria, &outcome) {
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		filename, text := s.pdfText(ctx, email)
		outcome.PDFFilename = filename
		if text == "" {
			if outcome.PDFFilename == "" {
				outcome.Skipped = SkipNoPDF
			} else {
				outcome.Skipped = SkipUnreadable
			}
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		analysis := s.scorer.Analyze(text, criteria)
		report.Scanned++
		outcome.Qualified = analysis.Qualified
		outcome.MatchPercentage = analysis.MatchPercentage

		if analysis.Qualified {
			log.Info().Str("message_id", email.ID).Float64("match", analysis.MatchPercentage).Msg("Resume qualifies")
		} else {
			if err := s.applyLabel(ctx, email.ID, s.opts.DeleteLabel, labelID); err != nil {
				outcome.Error = err.Error()
			} else {
				outcome.Label = s.opts.DeleteLabel
				report.Labeled++
				report.LabelCounts[s.opts.DeleteLabel]++
				log.Info().Str("message_id", email.ID).Float64("match", analysis.MatchPercentage).
					Strs("missing", analysis.MissingKeywords).Msg("Resume does not qualify, marked for deletion")
			}
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return s.finish(ctx, report), nil
}

// ScanRules labels each email with the first rule it matches. When ruleSet is
// empty the rules are generated from prompt.
func (s *Scanner) ScanRules(ctx context.Context, prompt string, ruleSet []models.Rule) (*models.ScanReport, error) {
	prompt = strings.TrimSpace(prompt)
	if len(ruleSet) == 0 {
		generated, err := s.Rules(ctx, prompt)
		if err != nil {
			return nil, err
		}
		ruleSet = generated
	}

	useLLM := s.opts.RuleEvaluation == evaluatorLLM && s.categorizer != nil
	if s.opts.RuleEvaluation == evaluatorLLM && s.categorizer == nil {
		log.Warn().Msg("LLM evaluation requested but no provider is configured, evaluating locally")
	}

	criteria := prompt
	if criteria == "" {
		encoded, err := rules.FormatRules(ruleSet)
		if err != nil {
			return nil, err
		}
		criteria = encoded
	}

	report := s.newReport(models.ModeRules, criteria)
	report.Rules = ruleSet
	report.Evaluator = evaluatorLocal
	if useLLM {
		report.Evaluator = evaluatorLLM
		report.LLMProvider = s.categorizer.Provider()
	}
	for i, r := range ruleSet {
		log.Info().Int("rule", i+1).Str("rule_text", r.String()).Msg("Using rule")
	}

	emails, err := s.search(ctx)
	if err != nil {
		return nil, err
	}

	needText := needsPDFText(ruleSet)
	wantText := useLLM || needText
	llmCalls := 0

	for i, email := range emails {
		if err := ctx.Err(); err != nil {
			return s.finish(ctx, report), err
		}
		s.reportProgress(i, len(emails), fmt.Sprintf("Evaluating %q (%d/%d)", email.Subject, i+1, len(emails)))

		outcome := newOutcome(email)
		if s.skipProcessed(ctx, email, criteria, &outcome) {
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		var text string
		if wantText {
			outcome.PDFFilename, text = s.pdfText(ctx, email)
			// an empty resume would satisfy every "does not contain" rule
			if needText && text == "" && email.HasPDF() {
				outcome.Skipped = SkipUnreadable
				report.Outcomes = append(report.Outcomes, outcome)
				continue
			}
		} else if pdfs := email.PDFAttachments(); len(pdfs) > 0 {
			outcome.PDFFilename = pdfs[0].Filename
		}

		var (
			label string
			ok    bool
		)
		if useLLM {
			if llmCalls > 0 {
				if err := s.sleep(ctx, s.opts.RequestDelay); err != nil {
					return s.finish(ctx, report), err
				}
			}
			llmCalls++
			label, ok, err = s.categorizer.ClassifyEmail(ctx, email, text, ruleSet)
			if err != nil {
				log.Error().Err(err).Str("message_id", email.ID).Msg("Failed to classify email")
				outcome.Error = err.Error()
				report.Outcomes = append(report.Outcomes, outcome)
				continue
			}
		} else {
			label, ok = rules.Evaluate(ruleSet, email, text)
		}

		report.Scanned++
		if !ok {
			log.Debug().Str("message_id", email.ID).Msg("No rule matched")
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		labelID := ""
		if !s.opts.DryRun {
			labelID, err = s.mailbox.EnsureLabel(ctx, label)
			if err != nil {
				log.Error().Err(err).Str("label", label).Msg("Failed to create label")
				outcome.Error = err.Error()
				report.Outcomes = append(report.Outcomes, outcome)
				continue
			}
		}

		if err := s.applyLabel(ctx, email.ID, label, labelID); err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Label = label
			report.Labeled++
			report.LabelCounts[label]++
			log.Info().Str("message_id", email.ID).Str("label", label).Msg("Conditions met, labeled")
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return s.finish(ctx, report), nil
}

// LastReport returns the most recent finished scan
func (s *Scanner) LastReport() (models.ScanReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return models.ScanReport{}, ErrNoReport
	}
	return *s.last, nil
}

func (s *Scanner) newReport(mode, criteria string) *models.ScanReport {
	return &models.ScanReport{
		RunID:       uuid.NewString(),
		Mode:        mode,
		Criteria:    criteria,
		Query:       s.opts.Query,
		DryRun:      s.opts.DryRun,
		StartedAt:   time.Now(),
		LabelCounts: map[string]int{},
		Outcomes:    []models.MessageOutcome{},
	}
}

func (s *Scanner) search(ctx context.Context) ([]models.Email, error) {
	s.reportProgress(0, 1, "Searching mailbox...")
	emails, err := s.mailbox.Search(ctx, s.opts.Query, s.opts.MaxEmails)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	if len(emails) == 0 {
		log.Info().Str("query", s.opts.Query).Msg("No emails with PDF attachments found")
	}
	return emails, nil
}

func (s *Scanner) finish(ctx context.Context, report *models.ScanReport) *models.ScanReport {
	report.FinishedAt = time.Now()

	if s.history != nil {
		// a cancelled scan is still worth recording
		if err := s.history.RecordRun(context.WithoutCancel(ctx), *report); err != nil {
			log.Warn().Err(err).Msg("Failed to record scan history")
		}
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	s.reportProgress(len(report.Outcomes), len(report.Outcomes), "Scan complete!")
	log.Info().Str("run_id", report.RunID).Int("scanned", report.Scanned).Int("labeled", report.Labeled).Msg("Scan finished")
	return report
}

func (s *Scanner) skipProcessed(ctx context.Context, email models.Email, criteria string, outcome *models.MessageOutcome) bool {
	if !s.opts.SkipProcessed || s.history == nil {
		return false
	}
	done, err := s.history.Processed(ctx, email.ID, criteria)
	if err != nil {
		log.Warn().Err(err).Str("message_id", email.ID).Msg("History lookup failed")
		return false
	}
	if done {
		outcome.Skipped = SkipAlreadyDone
		log.Debug().Str("message_id", email.ID).Msg("Already processed, skipping")
	}
	return done
}

// pdfText downloads the email's PDFs in order and returns the first one with
// extractable text. Only the first PDF is tried when ProcessOnlyFirstPDF is set.
func (s *Scanner) pdfText(ctx context.Context, email models.Email) (filename, text string) {
	pdfs := email.PDFAttachments()
	if len(pdfs) > 0 && s.opts.ProcessOnlyFirstPDF {
		pdfs = pdfs[:1]
	}

	for _, att := range pdfs {
		filename = att.Filename
		if att.AttachmentID == "" {
			log.Warn().Str("message_id", email.ID).Str("filename", att.Filename).Msg("Attachment has no id")
			continue
		}

		data, err := s.mailbox.Attachment(ctx, email.ID, att.AttachmentID)
		if err != nil {
			log.Warn().Err(err).Str("message_id", email.ID).Str("filename", att.Filename).Msg("Unable to download attachment")
			continue
		}

		if s.archive != nil {
			if path, err := s.archive.Save(gmail.SenderName(email.From), att.Filename, data); err != nil {
				log.Warn().Err(err).Str("filename", att.Filename).Msg("Unable to archive attachment")
			} else {
				log.Debug().Str("path", path).Msg("Archived attachment")
			}
		}

		text, err = s.extract(data)
		if err != nil {
			log.Warn().Err(err).Str("message_id", email.ID).Str("filename", att.Filename).Msg("Skipping unreadable PDF")
			continue
		}
		return att.Filename, text
	}
	return filename, ""
}

func (s *Scanner) applyLabel(ctx context.Context, messageID, label, labelID string) error {
	if s.opts.DryRun {
		log.Info().Str("message_id", messageID).Str("label", label).Msg("Dry run, label not applied")
		return nil
	}
	if err := s.mailbox.AddLabel(ctx, messageID, labelID); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Str("label", label).Msg("Failed to add label")
		return err
	}
	if s.opts.LabelDelay > 0 {
		// cancellation is picked up by the scan loop
		_ = s.sleep(ctx, s.opts.LabelDelay)
	}
	return nil
}

// needsPDFText reports whether any rule inspects resume text rather than attachment presence
func needsPDFText(ruleSet []models.Rule) bool {
	for _, r := range ruleSet {
		if r.PDF == nil {
			continue
		}
		switch r.PDF.Operator {
		case models.OpExists, models.OpNotExists:
		default:
			return true
		}
	}
	return false
}

func newOutcome(email models.Email) models.MessageOutcome {
	return models.MessageOutcome{
		MessageID: email.ID,
		Subject:   email.Subject,
		From:      email.From,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

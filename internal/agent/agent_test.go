package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/archive"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/config"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/rules"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deleteLabel = "To Be Deleted"

type fakeMailbox struct {
	emails      []models.Email
	attachments map[string][]byte
	labels      map[string]string
	added       map[string][]string
	searchErr   error
	addErr      error
	ensureCalls int
	queries     []string
}

func newFakeMailbox(emails ...models.Email) *fakeMailbox {
	return &fakeMailbox{
		emails:      emails,
		attachments: map[string][]byte{},
		labels:      map[string]string{},
		added:       map[string][]string{},
	}
}

func (f *fakeMailbox) Search(_ context.Context, query string, max int) ([]models.Email, error) {
	f.queries = append(f.queries, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if max > 0 && max < len(f.emails) {
		return f.emails[:max], nil
	}
	return f.emails, nil
}

func (f *fakeMailbox) Attachment(_ context.Context, _, attachmentID string) ([]byte, error) {
	data, ok := f.attachments[attachmentID]
	if !ok {
		return nil, errors.New("attachment not found")
	}
	return data, nil
}

func (f *fakeMailbox) EnsureLabel(_ context.Context, name string) (string, error) {
	f.ensureCalls++
	id, ok := f.labels[name]
	if !ok {
		id = "Label_" + strings.ReplaceAll(name, " ", "_")
		f.labels[name] = id
	}
	return id, nil
}

func (f *fakeMailbox) AddLabel(_ context.Context, messageID, labelID string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added[messageID] = append(f.added[messageID], labelID)
	return nil
}

// withPDF adds a PDF attachment whose extracted text is text
func (f *fakeMailbox) withPDF(email *models.Email, attachmentID, filename, text string) {
	email.Attachments = append(email.Attachments, models.Attachment{
		Filename:     filename,
		MimeType:     "application/pdf",
		AttachmentID: attachmentID,
	})
	f.attachments[attachmentID] = []byte(text)
}

type fakeHistory struct {
	processed map[string]bool
	recorded  []models.ScanReport
}

func (h *fakeHistory) Processed(_ context.Context, messageID, _ string) (bool, error) {
	return h.processed[messageID], nil
}

func (h *fakeHistory) RecordRun(_ context.Context, report models.ScanReport) error {
	h.recorded = append(h.recorded, report)
	return nil
}

type fakeGenerator struct {
	responses []string
	calls     int
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _, _ string) (string, error) {
	if f.calls >= len(f.responses) {
		return "", errors.New("unexpected call")
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func (f *fakeGenerator) Name() string { return "fake:test" }
func (f *fakeGenerator) Close() error { return nil }

func defaultOptions() Options {
	return Options{
		Query:               "has:attachment filename:pdf",
		ProcessOnlyFirstPDF: true,
		DeleteLabel:         deleteLabel,
		RuleEvaluation:      config.EvaluationLocal,
		RequestDelay:        4 * time.Second,
	}
}

type testScanner struct {
	*Scanner
	waits     []time.Duration
	extracted int
}

func newTestScanner(mb Mailbox, opts Options) *testScanner {
	scorer := scoring.NewScorer(scoring.Options{Threshold: 0.5, Inclusive: true, MinKeywordLength: 3})
	ts := &testScanner{Scanner: NewScanner(mb, scorer, opts)}
	ts.extract = func(data []byte) (string, error) {
		ts.extracted++
		if strings.HasPrefix(string(data), "bad") {
			return "", errors.New("corrupt pdf")
		}
		return string(data), nil
	}
	ts.sleep = func(_ context.Context, d time.Duration) error {
		ts.waits = append(ts.waits, d)
		return nil
	}
	return ts
}

func keywordMailbox() *fakeMailbox {
	mb := newFakeMailbox()
	qualified := models.Email{ID: "m1", Subject: "Go engineer", From: "Jane Doe <jane@example.com>"}
	mb.withPDF(&qualified, "a1", "Jane_CV.pdf", "Golang and Rust in production")
	unqualified := models.Email{ID: "m2", Subject: "Application"}
	mb.withPDF(&unqualified, "a2", "resume.pdf", "Python and Django")
	noPDF := models.Email{ID: "m3", Subject: "Hello"}
	unreadable := models.Email{ID: "m4", Subject: "Broken"}
	mb.withPDF(&unreadable, "a4", "broken.pdf", "bad bytes")
	halfMatch := models.Email{ID: "m5", Subject: "Two files"}
	mb.withPDF(&halfMatch, "a5", "first.pdf", "golang only")
	mb.withPDF(&halfMatch, "a6", "second.pdf", "python only")

	mb.emails = []models.Email{qualified, unqualified, noPDF, unreadable, halfMatch}
	return mb
}

func TestScanKeywords(t *testing.T) {
	mb := keywordMailbox()
	s := newTestScanner(mb, defaultOptions())

	report, err := s.ScanKeywords(context.Background(), "  golang rust ")
	require.NoError(t, err)

	assert.Equal(t, models.ModeKeyword, report.Mode)
	assert.Equal(t, "golang rust", report.Criteria)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Labeled)
	assert.Equal(t, 2, report.Unlabeled())
	assert.Equal(t, map[string]int{deleteLabel: 1}, report.LabelCounts)
	assert.Equal(t, map[string][]string{"m2": {"Label_To_Be_Deleted"}}, mb.added)
	assert.Equal(t, []string{"has:attachment filename:pdf"}, mb.queries)

	require.Len(t, report.Outcomes, 5)
	byID := map[string]models.MessageOutcome{}
	for _, o := range report.Outcomes {
		byID[o.MessageID] = o
	}
	assert.True(t, byID["m1"].Qualified)
	assert.Equal(t, 1.0, byID["m1"].MatchPercentage)
	assert.Equal(t, deleteLabel, byID["m2"].Label)
	assert.Equal(t, SkipNoPDF, byID["m3"].Skipped)
	assert.Equal(t, SkipUnreadable, byID["m4"].Skipped)
	assert.Equal(t, "broken.pdf", byID["m4"].PDFFilename)
	assert.True(t, byID["m5"].Qualified, "exactly 50% qualifies with an inclusive threshold")
	assert.Equal(t, "first.pdf", byID["m5"].PDFFilename)
}

func TestScanKeywords_AllPDFs(t *testing.T) {
	mb := newFakeMailbox()
	email := models.Email{ID: "m1"}
	mb.withPDF(&email, "a1", "cover.pdf", "bad bytes")
	mb.withPDF(&email, "a2", "cv.pdf", "golang rust")
	mb.emails = []models.Email{email}

	opts := defaultOptions()
	opts.ProcessOnlyFirstPDF = false
	s := newTestScanner(mb, opts)

	report, err := s.ScanKeywords(context.Background(), "golang rust")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, "cv.pdf", report.Outcomes[0].PDFFilename)
	assert.True(t, report.Outcomes[0].Qualified)
	assert.Equal(t, 2, s.extracted)
}

func TestScanKeywords_DryRun(t *testing.T) {
	mb := keywordMailbox()
	opts := defaultOptions()
	opts.DryRun = true
	s := newTestScanner(mb, opts)

	report, err := s.ScanKeywords(context.Background(), "golang rust")
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Labeled)
	assert.Zero(t, mb.ensureCalls)
	assert.Empty(t, mb.added)
}

func TestScanKeywords_LabelFailureContinues(t *testing.T) {
	mb := keywordMailbox()
	mb.addErr = errors.New("insufficient permission")
	s := newTestScanner(mb, defaultOptions())

	report, err := s.ScanKeywords(context.Background(), "golang rust")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Zero(t, report.Labeled)

	for _, o := range report.Outcomes {
		if o.MessageID == "m2" {
			assert.Equal(t, "insufficient permission", o.Error)
			assert.False(t, o.Labeled())
		}
	}
}

func TestScanKeywords_Errors(t *testing.T) {
	s := newTestScanner(keywordMailbox(), defaultOptions())
	_, err := s.ScanKeywords(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyCriteria)

	mb := keywordMailbox()
	mb.searchErr = errors.New("unauthorized")
	s = newTestScanner(mb, defaultOptions())
	_, err = s.ScanKeywords(context.Background(), "golang")
	assert.ErrorContains(t, err, "unauthorized")
}

func TestScanKeywords_Cancelled(t *testing.T) {
	hist := &fakeHistory{}
	s := newTestScanner(keywordMailbox(), defaultOptions())
	s.SetHistory(hist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := s.ScanKeywords(ctx, "golang rust")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.Scanned)
	assert.Len(t, hist.recorded, 1, "a cancelled scan is still recorded")
}

func TestScanKeywords_ArchivesPDFs(t *testing.T) {
	store := archive.NewStore(t.TempDir())
	s := newTestScanner(keywordMailbox(), defaultOptions())
	s.SetArchive(store)

	_, err := s.ScanKeywords(context.Background(), "golang rust")
	require.NoError(t, err)

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 4)

	var senders []string
	for _, e := range entries {
		senders = append(senders, e.Sender)
	}
	assert.Contains(t, senders, "jane-doe")
}

func TestScanRules_LocalPrompt(t *testing.T) {
	mb := newFakeMailbox(
		models.Email{ID: "m1", Subject: "Resume for Java role", Body: "5 years Java developer"},
		models.Email{ID: "m2", Subject: "Hello", Body: "Just saying hi"},
	)
	s := newTestScanner(mb, defaultOptions())

	report, err := s.ScanRules(context.Background(),
		"Mark emails where subject contains 'Resume' and body contains 'Java developer' as 'To be Reviewed'", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ModeRules, report.Mode)
	assert.Equal(t, config.EvaluationLocal, report.Evaluator)
	require.Len(t, report.Rules, 1)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Labeled)
	assert.Equal(t, 1, report.Unlabeled())
	assert.Equal(t, map[string]int{"To be Reviewed": 1}, report.LabelCounts)
	assert.Equal(t, map[string][]string{"m1": {"Label_To_be_Reviewed"}}, mb.added)
	assert.Zero(t, s.extracted, "rules that ignore resume text never download PDFs")
}

func TestScanRules_ExplicitRulesWithPDFSkill(t *testing.T) {
	mb := newFakeMailbox()
	gopher := models.Email{ID: "m1", Subject: "CV"}
	mb.withPDF(&gopher, "a1", "cv.pdf", "Built services in GoLang")
	other := models.Email{ID: "m2", Subject: "CV"}
	mb.withPDF(&other, "a2", "cv.pdf", "Python developer")
	mb.emails = []models.Email{gopher, other}

	ruleSet := []models.Rule{
		{PDF: &models.Condition{Operator: models.OpContainsSkill, Value: "golang"}, LabelAction: "Gopher"},
		{PDF: &models.Condition{Operator: models.OpExists}, LabelAction: "Other"},
	}
	s := newTestScanner(mb, defaultOptions())

	report, err := s.ScanRules(context.Background(), "", ruleSet)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Gopher": 1, "Other": 1}, report.LabelCounts)
	assert.Contains(t, report.Criteria, "Contains skill")
	assert.Equal(t, 2, s.extracted)
}

func TestScanRules_UnreadablePDFIsSkipped(t *testing.T) {
	mb := newFakeMailbox()
	broken := models.Email{ID: "m1", Subject: "CV"}
	mb.withPDF(&broken, "a1", "cv.pdf", "bad bytes")
	readable := models.Email{ID: "m2", Subject: "CV"}
	mb.withPDF(&readable, "a2", "cv.pdf", "Python developer")
	mb.emails = []models.Email{broken, readable}

	ruleSet := []models.Rule{
		{PDF: &models.Condition{Operator: models.OpNotContainsSkill, Value: "java"}, LabelAction: deleteLabel},
	}
	s := newTestScanner(mb, defaultOptions())

	report, err := s.ScanRules(context.Background(), "", ruleSet)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, map[string]int{deleteLabel: 1}, report.LabelCounts)
	assert.NotContains(t, mb.added, "m1")
	assert.Contains(t, mb.added, "m2")
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, SkipUnreadable, report.Outcomes[0].Skipped)
	assert.Empty(t, report.Outcomes[0].Label)
}

func TestScanRules_LLMEvaluation(t *testing.T) {
	mb := newFakeMailbox(
		models.Email{ID: "m1", Subject: "Resume", Body: "I am Sam from Boston"},
		models.Email{ID: "m2", Subject: "Newsletter"},
		models.Email{ID: "m3", Subject: "Resume"},
	)
	opts := defaultOptions()
	opts.RuleEvaluation = config.EvaluationLLM
	s := newTestScanner(mb, opts)

	gen := &fakeGenerator{responses: []string{"To be Reviewed", "NO_MATCH", "Spam"}}
	s.SetCategorizer(rules.NewCategorizer(gen, deleteLabel, 0))

	ruleSet := []models.Rule{{
		Body:        &models.Condition{Operator: models.OpContainsPattern, Value: "I am [name] from [city]"},
		LabelAction: "To be Reviewed",
	}}
	report, err := s.ScanRules(context.Background(), "label introductions", ruleSet)
	require.NoError(t, err)

	assert.Equal(t, config.EvaluationLLM, report.Evaluator)
	assert.Equal(t, "fake:test", report.LLMProvider)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, map[string]int{"To be Reviewed": 1}, report.LabelCounts)
	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second}, s.waits, "a delay separates consecutive model calls")
}

func TestScanRules_LLMRequestedWithoutProvider(t *testing.T) {
	mb := newFakeMailbox(models.Email{ID: "m1", Subject: "Resume"})
	opts := defaultOptions()
	opts.RuleEvaluation = config.EvaluationLLM
	s := newTestScanner(mb, opts)

	report, err := s.ScanRules(context.Background(), "", []models.Rule{
		{Subject: &models.Condition{Operator: models.OpExists}, LabelAction: "Has Subject"},
	})
	require.NoError(t, err)
	assert.Equal(t, config.EvaluationLocal, report.Evaluator)
	assert.Equal(t, 1, report.Labeled)
}

func TestScanRules_EmptyPrompt(t *testing.T) {
	s := newTestScanner(newFakeMailbox(), defaultOptions())
	_, err := s.ScanRules(context.Background(), " ", nil)
	assert.ErrorIs(t, err, ErrEmptyCriteria)
}

func TestScanRules_SkipProcessed(t *testing.T) {
	mb := newFakeMailbox(
		models.Email{ID: "m1", Subject: "Resume"},
		models.Email{ID: "m2", Subject: "Resume"},
	)
	opts := defaultOptions()
	opts.SkipProcessed = true
	hist := &fakeHistory{processed: map[string]bool{"m1": true}}
	s := newTestScanner(mb, opts)
	s.SetHistory(hist)

	report, err := s.ScanRules(context.Background(), "", []models.Rule{
		{Subject: &models.Condition{Operator: models.OpContains, Value: "resume"}, LabelAction: "Resumes"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, SkipAlreadyDone, report.Outcomes[0].Skipped)
	assert.Equal(t, map[string][]string{"m2": {"Label_Resumes"}}, mb.added)
	require.Len(t, hist.recorded, 1)
	assert.Equal(t, report.RunID, hist.recorded[0].RunID)
}

func TestLastReportAndProgress(t *testing.T) {
	s := newTestScanner(keywordMailbox(), defaultOptions())

	_, err := s.LastReport()
	assert.ErrorIs(t, err, ErrNoReport)

	var messages []string
	s.SetProgressCallback(func(current, total int, message string) {
		messages = append(messages, message)
	})

	report, err := s.ScanKeywords(context.Background(), "golang rust")
	require.NoError(t, err)

	last, err := s.LastReport()
	require.NoError(t, err)
	assert.Equal(t, report.RunID, last.RunID)

	require.NotEmpty(t, messages)
	assert.Equal(t, "Searching mailbox...", messages[0])
	assert.Equal(t, "Scan complete!", messages[len(messages)-1])
}

func TestNeedsPDFText(t *testing.T) {
	assert.False(t, needsPDFText(nil))
	assert.False(t, needsPDFText([]models.Rule{rules.DefaultRule(deleteLabel)}))
	assert.False(t, needsPDFText([]models.Rule{{PDF: &models.Condition{Operator: models.OpExists}}}))
	assert.True(t, needsPDFText([]models.Rule{{PDF: &models.Condition{Operator: models.OpNotContainsSkill, Value: "java"}}}))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxEmails = 25

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, cfg.SearchQuery, opts.Query)
	assert.Equal(t, 25, opts.MaxEmails)
	assert.Equal(t, cfg.DeleteLabel, opts.DeleteLabel)
	assert.Equal(t, 4*time.Second, opts.RequestDelay)
	assert.False(t, opts.DryRun)
}

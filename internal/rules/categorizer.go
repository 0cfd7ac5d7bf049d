package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/llm"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// maxRetries is the number of attempts made when the provider rate limits us
	maxRetries = 3
	// NoMatch is the sentinel answer for an email that matches no rule
	NoMatch = "NO_MATCH"
	// maxBodyChars bounds the email body sent for classification
	maxBodyChars = 4000
	// maxPDFChars bounds the resume text sent for classification
	maxPDFChars = 6000
)

// Categorizer uses a language model to turn prompts into rules and to classify emails
type Categorizer struct {
	gen          llm.Generator
	deleteLabel  string
	retryBackoff time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewCategorizer creates a categorizer. retryBackoff is the first wait after a rate limit; it doubles per attempt.
func NewCategorizer(gen llm.Generator, deleteLabel string, retryBackoff time.Duration) *Categorizer {
	return &Categorizer{
		gen:          gen,
		deleteLabel:  deleteLabel,
		retryBackoff: retryBackoff,
		sleep:        sleepContext,
	}
}

// Provider returns the name of the underlying model
func (c *Categorizer) Provider() string {
	return c.gen.Name()
}

// RulesFromPrompt asks the model for rules. Unparseable answers fall back to the default rule.
func (c *Categorizer) RulesFromPrompt(ctx context.Context, prompt string) ([]models.Rule, error) {
	response, err := c.generate(ctx, rulesSystemPrompt, buildRulesPrompt(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate rules: %w", err)
	}

	log.Debug().Str("response", response).Msg("Rule generation response")

	rules, err := ParseRules(response, c.deleteLabel)
	if err != nil {
		log.Warn().Err(err).Str("response", response).Msg("Could not parse rules from model response")
	}

	log.Info().Int("rules", len(rules)).Msg("Categorized prompt into rules")
	return rules, nil
}

// ClassifyEmail asks the model which rule the email satisfies.
// It returns false when the model answers NO_MATCH or names a label that no rule carries.
func (c *Categorizer) ClassifyEmail(ctx context.Context, email models.Email, pdfText string, rules []models.Rule) (string, bool, error) {
	prompt, err := buildClassifyPrompt(email, pdfText, rules)
	if err != nil {
		return "", false, err
	}

	response, err := c.generate(ctx, classifySystemPrompt, prompt)
	if err != nil {
		return "", false, fmt.Errorf("failed to classify email: %w", err)
	}

	label, ok := matchLabel(response, rules)
	if !ok {
		if answer := cleanAnswer(response); answer != "" && !strings.EqualFold(answer, NoMatch) {
			log.Warn().Str("answer", answer).Str("message_id", email.ID).Msg("Model returned a label not present in any rule")
		}
		return "", false, nil
	}

	return label, true, nil
}

// generate calls the model, retrying rate-limited requests with exponential backoff
func (c *Categorizer) generate(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		response, err := c.gen.GenerateContent(ctx, system, prompt)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if !isRateLimitError(err) {
			return "", err
		}
		if attempt == maxRetries-1 {
			break
		}

		wait := c.retryBackoff * time.Duration(1<<attempt)
		log.Warn().Dur("wait", wait).Int("attempt", attempt+1).Int("max_retries", maxRetries).Msg("Rate limit hit, backing off")
		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("rate limit exceeded after %d retries: %w", maxRetries, lastErr)
}

// isRateLimitError checks whether the provider rejected the call for quota or rate reasons
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "quota", "resourceexhausted", "resource_exhausted", "resource exhausted", "rate limit", "rate_limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
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

// cleanAnswer strips quotes, code fences and a leading "Label:" from a one-line answer
func cleanAnswer(response string) string {
	answer := stripCodeFence(response)
	if i := strings.IndexByte(answer, '\n'); i >= 0 {
		answer = answer[:i]
	}
	answer = strings.TrimSpace(answer)
	if lower := strings.ToLower(answer); strings.HasPrefix(lower, "label:") {
		answer = strings.TrimSpace(answer[len("label:"):])
	}
	return strings.Trim(answer, "\"'`*. ")
}

// matchLabel maps the model answer onto a label carried by one of the rules
func matchLabel(response string, rules []models.Rule) (string, bool) {
	answer := cleanAnswer(response)
	if answer == "" || strings.EqualFold(answer, NoMatch) {
		return "", false
	}

	for _, r := range rules {
		if strings.EqualFold(answer, r.LabelAction) {
			return r.LabelAction, true
		}
	}
	// Tolerate answers that wrap the label in a sentence
	lower := strings.ToLower(response)
	if strings.Contains(lower, strings.ToLower(NoMatch)) {
		return "", false
	}
	// the longest label wins so "Reviewed" does not shadow "To be Reviewed"
	best := ""
	for _, r := range rules {
		if len(r.LabelAction) > len(best) && strings.Contains(lower, strings.ToLower(r.LabelAction)) {
			best = r.LabelAction
		}
	}
	return best, best != ""
}

func buildRulesPrompt(prompt string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Please categorize this prompt into rules: %q\n\n", prompt))
	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("1. Only create rules that are explicitly mentioned in the prompt. Do NOT add \"else\" or \"catch-all\" rules unless the user specifically asks for them.\n")
	sb.WriteString("2. If the user uses XYZ, ABC or similar, treat them as placeholders for any value.\n")
	sb.WriteString("3. For complex conditions, create separate rules for each specific case mentioned.\n")
	sb.WriteString("4. If the user mentions \"no subject and no body\", create a rule with Subject: [\"Does not Exist\"] and Body: [\"Does not Exist\"].\n")
	sb.WriteString("5. Use EXACT case for label names as specified in the prompt (e.g., \"To be Deleted\" not \"To be deleted\").\n\n")
	sb.WriteString("Return ONLY a valid JSON array with rules like this (no markdown formatting, no extra text):\n")
	sb.WriteString(`[
  {"Subject": ["Does not Exist"], "Body": ["Does not Exist"], "Label Action": ["To be Deleted"]},
  {"Body": ["Contains pattern", "I am [name] from [city]"], "Label Action": ["To be Deleted"]},
  {"PDF": ["Contains skill", "Java"], "Label Action": ["To be Reviewed"]}
]`)
	sb.WriteString("\n\nIf the user says \"else\" or \"otherwise\", then create additional rules.\n")

	return sb.String()
}

func buildClassifyPrompt(email models.Email, pdfText string, rules []models.Rule) (string, error) {
	rulesJSON, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode rules: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Email to categorize:\n")
	sb.WriteString(fmt.Sprintf("Subject: %q\n", email.Subject))
	sb.WriteString(fmt.Sprintf("Body: %q\n", truncate(email.Body, maxBodyChars)))
	sb.WriteString(fmt.Sprintf("Has PDF: %t\n", email.HasPDF()))
	if pdfText != "" {
		sb.WriteString(fmt.Sprintf("PDF text: %q\n", truncate(pdfText, maxPDFChars)))
	}
	sb.WriteString("\nRules to match against:\n")
	sb.Write(rulesJSON)
	sb.WriteString("\n\nIMPORTANT: For \"Contains pattern\" rules, a pattern such as \"I am [name] from [city]\" means the body contains \"I am\" followed by any text, then \"from\" followed by any text.\n")
	sb.WriteString(fmt.Sprintf("Return only the label action of the first matching rule, or %q.\n", NoMatch))

	return sb.String(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

const rulesSystemPrompt = `You are an email categorization expert. Given a user's prompt, create ONLY the categorization rules that are explicitly mentioned.

IMPORTANT:
1. Do NOT create additional "catch-all" or "else" rules unless the user explicitly asks for them.
2. Understand the PATTERN and MEANING of the prompt, not just exact text.
3. If the user says "I am XYZ from ABC city", understand this means "I am [any name] from [any city]": XYZ and ABC are placeholders.
4. Use EXACT case matching for label names as specified in the prompt.

For each rule, specify:
- Subject: ["Exists"], ["Does not Exist"], ["Contains", "<text>"], ["Does not contain", "<text>"], ["Starts with", "<text>"], ["Ends with", "<text>"]
- Body: the Subject instructions plus ["Contains pattern", "<pattern>"]
- PDF: ["Exists"], ["Does not Exist"], ["Contains skill", "<skill>"], ["Does not contain skill", "<skill>"]
- Label Action: ["Label name"]

Return a JSON array of rules.`

const classifySystemPrompt = `You are an email categorization expert. Given an email's subject, body, PDF status and resume text, determine which rule it matches.

For each rule, check:
- Subject conditions (Exists, Does not Exist, Contains, Does not contain, Starts with, Ends with)
- Body conditions (Exists, Does not Exist, Contains, Does not contain, Starts with, Ends with, Contains pattern)
- PDF conditions (Exists, Does not Exist, Contains skill, Does not contain skill)

IMPORTANT:
1. All conditions of a rule must hold for the rule to match.
2. "Contains" checks are case-insensitive.
3. Check rules in order; the first matching rule wins.
4. Use EXACT case for label names.
5. If no rule matches, return "NO_MATCH".

Return only the label action for the matching rule, or "NO_MATCH".`

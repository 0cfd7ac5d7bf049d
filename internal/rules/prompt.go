package rules

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrNoConditions is returned when a prompt yields no recognisable condition
var ErrNoConditions = errors.New("no conditions recognised in prompt")

var (
	subjectExistsRe   = regexp.MustCompile(`(?i)\bsubject\s+(?:exists|is\s+not\s+empty|not\s+empty)\b`)
	subjectMissingRe  = regexp.MustCompile(`(?i)\b(?:no\s+subject|subject\s+(?:does\s+not|doesn't)\s+exist|subject\s+is\s+empty)\b`)
	bodyExistsRe      = regexp.MustCompile(`(?i)\bbody\s+(?:exists|is\s+not\s+empty|not\s+empty)\b`)
	bodyMissingRe     = regexp.MustCompile(`(?i)\b(?:no\s+body|body\s+(?:does\s+not|doesn't)\s+exist|body\s+is\s+empty)\b`)
	pdfExistsRe       = regexp.MustCompile(`(?i)\b(?:pdf\s+exists|has\s+(?:a\s+)?pdf|has\s+(?:an\s+)?attachment|with\s+(?:a\s+)?pdf)\b`)
	skilledInRe       = regexp.MustCompile(`(?i)\bskill(?:ed|s)?\s+in\s+([\w.+#-]+)`)
	containsVerb      = `(?:contains|containing|includes|including|has)`
	subjectContainsRe = fieldContainsRes("subject")
	bodyContainsRe    = fieldContainsRes("body")

	labelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:label|tag)\b.*?\b(?:with|as)\s+["']([^"']+)["']`),
		regexp.MustCompile(`(?i)\bmark\b.*?\bas\s+["']([^"']+)["']`),
		regexp.MustCompile(`(?i)\b(?:label|tag)\b.*?\b(?:with|as)\s+([\w ]+?)\s*(?:[,.;]|\belse\b|\botherwise\b|$)`),
		regexp.MustCompile(`(?i)\bmark\b.*?\bas\s+([\w ]+?)\s*(?:[,.;]|\belse\b|\botherwise\b|$)`),
	}
)

// fieldContainsRes matches a quoted operand after "<field> contains", then a bare one
// that runs until punctuation or the next clause.
func fieldContainsRes(field string) []*regexp.Regexp {
	head := `(?i)\b` + field + `\s+` + containsVerb + `\s+`
	return []*regexp.Regexp{
		regexp.MustCompile(head + `(?:"([^"]+)"|'([^']+)')`),
		regexp.MustCompile(head + `(.+?)\s*(?:,|\.\s|\.$|\bthen\b|\band\s+(?:subject|body|pdf|has|label|mark)\b|\b(?:label|mark|tag)\b|\bas\s+["']|$)`),
	}
}

// ParsePrompt turns a plain-English instruction into a single rule without an LLM.
// It understands subject/body exists and contains, pdf exists, "skilled in X",
// and takes the label from "label ... with X" or "mark ... as X".
func ParsePrompt(prompt, defaultLabel string) ([]models.Rule, error) {
	var rule models.Rule

	switch {
	case subjectMissingRe.MatchString(prompt):
		rule.Subject = &models.Condition{Operator: models.OpNotExists}
	case subjectExistsRe.MatchString(prompt):
		rule.Subject = &models.Condition{Operator: models.OpExists}
	default:
		if v := operand(subjectContainsRe, prompt); v != "" {
			rule.Subject = &models.Condition{Operator: models.OpContains, Value: v}
		}
	}

	switch {
	case bodyMissingRe.MatchString(prompt):
		rule.Body = &models.Condition{Operator: models.OpNotExists}
	case bodyExistsRe.MatchString(prompt):
		rule.Body = &models.Condition{Operator: models.OpExists}
	default:
		if v := operand(bodyContainsRe, prompt); v != "" {
			op := models.OpContains
			if patternRegexp(v) != nil {
				op = models.OpContainsPattern
			}
			rule.Body = &models.Condition{Operator: op, Value: v}
		}
	}

	if m := skilledInRe.FindStringSubmatch(prompt); m != nil {
		rule.PDF = &models.Condition{Operator: models.OpContainsSkill, Value: strings.TrimRight(m[1], ".,")}
	} else if pdfExistsRe.MatchString(prompt) {
		rule.PDF = &models.Condition{Operator: models.OpExists}
	}

	rule.LabelAction = parseLabel(prompt, defaultLabel)

	if len(rule.Conditions()) == 0 {
		return nil, ErrNoConditions
	}

	log.Debug().Str("rule", rule.String()).Msg("Parsed prompt")
	return []models.Rule{rule}, nil
}

func operand(res []*regexp.Regexp, prompt string) string {
	for _, re := range res {
		m := re.FindStringSubmatch(prompt)
		if m == nil {
			continue
		}
		for _, g := range m[1:] {
			if v := strings.TrimSpace(g); v != "" {
				return v
			}
		}
	}
	return ""
}

func parseLabel(prompt, defaultLabel string) string {
	for _, re := range labelPatterns {
		if m := re.FindStringSubmatch(prompt); m != nil {
			if label := strings.TrimSpace(m[1]); label != "" {
				return label
			}
		}
	}
	return defaultLabel
}

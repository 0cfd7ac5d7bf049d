package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrFallbackRule marks a parse that fell back to the default rule
var ErrFallbackRule = errors.New("using default rule")

// DefaultRule labels emails that have neither a subject nor a body
func DefaultRule(deleteLabel string) models.Rule {
	return models.Rule{
		Subject:     &models.Condition{Operator: models.OpNotExists},
		Body:        &models.Condition{Operator: models.OpNotExists},
		LabelAction: deleteLabel,
	}
}

// ParseRules decodes a model response into rules.
// On failure it returns the default rule together with an error wrapping ErrFallbackRule.
func ParseRules(response, deleteLabel string) ([]models.Rule, error) {
	rules, err := decodeRules(response)
	if err == nil && len(rules) > 0 {
		return rules, nil
	}
	if err == nil {
		err = errors.New("response contained no usable rules")
	}
	return []models.Rule{DefaultRule(deleteLabel)}, fmt.Errorf("%w: %v", ErrFallbackRule, err)
}

func decodeRules(response string) ([]models.Rule, error) {
	cleaned := stripCodeFence(response)
	if cleaned == "" {
		return nil, errors.New("empty response")
	}

	raw, err := rawRules(cleaned)
	if err != nil {
		return nil, err
	}

	rules := make([]models.Rule, 0, len(raw))
	for i, item := range raw {
		var rule models.Rule
		if err := json.Unmarshal(item, &rule); err != nil {
			log.Warn().Err(err).Int("rule", i+1).Msg("Skipping malformed rule")
			continue
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

// rawRules splits the response into one raw message per rule
func rawRules(cleaned string) ([]json.RawMessage, error) {
	var raw []json.RawMessage

	if !strings.HasPrefix(cleaned, "{") {
		err := json.Unmarshal([]byte(cleaned), &raw)
		if err == nil {
			return raw, nil
		}

		// Find the JSON array in the response (in case there's extra text)
		startIdx := strings.Index(cleaned, "[")
		endIdx := strings.LastIndex(cleaned, "]")
		if startIdx != -1 && endIdx > startIdx {
			if err := json.Unmarshal([]byte(cleaned[startIdx:endIdx+1]), &raw); err == nil {
				return raw, nil
			}
		}
	}

	// A lone object is accepted as a single rule
	startIdx := strings.Index(cleaned, "{")
	endIdx := strings.LastIndex(cleaned, "}")
	if startIdx == -1 || endIdx < startIdx {
		return nil, errors.New("no JSON found in response")
	}
	obj := cleaned[startIdx : endIdx+1]
	if !json.Valid([]byte(obj)) {
		return nil, errors.New("response is not valid JSON")
	}
	return []json.RawMessage{json.RawMessage(obj)}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// FormatRules renders rules as indented JSON in the model format
func FormatRules(rules []models.Rule) (string, error) {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode rules: %w", err)
	}
	return string(data), nil
}

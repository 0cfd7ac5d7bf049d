package rules

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/rs/zerolog/log"
)

// Evaluate returns the label of the first rule the email satisfies
func Evaluate(rules []models.Rule, email models.Email, pdfText string) (string, bool) {
	for i, rule := range rules {
		if Matches(rule, email, pdfText) {
			log.Debug().Int("rule", i+1).Str("label", rule.LabelAction).Str("message_id", email.ID).Msg("Rule matched")
			return rule.LabelAction, true
		}
	}
	return "", false
}

// Matches reports whether every condition of the rule holds. A rule without conditions never matches.
func Matches(rule models.Rule, email models.Email, pdfText string) bool {
	conds := rule.Conditions()
	if len(conds) == 0 {
		return false
	}

	for _, fc := range conds {
		if !fc.Condition.Valid() {
			log.Warn().Str("field", string(fc.Field)).Str("condition", fc.Condition.String()).Msg("Unusable rule condition")
			return false
		}

		var ok bool
		switch fc.Field {
		case models.FieldSubject:
			ok = matchText(fc.Condition, email.Subject)
		case models.FieldBody:
			ok = matchText(fc.Condition, email.Body)
		case models.FieldPDF:
			ok = matchPDF(fc.Condition, email, pdfText)
		}
		if !ok {
			return false
		}
	}
	return true
}

func matchPDF(c models.Condition, email models.Email, pdfText string) bool {
	hasPDF := email.HasPDF() || strings.TrimSpace(pdfText) != ""
	switch c.Operator {
	case models.OpExists:
		return hasPDF
	case models.OpNotExists:
		return !hasPDF
	}
	// content checks need a resume to look at
	if !hasPDF {
		return false
	}
	return matchText(c, pdfText)
}

func matchText(c models.Condition, text string) bool {
	norm := normalize(text)
	value := normalize(c.Value)

	switch c.Operator {
	case models.OpExists:
		return norm != ""
	case models.OpNotExists:
		return norm == ""
	case models.OpContains, models.OpContainsSkill:
		return strings.Contains(norm, value)
	case models.OpNotContains, models.OpNotContainsSkill:
		return !strings.Contains(norm, value)
	case models.OpStartsWith:
		return strings.HasPrefix(norm, value)
	case models.OpEndsWith:
		return strings.HasSuffix(norm, value)
	case models.OpContainsPattern:
		re := patternRegexp(c.Value)
		if re == nil {
			return strings.Contains(norm, value)
		}
		return re.MatchString(norm)
	}
	return false
}

// normalize lowercases and collapses whitespace
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var bracketPlaceholder = regexp.MustCompile(`\[[^\]]*\]`)

// placeholderToken stands in for a bracketed placeholder while tokenising
const placeholderToken = "\x00"

// patternRegexp turns a pattern such as "I am [name] from [city]" or
// "I am XYZ from ABC" into a regexp where each placeholder matches one or
// more words. It returns nil when the pattern has no placeholders.
func patternRegexp(pattern string) *regexp.Regexp {
	pattern = bracketPlaceholder.ReplaceAllString(pattern, " "+placeholderToken+" ")

	tokens := strings.Fields(pattern)
	parts := make([]string, 0, len(tokens))
	placeholders := 0
	for _, tok := range tokens {
		if tok == placeholderToken || isPlaceholderWord(tok) {
			placeholders++
			parts = append(parts, `\S+(?:\s+\S+)*?`)
			continue
		}
		parts = append(parts, regexp.QuoteMeta(strings.ToLower(tok)))
	}
	if placeholders == 0 {
		return nil
	}

	re, err := regexp.Compile(strings.Join(parts, `\s+`))
	if err != nil {
		return nil
	}
	return re
}

// standIns are the upper case words people use as placeholders in examples
var standIns = map[string]struct{}{
	"XYZ": {}, "ABC": {}, "XXX": {}, "YYY": {}, "ZZZ": {}, "PQR": {},
}

// isPlaceholderWord matches stand-ins like XYZ, and any quoted upper case word like 'NAME'.
// Other upper case words are acronyms (AWS, SQL) and stay literal.
func isPlaceholderWord(tok string) bool {
	tok = strings.TrimRight(tok, `,.!?;:`)
	quoted := len(tok) >= 3 && (tok[0] == '\'' || tok[0] == '"') && tok[len(tok)-1] == tok[0]
	word := strings.Trim(tok, `'"`)
	if len(word) < 2 {
		return false
	}
	for _, r := range word {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	if quoted {
		return true
	}
	_, ok := standIns[word]
	return ok
}

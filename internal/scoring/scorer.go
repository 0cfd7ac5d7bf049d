package scoring

import (
	"sort"
	"strings"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
)

// CommonWords are dropped from search criteria before keyword matching
var CommonWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`find me a candidate who is skilled in the and or but
		with has have had been being be am are was were looking for someone need person
		developer engineer programmer experience years of work job position role team company`) {
		CommonWords[w] = struct{}{}
	}
}

// IndustryKeywords expands a keyword to related terms when it belongs to a known stack
var IndustryKeywords = map[string][]string{
	"java":       {"java", "spring", "hibernate", "maven", "gradle", "junit", "jvm"},
	"python":     {"python", "django", "flask", "numpy", "pandas", "scikit-learn", "pip"},
	"javascript": {"javascript", "node.js", "react", "angular", "vue", "typescript", "npm"},
	"frontend":   {"html", "css", "javascript", "react", "angular", "vue", "bootstrap"},
	"backend":    {"java", "python", "node.js", "php", "c#", "database", "api"},
	"devops":     {"docker", "kubernetes", "aws", "azure", "jenkins", "git", "ci/cd"},
	"data":       {"python", "sql", "pandas", "numpy", "machine learning", "data analysis"},
	"mobile":     {"android", "ios", "react native", "flutter", "swift", "kotlin"},
}

// Options controls keyword matching
type Options struct {
	Threshold        float64
	Inclusive        bool
	MinKeywordLength int
}

// Scorer decides whether resume text qualifies against free-text search criteria
type Scorer struct {
	opts     Options
	common   map[string]struct{}
	industry map[string][]string
}

// NewScorer creates a new scorer instance
func NewScorer(opts Options) *Scorer {
	return &Scorer{
		opts:     opts,
		common:   CommonWords,
		industry: IndustryKeywords,
	}
}

// Keywords extracts the de-duplicated, industry-expanded keyword set from criteria
func (s *Scorer) Keywords(criteria string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keywords = append(keywords, k)
	}

	for _, word := range strings.Fields(strings.ToLower(criteria)) {
		if _, ok := s.common[word]; ok {
			continue
		}
		if len(word) < s.opts.MinKeywordLength {
			continue
		}
		add(word)
		for _, related := range s.industry {
			if contains(related, word) {
				for _, r := range related {
					add(r)
				}
			}
		}
	}

	sort.Strings(keywords)
	return keywords
}

// MatchPercentage returns the share of keywords present in text, 0 when there are none
func MatchPercentage(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	text = strings.ToLower(text)
	matches := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}

// Qualifies applies the configured threshold to a match percentage
func (s *Scorer) Qualifies(percentage float64) bool {
	if s.opts.Inclusive {
		return percentage >= s.opts.Threshold
	}
	return percentage > s.opts.Threshold
}

// Analyze matches resume text against search criteria
func (s *Scorer) Analyze(pdfText, criteria string) models.KeywordAnalysis {
	keywords := s.Keywords(criteria)
	text := strings.ToLower(pdfText)

	analysis := models.KeywordAnalysis{
		Threshold:        s.opts.Threshold,
		TotalKeywords:    len(keywords),
		MatchingKeywords: []string{},
		MissingKeywords:  []string{},
	}

	for _, k := range keywords {
		if strings.Contains(text, k) {
			analysis.MatchingKeywords = append(analysis.MatchingKeywords, k)
		} else {
			analysis.MissingKeywords = append(analysis.MissingKeywords, k)
		}
	}

	analysis.MatchPercentage = MatchPercentage(text, keywords)
	analysis.Qualified = s.Qualifies(analysis.MatchPercentage)

	return analysis
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

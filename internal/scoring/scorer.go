// Package scoring computes credibility and relevance scores for raw sources
// and extracts key quotes. Everything here is pure and synchronous: given
// identical input the output is identical, which the pipeline tests rely on.
package scoring

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/inkpad-ai/researchd/internal/models"
)

const (
	maxKeyQuotes     = 3
	recencyWindow    = 3 * 365 * 24 * time.Hour
	longContentChars = 1000
)

var academicDomains = []string{
	".edu", "arxiv.org", "scholar.google", "jstor.org", "ieee.org",
	"acm.org", "nature.com", "sciencedirect.com", "springer.com", "pubmed",
}

var industryDomains = []string{
	"gartner.com", "forrester.com", "mckinsey.com", "deloitte.com",
	"pwc.com", "bain.com", "hbr.org", "pewresearch.org", "statista.com",
}

var newsDomains = []string{
	"nytimes.com", "reuters.com", "bbc.", "wsj.com", "theguardian.com",
	"bloomberg.com", "ft.com", "economist.com", "washingtonpost.com", "apnews.com",
}

var blogDomains = []string{
	"medium.com", "substack.com", "blogspot.", "wordpress.", "dev.to",
	"hashnode.", "tumblr.com", "blog.",
}

var evidentiaryPhrases = []string{
	"research shows", "according to", "data reveals", "studies indicate",
	"evidence suggests", "survey found", "found that", "demonstrates",
	"analysis shows", "experts say",
}

var stopWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "what": {},
	"your": {}, "about": {}, "which": {}, "their": {}, "will": {},
	"would": {}, "could": {}, "should": {}, "when": {}, "where": {},
	"them": {}, "then": {}, "than": {}, "been": {}, "being": {},
	"into": {}, "over": {}, "under": {}, "only": {}, "also": {},
	"some": {}, "such": {}, "very": {}, "more": {}, "most": {},
	"make": {}, "time": {}, "just": {}, "like": {},
}

// Score turns a raw collaborator record into a scored Source.
func Score(raw models.RawSource, purpose string) models.Source {
	return ScoreAt(raw, purpose, time.Now())
}

// ScoreAt is Score with an explicit reference time for the recency bonus.
func ScoreAt(raw models.RawSource, purpose string, now time.Time) models.Source {
	sourceType := ClassifyURL(raw.URL)
	return models.Source{
		ID:               sourceID(raw.URL),
		URL:              raw.URL,
		Title:            raw.Title,
		Author:           raw.Author,
		PublishDate:      raw.PublishDate,
		SourceType:       sourceType,
		CredibilityScore: credibility(raw, sourceType, now),
		RelevanceScore:   relevance(raw, purpose),
		KeyQuotes:        KeyQuotes(raw.Content),
		Summary:          summarize(raw.Content),
	}
}

// ClassifyURL maps a URL onto a source type by domain patterns.
func ClassifyURL(url string) models.SourceType {
	host := hostOf(url)
	switch {
	case matchesAny(host, academicDomains):
		return models.SourceAcademic
	case matchesAny(host, industryDomains):
		return models.SourceIndustry
	case matchesAny(host, newsDomains):
		return models.SourceNews
	case matchesAny(host, blogDomains):
		return models.SourceBlog
	default:
		return models.SourceOther
	}
}

// credibility starts from a neutral base and adds bonuses for scholarly or
// industry-research provenance, recency, substance, and the collaborator's
// own confidence. Blog posts carry a penalty relative to the base.
func credibility(raw models.RawSource, sourceType models.SourceType, now time.Time) int {
	score := 5
	switch sourceType {
	case models.SourceAcademic:
		score += 3
	case models.SourceIndustry:
		score += 2
	case models.SourceBlog:
		score--
	}
	if raw.PublishDate != nil && now.Sub(*raw.PublishDate) < recencyWindow {
		score++
	}
	if len(raw.Content) > longContentChars {
		score++
	}
	if raw.Relevance > 0.8 {
		score += 2
	} else if raw.Relevance > 0.6 {
		score++
	}
	return clamp(score)
}

func relevance(raw models.RawSource, purpose string) int {
	score := 5.0
	title := strings.ToLower(raw.Title)
	body := strings.ToLower(raw.Content)
	for _, kw := range Keywords(purpose) {
		if strings.Contains(title, kw) {
			score += 2
		}
		if strings.Contains(body, kw) {
			score += 0.5
		}
	}
	score += raw.Relevance * 3
	return clamp(int(math.Round(score)))
}

// Keywords extracts the purpose keywords used for relevance scoring and
// query generation: lowercase tokens longer than 3 characters that are not
// stop words, in order of first appearance, deduplicated.
func Keywords(purpose string) []string {
	fields := strings.FieldsFunc(strings.ToLower(purpose), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) <= 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// KeyQuotes picks up to three sentences containing an evidentiary phrase.
// If none match, it falls back to the first three sentences of moderate
// length, so every substantial source yields at least something quotable.
func KeyQuotes(content string) []string {
	sentences := splitSentences(content)
	var quotes []string
	for _, s := range sentences {
		if len(quotes) == maxKeyQuotes {
			return quotes
		}
		lower := strings.ToLower(s)
		for _, phrase := range evidentiaryPhrases {
			if strings.Contains(lower, phrase) {
				quotes = append(quotes, s)
				break
			}
		}
	}
	if len(quotes) > 0 {
		return quotes
	}
	for _, s := range sentences {
		if len(quotes) == maxKeyQuotes {
			break
		}
		if len(s) >= 50 && len(s) < 200 {
			quotes = append(quotes, s)
		}
	}
	return quotes
}

func summarize(content string) string {
	const maxSummary = 240
	var b strings.Builder
	for _, s := range splitSentences(content) {
		if b.Len() > 0 && b.Len()+len(s)+1 > maxSummary {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
		if b.Len() >= maxSummary {
			break
		}
	}
	out := b.String()
	if out == "" && content != "" {
		if len(content) > maxSummary {
			return strings.TrimSpace(content[:maxSummary])
		}
		return strings.TrimSpace(content)
	}
	if len(out) > maxSummary {
		out = strings.TrimSpace(out[:maxSummary])
	}
	return out
}

// splitSentences breaks content on sentence terminators and keeps trimmed
// sentences longer than 20 characters.
func splitSentences(content string) []string {
	parts := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) > 20 {
			out = append(out, p)
		}
	}
	return out
}

func hostOf(url string) string {
	host := strings.ToLower(url)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	return host
}

func matchesAny(host string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(host, p) {
			return true
		}
	}
	return false
}

func clamp(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

// sourceID derives a stable id from the URL so re-scoring the same source is
// idempotent.
func sourceID(url string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(url))
	return fmt.Sprintf("src-%08x", h.Sum32())
}

package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpad-ai/researchd/internal/models"
)

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		url  string
		want models.SourceType
	}{
		{"https://arxiv.org/abs/2401.01234", models.SourceAcademic},
		{"https://cs.stanford.edu/papers/x", models.SourceAcademic},
		{"https://www.gartner.com/en/research", models.SourceIndustry},
		{"https://hbr.org/2024/01/article", models.SourceIndustry},
		{"https://www.reuters.com/technology/x", models.SourceNews},
		{"https://medium.com/@author/post", models.SourceBlog},
		{"https://blog.example.com/post", models.SourceBlog},
		{"https://example.com/page", models.SourceOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyURL(tt.url), "url %s", tt.url)
	}
}

func TestCredibilityScoring(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	recent := now.AddDate(-1, 0, 0)
	old := now.AddDate(-5, 0, 0)
	long := make([]byte, 1200)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name string
		raw  models.RawSource
		want int
	}{
		{
			name: "academic baseline",
			raw:  models.RawSource{URL: "https://arxiv.org/abs/1", Content: "short", PublishDate: &old},
			want: 8,
		},
		{
			name: "academic recent",
			raw:  models.RawSource{URL: "https://arxiv.org/abs/2", Content: "short", PublishDate: &recent},
			want: 9,
		},
		{
			name: "unclassified recent long form",
			raw:  models.RawSource{URL: "https://example.com/a", Content: string(long), PublishDate: &recent},
			want: 7,
		},
		{
			name: "blog baseline",
			raw:  models.RawSource{URL: "https://medium.com/@x/post", Content: "short", PublishDate: &old},
			want: 4,
		},
		{
			name: "blog recent",
			raw:  models.RawSource{URL: "https://medium.com/@x/other", Content: "short", PublishDate: &recent},
			want: 5,
		},
		{
			name: "industry with high collaborator confidence",
			raw:  models.RawSource{URL: "https://www.gartner.com/r", Content: "short", PublishDate: &old, Relevance: 0.9},
			want: 9,
		},
		{
			name: "everything clamps at ten",
			raw:  models.RawSource{URL: "https://arxiv.org/abs/3", Content: string(long), PublishDate: &recent, Relevance: 0.95},
			want: 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreAt(tt.raw, "test purpose", now)
			assert.Equal(t, tt.want, got.CredibilityScore)
		})
	}
}

func TestScoringIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	date := now.AddDate(-1, 0, 0)
	raw := models.RawSource{
		URL:         "https://www.nature.com/articles/abc",
		Title:       "Quantum error correction milestones",
		Content:     "Research shows that error rates dropped sharply. According to the team, logical qubits are now viable. The result held across runs.",
		PublishDate: &date,
		Relevance:   0.85,
	}
	a := ScoreAt(raw, "quantum computing error correction", now)
	b := ScoreAt(raw, "quantum computing error correction", now)
	assert.Equal(t, a, b)
}

func TestRelevancePrefersTitleMatches(t *testing.T) {
	purpose := "quantum computing cryptography"
	matching := models.RawSource{
		URL:     "https://example.com/a",
		Title:   "Quantum computing breaks cryptography assumptions",
		Content: "An overview of quantum computing and its effect on cryptography standards today.",
	}
	unrelated := models.RawSource{
		URL:     "https://example.com/b",
		Title:   "Gardening tips for spring",
		Content: "Plant tomatoes after the last frost and water them daily for best results here.",
	}
	hi := Score(matching, purpose)
	lo := Score(unrelated, purpose)
	assert.Greater(t, hi.RelevanceScore, lo.RelevanceScore)
	assert.GreaterOrEqual(t, lo.RelevanceScore, 1)
	assert.LessOrEqual(t, hi.RelevanceScore, 10)
}

func TestKeywords(t *testing.T) {
	got := Keywords("The impact of Quantum Computing on modern cryptography, quantum again")
	assert.Equal(t, []string{"impact", "quantum", "computing", "modern", "cryptography", "again"}, got)

	assert.Empty(t, Keywords("a an of"))
	assert.Empty(t, Keywords(""))
}

func TestKeyQuotesPrefersEvidentiaryPhrases(t *testing.T) {
	content := "This is an opening line without much substance at all. " +
		"Research shows that adoption doubled in two years. " +
		"Another filler sentence sits here doing nothing useful. " +
		"According to the survey, most teams ship weekly. " +
		"Data reveals a strong correlation between the two measures. " +
		"Evidence suggests the trend will continue into next year."

	quotes := KeyQuotes(content)
	require.Len(t, quotes, 3)
	assert.Contains(t, quotes[0], "Research shows")
	assert.Contains(t, quotes[1], "According to")
	assert.Contains(t, quotes[2], "Data reveals")
}

func TestKeyQuotesFallback(t *testing.T) {
	content := "The first sentence here is long enough to quote comfortably. " +
		"The second sentence also carries a reasonable amount of text. " +
		"Short one. " +
		"The third quotable sentence rounds out the fallback selection."

	quotes := KeyQuotes(content)
	require.Len(t, quotes, 3)
	for _, q := range quotes {
		assert.GreaterOrEqual(t, len(q), 50)
	}
}

func TestKeyQuotesEmptyContent(t *testing.T) {
	assert.Empty(t, KeyQuotes(""))
	assert.Empty(t, KeyQuotes("Too short."))
}

func TestSourceIDStable(t *testing.T) {
	a := Score(models.RawSource{URL: "https://example.com/x"}, "p")
	b := Score(models.RawSource{URL: "https://example.com/x"}, "p")
	c := Score(models.RawSource{URL: "https://example.com/y"}, "p")
	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestSummarizeBounded(t *testing.T) {
	content := "First meaningful sentence with plenty of characters inside it. " +
		"Second meaningful sentence that also stretches well past the minimum length. " +
		"Third sentence that would push the summary over the configured limit if appended."
	s := Score(models.RawSource{URL: "https://example.com/s", Content: content}, "p")
	assert.NotEmpty(t, s.Summary)
	assert.LessOrEqual(t, len(s.Summary), 240)
}

package executor

import (
	"strings"

	"github.com/inkpad-ai/researchd/internal/models"
	"github.com/inkpad-ai/researchd/internal/scoring"
)

const maxQueries = 5

// GenerateQueries expands a purpose statement into 3-5 search queries
// specialized per workflow kind. Deterministic: no randomness, no time.
func GenerateQueries(kind models.WorkflowKind, purpose string) []string {
	base := strings.TrimSpace(purpose)
	keywords := scoring.Keywords(purpose)
	if len(keywords) > 3 {
		keywords = keywords[:3]
	}
	phrase := strings.Join(keywords, " ")

	var queries []string
	add := func(q string) {
		if len(queries) < maxQueries {
			queries = append(queries, q)
		}
	}

	switch kind {
	case models.KindExperts:
		add(base + " expert opinion")
		add(base + " thought leader")
		if phrase != "" {
			add("leading experts on " + phrase)
		}
		add(base + " industry leaders")
		add(base + " researcher perspective")
	case models.KindContrarianView:
		add("criticism of " + base)
		add(base + " contrarian view")
		add(base + " counterargument")
		add("why " + base + " fails")
		if phrase != "" {
			add("problems with " + phrase)
		}
	case models.KindKnowledgeMap:
		add(base + " overview")
		add(base + " key concepts")
		add(base + " fundamentals")
		if phrase != "" {
			add(phrase + " landscape")
		}
		add(base + " current state")
	}
	return queries
}

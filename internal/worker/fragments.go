package worker

import (
	"sort"
	"strings"
)

const (
	defaultMaxFragments = 5
	defaultMinLength    = 32
)

// FragmentParams configures fragment extraction.
type FragmentParams struct {
	// Path restricts extraction to one document. When empty, all documents
	// in the snapshot are considered.
	Path         string `json:"path,omitempty"`
	Query        string `json:"query,omitempty"`
	MaxFragments int    `json:"max_fragments,omitempty"`
	MinLength    int    `json:"min_length,omitempty"`
}

// Fragment is one scored paragraph.
type Fragment struct {
	Path  string  `json:"path"`
	Index int     `json:"index"` // paragraph position within its document
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// ExtractFragments splits documents on blank-line boundaries, discards
// paragraphs shorter than MinLength, scores the rest, and returns the top
// MaxFragments sorted by score descending.
//
// Scoring: with a query, a paragraph scores the fraction of query terms it
// contains. Without one, earlier paragraphs score higher, decaying linearly
// to zero across the document.
func ExtractFragments(files map[string]string, params FragmentParams) ([]Fragment, error) {
	maxFragments := params.MaxFragments
	if maxFragments < 1 {
		maxFragments = defaultMaxFragments
	}
	minLength := params.MinLength
	if minLength < 1 {
		minLength = defaultMinLength
	}
	terms := queryTerms(params.Query)

	paths := make([]string, 0, len(files))
	if params.Path != "" {
		if _, ok := files[params.Path]; ok {
			paths = append(paths, params.Path)
		}
	} else {
		for path := range files {
			paths = append(paths, path)
		}
		sort.Strings(paths)
	}

	var fragments []Fragment
	for _, path := range paths {
		paragraphs := splitParagraphs(files[path])
		for i, para := range paragraphs {
			if len(para) < minLength {
				continue
			}
			var score float64
			if len(terms) > 0 {
				score = containmentRatio(para, terms)
			} else {
				score = 1 - float64(i)/float64(len(paragraphs))
			}
			fragments = append(fragments, Fragment{
				Path:  path,
				Index: i,
				Text:  para,
				Score: score,
			})
		}
	}

	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Score > fragments[j].Score
	})

	if len(fragments) > maxFragments {
		fragments = fragments[:maxFragments]
	}
	return fragments, nil
}

// splitParagraphs splits content on blank-line boundaries. Lines containing
// only whitespace count as blank.
func splitParagraphs(content string) []string {
	var paragraphs []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, "\n"))
			current = current[:0]
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return paragraphs
}

// containmentRatio is the fraction of query terms contained in the paragraph.
func containmentRatio(paragraph string, terms []string) float64 {
	lower := strings.ToLower(paragraph)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

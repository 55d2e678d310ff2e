package worker

import (
	"sort"
	"strings"
	"unicode"
)

const (
	// contextRadius is the number of lines kept either side of a hit.
	contextRadius = 2

	defaultPageSize = 20
	maxPageSize     = 200

	wordMatchWeight      = 2
	substringMatchWeight = 1
)

// SearchParams configures a bulk multi-document search.
type SearchParams struct {
	Query    string `json:"query"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

// SearchHit is one scored line.
type SearchHit struct {
	Path       string   `json:"path"`
	LineNumber int      `json:"line_number"` // 1-based
	Line       string   `json:"line"`
	Context    []string `json:"context,omitempty"`
	Score      float64  `json:"score"`
}

// SearchResult is a sorted, paginated set of hits across all documents.
type SearchResult struct {
	Hits      []SearchHit `json:"hits"`
	TotalHits int         `json:"total_hits"`
	Page      int         `json:"page"`
	PageSize  int         `json:"page_size"`
}

// BulkSearch scores every line of every document independently, concatenates
// all hits, sorts by score descending, and paginates. Documents are scored
// against nothing but the given snapshot.
func BulkSearch(files map[string]string, params SearchParams) *SearchResult {
	terms := queryTerms(params.Query)

	var hits []SearchHit
	for path, content := range files {
		hits = append(hits, searchDocument(path, content, terms)...)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Path != hits[j].Path {
			return hits[i].Path < hits[j].Path
		}
		return hits[i].LineNumber < hits[j].LineNumber
	})

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total := len(hits)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &SearchResult{
		Hits:      hits[start:end],
		TotalHits: total,
		Page:      page,
		PageSize:  pageSize,
	}
}

// searchDocument scores each line of one document and returns hits with a
// small fixed-radius context window.
func searchDocument(path, content string, terms []string) []SearchHit {
	if len(terms) == 0 {
		return nil
	}

	lines := strings.Split(content, "\n")
	var hits []SearchHit
	for i, line := range lines {
		score := scoreLine(line, terms)
		if score <= 0 {
			continue
		}
		hits = append(hits, SearchHit{
			Path:       path,
			LineNumber: i + 1,
			Line:       line,
			Context:    contextWindow(lines, i, contextRadius),
			Score:      score,
		})
	}
	return hits
}

// scoreLine counts term occurrences in a line. An occurrence aligned on word
// boundaries weighs more than bare substring containment. The score is the
// weighted count normalized by 2 × termCount, so a line matching every term
// exactly once on word boundaries scores 1.0.
func scoreLine(line string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}

	lower := strings.ToLower(line)
	words := splitWords(lower)

	wordCounts := make(map[string]int, len(words))
	for _, w := range words {
		wordCounts[w]++
	}

	weighted := 0
	for _, term := range terms {
		exact := wordCounts[term]
		total := strings.Count(lower, term)
		if total < exact {
			total = exact
		}
		weighted += exact*wordMatchWeight + (total-exact)*substringMatchWeight
	}

	return float64(weighted) / float64(2*len(terms))
}

// bestLineMatch returns the highest-scoring line of a document, or nil when
// nothing matches.
func bestLineMatch(path, content string, terms []string) *SearchHit {
	var best *SearchHit
	for _, hit := range searchDocument(path, content, terms) {
		h := hit
		if best == nil || h.Score > best.Score {
			best = &h
		}
	}
	return best
}

// queryTerms tokenizes a query on whitespace and lower-cases the terms.
func queryTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(query) {
		terms = append(terms, strings.ToLower(f))
	}
	return terms
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func contextWindow(lines []string, idx, radius int) []string {
	start := idx - radius
	if start < 0 {
		start = 0
	}
	end := idx + radius + 1
	if end > len(lines) {
		end = len(lines)
	}
	window := make([]string, end-start)
	copy(window, lines[start:end])
	return window
}

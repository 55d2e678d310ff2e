package worker

const defaultMaxDepth = 3

// TraverseParams configures a bounded-depth graph traversal.
type TraverseParams struct {
	Start          string  `json:"start"`
	Query          string  `json:"query,omitempty"`
	MaxDepth       int     `json:"max_depth,omitempty"`
	ScoreThreshold float64 `json:"score_threshold,omitempty"`
}

// TraverseNode is one matched node in the traversal chain.
type TraverseNode struct {
	Path      string     `json:"path"`
	Depth     int        `json:"depth"`
	Parent    string     `json:"parent,omitempty"`
	BestMatch *SearchHit `json:"best_match,omitempty"`
}

// TraverseResult is the ordered matched chain plus the total visited count,
// which includes unmatched nodes.
type TraverseResult struct {
	Chain        []TraverseNode `json:"chain"`
	NodesVisited int            `json:"nodes_visited"`
}

// Traverse walks the link graph breadth-first from Start, bounded by
// MaxDepth. Every node is visited at most once. A node is matched, and has
// its neighbors enqueued, only when its best single-line score meets the
// threshold; unmatched nodes still count toward NodesVisited.
func Traverse(files map[string]string, graph map[string][]string, params TraverseParams) (*TraverseResult, error) {
	maxDepth := params.MaxDepth
	if maxDepth < 1 {
		maxDepth = defaultMaxDepth
	}
	terms := queryTerms(params.Query)

	type frontier struct {
		path   string
		depth  int
		parent string
	}

	visited := map[string]bool{params.Start: true}
	queue := []frontier{{path: params.Start}}

	result := &TraverseResult{Chain: []TraverseNode{}}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result.NodesVisited++

		best := bestLineMatch(node.path, files[node.path], terms)
		score := 0.0
		if best != nil {
			score = best.Score
		}
		if score < params.ScoreThreshold {
			continue
		}

		result.Chain = append(result.Chain, TraverseNode{
			Path:      node.path,
			Depth:     node.depth,
			Parent:    node.parent,
			BestMatch: best,
		})

		if node.depth >= maxDepth {
			continue
		}
		for _, neighbor := range graph[node.path] {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			queue = append(queue, frontier{
				path:   neighbor,
				depth:  node.depth + 1,
				parent: node.path,
			})
		}
	}

	return result, nil
}

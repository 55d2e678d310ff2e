package worker

import (
	"strings"
	"testing"
)

const para = "this paragraph is comfortably longer than the minimum fragment length"

func TestExtractFragmentsPositionDecay(t *testing.T) {
	t.Parallel()

	content := strings.Join([]string{
		para + " first",
		para + " second",
		para + " third",
	}, "\n\n")

	frags, err := ExtractFragments(map[string]string{"doc.md": content}, FragmentParams{})
	if err != nil {
		t.Fatalf("ExtractFragments: %v", err)
	}
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
	for i := 1; i < len(frags); i++ {
		if frags[i].Score >= frags[i-1].Score {
			t.Fatalf("scores should decay: %v then %v", frags[i-1].Score, frags[i].Score)
		}
	}
	if frags[0].Index != 0 {
		t.Fatalf("earliest paragraph should rank first, got index %d", frags[0].Index)
	}
}

func TestExtractFragmentsQueryContainmentRatio(t *testing.T) {
	t.Parallel()

	content := strings.Join([]string{
		para + " mentions alpha and beta together",
		para + " mentions alpha alone here",
		para + " mentions neither term at all",
	}, "\n\n")

	frags, err := ExtractFragments(map[string]string{"doc.md": content}, FragmentParams{Query: "alpha beta"})
	if err != nil {
		t.Fatalf("ExtractFragments: %v", err)
	}
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
	if frags[0].Score != 1.0 {
		t.Fatalf("both terms contained should score 1.0, got %v", frags[0].Score)
	}
	if frags[1].Score != 0.5 {
		t.Fatalf("one of two terms should score 0.5, got %v", frags[1].Score)
	}
	if frags[2].Score != 0 {
		t.Fatalf("no terms should score 0, got %v", frags[2].Score)
	}
}

func TestExtractFragmentsMinLength(t *testing.T) {
	t.Parallel()

	content := "tiny\n\n" + para

	frags, err := ExtractFragments(map[string]string{"doc.md": content}, FragmentParams{})
	if err != nil {
		t.Fatalf("ExtractFragments: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("short paragraph should be discarded, got %d fragments", len(frags))
	}
	if frags[0].Index != 1 {
		t.Fatalf("surviving fragment should be the second paragraph, got index %d", frags[0].Index)
	}
}

func TestExtractFragmentsTopN(t *testing.T) {
	t.Parallel()

	parts := make([]string, 10)
	for i := range parts {
		parts[i] = para
	}
	content := strings.Join(parts, "\n\n")

	frags, err := ExtractFragments(map[string]string{"doc.md": content}, FragmentParams{MaxFragments: 4})
	if err != nil {
		t.Fatalf("ExtractFragments: %v", err)
	}
	if len(frags) != 4 {
		t.Fatalf("expected top-4 fragments, got %d", len(frags))
	}
}

func TestExtractFragmentsSingleDocument(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"a.md": para + " from a",
		"b.md": para + " from b",
	}

	frags, err := ExtractFragments(files, FragmentParams{Path: "a.md"})
	if err != nil {
		t.Fatalf("ExtractFragments: %v", err)
	}
	if len(frags) != 1 || frags[0].Path != "a.md" {
		t.Fatalf("expected fragments from a.md only, got %+v", frags)
	}
}

func TestSplitParagraphsWhitespaceOnlyLines(t *testing.T) {
	t.Parallel()

	paras := splitParagraphs("first\n   \nsecond\n\n\nthird")
	if len(paras) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d: %q", len(paras), paras)
	}
}

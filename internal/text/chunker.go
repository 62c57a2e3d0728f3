package text

import (
	"strings"
)

// Chunk is a contiguous span of a document's extracted text. Offsets are
// document-relative: pages are treated as one continuous text joined by a
// single newline, and CharStart/CharEnd index into that joined text.
type Chunk struct {
	Content    string
	Index      int
	PageNumber int
	CharStart  int
	CharEnd    int
	TokenCount int
}

// EstimateTokens approximates a token count without a real tokenizer.
// 1 token is roughly 4 characters of English text.
func EstimateTokens(s string) int {
	return len(s) / 4
}

type paragraph struct {
	content    string
	pageNumber int
	charStart  int
	charEnd    int
	tokens     int
}

// Split chunks a single block of text into overlapping, bounded-size chunks.
// Equivalent to SplitPages with one page.
func Split(text string, maxTokens, overlap int) []Chunk {
	return SplitPages([]string{text}, maxTokens, overlap)
}

// SplitPages chunks per-page text into overlapping chunks, preferring
// paragraph boundaries (blank-line delimited). When accumulating another
// paragraph would exceed maxTokens, the current chunk is closed and trailing
// paragraphs up to the overlap token budget are carried into the next chunk.
//
// Whitespace-only paragraphs are dropped. A single paragraph longer than
// maxTokens is emitted as one oversized chunk; there is no mid-paragraph
// splitting. Chunks are produced in document order with sequence indices
// assigned by emission order, and chunk start offsets are monotonically
// non-decreasing.
func SplitPages(pages []string, maxTokens, overlap int) []Chunk {
	paragraphs := collectParagraphs(pages)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []Chunk
	var current []paragraph
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		contents := make([]string, len(current))
		for i, p := range current {
			contents[i] = p.content
		}
		chunks = append(chunks, Chunk{
			Content:    strings.Join(contents, "\n\n"),
			Index:      len(chunks),
			PageNumber: current[0].pageNumber,
			CharStart:  current[0].charStart,
			CharEnd:    current[len(current)-1].charEnd,
			TokenCount: currentTokens,
		})
	}

	for _, para := range paragraphs {
		if currentTokens+para.tokens > maxTokens && len(current) > 0 {
			flush()
			current, currentTokens = carryOverlap(current, overlap)
		}
		current = append(current, para)
		currentTokens += para.tokens
	}
	flush()

	return chunks
}

// carryOverlap returns the trailing paragraphs of a closed chunk whose token
// sum fits the overlap budget, preserving their original order.
func carryOverlap(closed []paragraph, overlap int) ([]paragraph, int) {
	if overlap <= 0 {
		return nil, 0
	}
	total := 0
	i := len(closed)
	for i > 0 && total+closed[i-1].tokens <= overlap {
		total += closed[i-1].tokens
		i--
	}
	if i == len(closed) {
		return nil, 0
	}
	carried := make([]paragraph, len(closed)-i)
	copy(carried, closed[i:])
	return carried, total
}

// collectParagraphs splits each page on blank lines and records document
// relative offsets. The running offset advances by the full page length plus
// one for the newline joining pages, so offsets stay stable regardless of how
// much whitespace is trimmed.
func collectParagraphs(pages []string) []paragraph {
	var paragraphs []paragraph
	docOffset := 0

	for pageIdx, page := range pages {
		pos := 0
		for _, raw := range strings.Split(page, "\n\n") {
			trimmed := strings.TrimSpace(raw)
			if trimmed != "" {
				lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
				start := docOffset + pos + lead
				paragraphs = append(paragraphs, paragraph{
					content:    trimmed,
					pageNumber: pageIdx + 1,
					charStart:  start,
					charEnd:    start + len(trimmed),
					tokens:     EstimateTokens(trimmed),
				})
			}
			pos += len(raw) + 2
		}
		docOffset += len(page) + 1
	}

	return paragraphs
}

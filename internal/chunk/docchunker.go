package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Matches headings: # Title, ## Title, etc. (one marker per level, leading).
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// codeFencePattern matches a fence line: ``` or ```lang, ignoring leading
// indentation.
var codeFencePattern = regexp.MustCompile("^\\s*```")

// DocChunker implements structure-aware chunking over a lightweight
// heading+code-fence markup. It is deterministic: the same content and
// Config always produce the same chunk sequence.
type DocChunker struct {
	cfg Config
}

// NewDocChunker creates a chunker with the given configuration; unset
// fields fall back to package defaults as Config.WithDefaults describes.
func NewDocChunker(cfg Config) *DocChunker {
	return &DocChunker{cfg: cfg.WithDefaults()}
}

var _ Chunker = (*DocChunker)(nil)

// segment is an intermediate parse unit before the linear walk assigns
// chunk boundaries.
type segment struct {
	kind  segmentKind
	text  string // raw text, newline-joined, fence markers included for code
	level int    // heading level, only meaningful when kind == segHeading
	title string // heading title, only meaningful when kind == segHeading
}

type segmentKind int

const (
	segHeading segmentKind = iota
	segCodeFence
	segParagraph
)

// parseSegments splits content into headings, fenced code blocks, and
// paragraphs (maximal runs of non-blank, non-heading, non-fence lines).
func parseSegments(content string) []segment {
	lines := strings.Split(content, "\n")
	var segments []segment
	var para []string

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(para, "\n"))
		if text != "" {
			segments = append(segments, segment{kind: segParagraph, text: text})
		}
		para = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flushPara()
			segments = append(segments, segment{
				kind:  segHeading,
				text:  line,
				level: len(m[1]),
				title: strings.TrimSpace(m[2]),
			})
			continue
		}

		if codeFencePattern.MatchString(line) {
			flushPara()
			fence := []string{line}
			i++
			for i < len(lines) {
				fence = append(fence, lines[i])
				if codeFencePattern.MatchString(lines[i]) {
					break
				}
				i++
			}
			segments = append(segments, segment{kind: segCodeFence, text: strings.Join(fence, "\n")})
			continue
		}

		if strings.TrimSpace(line) == "" {
			flushPara()
			continue
		}

		para = append(para, line)
	}
	flushPara()

	return segments
}

// Chunk splits a document into DocumentChunks per the structure-aware
// algorithm: headings at or above SplitHeadingLevel and code fences are
// hard boundaries; text otherwise accumulates up to MaxChunkTokens.
func (c *DocChunker) Chunk(_ context.Context, doc *DocumentInput) ([]*ChunkResult, error) {
	content := string(doc.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	if doc.DocumentID == "" {
		// Caller has no stable identifier for this document (e.g. ad hoc
		// pasted content); mint one so ChunkID generation still has a
		// document-scoped namespace to hash against.
		doc.DocumentID = uuid.NewString()
	}

	segments := parseSegments(content)

	var (
		chunks       []*ChunkResult
		ordinal      int
		headingStack [6]string
		curPath      []string
		acc          strings.Builder
		prevTail     string // overlap source from the last emitted normal chunk
	)

	headingPath := func() []string {
		path := make([]string, 0, 6)
		for _, h := range headingStack {
			if h != "" {
				path = append(path, h)
			}
		}
		return path
	}

	emit := func(text string, isCode, oversized bool, path []string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		full := text
		if !isCode && prevTail != "" {
			full = prevTail + "\n\n" + text
		}
		chunks = append(chunks, &ChunkResult{
			ChunkID:       generateChunkID(doc.DocumentID, ordinal, text),
			DocumentID:    doc.DocumentID,
			Ordinal:       ordinal,
			Text:          full,
			TokenEstimate: estimateTokens(full),
			HeadingPath:   append([]string{}, path...),
			IsCodeBlock:   isCode,
			Oversized:     oversized,
			Metadata:      doc.Metadata,
		})
		ordinal++
		if isCode {
			prevTail = ""
		} else {
			prevTail = tailWords(text, c.cfg.OverlapTokens)
		}
	}

	flushAcc := func() {
		if acc.Len() == 0 {
			return
		}
		emit(acc.String(), false, false, curPath)
		acc.Reset()
	}

	curPath = headingPath()

	for _, seg := range segments {
		switch seg.kind {
		case segHeading:
			if seg.level <= c.cfg.SplitHeadingLevel {
				flushAcc()
			}
			headingStack[seg.level-1] = seg.title
			for i := seg.level; i < 6; i++ {
				headingStack[i] = ""
			}
			if seg.level <= c.cfg.SplitHeadingLevel {
				curPath = headingPath()
				acc.WriteString(seg.text)
				acc.WriteString("\n")
			} else {
				if acc.Len() > 0 {
					acc.WriteString("\n")
				}
				acc.WriteString(seg.text)
				acc.WriteString("\n")
			}

		case segCodeFence:
			flushAcc()
			path := headingPath()
			tokens := estimateTokens(seg.text)
			emit(seg.text, true, tokens > c.cfg.MaxChunkTokens, path)
			curPath = path

		case segParagraph:
			paraTokens := estimateTokens(seg.text)
			if paraTokens > c.cfg.MaxChunkTokens {
				flushAcc()
				path := headingPath()
				for _, part := range splitAtWordBoundaries(seg.text, c.cfg.MaxChunkTokens) {
					emit(part, false, false, path)
				}
				curPath = path
				continue
			}
			if acc.Len() > 0 && estimateTokens(acc.String())+paraTokens > c.cfg.MaxChunkTokens {
				flushAcc()
			}
			if acc.Len() > 0 {
				acc.WriteString("\n\n")
			}
			acc.WriteString(seg.text)
		}
	}
	flushAcc()

	return chunks, nil
}

// splitAtWordBoundaries splits text into pieces of at most maxTokens each,
// breaking only between words.
func splitAtWordBoundaries(text string, maxTokens int) []string {
	maxChars := maxTokens * TokensPerChar
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var parts []string
	var cur strings.Builder
	for _, w := range words {
		if cur.Len() > 0 && cur.Len()+1+len(w) > maxChars {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// tailWords returns the trailing ~overlapTokens worth of text, cut at a
// word boundary, for use as overlap context on the following chunk.
func tailWords(text string, overlapTokens int) string {
	if overlapTokens <= 0 {
		return ""
	}
	maxChars := overlapTokens * TokensPerChar
	if len(text) <= maxChars {
		return text
	}
	tail := text[len(text)-maxChars:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 {
		tail = tail[idx+1:]
	}
	return tail
}

// estimateTokens approximates a token count from character length.
func estimateTokens(content string) int {
	return len(content) / TokensPerChar
}

// generateChunkID derives a stable, content-addressed chunk identifier.
// Same document + ordinal + text always produces the same ID; different
// text at the same position changes it, so downstream consumers can tell
// a chunk needs re-embedding.
func generateChunkID(documentID string, ordinal int, text string) string {
	contentHash := sha256.Sum256([]byte(text))
	input := fmt.Sprintf("%s:%s:%s", documentID, strconv.Itoa(ordinal), hex.EncodeToString(contentHash[:8]))
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

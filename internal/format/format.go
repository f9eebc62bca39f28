// Package format turns assistant replies into renderable blocks.
package format

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"OMSChat/internal/message"
)

// PDFPrefix is the base64 encoding of a PDF file's "%PDF" header
const PDFPrefix = "JVBER"

// BlockKind distinguishes paragraphs from bulleted lists
type BlockKind int

const (
	Paragraph BlockKind = iota
	BulletList
)

func (k BlockKind) String() string {
	switch k {
	case Paragraph:
		return "paragraph"
	case BulletList:
		return "bulleted-list"
	default:
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
}

// Span is a run of text, optionally emphasized
type Span struct {
	Text       string
	Emphasized bool
}

// Block is one paragraph or one bulleted list. A paragraph has exactly one
// item; a list has one item per bullet.
type Block struct {
	Kind  BlockKind
	Items [][]Span
}

// Rendered is the result of formatting one message body
type Rendered struct {
	PDF    []byte // set when the body was a PDF payload
	Blocks []Block
}

// IsPDF reports whether content should be treated as a base64 PDF
func IsPDF(content string, typ message.Type) bool {
	return typ == message.TypePDF || strings.HasPrefix(content, PDFPrefix)
}

// Format classifies content and either decodes it as a PDF or parses it
// into text blocks. PDF payloads never reach the text parser.
func Format(content string, typ message.Type) (Rendered, error) {
	if IsPDF(content, typ) {
		data, err := DecodePDF(content)
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{PDF: data}, nil
	}
	return Rendered{Blocks: Blocks(content)}, nil
}

// DecodePDF decodes a base64 payload, ignoring embedded whitespace
func DecodePDF(content string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, content)

	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// some backends strip padding
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("failed to decode PDF payload: %w", err)
	}
	return data, nil
}

// listItemPattern matches label-like lines such as "ORDER ID 123"
var listItemPattern = regexp.MustCompile(`^[A-Z0-9_\-\s]{3,}$`)

// emphasisPattern matches **bold** runs, shortest first
var emphasisPattern = regexp.MustCompile(`\*\*.*?\*\*`)

// Blocks splits text into paragraphs and bulleted lists. Blank lines are
// dropped; consecutive all-caps lines are grouped into a single list.
func Blocks(text string) []Block {
	var blocks []Block
	var list [][]Span

	flush := func() {
		if len(list) > 0 {
			blocks = append(blocks, Block{Kind: BulletList, Items: list})
			list = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if listItemPattern.MatchString(line) {
			list = append(list, Spans(line))
			continue
		}

		flush()
		blocks = append(blocks, Block{Kind: Paragraph, Items: [][]Span{Spans(line)}})
	}
	flush()

	return blocks
}

// Spans splits a line into plain and emphasized runs, in order
func Spans(line string) []Span {
	var spans []Span
	last := 0
	for _, loc := range emphasisPattern.FindAllStringIndex(line, -1) {
		if loc[0] > last {
			spans = append(spans, Span{Text: line[last:loc[0]]})
		}
		spans = append(spans, Span{Text: line[loc[0]+2 : loc[1]-2], Emphasized: true})
		last = loc[1]
	}
	if last < len(line) {
		spans = append(spans, Span{Text: line[last:]})
	}
	return spans
}

// PlainText flattens blocks back into text, for logs and transcripts
func PlainText(blocks []Block) string {
	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		for j, item := range block.Items {
			if j > 0 {
				b.WriteString("\n")
			}
			if block.Kind == BulletList {
				b.WriteString("- ")
			}
			for _, s := range item {
				b.WriteString(s.Text)
			}
		}
	}
	return b.String()
}

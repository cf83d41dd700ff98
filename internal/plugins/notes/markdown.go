package notes

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// Note is one parsed markdown file
type Note struct {
	Path  string // Relative to the notes directory, slash separated
	Title string // First heading, or the file name without extension
	Body  string // Plain text without markdown syntax
}

// ParseNote parses a markdown document into a title and plain text body
func ParseNote(path string, md []byte) Note {
	doc := markdown.Parse(md, parser.NewWithExtensions(parser.CommonExtensions))

	te := &textExtractor{}
	ast.Walk(doc, te)

	title := strings.TrimSpace(te.title.String())
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return Note{Path: path, Title: title, Body: normalizeLines(te.buf.String())}
}

// PlainText removes markdown formatting and keeps headings, paragraphs and list items.
// Code blocks, inline code, images and raw HTML are dropped.
func PlainText(md string) string {
	return ParseNote("", []byte(md)).Body
}

// normalizeLines trims every line and collapses runs of blank lines into one
func normalizeLines(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	cleaned := make([]string, 0, len(lines))
	prevEmpty := false

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !prevEmpty {
				cleaned = append(cleaned, "")
			}
			prevEmpty = true
			continue
		}
		cleaned = append(cleaned, line)
		prevEmpty = false
	}
	return strings.Join(cleaned, "\n")
}

// textExtractor collects plain text and the first heading while walking the AST
type textExtractor struct {
	buf          bytes.Buffer
	title        bytes.Buffer
	headingDepth int
	titleDone    bool
}

// Visit implements ast.NodeVisitor
func (te *textExtractor) Visit(node ast.Node, entering bool) ast.WalkStatus {
	switch n := node.(type) {
	case *ast.Heading:
		te.buf.WriteString("\n")
		if entering {
			te.headingDepth++
		} else {
			te.headingDepth--
			if te.title.Len() > 0 {
				te.titleDone = true
			}
		}

	case *ast.Paragraph:
		if !entering {
			te.buf.WriteString("\n")
		}

	case *ast.Text:
		if entering {
			te.buf.Write(n.Literal)
			if te.headingDepth > 0 && !te.titleDone {
				te.title.Write(n.Literal)
			}
		}

	case *ast.Softbreak, *ast.Hardbreak:
		te.buf.WriteString(" ")

	case *ast.CodeBlock, *ast.Code, *ast.Image, *ast.HTMLBlock, *ast.HTMLSpan:
		return ast.SkipChildren

	case *ast.Link:
		if !entering {
			te.buf.WriteString(" ")
		}

	case *ast.List:
		if !entering {
			te.buf.WriteString("\n")
		}

	case *ast.ListItem:
		if entering {
			te.buf.WriteString("\n• ")
		}
	}

	return ast.GoToNext
}

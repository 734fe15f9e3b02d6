package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
)

// ErrIngestion marks a payload that could not be turned into document text.
var ErrIngestion = errors.New("ingestion error")

const pageSeparator = "\n\n"

// Result is the text extracted from one document.
type Result struct {
	Text       string
	Pages      int
	EmptyPages int
}

// Service extracts text from uploaded PDFs.
type Service struct {
	parser parser.Parser
	loader *file.FileLoader
}

func NewService(ctx context.Context) (*Service, error) {
	pdfParser := &PDFParser{}
	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers: map[string]parser.Parser{
			".pdf": pdfParser,
		},
		FallbackParser: unsupportedParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}
	normalized := lowerExtParser{inner: extParser}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      normalized,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &Service{parser: normalized, loader: loader}, nil
}

// Extract reads an uploaded document and returns its text with page order
// preserved.
func (s *Service) Extract(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	name := filepath.Base(filename)
	if !isPDF(name) {
		return nil, fmt.Errorf("%w: %s is not a pdf", ErrIngestion, name)
	}
	docs, err := s.parser.Parse(ctx, r, parser.WithURI(name))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrIngestion, name, err)
	}
	return joinPages(docs), nil
}

// ExtractFile is Extract for a document on local disk.
func (s *Service) ExtractFile(ctx context.Context, path string) (*Result, error) {
	if !isPDF(path) {
		return nil, fmt.Errorf("%w: %s is not a pdf", ErrIngestion, filepath.Base(path))
	}
	docs, err := s.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrIngestion, path, err)
	}
	return joinPages(docs), nil
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// normalizeExt lower-cases the extension so REPORT.PDF reaches the ".pdf" parser.
func normalizeExt(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + strings.ToLower(ext)
}

// lowerExtParser routes by the lower-cased extension of the source URI.
type lowerExtParser struct {
	inner parser.Parser
}

func (p lowerExtParser) Parse(ctx context.Context, reader io.Reader, opts ...parser.Option) ([]*schema.Document, error) {
	options := parser.GetCommonOptions(&parser.Options{}, opts...)
	return p.inner.Parse(ctx, reader, append(opts, parser.WithURI(normalizeExt(options.URI)))...)
}

func joinPages(docs []*schema.Document) *Result {
	res := &Result{Pages: len(docs)}
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.Content) == "" {
			res.EmptyPages++
			continue
		}
		parts = append(parts, doc.Content)
	}
	res.Text = strings.Join(parts, pageSeparator)
	return res
}

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/ledongthuc/pdf"
)

const (
	metaPage   = "page"
	metaPages  = "pages"
	metaSource = "source"
)

var errEmptyPayload = errors.New("empty payload")

// PDFParser turns a PDF into one schema.Document per page, in page order.
// Pages without extractable text yield documents with empty content.
type PDFParser struct{}

var _ parser.Parser = (*PDFParser)(nil)

func (p *PDFParser) Parse(ctx context.Context, reader io.Reader, opts ...parser.Option) (docs []*schema.Document, err error) {
	options := parser.GetCommonOptions(&parser.Options{}, opts...)

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if len(data) == 0 {
		return nil, errEmptyPayload
	}

	// the pdf package panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := r.NumPage()
	docs = make([]*schema.Document, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(r.Page(i))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		meta := map[string]any{
			metaPage:   i,
			metaPages:  total,
			metaSource: options.URI,
		}
		for k, v := range options.ExtraMeta {
			meta[k] = v
		}
		docs = append(docs, &schema.Document{
			ID:       fmt.Sprintf("%s#%d", options.URI, i),
			Content:  text,
			MetaData: meta,
		})
	}
	return docs, nil
}

func pageText(page pdf.Page) (string, error) {
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

type unsupportedParser struct{}

func (unsupportedParser) Parse(_ context.Context, _ io.Reader, opts ...parser.Option) ([]*schema.Document, error) {
	options := parser.GetCommonOptions(&parser.Options{}, opts...)
	return nil, fmt.Errorf("unsupported file type: %q", options.URI)
}

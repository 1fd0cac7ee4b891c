// Package extract turns uploaded files into text and record items that can be
// sampled into prompts.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"datasteward/internal/storage"
)

const maxFetchBytes = 50 << 20 // 50 MB

// ErrUnsupportedFormat is returned for files recognised by extension but not
// readable, such as legacy binary .xls workbooks.
var ErrUnsupportedFormat = errors.New("unsupported file format")

type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"
	FormatHTML  Format = "html"
	FormatText  Format = "text"

	FormatUnsupported Format = "unsupported"
)

type Options struct {
	Chunking  bool
	ChunkSize int
}

// Result carries the flattened text and, for tabular formats or when
// chunking is requested, the ordered items the text was split into.
type Result struct {
	Format Format   `json:"format"`
	Text   string   `json:"text"`
	Items  []string `json:"items,omitempty"`
}

type Extractor struct {
	store      storage.ObjectStore
	httpClient *http.Client
}

// NewExtractor builds an extractor. URLs issued by store are read through it
// instead of over HTTP; store may be nil.
func NewExtractor(store storage.ObjectStore) *Extractor {
	return &Extractor{
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *Extractor) FromBlob(ctx context.Context, name string, data []byte, opts Options) (*Result, error) {
	return e.extract(ctx, DetectFormat(name, ""), data, nil, opts)
}

func (e *Extractor) FromURL(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("url is empty")
	}

	if e.store != nil {
		if objectPath, ok := e.store.PathFromURL(rawURL); ok {
			rc, err := e.store.Open(ctx, objectPath)
			if err != nil {
				return nil, fmt.Errorf("open stored object failed: %w", err)
			}
			defer rc.Close()
			data, err := io.ReadAll(io.LimitReader(rc, maxFetchBytes))
			if err != nil {
				return nil, fmt.Errorf("read stored object failed: %w", err)
			}
			return e.extract(ctx, DetectFormat(objectPath, ""), data, nil, opts)
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request failed: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch url status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read url body failed: %w", err)
	}
	return e.extract(ctx, DetectFormat(parsed.Path, resp.Header.Get("Content-Type")), data, parsed, opts)
}

func (e *Extractor) extract(_ context.Context, format Format, data []byte, pageURL *url.URL, opts Options) (*Result, error) {
	var (
		res *Result
		err error
	)
	switch format {
	case FormatCSV:
		res, err = extractCSV(data)
	case FormatJSON:
		res, err = extractJSON(data)
	case FormatExcel:
		res, err = extractExcel(data)
	case FormatPDF:
		res, err = extractPDF(data)
	case FormatHTML:
		res, err = extractHTML(data, pageURL)
	case FormatUnsupported:
		return nil, ErrUnsupportedFormat
	default:
		res = &Result{Format: FormatText, Text: string(bytes.TrimSpace(data))}
	}
	if err != nil {
		return nil, err
	}

	if opts.Chunking && len(res.Items) == 0 && res.Text != "" {
		res.Items = ChunkText(res.Text, opts.ChunkSize)
	}
	return res, nil
}

// DetectFormat picks a format from the file extension, falling back to the
// content type when the extension says nothing.
func DetectFormat(name, contentType string) Format {
	switch strings.ToLower(filepath.Ext(path.Base(name))) {
	case ".csv", ".tsv":
		return FormatCSV
	case ".json", ".ndjson":
		return FormatJSON
	case ".xlsx", ".xlsm":
		return FormatExcel
	case ".xls":
		// excelize reads OOXML only
		return FormatUnsupported
	case ".pdf":
		return FormatPDF
	case ".html", ".htm":
		return FormatHTML
	case ".txt", ".md", ".log":
		return FormatText
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return FormatText
	}
	switch mediaType {
	case "text/csv":
		return FormatCSV
	case "application/json":
		return FormatJSON
	case "application/pdf":
		return FormatPDF
	case "text/html", "application/xhtml+xml":
		return FormatHTML
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatExcel
	}
	return FormatText
}

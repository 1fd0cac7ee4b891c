package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"datasteward/internal/ai"
	"datasteward/internal/extract"
	"datasteward/internal/model"
	"datasteward/internal/storage"
)

var errBoom = errors.New("boom")

type fakeGenerator struct {
	mu      sync.Mutex
	text    func(ai.TextRequest) (string, error)
	object  func(ai.ObjectRequest) (json.RawMessage, error)
	prompts []string
	calls   chan struct{}
}

func (g *fakeGenerator) GenerateText(ctx context.Context, req ai.TextRequest) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	fn := g.text
	g.mu.Unlock()
	if g.calls != nil {
		defer func() { g.calls <- struct{}{} }()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fn == nil {
		return "ok", nil
	}
	return fn(req)
}

func (g *fakeGenerator) GenerateObject(_ context.Context, req ai.ObjectRequest) (json.RawMessage, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	fn := g.object
	g.mu.Unlock()
	if fn == nil {
		return json.RawMessage(`{"recordCount":1,"columns":["a"],"description":"d","dataQuality":"fine"}`), nil
	}
	return fn(req)
}

func (g *fakeGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}

type fakeExtractor struct {
	blob    *extract.Result
	blobErr error
	url     map[string]string
	urlErr  error
	block   chan struct{}
}

func (e *fakeExtractor) FromBlob(_ context.Context, _ string, data []byte, _ extract.Options) (*extract.Result, error) {
	if e.blobErr != nil {
		return nil, e.blobErr
	}
	if e.blob != nil {
		return e.blob, nil
	}
	return &extract.Result{Format: extract.FormatText, Text: string(data)}, nil
}

func (e *fakeExtractor) FromURL(ctx context.Context, url string, _ extract.Options) (*extract.Result, error) {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.urlErr != nil {
		return nil, e.urlErr
	}
	return &extract.Result{Format: extract.FormatText, Text: e.url[url]}, nil
}

type fakeActivity struct {
	mu   sync.Mutex
	seen []model.Activity
	err  error
}

func (a *fakeActivity) Publish(_ context.Context, activity model.Activity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.seen = append(a.seen, activity)
	return nil
}

func (a *fakeActivity) Kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var kinds []string
	for _, act := range a.seen {
		kinds = append(kinds, act.Kind)
	}
	return kinds
}

type failingKV struct {
	getErr error
	setErr error
	value  string
}

func (f *failingKV) Get(context.Context, string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.value, f.value != "", nil
}

func (f *failingKV) Set(_ context.Context, _ string, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.value = value
	return nil
}

type failingObjectStore struct {
	*storage.MemoryStore
}

func (failingObjectStore) Upload(context.Context, string, io.Reader, int64, string, storage.UploadOptions) (storage.UploadResult, error) {
	return storage.UploadResult{}, errBoom
}

// tickingClock returns a strictly increasing time on every call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func intPtr(n int) *int { return &n }

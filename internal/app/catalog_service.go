package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"datasteward/internal/ai"
	"datasteward/internal/extract"
	"datasteward/internal/kvstore"
	"datasteward/internal/model"
	"datasteward/internal/storage"
)

type CatalogOptions struct {
	ChunkSize    int
	PreviewItems int
	PreviewChars int
}

type FileInput struct {
	Name        string
	Size        int64
	ContentType string
	Data        []byte
}

// AnalysisResult is what the model reports about a freshly uploaded file.
type AnalysisResult struct {
	RecordCount float64  `json:"recordCount"`
	Columns     []string `json:"columns"`
	Description string   `json:"description"`
	DataQuality string   `json:"dataQuality"`
}

type CatalogService struct {
	kv        kvstore.Store
	objects   storage.ObjectStore
	extractor Extractor
	generator ai.Generator
	activity  ActivityPublisher
	opts      CatalogOptions

	locks sync.Map
	now   func() time.Time
}

func NewCatalogService(kv kvstore.Store, objects storage.ObjectStore, extractor Extractor, generator ai.Generator, activity ActivityPublisher, opts CatalogOptions) *CatalogService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = extract.DefaultChunkSize
	}
	if opts.PreviewItems <= 0 {
		opts.PreviewItems = 5
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = 2000
	}
	return &CatalogService{
		kv:        kv,
		objects:   objects,
		extractor: extractor,
		generator: generator,
		activity:  activity,
		opts:      opts,
		now:       time.Now,
	}
}

func catalogKey(userID uint) string {
	return "datasources:" + strconv.FormatUint(uint64(userID), 10)
}

// Load returns the user's data sources, newest first. When the stored list
// cannot be read it still returns an empty slice, together with
// ErrPersistence so the caller can show the list as degraded.
func (s *CatalogService) Load(ctx context.Context, userID uint) ([]model.DataSource, error) {
	raw, found, err := s.kv.Get(ctx, catalogKey(userID))
	if err != nil {
		log.Printf("load data sources failed, user=%d: %v", userID, err)
		return []model.DataSource{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		return []model.DataSource{}, nil
	}

	var sources []model.DataSource
	if err := json.Unmarshal([]byte(raw), &sources); err != nil {
		log.Printf("decode data sources failed, user=%d: %v", userID, err)
		return []model.DataSource{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if sources == nil {
		sources = []model.DataSource{}
	}
	return sources, nil
}

func (s *CatalogService) Get(ctx context.Context, userID uint, id string) (model.DataSource, error) {
	sources, err := s.Load(ctx, userID)
	if err != nil {
		return model.DataSource{}, err
	}
	for _, src := range sources {
		if src.ID == id {
			return src, nil
		}
	}
	return model.DataSource{}, ErrDataSourceNotFound
}

// Add uploads, extracts and analyzes a file, then persists the resulting
// record at the head of the user's catalog. Nothing is persisted unless
// every step succeeds.
func (s *CatalogService) Add(ctx context.Context, user model.Profile, file FileInput) (model.DataSource, error) {
	name := strings.TrimSpace(file.Name)
	if user.ID == 0 {
		return model.DataSource{}, ErrAuthRequired
	}
	if name == "" || len(file.Data) == 0 {
		return model.DataSource{}, ErrInvalidInput
	}
	if extract.DetectFormat(name, file.ContentType) == extract.FormatUnsupported {
		return model.DataSource{}, fmt.Errorf("%w: legacy .xls workbooks are not supported, save the file as .xlsx", ErrInvalidInput)
	}
	size := file.Size
	if size <= 0 {
		size = int64(len(file.Data))
	}

	mu := s.userLock(user.ID)
	mu.Lock()
	defer mu.Unlock()

	now := s.now()
	objectPath := fmt.Sprintf("data-sources/%d/%d-%s", user.ID, now.UnixMilli(), sanitizeFileName(name))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploaded, err := s.objects.Upload(ctx, objectPath, bytes.NewReader(file.Data), int64(len(file.Data)), contentType, storage.UploadOptions{})
	if err != nil {
		log.Printf("upload data source failed, user=%d file=%s: %v", user.ID, name, err)
		return model.DataSource{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	fail := func(sentinel error, cause error) (model.DataSource, error) {
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), uploaded.Path); delErr != nil {
			log.Printf("delete orphaned upload failed, path=%s: %v", uploaded.Path, delErr)
		}
		return model.DataSource{}, fmt.Errorf("%w: %v", sentinel, cause)
	}

	extracted, err := s.extractor.FromBlob(ctx, name, file.Data, extract.Options{Chunking: true, ChunkSize: s.opts.ChunkSize})
	if err != nil {
		log.Printf("extract data source failed, user=%d file=%s: %v", user.ID, name, err)
		return fail(ErrExtraction, err)
	}

	typ := InferType(name)
	analysis, err := s.analyze(ctx, name, typ, extracted)
	if err != nil {
		log.Printf("analyze data source failed, user=%d file=%s: %v", user.ID, name, err)
		return fail(ErrAnalysis, err)
	}

	existing, err := s.Load(ctx, user.ID)
	if err != nil {
		return fail(ErrPersistence, err)
	}

	records := clampRecordCount(analysis.RecordCount)
	src := model.DataSource{
		ID:          nextSourceID(now, existing),
		Name:        name,
		Type:        typ,
		Size:        size,
		UploadedAt:  now.UTC(),
		Status:      model.DataSourceReady,
		RecordCount: &records,
		Columns:     analysis.Columns,
		Description: strings.TrimSpace(analysis.Description),
		FileURL:     uploaded.PublicURL,
		UserID:      user.ID,
	}

	updated := make([]model.DataSource, 0, len(existing)+1)
	updated = append(updated, src)
	updated = append(updated, existing...)
	if err := s.save(ctx, user.ID, updated); err != nil {
		log.Printf("persist data sources failed, user=%d: %v", user.ID, err)
		return fail(ErrPersistence, err)
	}

	s.recordActivity(ctx, user.ID, model.ActivityDataSourceAdded, src.Name)
	return src, nil
}

// Remove drops the source with the given id. It reports whether anything
// was removed; a missing id is not an error and writes nothing.
func (s *CatalogService) Remove(ctx context.Context, userID uint, id string) (bool, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.Load(ctx, userID)
	if err != nil {
		return false, err
	}

	var removed *model.DataSource
	kept := make([]model.DataSource, 0, len(existing))
	for i := range existing {
		if existing[i].ID == id && removed == nil {
			removed = &existing[i]
			continue
		}
		kept = append(kept, existing[i])
	}
	if removed == nil {
		return false, nil
	}

	if err := s.save(ctx, userID, kept); err != nil {
		log.Printf("persist data sources failed, user=%d: %v", userID, err)
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if objectPath, ok := s.objects.PathFromURL(removed.FileURL); ok {
		if err := s.objects.Delete(ctx, objectPath); err != nil {
			log.Printf("delete data source object failed, path=%s: %v", objectPath, err)
		}
	}
	s.recordActivity(ctx, userID, model.ActivityDataSourceRemoved, removed.Name)
	return true, nil
}

func (s *CatalogService) Search(ctx context.Context, userID uint, query string) ([]model.DataSource, error) {
	sources, err := s.Load(ctx, userID)
	return SearchDataSources(sources, query), err
}

// SearchDataSources keeps the sources whose name or description contains
// query, ignoring case. An empty query keeps everything.
func SearchDataSources(sources []model.DataSource, query string) []model.DataSource {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.DataSource, 0, len(sources))
	for _, src := range sources {
		if q == "" ||
			strings.Contains(strings.ToLower(src.Name), q) ||
			strings.Contains(strings.ToLower(src.Description), q) {
			out = append(out, src)
		}
	}
	return out
}

// clampRecordCount bounds a model-reported count to [0, MaxInt32] so a
// runaway value cannot overflow when converted.
func clampRecordCount(n float64) int {
	if math.IsNaN(n) || n <= 0 {
		return 0
	}
	if n >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(n))
}

// InferType maps a file name to a data source type by extension.
func InferType(name string) model.DataSourceType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return model.DataSourceJSON
	case ".xlsx", ".xls":
		return model.DataSourceExcel
	case ".sql", ".db", ".sqlite":
		return model.DataSourceDatabase
	default:
		return model.DataSourceCSV
	}
}

func (s *CatalogService) analyze(ctx context.Context, name string, typ model.DataSourceType, extracted *extract.Result) (AnalysisResult, error) {
	var preview string
	if len(extracted.Items) > 0 {
		n := s.opts.PreviewItems
		if n > len(extracted.Items) {
			n = len(extracted.Items)
		}
		preview = strings.Join(extracted.Items[:n], "\n")
	} else {
		preview = TruncateSample(extracted.Text, s.opts.PreviewChars)
	}

	raw, err := s.generator.GenerateObject(ctx, ai.ObjectRequest{
		Prompt: BuildAnalysisPrompt(name, typ, preview),
		Schema: AnalysisSchema,
	})
	if err != nil {
		return AnalysisResult{}, err
	}

	var result AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return AnalysisResult{}, fmt.Errorf("decode analysis failed: %w", err)
	}
	if result.Columns == nil {
		result.Columns = []string{}
	}
	return result, nil
}

func (s *CatalogService) save(ctx context.Context, userID uint, sources []model.DataSource) error {
	raw, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encode data sources failed: %w", err)
	}
	return s.kv.Set(ctx, catalogKey(userID), string(raw))
}

func (s *CatalogService) recordActivity(ctx context.Context, userID uint, kind, subject string) {
	if s.activity == nil {
		return
	}
	err := s.activity.Publish(ctx, model.Activity{
		UserID:    userID,
		Kind:      kind,
		Subject:   subject,
		CreatedAt: s.now(),
	})
	if err != nil {
		log.Printf("publish activity failed, user=%d kind=%s: %v", userID, kind, err)
	}
}

func (s *CatalogService) userLock(userID uint) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// nextSourceID derives an id from the clock and bumps it past any id
// already in use.
func nextSourceID(now time.Time, existing []model.DataSource) string {
	taken := make(map[string]struct{}, len(existing))
	for _, src := range existing {
		taken[src.ID] = struct{}{}
	}
	n := now.UnixNano()
	for {
		id := strconv.FormatInt(n, 10)
		if _, ok := taken[id]; !ok {
			return id
		}
		n++
	}
}

func sanitizeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return "file"
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"datasteward/internal/ai"
	"datasteward/internal/cache"
	"datasteward/internal/extract"
	"datasteward/internal/model"
)

const ChatApologyMessage = "I apologize, but I encountered an error while analyzing your data. Please try again."

type DataChatOptions struct {
	ChatSampleChars   int
	ReportSampleChars int
	ChatMaxTokens     int
	ReportMaxTokens   int
	SessionCacheSize  int
	SessionTTL        time.Duration
	// FetchWait bounds how long a question waits for the selected source's
	// content before it is asked without a sample.
	FetchWait time.Duration
}

type DataChatService struct {
	extractor Extractor
	generator ai.Generator
	contents  *cache.ContentCache
	activity  ActivityPublisher
	opts      DataChatOptions

	mu       sync.Mutex
	sessions *expirable.LRU[uint, *dataChatSession]
	now      func() time.Time
}

type dataChatSession struct {
	// turn serializes Ask and Report so replies land in call order.
	turn sync.Mutex

	mu          sync.Mutex
	generation  uint64
	source      *model.DataSource
	content     string
	ready       chan struct{}
	cancelFetch context.CancelFunc
	transcript  []model.ChatMessage
}

func NewDataChatService(extractor Extractor, generator ai.Generator, contents *cache.ContentCache, activity ActivityPublisher, opts DataChatOptions) *DataChatService {
	if opts.ChatSampleChars <= 0 {
		opts.ChatSampleChars = 3000
	}
	if opts.ReportSampleChars <= 0 {
		opts.ReportSampleChars = 8000
	}
	if opts.ChatMaxTokens <= 0 {
		opts.ChatMaxTokens = 1000
	}
	if opts.ReportMaxTokens <= 0 {
		opts.ReportMaxTokens = 2000
	}
	if opts.SessionCacheSize <= 0 {
		opts.SessionCacheSize = 1024
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}
	if opts.FetchWait <= 0 {
		opts.FetchWait = 10 * time.Second
	}
	if contents == nil {
		contents, _ = cache.NewContentCache(0)
	}

	s := &DataChatService{
		extractor: extractor,
		generator: generator,
		contents:  contents,
		activity:  activity,
		opts:      opts,
		now:       time.Now,
	}
	s.sessions = expirable.NewLRU[uint, *dataChatSession](opts.SessionCacheSize, func(_ uint, sess *dataChatSession) {
		sess.stopFetch()
	}, opts.SessionTTL)
	return s
}

// Select makes src the active source for the user and resets the transcript
// to a single welcome message. Content for the prompt sample is fetched in
// the background.
func (s *DataChatService) Select(userID uint, src model.DataSource) []model.ChatMessage {
	sess := s.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.cancelFetch != nil {
		sess.cancelFetch()
		sess.cancelFetch = nil
	}
	sess.generation++
	selected := src
	sess.source = &selected
	sess.content = ""
	sess.transcript = []model.ChatMessage{s.message(model.ChatRoleAI, welcomeMessage(src), src.ID)}

	ready := make(chan struct{})
	sess.ready = ready

	url := strings.TrimSpace(src.FileURL)
	if url == "" {
		close(ready)
		return copyTranscript(sess.transcript)
	}
	if cached, ok := s.contents.Get(url); ok {
		sess.content = cached
		close(ready)
		return copyTranscript(sess.transcript)
	}

	fetchCtx, cancel := context.WithCancel(context.Background())
	sess.cancelFetch = cancel
	go s.fetchContent(fetchCtx, sess, sess.generation, userID, url, ready)
	return copyTranscript(sess.transcript)
}

// Deselect drops the active source if it is id. An empty id always drops it.
func (s *DataChatService) Deselect(userID uint, id string) {
	sess, ok := s.sessions.Get(userID)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.source == nil || (id != "" && sess.source.ID != id) {
		return
	}
	if sess.cancelFetch != nil {
		sess.cancelFetch()
		sess.cancelFetch = nil
	}
	sess.generation++
	sess.source = nil
	sess.content = ""
	sess.ready = nil
	sess.transcript = nil
}

func (s *DataChatService) Selected(userID uint) (model.DataSource, bool) {
	sess, ok := s.sessions.Get(userID)
	if !ok {
		return model.DataSource{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.source == nil {
		return model.DataSource{}, false
	}
	return *sess.source, true
}

func (s *DataChatService) Transcript(userID uint) []model.ChatMessage {
	sess, ok := s.sessions.Get(userID)
	if !ok {
		return []model.ChatMessage{}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return copyTranscript(sess.transcript)
}

// Ask appends the question, asks the model and appends its answer. A failed
// completion appends a fixed apology instead; the returned slice holds the
// messages this call appended.
func (s *DataChatService) Ask(ctx context.Context, userID uint, question string) ([]model.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrInvalidInput
	}

	sess, ok := s.sessions.Get(userID)
	if !ok {
		return nil, ErrNoSelection
	}
	sess.turn.Lock()
	defer sess.turn.Unlock()

	sess.mu.Lock()
	if sess.source == nil {
		sess.mu.Unlock()
		return nil, ErrNoSelection
	}
	src := *sess.source
	gen := sess.generation
	ready := sess.ready
	asked := s.message(model.ChatRoleUser, question, src.ID)
	sess.transcript = append(sess.transcript, asked)
	sess.mu.Unlock()

	content := s.awaitContent(ctx, sess, gen, ready)
	prompt := BuildQuestionPrompt(src, TruncateSample(content, s.opts.ChatSampleChars), question)

	text, err := s.generator.GenerateText(ctx, ai.TextRequest{Prompt: prompt, MaxTokens: s.opts.ChatMaxTokens})
	if err != nil {
		log.Printf("data chat completion failed, user=%d source=%s: %v", userID, src.ID, err)
		text = ChatApologyMessage
	}
	reply := s.message(model.ChatRoleAI, text, src.ID)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.generation != gen {
		return []model.ChatMessage{asked}, ErrSelectionChanged
	}
	sess.transcript = append(sess.transcript, reply)
	return []model.ChatMessage{asked, reply}, nil
}

// Report generates the full six-section report for the active source. On
// failure nothing is appended.
func (s *DataChatService) Report(ctx context.Context, userID uint) (model.ChatMessage, error) {
	sess, ok := s.sessions.Get(userID)
	if !ok {
		return model.ChatMessage{}, ErrNoSelection
	}
	sess.turn.Lock()
	defer sess.turn.Unlock()

	sess.mu.Lock()
	if sess.source == nil {
		sess.mu.Unlock()
		return model.ChatMessage{}, ErrNoSelection
	}
	src := *sess.source
	gen := sess.generation
	ready := sess.ready
	sess.mu.Unlock()

	content := s.awaitContent(ctx, sess, gen, ready)
	prompt := BuildReportPrompt(src, TruncateSample(content, s.opts.ReportSampleChars))

	text, err := s.generator.GenerateText(ctx, ai.TextRequest{Prompt: prompt, MaxTokens: s.opts.ReportMaxTokens})
	if err != nil {
		log.Printf("data chat report failed, user=%d source=%s: %v", userID, src.ID, err)
		return model.ChatMessage{}, fmt.Errorf("%w: %v", ErrAIRequest, err)
	}
	reply := s.message(model.ChatRoleAI, text, src.ID)

	sess.mu.Lock()
	if sess.generation != gen {
		sess.mu.Unlock()
		return model.ChatMessage{}, ErrSelectionChanged
	}
	sess.transcript = append(sess.transcript, reply)
	sess.mu.Unlock()

	if s.activity != nil {
		err := s.activity.Publish(ctx, model.Activity{
			UserID:    userID,
			Kind:      model.ActivityReportGenerated,
			Subject:   src.Name,
			CreatedAt: s.now(),
		})
		if err != nil {
			log.Printf("publish activity failed, user=%d kind=%s: %v", userID, model.ActivityReportGenerated, err)
		}
	}
	return reply, nil
}

func (s *DataChatService) session(userID uint) *dataChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions.Get(userID); ok {
		return sess
	}
	sess := &dataChatSession{}
	s.sessions.Add(userID, sess)
	return sess
}

func (s *DataChatService) fetchContent(ctx context.Context, sess *dataChatSession, gen uint64, userID uint, url string, ready chan struct{}) {
	defer close(ready)

	result, err := s.extractor.FromURL(ctx, url, extract.Options{})
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("fetch data source content failed, user=%d url=%s: %v", userID, url, err)
		}
		return
	}
	content := contentText(result)
	s.contents.Set(url, content)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.generation == gen {
		sess.content = content
		sess.cancelFetch = nil
	}
}

// awaitContent waits, within FetchWait, for the background fetch of the
// given selection and returns whatever content it produced.
func (s *DataChatService) awaitContent(ctx context.Context, sess *dataChatSession, gen uint64, ready chan struct{}) string {
	if ready != nil {
		timer := time.NewTimer(s.opts.FetchWait)
		defer timer.Stop()
		select {
		case <-ready:
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.generation != gen {
		return ""
	}
	return sess.content
}

func (s *DataChatService) message(role model.ChatRole, content, sourceID string) model.ChatMessage {
	return model.ChatMessage{
		ID:           uuid.NewString(),
		Content:      content,
		Type:         role,
		Timestamp:    s.now(),
		DataSourceID: sourceID,
	}
}

func (sess *dataChatSession) stopFetch() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.cancelFetch != nil {
		sess.cancelFetch()
		sess.cancelFetch = nil
	}
}

func welcomeMessage(src model.DataSource) string {
	return fmt.Sprintf(
		"Hello! I've loaded **%s** with %d records across %d columns. "+
			"Ask me for a summary, data quality checks, insights, or a full report.",
		src.Name, src.Records(), len(src.Columns),
	)
}

func contentText(result *extract.Result) string {
	if result == nil {
		return ""
	}
	if strings.TrimSpace(result.Text) != "" {
		return result.Text
	}
	return strings.Join(result.Items, "\n")
}

func copyTranscript(in []model.ChatMessage) []model.ChatMessage {
	out := make([]model.ChatMessage, len(in))
	copy(out, in)
	return out
}

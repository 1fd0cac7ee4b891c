package app

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"datasteward/internal/ai"
	"datasteward/internal/model"
	"datasteward/internal/realtime"
)

const (
	EventKindChat = "chat"

	assistantUserID   = "ai-assistant"
	assistantUserName = "AI Assistant"
)

const (
	TeamChatEventHistory   = "history"
	TeamChatEventMessage   = "message"
	TeamChatEventTyping    = "typing"
	TeamChatEventError     = "error"
	TeamChatEventSignedOut = "signed_out"
)

var triggerWords = []string{"ai", "analyze", "help"}

// ContainsTrigger reports whether text asks for the assistant. Matching is a
// case-insensitive substring test.
func ContainsTrigger(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range triggerWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func TeamChatTopic(channelID string) string {
	return "team-chat:" + channelID
}

type TeamChatOptions struct {
	ReplyDelay  time.Duration
	TypingDelay time.Duration
	MaxTokens   int
}

// TeamChatEvent is pushed to a connected client.
type TeamChatEvent struct {
	Type     string          `json:"type"`
	Channel  string          `json:"channel,omitempty"`
	Message  *model.Message  `json:"message,omitempty"`
	Messages []model.Message `json:"messages,omitempty"`
	Typing   bool            `json:"typing,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type chatPayload struct {
	Content string `json:"content"`
}

type TeamChatService struct {
	broker    realtime.Broker
	generator ai.Generator
	opts      TeamChatOptions
	channels  []model.Channel
	seededAt  time.Time
	now       func() time.Time
}

func NewTeamChatService(broker realtime.Broker, generator ai.Generator, opts TeamChatOptions) *TeamChatService {
	if opts.ReplyDelay < 0 {
		opts.ReplyDelay = 0
	}
	if opts.TypingDelay < 0 {
		opts.TypingDelay = 0
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	return &TeamChatService{
		broker:    broker,
		generator: generator,
		opts:      opts,
		channels:  defaultChannels(),
		seededAt:  time.Now(),
		now:       time.Now,
	}
}

func (s *TeamChatService) Channels() []model.Channel {
	out := make([]model.Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

func (s *TeamChatService) Channel(id string) (model.Channel, bool) {
	for _, ch := range s.channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return model.Channel{}, false
}

// NewSession starts a chat session for one connection. emit is called
// without session locks held and must not block for long.
func (s *TeamChatService) NewSession(user model.Profile, emit func(TeamChatEvent)) *TeamChatSession {
	if emit == nil {
		emit = func(TeamChatEvent) {}
	}
	return &TeamChatSession{
		svc:  s,
		user: user,
		emit: emit,
	}
}

type TeamChatSession struct {
	svc  *TeamChatService
	user model.Profile
	emit func(TeamChatEvent)

	mu            sync.Mutex
	channel       string
	transcript    []model.Message
	seen          map[string]struct{}
	unsubscribe   func()
	replyCtx      context.Context
	cancelReplies context.CancelFunc
	closed        bool

	wg sync.WaitGroup
}

// Join switches the session to channelID: the transcript is reset to the
// channel's seed messages, pending assistant replies are dropped and the
// channel topic is subscribed.
func (t *TeamChatSession) Join(ctx context.Context, channelID string) error {
	channel, ok := t.svc.Channel(channelID)
	if !ok {
		return ErrChannelNotFound
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrSessionClosed
	}
	prevUnsubscribe, prevCancel := t.unsubscribe, t.cancelReplies
	t.unsubscribe = nil
	t.channel = channel.ID
	t.transcript = t.svc.seedMessages(channel.ID)
	t.seen = make(map[string]struct{}, len(t.transcript))
	for _, m := range t.transcript {
		t.seen[m.ID] = struct{}{}
	}
	t.replyCtx, t.cancelReplies = context.WithCancel(context.Background())
	history := copyMessages(t.transcript)
	t.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevUnsubscribe != nil {
		prevUnsubscribe()
	}

	unsubscribe, err := t.svc.broker.Subscribe(ctx, TeamChatTopic(channel.ID), t.onEvent(channel.ID))
	if err != nil {
		log.Printf("subscribe team chat failed, user=%d channel=%s: %v", t.user.ID, channel.ID, err)
	} else {
		t.mu.Lock()
		stale := t.closed || t.channel != channel.ID || t.unsubscribe != nil
		if !stale {
			t.unsubscribe = unsubscribe
		}
		t.mu.Unlock()
		if stale {
			unsubscribe()
		}
	}

	t.emit(TeamChatEvent{Type: TeamChatEventHistory, Channel: channel.ID, Messages: history})
	return nil
}

// Send appends the user's message, broadcasts it on the channel topic and,
// when the text calls for the assistant, schedules a delayed reply.
func (t *TeamChatSession) Send(ctx context.Context, text string) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, ErrInvalidInput
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return model.Message{}, ErrSessionClosed
	}
	if t.channel == "" {
		t.mu.Unlock()
		return model.Message{}, ErrNoChannel
	}
	msg := model.Message{
		ID:        uuid.NewString(),
		Content:   text,
		UserID:    strconv.FormatUint(uint64(t.user.ID), 10),
		UserName:  t.user.DisplayName,
		Timestamp: t.svc.now(),
		Type:      model.ChatRoleUser,
	}
	t.transcript = append(t.transcript, msg)
	t.seen[msg.ID] = struct{}{}
	channelID := t.channel
	replyCtx := t.replyCtx
	trigger := ContainsTrigger(text)
	if trigger {
		t.wg.Add(1)
	}
	t.mu.Unlock()

	t.emit(TeamChatEvent{Type: TeamChatEventMessage, Channel: channelID, Message: &msg})

	payload, _ := json.Marshal(chatPayload{Content: text})
	err := t.svc.broker.Publish(ctx, realtime.Event{
		Topic:   TeamChatTopic(channelID),
		Kind:    EventKindChat,
		Payload: payload,
		UserID:  msg.UserID,
		Metadata: map[string]string{
			"userId":    msg.UserID,
			"userName":  msg.UserName,
			"messageId": msg.ID,
		},
		SentAt: msg.Timestamp,
	})
	if err != nil {
		log.Printf("publish team chat failed, user=%d channel=%s: %v", t.user.ID, channelID, err)
	}

	if trigger {
		go t.reply(replyCtx, channelID, text)
	}
	return msg, nil
}

func (t *TeamChatSession) Transcript() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyMessages(t.transcript)
}

func (t *TeamChatSession) ActiveChannel() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channel
}

// Close unsubscribes, drops pending replies and waits for them to stop.
func (t *TeamChatSession) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	unsubscribe, cancel := t.unsubscribe, t.cancelReplies
	t.unsubscribe = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	t.wg.Wait()
}

func (t *TeamChatSession) onEvent(channelID string) realtime.Handler {
	return func(ev realtime.Event) {
		if ev.Kind != EventKindChat {
			return
		}
		var payload chatPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			log.Printf("decode team chat event failed, channel=%s: %v", channelID, err)
			return
		}

		msg := model.Message{
			ID:        ev.Metadata["messageId"],
			Content:   payload.Content,
			UserID:    ev.Metadata["userId"],
			UserName:  ev.Metadata["userName"],
			Timestamp: ev.SentAt,
			Type:      model.ChatRoleUser,
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.UserID == "" {
			msg.UserID = ev.UserID
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = t.svc.now()
		}

		t.mu.Lock()
		if t.closed || t.channel != channelID {
			t.mu.Unlock()
			return
		}
		if _, dup := t.seen[msg.ID]; dup {
			t.mu.Unlock()
			return
		}
		t.seen[msg.ID] = struct{}{}
		t.transcript = append(t.transcript, msg)
		t.mu.Unlock()

		t.emit(TeamChatEvent{Type: TeamChatEventMessage, Channel: channelID, Message: &msg})
	}
}

func (t *TeamChatSession) reply(ctx context.Context, channelID, text string) {
	defer t.wg.Done()

	if !sleepCtx(ctx, t.svc.opts.ReplyDelay) {
		return
	}
	t.emit(TeamChatEvent{Type: TeamChatEventTyping, Channel: channelID, Typing: true})
	if !sleepCtx(ctx, t.svc.opts.TypingDelay) {
		return
	}

	channel, _ := t.svc.Channel(channelID)
	answer, err := t.svc.generator.GenerateText(ctx, ai.TextRequest{
		Prompt:    BuildTeamAssistPrompt(t.user.DisplayName, channel.Name, text),
		MaxTokens: t.svc.opts.MaxTokens,
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("team chat assistant failed, user=%d channel=%s: %v", t.user.ID, channelID, err)
			t.emit(TeamChatEvent{Type: TeamChatEventTyping, Channel: channelID, Typing: false})
		}
		return
	}

	msg := model.Message{
		ID:        uuid.NewString(),
		Content:   answer,
		UserID:    assistantUserID,
		UserName:  assistantUserName,
		Timestamp: t.svc.now(),
		Type:      model.ChatRoleAI,
	}

	t.mu.Lock()
	if ctx.Err() != nil || t.closed || t.channel != channelID {
		t.mu.Unlock()
		return
	}
	t.transcript = append(t.transcript, msg)
	t.seen[msg.ID] = struct{}{}
	t.mu.Unlock()

	t.emit(TeamChatEvent{Type: TeamChatEventTyping, Channel: channelID, Typing: false})
	t.emit(TeamChatEvent{Type: TeamChatEventMessage, Channel: channelID, Message: &msg})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func copyMessages(in []model.Message) []model.Message {
	out := make([]model.Message, len(in))
	copy(out, in)
	return out
}

func defaultChannels() []model.Channel {
	return []model.Channel{
		{ID: "general", Name: "General", Description: "Team-wide announcements and discussion", Members: 12, Active: true},
		{ID: "data-quality", Name: "Data Quality", Description: "Data quality issues and remediation", Members: 8, Active: true},
		{ID: "kyc-review", Name: "KYC Review", Description: "Know-your-customer review queue", Members: 5, Active: false},
		{ID: "mdm-governance", Name: "MDM Governance", Description: "Master data management and governance policy", Members: 6, Active: false},
	}
}

// seedMessages is the fixed sample shown when a channel is opened. It is
// identical on every call.
func (s *TeamChatService) seedMessages(channelID string) []model.Message {
	type seed struct {
		user, name, content string
		ago                 time.Duration
	}
	var seeds []seed
	switch channelID {
	case "general":
		seeds = []seed{
			{"u-sarah", "Sarah Chen", "Morning all, the weekly data stewardship sync moves to Thursday.", 3 * time.Hour},
			{"u-mike", "Mike Johnson", "Thanks Sarah. I'll bring the updated lineage diagrams.", 2 * time.Hour},
		}
	case "data-quality":
		seeds = []seed{
			{"u-emily", "Emily Davis", "Customer table shows 3% null emails after last night's load.", 90 * time.Minute},
			{"u-mike", "Mike Johnson", "Looks like the CRM export dropped the column mapping. Investigating.", 75 * time.Minute},
		}
	case "kyc-review":
		seeds = []seed{
			{"u-alex", "Alex Rivera", "Twelve onboarding files are waiting on address verification.", 4 * time.Hour},
			{"u-sarah", "Sarah Chen", "I'll take the high-risk ones first.", 3 * time.Hour},
		}
	case "mdm-governance":
		seeds = []seed{
			{"u-priya", "Priya Patel", "Draft of the golden-record survivorship rules is in the shared folder.", 26 * time.Hour},
			{"u-alex", "Alex Rivera", "Reviewed. We should prefer the most recent verified address.", 20 * time.Hour},
		}
	}

	out := make([]model.Message, 0, len(seeds))
	for i, sd := range seeds {
		out = append(out, model.Message{
			ID:        channelID + "-seed-" + strconv.Itoa(i+1),
			Content:   sd.content,
			UserID:    sd.user,
			UserName:  sd.name,
			Timestamp: s.seededAt.Add(-sd.ago),
			Type:      model.ChatRoleUser,
		})
	}
	return out
}

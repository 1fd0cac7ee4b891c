package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datasteward/internal/ai"
	"datasteward/internal/model"
	"datasteward/internal/realtime"
)

type eventLog struct {
	mu     sync.Mutex
	events []TeamChatEvent
}

func (l *eventLog) emit(ev TeamChatEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(typ string) []TeamChatEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []TeamChatEvent
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func countAI(messages []model.Message) int {
	n := 0
	for _, m := range messages {
		if m.Type == model.ChatRoleAI {
			n++
		}
	}
	return n
}

var (
	dana = model.Profile{ID: 7, DisplayName: "Dana"}
	lee  = model.Profile{ID: 8, DisplayName: "Lee"}
)

func TestChannelsAreFixed(t *testing.T) {
	svc := NewTeamChatService(realtime.NewMemoryBroker(), &fakeGenerator{}, TeamChatOptions{})

	channels := svc.Channels()
	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID)
	}
	assert.Equal(t, []string{"general", "data-quality", "kyc-review", "mdm-governance"}, ids)

	channels[0].Name = "mutated"
	assert.Equal(t, "General", svc.Channels()[0].Name)
}

func TestJoinResetsToSeed(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	svc := NewTeamChatService(broker, &fakeGenerator{}, TeamChatOptions{})
	log := &eventLog{}
	sess := svc.NewSession(dana, log.emit)
	defer sess.Close()
	ctx := context.Background()

	require.ErrorIs(t, sess.Join(ctx, "random"), ErrChannelNotFound)

	require.NoError(t, sess.Join(ctx, "general"))
	seed := sess.Transcript()
	require.NotEmpty(t, seed)
	_, err := sess.Send(ctx, "morning")
	require.NoError(t, err)
	require.Len(t, sess.Transcript(), len(seed)+1)

	require.NoError(t, sess.Join(ctx, "data-quality"))
	require.NoError(t, sess.Join(ctx, "general"))
	assert.Equal(t, seed, sess.Transcript())

	assert.Equal(t, 0, broker.SubscriberCount(TeamChatTopic("data-quality")))
	assert.Equal(t, 1, broker.SubscriberCount(TeamChatTopic("general")))

	history := log.ofType(TeamChatEventHistory)
	require.Len(t, history, 3)
	assert.Equal(t, "general", history[2].Channel)
	assert.Equal(t, seed, history[2].Messages)
}

func TestSendReachesOtherSessionsOnce(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	svc := NewTeamChatService(broker, &fakeGenerator{}, TeamChatOptions{})
	ctx := context.Background()

	sender := svc.NewSession(dana, nil)
	defer sender.Close()
	receiverLog := &eventLog{}
	receiver := svc.NewSession(lee, receiverLog.emit)
	defer receiver.Close()
	elsewhere := svc.NewSession(lee, nil)
	defer elsewhere.Close()

	require.NoError(t, sender.Join(ctx, "kyc-review"))
	require.NoError(t, receiver.Join(ctx, "kyc-review"))
	require.NoError(t, elsewhere.Join(ctx, "general"))
	seedLen := len(sender.Transcript())
	otherLen := len(elsewhere.Transcript())

	sent, err := sender.Send(ctx, "File 42 cleared")
	require.NoError(t, err)

	// the sender's own broadcast is not appended twice
	senderTranscript := sender.Transcript()
	require.Len(t, senderTranscript, seedLen+1)
	assert.Equal(t, sent.ID, senderTranscript[seedLen].ID)

	got := receiver.Transcript()
	require.Len(t, got, seedLen+1)
	last := got[len(got)-1]
	assert.Equal(t, sent.ID, last.ID)
	assert.Equal(t, "File 42 cleared", last.Content)
	assert.Equal(t, "7", last.UserID)
	assert.Equal(t, "Dana", last.UserName)
	assert.Len(t, receiverLog.ofType(TeamChatEventMessage), 1)

	assert.Len(t, elsewhere.Transcript(), otherLen)
}

func TestSendValidates(t *testing.T) {
	svc := NewTeamChatService(realtime.NewMemoryBroker(), &fakeGenerator{}, TeamChatOptions{})
	sess := svc.NewSession(dana, nil)
	ctx := context.Background()

	_, err := sess.Send(ctx, "hello")
	assert.ErrorIs(t, err, ErrNoChannel)

	require.NoError(t, sess.Join(ctx, "general"))
	_, err = sess.Send(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	sess.Close()
	sess.Close()
	_, err = sess.Send(ctx, "hello")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, sess.Join(ctx, "general"), ErrSessionClosed)
}

func TestTriggerWordGetsOneReply(t *testing.T) {
	gen := &fakeGenerator{text: func(req ai.TextRequest) (string, error) {
		return "Try profiling the column first.", nil
	}}
	svc := NewTeamChatService(realtime.NewMemoryBroker(), gen, TeamChatOptions{ReplyDelay: time.Millisecond, TypingDelay: time.Millisecond})
	log := &eventLog{}
	sess := svc.NewSession(dana, log.emit)
	defer sess.Close()
	ctx := context.Background()

	require.NoError(t, sess.Join(ctx, "data-quality"))
	_, err := sess.Send(ctx, "Can someone HELP with nulls?")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return countAI(sess.Transcript()) == 1
	}, time.Second, 5*time.Millisecond)

	transcript := sess.Transcript()
	reply := transcript[len(transcript)-1]
	assert.Equal(t, model.ChatRoleAI, reply.Type)
	assert.Equal(t, "Try profiling the column first.", reply.Content)
	assert.Equal(t, assistantUserName, reply.UserName)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Can someone HELP with nulls?")
	assert.Contains(t, prompts[0], "Data Quality")

	typing := log.ofType(TeamChatEventTyping)
	require.Len(t, typing, 2)
	assert.True(t, typing[0].Typing)
	assert.False(t, typing[1].Typing)
}

func TestPlainMessageGetsNoReply(t *testing.T) {
	gen := &fakeGenerator{calls: make(chan struct{}, 1)}
	svc := NewTeamChatService(realtime.NewMemoryBroker(), gen, TeamChatOptions{})
	sess := svc.NewSession(dana, nil)
	ctx := context.Background()

	require.NoError(t, sess.Join(ctx, "general"))
	_, err := sess.Send(ctx, "status update: done")
	require.NoError(t, err)
	sess.Close()

	assert.Empty(t, gen.Prompts())
	assert.Equal(t, 0, countAI(sess.Transcript()))
}

func TestFailingAssistantLeavesTranscriptIntact(t *testing.T) {
	gen := &fakeGenerator{
		text:  func(ai.TextRequest) (string, error) { return "", errBoom },
		calls: make(chan struct{}, 1),
	}
	svc := NewTeamChatService(realtime.NewMemoryBroker(), gen, TeamChatOptions{})
	sess := svc.NewSession(dana, nil)
	ctx := context.Background()

	require.NoError(t, sess.Join(ctx, "general"))
	before := len(sess.Transcript())
	_, err := sess.Send(ctx, "please analyze the ledger")
	require.NoError(t, err)

	select {
	case <-gen.calls:
	case <-time.After(time.Second):
		t.Fatal("assistant was never asked")
	}
	sess.Close()

	transcript := sess.Transcript()
	assert.Len(t, transcript, before+1)
	assert.Equal(t, 0, countAI(transcript))
}

func TestChannelSwitchCancelsPendingReply(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewTeamChatService(realtime.NewMemoryBroker(), gen, TeamChatOptions{ReplyDelay: time.Hour})
	sess := svc.NewSession(dana, nil)
	ctx := context.Background()

	require.NoError(t, sess.Join(ctx, "general"))
	_, err := sess.Send(ctx, "help")
	require.NoError(t, err)
	require.NoError(t, sess.Join(ctx, "kyc-review"))

	done := make(chan struct{})
	go func() {
		sess.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not return")
	}

	assert.Empty(t, gen.Prompts())
	assert.Equal(t, 0, countAI(sess.Transcript()))
}

func TestCloseUnsubscribes(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	svc := NewTeamChatService(broker, &fakeGenerator{}, TeamChatOptions{})
	sess := svc.NewSession(dana, nil)

	require.NoError(t, sess.Join(context.Background(), "mdm-governance"))
	assert.Equal(t, 1, broker.SubscriberCount(TeamChatTopic("mdm-governance")))

	sess.Close()
	assert.Equal(t, 0, broker.SubscriberCount(TeamChatTopic("mdm-governance")))
}

func TestIgnoresOtherEventKinds(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	svc := NewTeamChatService(broker, &fakeGenerator{}, TeamChatOptions{})
	sess := svc.NewSession(dana, nil)
	defer sess.Close()
	ctx := context.Background()

	require.NoError(t, sess.Join(ctx, "general"))
	before := len(sess.Transcript())

	require.NoError(t, broker.Publish(ctx, realtime.Event{Topic: TeamChatTopic("general"), Kind: "presence", Payload: []byte(`{"content":"x"}`)}))
	assert.Len(t, sess.Transcript(), before)
}

func TestContainsTrigger(t *testing.T) {
	cases := map[string]bool{
		"HELP me":             true,
		"can you Analyze it?": true,
		"ask the AI":          true,
		"maintain the index":  true,
		"status update":       false,
		"":                    false,
	}
	for text, want := range cases {
		assert.Equal(t, want, ContainsTrigger(text), text)
	}
}

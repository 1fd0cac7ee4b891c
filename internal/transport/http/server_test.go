package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datasteward/internal/ai"
	appsvc "datasteward/internal/app"
	"datasteward/internal/bootstrap"
	"datasteward/internal/cache"
	"datasteward/internal/config"
	"datasteward/internal/extract"
	"datasteward/internal/kvstore"
	"datasteward/internal/model"
	"datasteward/internal/realtime"
	"datasteward/internal/storage"
	httptransport "datasteward/internal/transport/http"
	"datasteward/internal/transport/http/response"
)

type memoryUsers struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*model.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[uint]*model.User)}
}

func (m *memoryUsers) Create(user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	user.ID = m.nextID
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *memoryUsers) find(match func(*model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			found := *u
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) GetByUsername(username string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Username == username })
}

func (m *memoryUsers) GetByEmail(email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email })
}

func (m *memoryUsers) GetByID(id uint) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.ID == id })
}

func (m *memoryUsers) UpdateProfile(id uint, displayName, avatarURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.DisplayName = displayName
		u.AvatarURL = avatarURL
	}
	return nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateText(_ context.Context, req ai.TextRequest) (string, error) {
	return "Here is what the data shows.", nil
}

func (stubGenerator) GenerateObject(context.Context, ai.ObjectRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"recordCount":2,"columns":["name","age"],"description":"People","dataQuality":"clean"}`), nil
}

type discardActivity struct{}

func (discardActivity) Publish(context.Context, model.Activity) error { return nil }

func (discardActivity) ListRecentByUserID(uint, int) ([]model.Activity, error) { return nil, nil }

func newTestApp(t *testing.T) *bootstrap.App {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		App:     config.AppConfig{Name: "datasteward", Env: "test", GinMode: "test"},
		Auth:    config.AuthConfig{JWTSecret: "router-secret", JWTExpireMinute: 60},
		Catalog: config.CatalogConfig{MaxUploadMB: 1},
	}

	objects := storage.NewMemoryStore("http://objects.test/bucket")
	extractor := extract.NewExtractor(objects)
	contents, err := cache.NewContentCache(16)
	require.NoError(t, err)
	broker := realtime.NewMemoryBroker()
	denylist := cache.NewTokenDenylist(client)
	gen := stubGenerator{}

	a := &bootstrap.App{
		Config:    cfg,
		Broker:    broker,
		Denylist:  denylist,
		StartedAt: time.Now(),
	}
	a.Auth = appsvc.NewAuthService(newMemoryUsers(), denylist, broker, cfg.Auth.JWTSecret, time.Hour)
	a.Catalog = appsvc.NewCatalogService(kvstore.NewMemoryStore(), objects, extractor, gen, discardActivity{}, appsvc.CatalogOptions{})
	a.DataChat = appsvc.NewDataChatService(extractor, gen, contents, discardActivity{}, appsvc.DataChatOptions{})
	a.TeamChat = appsvc.NewTeamChatService(broker, gen, appsvc.TeamChatOptions{})
	a.Analysis = appsvc.NewAnalysisService(gen, 0)
	a.Dashboard = appsvc.NewDashboardService(a.Catalog, discardActivity{})
	return a
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type client struct {
	t      *testing.T
	router http.Handler
	token  string
}

func (c *client) do(method, target string, body interface{}) (int, envelope) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return c.send(req)
}

func (c *client) upload(name, content string) (int, envelope) {
	c.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(c.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(c.t, err)
	require.NoError(c.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/data-sources", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.send(req)
}

func (c *client) send(req *http.Request) (int, envelope) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func register(t *testing.T, c *client, username string) {
	t.Helper()
	status, env := c.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username":     username,
		"email":        username + "@example.com",
		"password":     "correct-horse",
		"display_name": strings.ToUpper(username[:1]) + username[1:],
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	auth := decode[struct {
		Token string        `json:"token"`
		User  model.Profile `json:"user"`
	}](t, env.Data)
	require.NotEmpty(t, auth.Token)
	c.token = auth.Token
}

func TestHealthz(t *testing.T) {
	c := &client{t: t, router: httptransport.NewRouter(newTestApp(t))}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"app":"datasteward"`)
}

func TestAuthFlow(t *testing.T) {
	c := &client{t: t, router: httptransport.NewRouter(newTestApp(t))}

	status, env := c.do(http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, response.CodeUnauthorized, env.Code)

	register(t, c, "dana")

	status, env = c.do(http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Dana", decode[model.Profile](t, env.Data).DisplayName)

	status, env = c.do(http.MethodPut, "/api/v1/profile", map[string]string{"display_name": "Dana R."})
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Equal(t, "Dana R.", decode[model.Profile](t, env.Data).DisplayName)

	anon := &client{t: t, router: c.router}
	status, env = anon.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "dana", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, response.CodeInvalidCredentials, env.Code)

	status, _ = c.do(http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = c.do(http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token has been signed out", env.Message)
}

func TestCatalogAndDataChatFlow(t *testing.T) {
	c := &client{t: t, router: httptransport.NewRouter(newTestApp(t))}
	register(t, c, "dana")

	status, env := c.do(http.MethodPost, "/api/v1/data-chat/ask", map[string]string{"question": "anything?"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, response.CodeNoSelection, env.Code)

	status, env = c.upload("people.csv", "name,age\nAda,36\nLin,41\n")
	require.Equal(t, http.StatusOK, status, env.Message)
	uploaded := decode[struct {
		DataSource model.DataSource    `json:"dataSource"`
		Transcript []model.ChatMessage `json:"transcript"`
	}](t, env.Data)
	assert.Equal(t, "people.csv", uploaded.DataSource.Name)
	assert.Equal(t, model.DataSourceCSV, uploaded.DataSource.Type)
	assert.Equal(t, 2, uploaded.DataSource.Records())
	require.Len(t, uploaded.Transcript, 1)
	assert.Contains(t, uploaded.Transcript[0].Content, "people.csv")

	status, env = c.do(http.MethodGet, "/api/v1/data-sources", nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[struct {
		Items    []model.DataSource `json:"items"`
		Degraded bool               `json:"degraded"`
	}](t, env.Data)
	require.Len(t, list.Items, 1)
	assert.False(t, list.Degraded)

	status, env = c.do(http.MethodGet, "/api/v1/data-sources/search?q=PEOPLE", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), uploaded.DataSource.ID)

	status, env = c.do(http.MethodPost, "/api/v1/data-chat/ask", map[string]string{"question": "Summarize it"})
	require.Equal(t, http.StatusOK, status, env.Message)
	asked := decode[struct {
		Messages []model.ChatMessage `json:"messages"`
	}](t, env.Data)
	require.Len(t, asked.Messages, 2)
	assert.Equal(t, model.ChatRoleUser, asked.Messages[0].Type)
	assert.Equal(t, "Here is what the data shows.", asked.Messages[1].Content)

	status, env = c.do(http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, status)
	dash := decode[appsvc.Dashboard](t, env.Data)
	assert.Equal(t, 1, dash.DataSources)
	assert.Equal(t, 2, dash.TotalRecords)
	assert.Equal(t, 1, dash.ByType[model.DataSourceCSV])

	status, env = c.do(http.MethodDelete, "/api/v1/data-sources/"+uploaded.DataSource.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"removed":true}`, string(env.Data))

	status, env = c.do(http.MethodDelete, "/api/v1/data-sources/"+uploaded.DataSource.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"removed":false}`, string(env.Data))

	status, env = c.do(http.MethodGet, "/api/v1/data-chat", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"selected":null`)

	status, env = c.do(http.MethodPost, "/api/v1/data-chat/select", map[string]string{"dataSourceId": uploaded.DataSource.ID})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, response.CodeDataSourceNotFound, env.Code)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	c := &client{t: t, router: httptransport.NewRouter(newTestApp(t))}
	register(t, c, "dana")

	status, env := c.upload("huge.csv", strings.Repeat("a", 3<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, response.CodePayloadTooLarge, env.Code)
}

func TestAnalysisQuery(t *testing.T) {
	c := &client{t: t, router: httptransport.NewRouter(newTestApp(t))}
	register(t, c, "dana")

	status, env := c.do(http.MethodPost, "/api/v1/analysis/query", map[string]string{"question": "Which sources need review?"})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"answer":"Here is what the data shows."}`, string(env.Data))

	status, _ = c.do(http.MethodPost, "/api/v1/analysis/query", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func readEvent(t *testing.T, conn *websocket.Conn) appsvc.TeamChatEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev appsvc.TeamChatEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestTeamChatWebSocket(t *testing.T) {
	router := httptransport.NewRouter(newTestApp(t))
	srv := httptest.NewServer(router)
	defer srv.Close()

	c := &client{t: t, router: router}
	register(t, c, "dana")

	channels, env := c.do(http.MethodGet, "/api/v1/chat/channels", nil)
	require.Equal(t, http.StatusOK, channels)
	assert.Contains(t, string(env.Data), `"id":"kyc-review"`)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chat/ws?channel=data-quality&token=" + c.token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	history := readEvent(t, conn)
	assert.Equal(t, appsvc.TeamChatEventHistory, history.Type)
	assert.Equal(t, "data-quality", history.Channel)
	assert.NotEmpty(t, history.Messages)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "send", "content": "cleared batch 12"}))
	sent := readEvent(t, conn)
	assert.Equal(t, appsvc.TeamChatEventMessage, sent.Type)
	require.NotNil(t, sent.Message)
	assert.Equal(t, "cleared batch 12", sent.Message.Content)
	assert.Equal(t, "Dana", sent.Message.UserName)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, appsvc.TeamChatEventError, readEvent(t, conn).Type)

	status, _ := c.do(http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, appsvc.TeamChatEventSignedOut, readEvent(t, conn).Type)
}

func TestTeamChatRejectsUnknownChannel(t *testing.T) {
	c := &client{t: t, router: httptransport.NewRouter(newTestApp(t))}
	register(t, c, "dana")

	status, env := c.do(http.MethodGet, "/api/v1/chat/ws?channel=random", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, response.CodeChannelNotFound, env.Code)
}

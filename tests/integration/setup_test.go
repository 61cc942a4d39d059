//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"docqa/config"
	"docqa/internal/app"
)

// TestServerConfig configures how the test server is set up.
type TestServerConfig struct {
	// DBType is either "postgresql" or "mongodb"
	DBType string

	// APIKey guards the history API (empty = open)
	APIKey string
}

// TestServerFixture holds test server resources.
type TestServerFixture struct {
	// ServerURL is the base URL of the test server
	ServerURL string

	// App is the running application
	App *app.App

	// DocAPI is the mock document API
	DocAPI *MockDocumentAPI

	// Client keeps the page session cookie across requests
	Client *http.Client

	// PgPool is the PostgreSQL connection pool (for DB assertions)
	PgPool *pgxpool.Pool

	// MongoDb is the MongoDB database (for DB assertions)
	MongoDb *mongo.Database

	cancelFunc context.CancelFunc
}

// SetupTestServer creates a test server with the specified configuration.
func SetupTestServer(t *testing.T, cfg TestServerConfig) *TestServerFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(GetTestContext())

	docAPI := NewMockDocumentAPI()

	port, err := findAvailablePort()
	require.NoError(t, err, "failed to find available port")

	application, err := app.New(ctx, app.Config{
		AppConfig: buildAppConfig(t, cfg, docAPI.URL(), port),
	})
	require.NoError(t, err, "failed to create app")

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	go func() {
		_ = application.Start(fmt.Sprintf("127.0.0.1:%d", port))
	}()

	err = waitForServer(serverURL + "/health")
	require.NoError(t, err, "server failed to become healthy")

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	fixture := &TestServerFixture{
		ServerURL: serverURL,
		App:       application,
		DocAPI:    docAPI,
		Client: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
			// Keep the 303 visible to tests.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		cancelFunc: cancel,
	}

	switch cfg.DBType {
	case "postgresql":
		fixture.PgPool = GetPostgreSQLPool()
	case "mongodb":
		fixture.MongoDb = GetMongoDatabase()
	}

	t.Cleanup(func() { fixture.Shutdown(t) })
	return fixture
}

// FlushAndClose shuts the app down, flushing pending history entries.
// CRITICAL: Call this before making any DB assertions.
func (f *TestServerFixture) FlushAndClose(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.App != nil {
		err := f.App.Shutdown(ctx)
		require.NoError(t, err, "failed to shutdown app")
	}
}

// Shutdown gracefully shuts down the test server.
func (f *TestServerFixture) Shutdown(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.App != nil {
		_ = f.App.Shutdown(ctx)
	}
	if f.DocAPI != nil {
		f.DocAPI.Close()
	}
	if f.cancelFunc != nil {
		f.cancelFunc()
	}
}

// SelectAndUpload picks a file and submits it, as the page form does.
func (f *TestServerFixture) SelectAndUpload(t *testing.T, name string, data []byte) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, _ = part.Write(data)
	require.NoError(t, w.Close())

	resp, err := f.Client.Post(f.ServerURL+"/select", w.FormDataContentType(), &body)
	require.NoError(t, err)
	closeBody(resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, err = f.Client.Post(f.ServerURL+"/upload", "", nil)
	require.NoError(t, err)
	closeBody(resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

// SessionID returns the page session cookie value.
func (f *TestServerFixture) SessionID(t *testing.T) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.ServerURL+"/", nil)
	require.NoError(t, err)
	for _, c := range f.Client.Jar.Cookies(req.URL) {
		if c.Name == "docqa_session" {
			return c.Value
		}
	}
	t.Fatal("no session cookie")
	return ""
}

// buildAppConfig creates an application config for testing.
func buildAppConfig(t *testing.T, cfg TestServerConfig, docAPIURL string, port int) *config.Config {
	t.Helper()

	appCfg := &config.Config{
		Server: config.ServerConfig{
			Port:          fmt.Sprintf("%d", port),
			BodySizeLimit: "10M",
			APIKey:        cfg.APIKey,
		},
		Upload: config.UploadConfig{
			BaseURL:     docAPIURL,
			Path:        "/api/upload",
			Timeout:     10 * time.Second,
			MaxFileSize: 1 << 20,
		},
		Session: config.SessionConfig{Store: "memory", TTL: time.Hour},
		History: config.HistoryConfig{
			Enabled:       true,
			BufferSize:    100,
			FlushInterval: 1,
			RetentionDays: 0,
		},
		Logging: config.LogConfig{Format: "json", Level: "warn"},
		Chat:    config.ChatConfig{MountID: "chat-root"},
	}

	switch cfg.DBType {
	case "postgresql":
		appCfg.Storage = config.StorageConfig{
			Type: "postgresql",
			PostgreSQL: config.PostgreSQLConfig{
				URL:      GetPostgreSQLURL(),
				MaxConns: 5,
			},
		}
	case "mongodb":
		appCfg.Storage = config.StorageConfig{
			Type: "mongodb",
			MongoDB: config.MongoDBConfig{
				URL:      GetMongoURL(),
				Database: "docqa_test",
			},
		}
	default:
		t.Fatalf("unsupported DB type: %s", cfg.DBType)
	}

	return appCfg
}

// waitForServer waits for the server to become healthy.
func waitForServer(healthURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(healthURL)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not become healthy within timeout")
}

// findAvailablePort finds an available TCP port on loopback.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = listener.Close() }()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}

// MockDocumentAPI stands in for the document API's upload endpoint.
// It accepts the first upload and rejects the rest when RejectAfterFirst is set.
type MockDocumentAPI struct {
	server           *httptest.Server
	calls            atomic.Int32
	RejectAfterFirst atomic.Bool
}

// NewMockDocumentAPI creates a new mock document API.
func NewMockDocumentAPI() *MockDocumentAPI {
	m := &MockDocumentAPI{}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		n := m.calls.Add(1)
		f, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":[{"loc":["body","file"],"msg":"field required"}]}`))
			return
		}
		_ = f.Close()

		if n > 1 && m.RejectAfterFirst.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"vector store unavailable"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"filename":%q,"doc_id":"doc-%d","total_chunks":4,"duration":0.2,"status":"success"}`, header.Filename, n)
	}))
	return m
}

// URL returns the mock server's URL.
func (m *MockDocumentAPI) URL() string {
	return m.server.URL
}

// Calls returns the number of upload requests received.
func (m *MockDocumentAPI) Calls() int {
	return int(m.calls.Load())
}

// Close shuts down the mock server.
func (m *MockDocumentAPI) Close() {
	m.server.Close()
}

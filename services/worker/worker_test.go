package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sjsage522/feedscanner/helpers"
	"sjsage522/feedscanner/internal/browser"
	"sjsage522/feedscanner/internal/post"
	"sjsage522/feedscanner/internal/scanner"
	"sjsage522/feedscanner/internal/selectors"
	"sjsage522/feedscanner/internal/testsite"
	"sjsage522/feedscanner/services/publisher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPublisher implements the publisher.Publisher interface for testing
type MockPublisher struct {
	mu         sync.Mutex
	messages   map[string][][]byte
	publishErr error
	trims      int
}

var _ publisher.Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{messages: make(map[string][][]byte)}
}

func (m *MockPublisher) Publish(_ context.Context, key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	messageCopy := make([]byte, len(message))
	copy(messageCopy, message)
	m.messages[key] = append(m.messages[key], messageCopy)
	return nil
}

func (m *MockPublisher) TrimStreams(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trims++
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// MockStore records saved posts by run
type MockStore struct {
	mu   sync.Mutex
	runs map[string][]string
}

func NewMockStore() *MockStore {
	return &MockStore{runs: make(map[string][]string)}
}

func (m *MockStore) Save(_ context.Context, runID string, p *post.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = append(m.runs[runID], p.ID)
	return nil
}

// MockLogger implements the helpers.LoggerInterface for testing
type MockLogger struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

var _ helpers.LoggerInterface = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) LogError(source string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, source+": "+err.Error())
}

func (m *MockLogger) LogInfo(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, fmt.Sprintf(format, args...))
}

func newSession(t *testing.T, site *testsite.Site) *scanner.Session {
	t.Helper()
	server := site.Start()
	t.Cleanup(server.Close)

	b := browser.NewStaticBackend(browser.StaticOptions{Origin: site.URL()})
	t.Cleanup(func() { b.Close() })
	nav := scanner.NewNavigator(b, selectors.Default(), scanner.Options{
		BaseURL:        site.URL(),
		WaitTimeout:    time.Second,
		LocateAttempts: 2,
	})
	return scanner.NewSession(nav)
}

func TestRunRoundDeliversToEverySink(t *testing.T) {
	mockLogger := NewMockLogger()
	mockPublisher := NewMockPublisher()
	mockStore := NewMockStore()
	var out bytes.Buffer

	w := NewWorker(newSession(t, testsite.Default()), mockPublisher, mockStore, &out, mockLogger,
		Options{Section: "funny", MaxPosts: 2})

	n, err := w.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, mockPublisher.messages[PublishKey], 2)
	var first post.Post
	require.NoError(t, json.Unmarshal(mockPublisher.messages[PublishKey][0], &first))
	assert.Equal(t, "aXb1", first.ID)
	assert.Equal(t, 1, mockPublisher.trims)

	require.Len(t, mockStore.runs, 1)
	for _, ids := range mockStore.runs {
		assert.Equal(t, []string{"aXb1", "aXb2"}, ids)
	}

	assert.Contains(t, out.String(), "Post #aXb1")
	assert.Contains(t, out.String(), "Post #aXb2")
	assert.Empty(t, mockLogger.errors)
}

func TestRunRoundUnknownSection(t *testing.T) {
	mockLogger := NewMockLogger()
	mockPublisher := NewMockPublisher()

	w := NewWorker(newSession(t, testsite.Default()), mockPublisher, nil, nil, mockLogger,
		Options{Section: "cooking", MaxPosts: 2})

	n, err := w.RunRound(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
	require.Len(t, mockLogger.errors, 1)
	assert.Contains(t, mockLogger.errors[0], "scan:cooking")
	assert.Empty(t, mockPublisher.messages)
}

func TestRunRoundScanFailureKeepsDeliveredPosts(t *testing.T) {
	site := testsite.Default()
	site.NoNextOnLast = true
	mockLogger := NewMockLogger()
	mockStore := NewMockStore()

	w := NewWorker(newSession(t, site), nil, mockStore, nil, mockLogger, Options{MaxPosts: 10})

	n, err := w.RunRound(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, mockStore.runs, 1)
	for _, saved := range mockStore.runs {
		assert.Equal(t, []string{"aXb1", "aXb2"}, saved)
	}
	require.Len(t, mockLogger.errors, 1)
	assert.Contains(t, mockLogger.errors[0], "scan:hot")
}

func TestRunRoundPublishErrorIsLogged(t *testing.T) {
	mockLogger := NewMockLogger()
	mockPublisher := NewMockPublisher()
	mockPublisher.publishErr = errors.New("connection refused")

	w := NewWorker(newSession(t, testsite.Default()), mockPublisher, nil, nil, mockLogger, Options{MaxPosts: 1})

	n, err := w.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, mockLogger.errors, 1)
	assert.Contains(t, mockLogger.errors[0], "publish:aXb1")
	assert.Contains(t, mockLogger.errors[0], "connection refused")
}

func TestStartRepeatsUntilCancelled(t *testing.T) {
	site := testsite.Default()
	mockStore := NewMockStore()
	w := NewWorker(newSession(t, site), nil, mockStore, nil, NewMockLogger(),
		Options{MaxPosts: 1, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Start(ctx))

	mockStore.mu.Lock()
	defer mockStore.mu.Unlock()
	assert.GreaterOrEqual(t, len(mockStore.runs), 2)
}

func TestStartSingleRound(t *testing.T) {
	mockStore := NewMockStore()
	w := NewWorker(newSession(t, testsite.Default()), nil, mockStore, nil, NewMockLogger(), Options{MaxPosts: 3})

	require.NoError(t, w.Start(context.Background()))
	assert.Len(t, mockStore.runs, 1)
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aide/capability"
	"github.com/hupe1980/aide/config"
	"github.com/hupe1980/aide/memory"
	"github.com/hupe1980/aide/model"
)

// fakeStore is an in-memory memory.Store for driving the agent without a
// database.
type fakeStore struct {
	records []memory.Record
	nextID  int64
	failAll bool
}

var _ memory.Store = (*fakeStore)(nil)

func (s *fakeStore) Store(_ context.Context, content, userID string, tags []string) (int64, error) {
	if s.failAll {
		return 0, errors.New("store unavailable")
	}
	s.nextID++
	s.records = append(s.records, memory.Record{
		ID:         s.nextID,
		Content:    content,
		UserID:     userID,
		Tags:       tags,
		CreatedAt:  time.Now(),
		AccessedAt: time.Now(),
	})
	return s.nextID, nil
}

func (s *fakeStore) Search(_ context.Context, query, userID string, limit int, _ []string) ([]memory.Record, error) {
	if s.failAll {
		return nil, errors.New("store unavailable")
	}
	terms := strings.Fields(strings.ToLower(query))
	var out []memory.Record
	for _, r := range s.records {
		if r.UserID != userID {
			continue
		}
		content := strings.ToLower(r.Content)
		for _, term := range terms {
			if strings.Contains(content, term) {
				out = append(out, r)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) All(_ context.Context, userID string) ([]memory.Record, error) {
	var out []memory.Record
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, id int64) error {
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return memory.ErrNotFound
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) byTag(tag string) []memory.Record {
	var out []memory.Record
	for _, r := range s.records {
		for _, t := range r.Tags {
			if t == tag {
				out = append(out, r)
			}
		}
	}
	return out
}

// errModel fails every completion.
type errModel struct{}

func (errModel) Complete(_ context.Context, _ model.Request) (*model.Response, error) {
	return nil, errors.New("backend down")
}

func (errModel) Info() model.Info { return model.Info{Name: "err", Provider: "test"} }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.AgentName = "MAX"
	return cfg
}

func newTestAgent(t *testing.T, cfg config.Config, llm model.Model, store memory.Store) (*Agent, *capability.Gateway) {
	t.Helper()

	registry := capability.NewRegistry()
	require.NoError(t, registry.Register(capability.Descriptor{
		Name:        "test__echo",
		Description: "Echo the given text.",
		Params: map[string]capability.Param{
			"text": {Type: capability.TypeString, Required: true},
		},
	}, func(_ context.Context, args map[string]any) (string, error) {
		s, _ := args["text"].(string)
		return s, nil
	}))
	require.NoError(t, registry.Register(capability.Descriptor{
		Name:                 "test__destroy",
		Description:          "Irreversibly destroy something.",
		RequiresConfirmation: true,
	}, func(_ context.Context, _ map[string]any) (string, error) {
		return "destroyed", nil
	}))

	gateway := capability.NewGateway(registry)

	return New(cfg, llm, registry, gateway, store), gateway
}

func TestAgent_PlainAnswer(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	mock.Enqueue(&model.Response{Text: "Hello there.", FinishReason: "stop"})

	a, _ := newTestAgent(t, testConfig(), mock, &fakeStore{})

	resp, err := a.ProcessTurn(context.Background(), "hi", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", resp.Text)
	assert.Empty(t, resp.ActionsTaken)

	entries := a.Transcript("u1")
	require.Len(t, entries, 2)
	assert.Equal(t, model.RoleUser, entries[0].Role)
	assert.Equal(t, model.RoleAssistant, entries[1].Role)
}

func TestAgent_CapabilityCallThenAnswer(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	mock.Enqueue(
		&model.Response{
			ToolCalls:    []model.ToolCall{{ID: "1", Name: "test__echo", Arguments: map[string]any{"text": "ping"}}},
			FinishReason: "tool_calls",
		},
		&model.Response{Text: "The echo said ping.", FinishReason: "stop"},
	)

	a, gw := newTestAgent(t, testConfig(), mock, &fakeStore{})

	resp, err := a.ProcessTurn(context.Background(), "please echo ping", "u1")
	require.NoError(t, err)
	assert.Equal(t, "The echo said ping.", resp.Text)
	require.Len(t, resp.ActionsTaken, 1)
	assert.Contains(t, resp.ActionsTaken[0], "test__echo")

	// Call and observation land in the transcript between user input and
	// final answer.
	entries := a.Transcript("u1")
	require.Len(t, entries, 4)
	assert.Equal(t, model.RoleCapabilityResult, entries[2].Role)
	assert.Contains(t, entries[2].Content, `"success":true`)

	log := gw.AuditLog(0)
	require.Len(t, log, 1)
	assert.True(t, log[0].Success)
}

func TestAgent_CancelledCapabilityDoesNotRetry(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	mock.Enqueue(
		&model.Response{
			ToolCalls:    []model.ToolCall{{Name: "test__destroy", Arguments: map[string]any{}}},
			FinishReason: "tool_calls",
		},
		&model.Response{Text: "Understood, I won't do that.", FinishReason: "stop"},
	)

	// No confirm func wired: the gateway denies the gated capability.
	a, gw := newTestAgent(t, testConfig(), mock, &fakeStore{})

	resp, err := a.ProcessTurn(context.Background(), "destroy it", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Understood, I won't do that.", resp.Text)

	entries := a.Transcript("u1")
	require.Len(t, entries, 4)
	assert.Contains(t, entries[2].Content, `"cancelled":true`)
	assert.Contains(t, entries[2].Content, "Action cancelled by user")

	// Cancelled calls are not audited.
	assert.Empty(t, gw.AuditLog(0))
	// One loop completion, one memorize check.
	assert.Equal(t, 3, mock.Calls())
}

func TestAgent_IterationCapYieldsApology(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	for i := 0; i < maxIterations; i++ {
		mock.Enqueue(&model.Response{
			ToolCalls:    []model.ToolCall{{Name: "test__echo", Arguments: map[string]any{"text": fmt.Sprintf("loop-%d", i)}}},
			FinishReason: "tool_calls",
		})
	}

	a, _ := newTestAgent(t, testConfig(), mock, &fakeStore{})

	resp, err := a.ProcessTurn(context.Background(), "loop forever", "u1")
	require.NoError(t, err)
	assert.Equal(t, apologyText, resp.Text)
	assert.Len(t, resp.ActionsTaken, maxIterations)

	// maxIterations loop completions plus the memorize check.
	assert.Equal(t, maxIterations+1, mock.Calls())
}

func TestAgent_MemoriesInjectedAndPreviewed(t *testing.T) {
	store := &fakeStore{}
	_, err := store.Store(context.Background(), "The user's favorite color is teal and they mention it constantly in conversation", "u1", nil)
	require.NoError(t, err)

	mock := model.NewMockModel("mock", "test")
	mock.Enqueue(&model.Response{Text: "Teal, of course.", FinishReason: "stop"})

	a, _ := newTestAgent(t, testConfig(), mock, store)

	resp, err := a.ProcessTurn(context.Background(), "what is my favorite color", "u1")
	require.NoError(t, err)
	require.Len(t, resp.MemoriesUsed, 1)
	assert.LessOrEqual(t, len(resp.MemoriesUsed[0]), memoryPreviewLen)
}

func TestAgent_MemorizeStoresSuggestion(t *testing.T) {
	store := &fakeStore{}
	mock := model.NewMockModel("mock", "test")
	mock.Enqueue(
		&model.Response{Text: "Noted, you are vegetarian.", FinishReason: "stop"},
		&model.Response{Text: `{"should_store": true, "content": "The user is vegetarian", "tags": ["diet"]}`, FinishReason: "stop"},
	)

	a, _ := newTestAgent(t, testConfig(), mock, store)

	_, err := a.ProcessTurn(context.Background(), "I'm vegetarian by the way", "u1")
	require.NoError(t, err)

	require.Len(t, store.byTag("diet"), 1)
	assert.Equal(t, "The user is vegetarian", store.byTag("diet")[0].Content)
}

func TestAgent_MemorizeFailuresAreSwallowed(t *testing.T) {
	store := &fakeStore{}
	mock := model.NewMockModel("mock", "test")
	mock.Enqueue(
		&model.Response{Text: "Done.", FinishReason: "stop"},
		&model.Response{Text: "not json at all", FinishReason: "stop"},
	)

	a, _ := newTestAgent(t, testConfig(), mock, store)

	resp, err := a.ProcessTurn(context.Background(), "hello", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Done.", resp.Text)
	assert.Empty(t, store.records)
}

func TestAgent_BackendFailureSurfacesAsReply(t *testing.T) {
	a, _ := newTestAgent(t, testConfig(), errModel{}, &fakeStore{})

	resp, err := a.ProcessTurn(context.Background(), "hello", "u1")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "backend")
}

func TestAgent_NotInitialized(t *testing.T) {
	a := New(testConfig(), nil, nil, nil, nil)

	_, err := a.ProcessTurn(context.Background(), "hello", "u1")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAgent_CompactionKeepsRecentEntriesVerbatim(t *testing.T) {
	cfg := testConfig()
	cfg.MaxContextTokens = 20

	store := &fakeStore{}
	mock := model.NewMockModel("mock", "test")
	mock.Enqueue(
		&model.Response{Text: "Summary of the earlier conversation.", FinishReason: "stop"},
		&model.Response{Text: "Carrying on.", FinishReason: "stop"},
	)

	a, _ := newTestAgent(t, cfg, mock, store)

	sess := a.session("u1")
	var seeded []Entry
	for i := 0; i < 12; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		e := newEntry(role, fmt.Sprintf("historic message number %d with some padding text", i), nil)
		sess.append(e)
		seeded = append(seeded, e)
	}

	resp, err := a.ProcessTurn(context.Background(), "and now?", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Carrying on.", resp.Text)

	entries := a.Transcript("u1")
	// summary + 10 verbatim + new user + final answer
	require.Len(t, entries, 13)
	assert.Equal(t, "[Context summary]: Summary of the earlier conversation.", entries[0].Content)
	for i := 0; i < recentKeep; i++ {
		assert.Equal(t, seeded[2+i].Content, entries[1+i].Content)
	}

	summaries := store.byTag("context_summary")
	require.Len(t, summaries, 1)
	assert.Equal(t, "Summary of the earlier conversation.", summaries[0].Content)
}

func TestAgent_NoCompactionBelowThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.MaxContextTokens = 20

	store := &fakeStore{}
	mock := model.NewMockModel("mock", "test")
	mock.Enqueue(&model.Response{Text: "Fine.", FinishReason: "stop"})

	a, _ := newTestAgent(t, cfg, mock, store)

	// At recentKeep entries compaction never triggers, regardless of size.
	sess := a.session("u1")
	for i := 0; i < recentKeep; i++ {
		sess.append(newEntry(model.RoleUser, strings.Repeat("x", 200), nil))
	}

	_, err := a.ProcessTurn(context.Background(), "hello", "u1")
	require.NoError(t, err)
	assert.Empty(t, store.byTag("context_summary"))
	assert.Len(t, a.Transcript("u1"), recentKeep+2)
}

func TestAgent_CompactionFailureFailsTurn(t *testing.T) {
	cfg := testConfig()
	cfg.MaxContextTokens = 20

	a, _ := newTestAgent(t, cfg, errModel{}, &fakeStore{})

	sess := a.session("u1")
	for i := 0; i < 12; i++ {
		sess.append(newEntry(model.RoleUser, strings.Repeat("y", 100), nil))
	}

	_, err := a.ProcessTurn(context.Background(), "hello", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compact transcript")
}

func TestAgent_ClearTranscript(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	mock.Enqueue(&model.Response{Text: "Hi.", FinishReason: "stop"})

	a, _ := newTestAgent(t, testConfig(), mock, &fakeStore{})

	_, err := a.ProcessTurn(context.Background(), "hi", "u1")
	require.NoError(t, err)
	require.NotEmpty(t, a.Transcript("u1"))

	a.ClearTranscript("u1")
	assert.Empty(t, a.Transcript("u1"))
}

func TestPreviewDoesNotSplitRunes(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "abcde", preview("abcdefgh", 5))

	out := preview(strings.Repeat("é", 10), 4)
	assert.Equal(t, "éééé", out)
	assert.True(t, utf8.ValidString(out))

	out = preview("日本語のテキスト", 3)
	assert.Equal(t, "日本語", out)
	assert.True(t, utf8.ValidString(out))
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/aide/capability"
	"github.com/hupe1980/aide/config"
	"github.com/hupe1980/aide/logging"
	"github.com/hupe1980/aide/memory"
	"github.com/hupe1980/aide/model"
)

const (
	// maxIterations bounds the reasoning loop; runaway capability-call
	// chains terminate with an apology instead of spinning.
	maxIterations = 15

	// recentKeep is the number of transcript entries compaction preserves
	// verbatim. Compaction never runs on transcripts at or below this size.
	recentKeep = 10

	// memoriesPerTurn caps how many memory records are injected per turn.
	memoriesPerTurn = 5

	// historyWindow limits how many transcript entries are sent to the model.
	historyWindow = 40

	// memoryPreviewLen truncates memory previews in turn responses.
	memoryPreviewLen = 60

	// completionRetries bounds retry attempts against the completion backend.
	completionRetries = 2

	apologyText = "I ran into trouble completing that task. Please try again."
)

// ErrNotInitialized is returned by ProcessTurn when the agent's collaborators
// were not all wired up at construction.
var ErrNotInitialized = errors.New("agent not initialized")

// Response is the outcome of one processed turn.
type Response struct {
	// Text is the assistant's final reply.
	Text string `json:"text"`

	// ActionsTaken summarizes the capability calls made this turn, in
	// execution order.
	ActionsTaken []string `json:"actions_taken"`

	// MemoriesUsed previews the memory records injected into the prompt.
	MemoriesUsed []string `json:"memories_used"`
}

// Options configures an Agent.
type Options struct {
	// Estimator approximates transcript token usage for the compaction
	// policy. Defaults to a 4-chars-per-token ratio.
	Estimator TokenEstimator

	Logger logging.Logger
}

// Agent is the reasoning loop controller. One Agent serves many users;
// transcripts are per-user and turns within one session are serialized.
type Agent struct {
	cfg       config.Config
	llm       model.Model
	registry  *capability.Registry
	gateway   *capability.Gateway
	memory    memory.Store
	estimator TokenEstimator
	logger    logging.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New constructs an Agent. All collaborators are required; ProcessTurn fails
// with ErrNotInitialized when any is missing.
func New(
	cfg config.Config,
	llm model.Model,
	registry *capability.Registry,
	gateway *capability.Gateway,
	store memory.Store,
	optFns ...func(o *Options),
) *Agent {
	opts := Options{
		Estimator: CharRatioEstimator{CharsPerToken: 4},
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Agent{
		cfg:       cfg,
		llm:       llm,
		registry:  registry,
		gateway:   gateway,
		memory:    store,
		estimator: opts.Estimator,
		logger:    opts.Logger,
		sessions:  make(map[string]*session),
	}
}

// ProcessTurn runs the full reasoning loop for one user utterance and returns
// the final reply together with the capability calls taken and the memory
// previews used.
func (a *Agent) ProcessTurn(ctx context.Context, userInput, userID string) (*Response, error) {
	if a.llm == nil || a.registry == nil || a.gateway == nil || a.memory == nil {
		return nil, ErrNotInitialized
	}

	turnID := uuid.NewString()
	logger := a.logger
	logger.Debug("turn.start", "turn_id", turnID, "user_id", userID)
	defer logging.StartTimer(logger, "turn")()

	memories, err := a.memory.Search(ctx, userInput, userID, memoriesPerTurn, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve memories: %w", err)
	}

	systemPrompt := buildSystemPrompt(a.cfg.AgentName, memories, a.registry.Names(), time.Now())

	sess := a.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	// Compact before the new user message enters the transcript so the most
	// recent prior entries survive verbatim.
	if a.shouldCompact(sess, userInput) {
		if err := a.compact(ctx, sess, userID); err != nil {
			return nil, fmt.Errorf("compact transcript: %w", err)
		}
	}

	sess.append(newEntry(model.RoleUser, userInput, nil))

	var actionsTaken []string
	finalText := ""

	for iteration := 1; iteration <= maxIterations; iteration++ {
		logger.Debug("turn.iteration", "turn_id", turnID, "iteration", iteration)

		resp, err := a.complete(ctx, model.Request{
			Instructions: systemPrompt,
			Messages:     sess.messages(historyWindow),
			Tools:        a.registry.ToolDefinitions(),
		})
		if err != nil {
			// Backend exhausted its retries; surface as the reply rather
			// than failing the turn.
			logger.Error("turn.completion.failed", "turn_id", turnID, "error", err.Error())
			finalText = fmt.Sprintf("I couldn't reach my language model backend (%v). Please try again.", err)
			break
		}

		if len(resp.ToolCalls) == 0 {
			finalText = resp.Text
			break
		}

		// Sequential execution: each result lands in the transcript before
		// the next call, and before the model's next decision.
		for _, call := range resp.ToolCalls {
			logger.Info("turn.capability.invoke", "turn_id", turnID, "capability", call.Name)

			result := a.gateway.Invoke(ctx, call.Name, call.Arguments, userID)
			actionsTaken = append(actionsTaken, actionSummary(call))

			callJSON, _ := json.Marshal(call)
			sess.append(newEntry(model.RoleAssistant, string(callJSON), map[string]string{"type": "capability_call"}))

			resultJSON, _ := json.Marshal(result)
			sess.append(newEntry(model.RoleCapabilityResult, string(resultJSON), map[string]string{"capability": call.Name}))
		}
	}

	if finalText == "" {
		finalText = apologyText
		logger.Warn("turn.iteration_cap_exhausted", "turn_id", turnID, "user_id", userID)
	}

	sess.append(newEntry(model.RoleAssistant, finalText, nil))

	// Failures here are swallowed: remembering is best effort and must never
	// fail the user-visible turn.
	a.maybeMemorize(ctx, userInput, finalText, userID)

	previews := make([]string, len(memories))
	for i, m := range memories {
		previews[i] = preview(m.Content, memoryPreviewLen)
	}

	return &Response{
		Text:         finalText,
		ActionsTaken: actionsTaken,
		MemoriesUsed: previews,
	}, nil
}

// Transcript returns a copy of a user's session transcript.
func (a *Agent) Transcript(userID string) []Entry {
	sess := a.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Entry, len(sess.entries))
	copy(out, sess.entries)
	return out
}

// ClearTranscript resets a user's in-memory session transcript. Stored
// memories are unaffected.
func (a *Agent) ClearTranscript(userID string) {
	sess := a.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.entries = nil
}

func (a *Agent) session(userID string) *session {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[userID]
	if !ok {
		sess = &session{}
		a.sessions[userID] = sess
	}
	return sess
}

// shouldCompact estimates whether the transcript plus the incoming input
// crosses the configured fraction of the context budget. Requires the caller
// to hold the session lock.
func (a *Agent) shouldCompact(sess *session, pendingInput string) bool {
	if len(sess.entries) <= recentKeep {
		return false
	}
	tokens := a.estimator.Estimate(sess.contentChars() + len(pendingInput))
	ratio := float64(tokens) / float64(a.cfg.MaxContextTokens)
	if ratio > a.cfg.CompactionThreshold {
		a.logger.Warn("turn.compaction.triggered", "estimated_tokens", tokens, "ratio", ratio)
		return true
	}
	return false
}

// compact summarizes everything except the most recent entries into a single
// summary entry and persists the summary as a context_summary memory. A
// failed summary call surfaces as an error; history is never silently lost.
func (a *Agent) compact(ctx context.Context, sess *session, userID string) error {
	if len(sess.entries) <= recentKeep {
		return nil
	}

	old := sess.entries[:len(sess.entries)-recentKeep]
	recent := sess.entries[len(sess.entries)-recentKeep:]

	resp, err := a.complete(ctx, model.Request{
		Messages:  []model.Message{{Role: model.RoleUser, Content: summaryPrompt(old)}},
		MaxTokens: 1024,
	})
	if err != nil {
		return fmt.Errorf("summarize history: %w", err)
	}
	summary := resp.Text

	if _, err := a.memory.Store(ctx, summary, userID, []string{"context_summary"}); err != nil {
		return fmt.Errorf("persist summary: %w", err)
	}

	compacted := make([]Entry, 0, recentKeep+1)
	compacted = append(compacted, newEntry(model.RoleAssistant, "[Context summary]: "+summary, map[string]string{"type": "context_summary"}))
	compacted = append(compacted, recent...)
	sess.entries = compacted

	a.logger.Info("turn.compaction.done", "summarized_entries", len(old), "user_id", userID)
	return nil
}

// complete calls the completion backend with bounded retries.
func (a *Agent) complete(ctx context.Context, req model.Request) (*model.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= completionRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := a.llm.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		a.logger.Warn("completion.retry", "attempt", attempt+1, "error", err.Error())
	}
	return nil, lastErr
}

// memorizeDecision is the JSON contract for the post-turn memorize check.
type memorizeDecision struct {
	ShouldStore bool     `json:"should_store"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
}

// maybeMemorize asks the model whether this exchange is durably worth
// remembering and stores the suggestion if so. Every failure mode is logged
// and swallowed.
func (a *Agent) maybeMemorize(ctx context.Context, userInput, response, userID string) {
	resp, err := a.complete(ctx, model.Request{
		Messages:  []model.Message{{Role: model.RoleUser, Content: memorizePrompt(userInput, response)}},
		MaxTokens: 1024,
	})
	if err != nil {
		a.logger.Debug("memorize.check.failed", "error", err.Error())
		return
	}

	var decision memorizeDecision
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &decision); err != nil {
		a.logger.Debug("memorize.parse.failed", "error", err.Error())
		return
	}
	if !decision.ShouldStore || decision.Content == "" {
		return
	}

	if _, err := a.memory.Store(ctx, decision.Content, userID, decision.Tags); err != nil {
		a.logger.Debug("memorize.store.failed", "error", err.Error())
		return
	}
	a.logger.Debug("memorize.stored", "content", preview(decision.Content, 80))
}

// extractJSON pulls the outermost JSON object out of possibly fenced or
// prefixed model output.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// actionSummary renders one capability call for the ActionsTaken list.
func actionSummary(call model.ToolCall) string {
	argsJSON, _ := json.Marshal(call.Arguments)
	return fmt.Sprintf("%s: %s", call.Name, preview(string(argsJSON), 80))
}

// preview truncates s to at most n runes without splitting multi-byte characters.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

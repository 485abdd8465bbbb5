// Package orchestrator runs the conversation state machine.
//
// Each user turn appends to the thread's transcript and then loops:
//
//	call the model with the tools → dispatch its tool calls one at a time →
//	feed the results back → repeat until it answers or calls Output.
//
// Tools read and write the thread's Conversation State (dataset, query,
// result, chart). Because later tools read what earlier tools wrote, tool
// calls are never dispatched concurrently and every model request asks for
// parallel tool calls to be disabled.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/chart"
	"github.com/adaptation-atlas/atlas-assistant/internal/telemetry"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	pkgmw "github.com/adaptation-atlas/atlas-assistant/pkg/middleware"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultMaxSteps is the number of model calls allowed per user turn.
const DefaultMaxSteps = 25

// ErrStepLimit matches every *StepLimitError.
var ErrStepLimit = errors.New("step limit reached")

// StepLimitError reports a turn that did not finish within the step limit.
type StepLimitError struct {
	Limit int
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("Recursion limit of %d reached without hitting a stop condition.", e.Limit)
}

func (e *StepLimitError) Is(target error) bool { return target == ErrStepLimit }

// DatasetSelector finds datasets in the semantic index.
type DatasetSelector interface {
	Select(ctx context.Context, query string) (*models.Dataset, float64, error)
	List(ctx context.Context) ([]*models.Dataset, error)
}

// SQLSynthesizer writes SQL for a question about a dataset.
type SQLSynthesizer interface {
	Synthesize(ctx context.Context, question string, ds *models.Dataset) (*models.SQLQuery, error)
}

// ChartSynthesizer writes chart metadata for an executed result.
type ChartSynthesizer interface {
	Synthesize(ctx context.Context, kind string, t *models.Table) (*chart.Result, error)
}

// Event carries the transcript messages produced by one step.
type Event struct {
	Messages []models.ChatMessage
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Backend  contracts.ModelBackend
	Threads  contracts.ThreadStore
	Selector DatasetSelector
	SQL      SQLSynthesizer
	Engine   contracts.QueryEngine
	Charts   ChartSynthesizer
	Metrics  *telemetry.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

// WithMaxSteps sets the number of model calls allowed per user turn.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithClock overrides the time source used for the system prompt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives conversations. It is safe for concurrent use across
// threads; concurrent turns on the same thread are not supported.
type Orchestrator struct {
	Deps
	model    string
	maxSteps int
	now      func() time.Time
	tools    map[string]*tool
	defs     []models.ToolDefinition
}

// New creates an orchestrator. It fails when the chart registry is invalid.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if err := chart.ValidateRegistry(); err != nil {
		return nil, err
	}
	o := &Orchestrator{Deps: deps, maxSteps: DefaultMaxSteps, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	o.registerTools()
	return o, nil
}

// ToolNames returns the names of the dispatchable tools in definition order.
func (o *Orchestrator) ToolNames() []string {
	names := make([]string, 0, len(o.defs))
	for _, d := range o.defs {
		if d.Function.Name != OutputTool {
			names = append(names, d.Function.Name)
		}
	}
	return names
}

// Run processes one user turn on threadID, calling emit with the messages of
// each step as they are produced. The thread is saved when Run returns, also
// on failure, so streamed progress is never lost.
//
// Run returns a *StepLimitError when the model does not finish within the
// step limit and a backend error (llm.ErrBackend) when the model backend
// fails. Tool-level problems never surface as errors.
func (o *Orchestrator) Run(ctx context.Context, threadID, question string, emit func(Event) error) (err error) {
	ctx = pkgmw.SetThreadID(ctx, threadID)
	thread, err := o.loadThread(ctx, threadID)
	if err != nil {
		return err
	}
	defer func() {
		if saveErr := o.Threads.SaveThread(context.WithoutCancel(ctx), thread); saveErr != nil {
			log.Error().Err(saveErr).Str("thread_id", threadID).Msg("Failed to save thread")
			if err == nil {
				err = fmt.Errorf("save thread: %w", saveErr)
			}
		}
	}()

	if repaired, ok := RepairRoles(thread.Messages); ok {
		log.Debug().Str("thread_id", threadID).Msg("Acknowledged trailing tool result")
		thread.Messages = repaired
	}
	thread.Messages = append(thread.Messages, models.ChatMessage{Role: models.RoleUser, Content: question})

	t := &turn{thread: thread, emit: emit}
	for step := 1; step <= o.maxSteps; step++ {
		done, err := o.step(ctx, t, step)
		if err != nil {
			return err
		}
		if done {
			log.Info().
				Str("thread_id", threadID).
				Int("steps", step).
				Msg("Chat turn complete")
			return nil
		}
	}

	log.Warn().Str("thread_id", threadID).Int("max_steps", o.maxSteps).Msg("Chat turn hit the step limit")
	return &StepLimitError{Limit: o.maxSteps}
}

// turn is the per-request working set.
type turn struct {
	thread *models.Thread
	emit   func(Event) error
}

func (t *turn) append(msg models.ChatMessage, visible bool) error {
	t.thread.Messages = append(t.thread.Messages, msg)
	if !visible || t.emit == nil {
		return nil
	}
	return t.emit(Event{Messages: []models.ChatMessage{msg}})
}

// abort closes out tool calls that never got a result, so a saved thread
// never holds an assistant tool call without its answer. The messages stay
// in the transcript only.
func (t *turn) abort(calls []models.ToolCall, cause error) {
	for _, call := range calls {
		msg := toolError("Error: tool call aborted: %v", cause).message(call)
		t.thread.Messages = append(t.thread.Messages, msg)
	}
}

// step performs one model call and dispatches its tool calls. It reports
// whether the turn is finished.
func (o *Orchestrator) step(ctx context.Context, t *turn, n int) (done bool, err error) {
	disableParallel := false
	req := &models.CompletionRequest{
		Model:             o.model,
		Messages:          o.requestMessages(t.thread),
		Tools:             o.defs,
		ToolChoice:        "auto",
		ParallelToolCalls: &disableParallel,
	}
	resp, err := o.Backend.Complete(ctx, req)
	if err != nil {
		return false, err
	}

	msg := models.ChatMessage{
		Role:         models.RoleAssistant,
		Content:      resp.Content,
		ToolCalls:    resp.ToolCalls,
		FinishReason: resp.FinishReason,
	}
	var outputCall *models.ToolCall
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Function.Name == OutputTool {
			outputCall = &resp.ToolCalls[i]
			break
		}
	}
	var output *models.Output
	var outputErr error
	if outputCall != nil {
		output, outputErr = parseOutput(outputCall.Function.Arguments)
		msg.Output = output
	}

	answered := 0
	defer func() {
		if err != nil {
			t.abort(resp.ToolCalls[answered:], err)
		}
	}()
	if err := t.append(msg, true); err != nil {
		return false, err
	}

	log.Debug().
		Str("thread_id", t.thread.ID).
		Int("step", n).
		Int("tool_calls", len(resp.ToolCalls)).
		Str("finish_reason", resp.FinishReason).
		Msg("Model step")

	if len(resp.ToolCalls) == 0 {
		return true, nil
	}

	// One at a time, in the order the model asked for them.
	for _, call := range resp.ToolCalls {
		var result toolResult
		visible := true
		if call.Function.Name == OutputTool {
			result = toolResult{content: "Returning structured response: " + call.Function.Arguments}
			if outputErr != nil {
				result = toolError("Error: invalid Output arguments: %v. Call Output again with an answer and a list of queries.", outputErr)
			}
			// Output is answered in the transcript only.
			visible = false
		} else {
			var dispatchErr error
			if result, dispatchErr = o.dispatch(ctx, t.thread, call); dispatchErr != nil {
				return false, dispatchErr
			}
		}
		// append records the message before emitting it, so a failed emit
		// still leaves the call answered.
		appendErr := t.append(result.message(call), visible)
		answered++
		if appendErr != nil {
			return false, appendErr
		}
	}
	return output != nil, nil
}

// requestMessages prepends the system prompt to the transcript.
func (o *Orchestrator) requestMessages(thread *models.Thread) []models.ChatMessage {
	messages := make([]models.ChatMessage, 0, len(thread.Messages)+1)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: SystemPrompt(o.ToolNames(), o.now())})
	return append(messages, thread.Messages...)
}

func (o *Orchestrator) loadThread(ctx context.Context, id string) (*models.Thread, error) {
	thread, err := o.Threads.GetThread(ctx, id)
	if errors.Is(err, contracts.ErrNotFound) {
		return &models.Thread{ID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", id, err)
	}
	return thread, nil
}

func parseOutput(arguments string) (*models.Output, error) {
	var out models.Output
	if err := json.Unmarshal([]byte(arguments), &out); err != nil {
		return nil, err
	}
	if out.Queries == nil {
		out.Queries = []string{}
	}
	return &out, nil
}

// RepairRoles appends an acknowledgement when the transcript ends with a tool
// result, because the model backend rejects a user message directly after a
// tool message. It reports whether a message was appended; calling it again
// on its own output is a no-op.
func RepairRoles(messages []models.ChatMessage) ([]models.ChatMessage, bool) {
	if len(messages) == 0 {
		return messages, false
	}
	last := messages[len(messages)-1]
	if last.Role != models.RoleTool {
		return messages, false
	}
	content := "Noted the previous tool result."
	if last.Name != "" {
		content = fmt.Sprintf("Noted the result from tool '%s'.", last.Name)
	}
	return append(messages, models.ChatMessage{Role: models.RoleAssistant, Content: content}), true
}

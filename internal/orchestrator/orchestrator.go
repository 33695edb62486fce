package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/khawajanaqeeb/taskchat/internal/compose"
	"github.com/khawajanaqeeb/taskchat/internal/conversation"
	"github.com/khawajanaqeeb/taskchat/internal/intent"
	"github.com/khawajanaqeeb/taskchat/internal/observability"
	"github.com/khawajanaqeeb/taskchat/internal/policy"
	"github.com/khawajanaqeeb/taskchat/internal/registry"
	"github.com/khawajanaqeeb/taskchat/internal/reliability"
	"github.com/khawajanaqeeb/taskchat/internal/slots"
)

// missingConfirmation is the pseudo-slot recorded when a routing decision
// stalls on an explicit go-ahead rather than a missing argument.
const missingConfirmation = "confirmation"

var (
	ErrEmptyUserID = errors.New("user id is required")
	ErrEmptyInput  = errors.New("message text is empty")
)

// Config tunes the control loop policies.
type Config struct {
	ConfidenceFloor float64
	TieBreakEpsilon float64
	HistoryWindow   int
	DispatchTimeout time.Duration
	RetryBase       time.Duration
	RetryCap        time.Duration
	Thresholds      policy.Thresholds
}

func DefaultConfig() Config {
	return Config{
		ConfidenceFloor: 0.55,
		TieBreakEpsilon: 0.05,
		HistoryWindow:   10,
		DispatchTimeout: 10 * time.Second,
		RetryBase:       200 * time.Millisecond,
		RetryCap:        2 * time.Second,
		Thresholds:      policy.DefaultThresholds(),
	}
}

// Reply is the outward-facing result of handling one inbound message.
type Reply struct {
	ConversationID string               `json:"conversation_id"`
	TurnSeq        int                  `json:"turn_seq"`
	Text           string               `json:"text"`
	Intent         intent.Intent        `json:"intent"`
	Outcome        conversation.Outcome `json:"outcome"`
}

// Orchestrator is the conversation control loop: classify, extract, resolve
// ambiguity, dispatch, persist, reply. Each conversation is handled strictly
// one message at a time; different conversations proceed in parallel.
type Orchestrator struct {
	store      conversation.Store
	classifier intent.Classifier
	extractor  *slots.Extractor
	registry   *registry.Registry
	composer   *compose.Composer
	metrics    *observability.Metrics
	cfg        Config

	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func New(
	store conversation.Store,
	classifier intent.Classifier,
	extractor *slots.Extractor,
	reg *registry.Registry,
	composer *compose.Composer,
	metrics *observability.Metrics,
	cfg Config,
) *Orchestrator {
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.55
	}
	if cfg.TieBreakEpsilon <= 0 {
		cfg.TieBreakEpsilon = 0.05
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 10 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 2 * time.Second
	}
	if cfg.Thresholds.SlotAcceptance <= 0 {
		cfg.Thresholds = policy.DefaultThresholds()
	}
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		extractor:  extractor,
		registry:   reg,
		composer:   composer,
		metrics:    metrics,
		cfg:        cfg,
		locks:      make(map[string]*convLock),
	}
}

// HandleMessage runs one inbound message through the control loop. A missing
// conversationID creates a new conversation; its id comes back on the Reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, conversationID, text string) (Reply, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Reply{}, ErrEmptyUserID
	}
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyInput
	}

	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.ObserveStage(observability.StageTurn, time.Since(start))
		}
	}()

	conv, err := o.store.GetOrCreate(ctx, userID, strings.TrimSpace(conversationID))
	if err != nil {
		return Reply{}, fmt.Errorf("load conversation: %w", err)
	}

	unlock := o.lockConversation(conv.ID)
	defer unlock()

	// Reload under the lock so this turn observes everything an earlier
	// concurrent request for the same conversation already committed.
	conv, err = o.store.Get(ctx, conv.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("load conversation: %w", err)
	}

	if conv.Pending != nil {
		return o.handleClarificationAnswer(ctx, conv, text)
	}
	return o.handleFresh(ctx, conv, text)
}

// handleFresh runs the full classify -> extract -> route pipeline.
func (o *Orchestrator) handleFresh(ctx context.Context, conv *conversation.Conversation, text string) (Reply, error) {
	pred, err := o.classifyWithRetry(ctx, text, conv)
	if err != nil {
		// Degraded path: the backend stayed down after a retry, so this
		// turn falls back to a chat-style rephrase request.
		if o.metrics != nil {
			o.metrics.ClassifierFallbacks.Inc()
			o.metrics.ObserveIndicator("classifier_fallback")
		}
		turn := conversation.Turn{
			Input:   text,
			Intent:  intent.IntentChat,
			Routing: conversation.RoutingDecision{Intent: intent.IntentChat},
			Outcome: conversation.OutcomeFailure,
			Reply:   o.composer.Rephrase(),
		}
		return o.finishTurn(ctx, conv, turn)
	}

	if pred.Intent == intent.IntentChat {
		turn := conversation.Turn{
			Input:      text,
			Intent:     intent.IntentChat,
			Confidence: pred.Confidence,
			Routing:    conversation.RoutingDecision{Intent: intent.IntentChat},
			Outcome:    conversation.OutcomeSuccess,
			Reply:      o.composer.Chat(text),
		}
		return o.finishTurn(ctx, conv, turn)
	}

	extractStart := time.Now()
	extraction := o.extractor.Extract(text, pred.Intent, historyView(conv, o.cfg.HistoryWindow))
	if o.metrics != nil {
		o.metrics.ObserveStage(observability.StageExtract, time.Since(extractStart))
	}
	routing, unresolved := o.route(pred, extraction)

	if len(unresolved) > 0 {
		return o.stall(ctx, conv, text, pred, extraction.Slots, routing, unresolved,
			o.composer.Clarification(pred.Intent, unresolved))
	}
	if routing.NeedsConfirmation {
		return o.stall(ctx, conv, text, pred, extraction.Slots, routing, []string{missingConfirmation},
			o.composer.Confirmation(pred.Intent, routing.Args))
	}
	return o.dispatch(ctx, conv, text, pred, extraction.Slots, routing)
}

// handleClarificationAnswer merges the user's answer into the stalled routing
// decision instead of reclassifying from scratch. A confident, different
// actionable intent abandons the stalled decision and starts over.
func (o *Orchestrator) handleClarificationAnswer(ctx context.Context, conv *conversation.Conversation, text string) (Reply, error) {
	pending := conv.Pending
	pred, err := o.classifyWithRetry(ctx, text, conv)
	if err == nil && pred.Intent != intent.IntentChat && pred.Intent != pending.Routing.Intent {
		if err := o.store.SetPendingClarification(ctx, conv.ID, nil); err != nil {
			return Reply{}, fmt.Errorf("clear pending clarification: %w", err)
		}
		conv.Pending = nil
		return o.handleFresh(ctx, conv, text)
	}

	routing := pending.Routing.Clone()
	if routing.Args == nil {
		routing.Args = make(map[string]string)
	}

	answered := make(map[string]slots.Slot)
	var unresolved []string
	for _, name := range pending.Missing {
		if name == missingConfirmation {
			switch {
			case affirmative(text):
				routing.NeedsConfirmation = false
			case negative(text):
				return o.abandon(ctx, conv, text, routing)
			default:
				unresolved = append(unresolved, missingConfirmation)
			}
			continue
		}

		schema, _ := slots.SchemaFor(routing.Intent)
		field, ok := schema.Field(name)
		if !ok {
			field = slots.Field{Name: name, Type: slots.TypeText}
		}
		slot, ok := o.extractor.ExtractSlot(field, text, historyView(conv, o.cfg.HistoryWindow))
		if ok && policy.AcceptSlot(slot, o.cfg.Thresholds) {
			routing.Args[name] = slot.Value
			answered[name] = slot
			continue
		}
		unresolved = append(unresolved, name)
	}

	resumed := intent.Prediction{Intent: routing.Intent, Confidence: pending.Confidence}
	if len(unresolved) > 0 {
		prompt := o.composer.Clarification(routing.Intent, unresolved)
		if unresolved[0] == missingConfirmation {
			prompt = o.composer.Confirmation(routing.Intent, routing.Args)
		}
		return o.stall(ctx, conv, text, resumed, answered, routing, unresolved, prompt)
	}
	// The answer filled the missing slots, but a low-confidence destructive
	// decision still needs its explicit go-ahead before dispatch.
	if routing.NeedsConfirmation {
		return o.stall(ctx, conv, text, resumed, answered, routing, []string{missingConfirmation},
			o.composer.Confirmation(routing.Intent, routing.Args))
	}
	return o.dispatch(ctx, conv, text, resumed, answered, routing)
}

// abandon closes a stalled decision the user declined to confirm.
func (o *Orchestrator) abandon(ctx context.Context, conv *conversation.Conversation, text string, routing conversation.RoutingDecision) (Reply, error) {
	if err := o.store.SetPendingClarification(ctx, conv.ID, nil); err != nil {
		return Reply{}, fmt.Errorf("clear pending clarification: %w", err)
	}
	turn := conversation.Turn{
		Input:   text,
		Intent:  routing.Intent,
		Routing: routing,
		Outcome: conversation.OutcomeSuccess,
		Reply:   "Okay, I won't do that.",
	}
	return o.finishTurn(ctx, conv, turn)
}

// route builds the routing decision from accepted slots, collecting any
// required slot that stayed unresolved or fell below the acceptance floor.
func (o *Orchestrator) route(pred intent.Prediction, extraction slots.Extraction) (conversation.RoutingDecision, []string) {
	capability, _ := o.registry.Capability(pred.Intent)
	routing := conversation.RoutingDecision{
		Intent:     pred.Intent,
		Capability: capability,
		Args:       make(map[string]string, len(extraction.Slots)),
	}

	schema, _ := slots.SchemaFor(pred.Intent)
	unresolved := append([]string(nil), extraction.Unresolved...)
	for name, slot := range extraction.Slots {
		if !policy.AcceptSlot(slot, o.cfg.Thresholds) {
			if field, ok := schema.Field(name); ok && field.Required {
				unresolved = append(unresolved, name)
			}
			continue
		}
		routing.Args[name] = slot.Value
	}
	routing.NeedsConfirmation = policy.NeedsConfirmation(pred.Intent, pred.Confidence, o.cfg.Thresholds)
	return routing, unresolved
}

// stall persists the partial decision and asks the user for what is missing.
func (o *Orchestrator) stall(
	ctx context.Context,
	conv *conversation.Conversation,
	text string,
	pred intent.Prediction,
	extracted map[string]slots.Slot,
	routing conversation.RoutingDecision,
	missing []string,
	prompt string,
) (Reply, error) {
	pending := &conversation.PendingClarification{
		Routing:    routing.Clone(),
		Confidence: pred.Confidence,
		Missing:    append([]string(nil), missing...),
		Prompt:     prompt,
		AskedAt:    time.Now().UTC(),
	}
	if err := o.store.SetPendingClarification(ctx, conv.ID, pending); err != nil {
		return Reply{}, fmt.Errorf("set pending clarification: %w", err)
	}
	if o.metrics != nil {
		o.metrics.ObserveIndicator("clarification_asked")
	}

	turn := conversation.Turn{
		Input:      text,
		Intent:     pred.Intent,
		Confidence: pred.Confidence,
		Slots:      extracted,
		Routing:    routing,
		Outcome:    conversation.OutcomeAmbiguous,
		Reply:      prompt,
	}
	return o.finishTurn(ctx, conv, turn)
}

// dispatch invokes the target handler with validated arguments and converts
// its result into the turn outcome and reply. Dispatch is never retried:
// handlers may have side effects.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	conv *conversation.Conversation,
	text string,
	pred intent.Prediction,
	extracted map[string]slots.Slot,
	routing conversation.RoutingDecision,
) (Reply, error) {
	result := o.invoke(ctx, conv.UserID, routing)
	if reason, changed := policy.SanitizeReason(result.Reason); changed {
		result.Reason = reason
	}

	if conv.Pending != nil {
		if err := o.store.SetPendingClarification(ctx, conv.ID, nil); err != nil {
			return Reply{}, fmt.Errorf("clear pending clarification: %w", err)
		}
	}

	outcome := conversation.OutcomeSuccess
	if result.Kind != registry.ResultSuccess {
		outcome = conversation.OutcomeFailure
	}
	turn := conversation.Turn{
		Input:      text,
		Intent:     pred.Intent,
		Confidence: pred.Confidence,
		Slots:      extracted,
		Routing:    routing,
		Outcome:    outcome,
		Reply:      o.composer.Result(pred.Intent, result),
		Candidates: result.Items,
	}
	if o.metrics != nil {
		o.metrics.ObserveDispatch(routing.Capability, string(result.Kind))
	}
	return o.finishTurn(ctx, conv, turn)
}

// invoke runs the handler under the per-dispatch timeout. The handler call
// itself always runs to completion in its goroutine; a timeout only converts
// this turn's outcome, it never leaves the conversation in flight.
func (o *Orchestrator) invoke(ctx context.Context, userID string, routing conversation.RoutingDecision) registry.Result {
	// The dispatch must survive a dropped transport connection, so it is
	// detached from the request context; only the timeout bounds it.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.DispatchTimeout)
	defer cancel()

	start := time.Now()
	type out struct {
		result registry.Result
		err    error
	}
	done := make(chan out, 1)
	go func() {
		result, err := o.registry.Dispatch(dispatchCtx, routing.Intent, userID, routing.Args)
		done <- out{result: result, err: err}
	}()

	select {
	case res := <-done:
		if o.metrics != nil {
			o.metrics.ObserveDispatchLatency(time.Since(start))
		}
		if errors.Is(res.err, registry.ErrNoHandler) {
			return registry.ValidationError(fmt.Sprintf("no handler can %s yet", routing.Intent))
		}
		if res.err != nil {
			return registry.ValidationError("the handler failed")
		}
		return res.result
	case <-dispatchCtx.Done():
		return registry.ValidationError("handler timeout")
	}
}

// finishTurn appends the turn and shapes the outward reply. Persistence runs
// on a detached context so a dropped connection cannot lose the record.
func (o *Orchestrator) finishTurn(ctx context.Context, conv *conversation.Conversation, turn conversation.Turn) (Reply, error) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	start := time.Now()
	snapshot, err := o.store.Append(persistCtx, conv.ID, turn)
	if err != nil {
		return Reply{}, fmt.Errorf("append turn: %w", err)
	}
	if o.metrics != nil {
		o.metrics.ObserveStage(observability.StagePersist, time.Since(start))
		o.metrics.Turns.WithLabelValues(string(turn.Intent), string(turn.Outcome)).Inc()
	}

	last := snapshot.Turns[len(snapshot.Turns)-1]
	return Reply{
		ConversationID: snapshot.ID,
		TurnSeq:        last.Seq,
		Text:           last.Reply,
		Intent:         last.Intent,
		Outcome:        last.Outcome,
	}, nil
}

// classifyWithRetry applies the transient-failure policy: one retry with
// exponential backoff, then the caller degrades to a rephrase reply.
func (o *Orchestrator) classifyWithRetry(ctx context.Context, text string, conv *conversation.Conversation) (intent.Prediction, error) {
	history := historyLines(conv, o.cfg.HistoryWindow)

	start := time.Now()
	pred, err := o.classifier.Classify(ctx, text, history)
	if err == nil {
		if o.metrics != nil {
			o.metrics.ObserveStage(observability.StageClassify, time.Since(start))
		}
		return o.clampPrediction(pred), nil
	}
	if !reliability.IsTransientClassifierError(err) {
		return intent.Prediction{}, err
	}

	if o.metrics != nil {
		o.metrics.ClassifierRetries.Inc()
		o.metrics.ObserveIndicator("classifier_retry")
	}
	if serr := reliability.Sleep(ctx, reliability.ExponentialBackoff(0, o.cfg.RetryBase, o.cfg.RetryCap)); serr != nil {
		return intent.Prediction{}, serr
	}
	pred, err = o.classifier.Classify(ctx, text, history)
	if err != nil {
		return intent.Prediction{}, err
	}
	return o.clampPrediction(pred), nil
}

// clampPrediction enforces the confidence floor regardless of backend.
func (o *Orchestrator) clampPrediction(pred intent.Prediction) intent.Prediction {
	if pred.Intent != intent.IntentChat && pred.Confidence < o.cfg.ConfidenceFloor {
		return intent.Prediction{Intent: intent.IntentChat, Confidence: pred.Confidence}
	}
	return pred
}

// lockConversation serializes message handling per conversation id.
func (o *Orchestrator) lockConversation(id string) func() {
	o.mu.Lock()
	l := o.locks[id]
	if l == nil {
		l = &convLock{}
		o.locks[id] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, id)
		}
		o.mu.Unlock()
	}
}

func historyView(conv *conversation.Conversation, window int) []slots.HistoryTurn {
	turns := conv.RecentTurns(window)
	out := make([]slots.HistoryTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, slots.HistoryTurn{Input: t.Input, Candidates: t.Candidates})
	}
	return out
}

func historyLines(conv *conversation.Conversation, window int) []string {
	turns := conv.RecentTurns(window)
	out := make([]string, 0, len(turns)*2)
	for _, t := range turns {
		out = append(out, "user: "+t.Input)
		if t.Reply != "" {
			out = append(out, "assistant: "+t.Reply)
		}
	}
	return out
}

func affirmative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(strings.Trim(text, "!."))) {
	case "yes", "y", "yeah", "yep", "sure", "do it", "go ahead", "please", "confirm", "ok", "okay":
		return true
	default:
		return false
	}
}

func negative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(strings.Trim(text, "!."))) {
	case "no", "n", "nope", "don't", "do not", "stop", "cancel", "never mind", "nevermind":
		return true
	default:
		return false
	}
}

// Package workflow implements the command-processing engine: a finite-state
// machine that classifies an incoming command, routes it through asset
// resolution and spatial planning, drives a bounded verify-and-retry loop,
// applies the verified batch to the scene store exactly once, and records
// the turn in the ledger.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scenecraft/internal/collab"
	"scenecraft/internal/ledger"
	"scenecraft/internal/logging"
	"scenecraft/internal/scene"
	"scenecraft/internal/types"
	"scenecraft/internal/verification"

	"github.com/google/uuid"
)

// ErrMaxRetriesExceeded is the terminal error when the retry budget runs out
// while the planner keeps proposing colliding placements.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded due to collision")

// state identifies a node of the workflow state machine.
type state string

const (
	stateClassify      state = "classify"
	stateRecallContext state = "recall_context"
	stateAssetResolve  state = "asset_resolve"
	statePlan          state = "plan"
	stateVerify        state = "verify"
	stateCommit        state = "commit"
	stateFail          state = "fail"
	stateDone          state = "done"
)

// Config tunes the engine.
type Config struct {
	// MaxIterations is the Plan attempt budget per turn.
	MaxIterations int

	// ContextTurns is how many recent turns the classifier sees.
	ContextTurns int

	// CallTimeout bounds each collaborator call. Zero means no extra bound
	// beyond what the collaborator applies itself.
	CallTimeout time.Duration

	// ScenePath, when set, is flushed as a checkpoint at the end of every
	// turn that committed anything.
	ScenePath string
}

// Engine is the workflow engine. One ProcessCommand call is one turn; turns
// within a session run strictly sequentially, turns across sessions run
// concurrently against the same store.
type Engine struct {
	store      *scene.Store
	verifier   *verification.Verifier
	classifier collab.Classifier
	fallback   *FallbackClassifier
	resolver   collab.AssetResolver
	planner    collab.SpatialPlanner
	ledger     *ledger.Ledger
	watcher    *scene.Watcher // suppressed around checkpoint flushes; may be nil
	cfg        Config

	sessions *sessionRegistry
}

// New assembles an engine. classifier may fail at runtime (the fallback
// takes over); resolver and planner failures are terminal per turn.
func New(store *scene.Store, verifier *verification.Verifier, classifier collab.Classifier,
	resolver collab.AssetResolver, planner collab.SpatialPlanner, lgr *ledger.Ledger, cfg Config) *Engine {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	if cfg.ContextTurns < 0 {
		cfg.ContextTurns = 0
	}
	return &Engine{
		store:      store,
		verifier:   verifier,
		classifier: classifier,
		fallback:   NewFallbackClassifier(),
		resolver:   resolver,
		planner:    planner,
		ledger:     lgr,
		cfg:        cfg,
		sessions:   newSessionRegistry(),
	}
}

// SetWatcher attaches the scene file watcher so checkpoint flushes do not
// bounce back as external edits.
func (e *Engine) SetWatcher(w *scene.Watcher) {
	e.watcher = w
}

// Result is what a caller gets back from one processed command.
type Result struct {
	SessionID    string              `json:"sessionId"`
	TurnNumber   int                 `json:"turn"`
	Success      bool                `json:"success"`
	Message      string              `json:"message,omitempty"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	FinalActions []types.FinalAction `json:"finalActions,omitempty"`
	Unresolved   []string            `json:"unresolvedNames,omitempty"`
	Iterations   int                 `json:"iterations"`
}

// workflowState is the mutable per-invocation context threaded through the
// state machine. It is owned by exactly one in-flight turn and discarded at
// the end of it.
type workflowState struct {
	sessionID string
	prompt    string
	pose      types.Pose

	command    *types.ParsedCommand
	memory     []types.Turn
	resolution *collab.Resolution
	pending    []types.SceneObject // new objects, ids assigned, awaiting placement
	targets    []types.SceneObject // existing objects being transformed

	proposed     *types.PlacementBatch
	verification *types.VerificationResult
	feedback     *collab.RetryFeedback

	iterations int // Plan invocations consumed
	success    bool
	errMsg     string
	actions    []types.FinalAction
	unresolved []string
}

// ProcessCommand runs one turn. An empty sessionID creates a fresh session.
// The turn always runs to Done and is appended to the ledger exactly once,
// whatever the outcome; the returned error covers only caller mistakes.
func (e *Engine) ProcessCommand(ctx context.Context, prompt, sessionID string) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("empty prompt")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Turns within a session are strictly sequential: a new turn queues
	// behind the in-flight one rather than cancelling it.
	sess := e.sessions.get(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryWorkflow, "ProcessCommand")
	defer timer.StopWithThreshold(30 * time.Second)

	ws := &workflowState{
		sessionID: sessionID,
		prompt:    prompt,
		pose:      sess.currentPose(),
	}

	logging.Workflow("session %s: processing %q", sessionID, prompt)
	e.run(ctx, ws)

	turn := e.appendTurn(ws)
	return e.result(ws, turn), nil
}

// run drives the state machine to Done.
func (e *Engine) run(ctx context.Context, ws *workflowState) {
	st := stateClassify
	for st != stateDone {
		logging.WorkflowDebug("session %s: state %s", ws.sessionID, st)
		switch st {
		case stateClassify:
			st = e.classify(ctx, ws)
		case stateRecallContext:
			st = e.recallContext(ws)
		case stateAssetResolve:
			st = e.assetResolve(ctx, ws)
		case statePlan:
			st = e.plan(ctx, ws)
		case stateVerify:
			st = e.verify(ws)
		case stateCommit:
			st = e.commit(ws)
		case stateFail:
			ws.success = false
			logging.Workflow("session %s: turn failed: %s", ws.sessionID, ws.errMsg)
			st = stateDone
		default:
			ws.errMsg = fmt.Sprintf("internal error: unknown state %q", st)
			st = stateDone
		}
	}
}

// classify invokes the classifier with recent history. Classifier failure is
// not fatal: the deterministic lexical fallback always produces an intent.
func (e *Engine) classify(ctx context.Context, ws *workflowState) state {
	recent := e.ledger.Recent(ws.sessionID, e.cfg.ContextTurns)

	cctx, cancel := e.callContext(ctx)
	cmd, err := e.classifier.Classify(cctx, ws.prompt, recent)
	cancel()
	if err != nil {
		logging.Get(logging.CategoryClassifier).Warn("classifier failed (%v), using lexical fallback", err)
		cmd = e.fallback.Classify(ws.prompt)
	}
	ws.command = cmd

	switch cmd.CommandType {
	case types.CommandCreateOrDestroy:
		return stateAssetResolve
	case types.CommandTransform:
		return statePlan
	default:
		// Vague commands get memory context and, by convention, asset
		// resolution too - they may implicitly require new objects.
		return stateRecallContext
	}
}

// recallContext loads the session's recent turns as memory for the planner
// and resolver.
func (e *Engine) recallContext(ws *workflowState) state {
	ws.memory = e.ledger.Recent(ws.sessionID, e.cfg.ContextTurns)
	logging.WorkflowDebug("session %s: recalled %d turns of context", ws.sessionID, len(ws.memory))
	return stateAssetResolve
}

// assetResolve turns named references into pending objects and deletion
// targets. Unresolved references are a partial failure; only a turn where
// nothing at all resolves is terminal.
func (e *Engine) assetResolve(ctx context.Context, ws *workflowState) state {
	snapshot := e.store.Snapshot()

	rctx, cancel := e.callContext(ctx)
	res, err := e.resolver.Resolve(rctx, ws.command, snapshot)
	cancel()
	if err != nil {
		ws.errMsg = fmt.Sprintf("asset resolution failed: %v", err)
		return stateFail
	}
	ws.resolution = res
	ws.unresolved = res.Unresolved

	// Ids are assigned at creation time, before planning, so the verifier
	// and planner can reference the pending objects.
	for i := range res.NewObjects {
		obj := res.NewObjects[i].Clone()
		obj.ID = e.store.NextID(obj.Name)
		ws.pending = append(ws.pending, obj)
	}

	if res.Empty() {
		if ws.command.CommandType == types.CommandComplexOrVague {
			// Vague turns fall through to planning against existing objects.
			return statePlan
		}
		ws.errMsg = "no object references could be resolved"
		if len(res.Unresolved) > 0 {
			ws.errMsg = fmt.Sprintf("no object references could be resolved (unresolved: %s)",
				strings.Join(res.Unresolved, ", "))
		}
		return stateFail
	}

	// A pure deletion has nothing to place, so planning and verification
	// have no subject; the batch goes straight to commit.
	if len(ws.pending) == 0 && len(res.DeleteIDs) > 0 {
		return stateCommit
	}
	return statePlan
}

// plan asks the spatial planner for one placement per object needing a
// position. A broken planner result is terminal - no retry budget is spent
// chasing a planner defect.
func (e *Engine) plan(ctx context.Context, ws *workflowState) state {
	if err := e.resolveTargets(ws); err != nil {
		ws.errMsg = err.Error()
		return stateFail
	}

	ws.iterations++
	req := &collab.PlanRequest{
		Command:  ws.command,
		Scene:    e.store.Snapshot(),
		Pose:     ws.pose,
		Pending:  ws.pending,
		Targets:  ws.targets,
		Feedback: ws.feedback,
	}

	pctx, cancel := e.callContext(ctx)
	batch, err := e.planner.Plan(pctx, req)
	cancel()
	if err != nil {
		ws.errMsg = fmt.Sprintf("spatial planning failed: %v", err)
		return stateFail
	}
	ws.proposed = batch

	logging.Planner("session %s: attempt %d proposed %d placements",
		ws.sessionID, ws.iterations, len(batch.Placements))
	return stateVerify
}

// resolveTargets maps involved object names onto existing scene objects for
// transform turns. Runs once; retries reuse the same targets.
func (e *Engine) resolveTargets(ws *workflowState) error {
	if ws.command.CommandType == types.CommandCreateOrDestroy {
		return nil
	}
	if len(ws.targets) > 0 || len(ws.pending) > 0 {
		return nil
	}

	seen := make(map[string]bool)
	for _, name := range ws.command.InvolvedObjects {
		matches := e.store.FindByName(name)
		if len(matches) == 0 {
			if !containsString(ws.unresolved, name) {
				ws.unresolved = append(ws.unresolved, name)
			}
			continue
		}
		// Ambiguity policy: act on every match rather than guessing one.
		for _, m := range matches {
			if seen[m.ID] || !m.Movable() {
				continue
			}
			seen[m.ID] = true
			ws.targets = append(ws.targets, m)
		}
	}

	if len(ws.targets) == 0 && len(ws.pending) == 0 {
		if len(ws.unresolved) > 0 {
			return fmt.Errorf("no scene objects match: %s", strings.Join(ws.unresolved, ", "))
		}
		return fmt.Errorf("command names no objects to act on")
	}
	return nil
}

// verify runs the placement verifier and decides: commit, retry, or fail.
func (e *Engine) verify(ws *workflowState) state {
	result := e.verifier.Verify(ws.proposed, e.store.Snapshot(), ws.pending)
	ws.verification = result

	if !result.ValidStructure {
		// A structurally invalid proposal is a planner bug, not a spatial
		// conflict; retrying would burn budget on garbage.
		ws.errMsg = fmt.Sprintf("planner returned structurally invalid placement: %s", result.Message)
		return stateFail
	}

	if !result.HasCollision {
		return stateCommit
	}

	if ws.iterations < e.cfg.MaxIterations {
		ws.feedback = &collab.RetryFeedback{
			Attempt:       ws.iterations,
			LastBatch:     ws.proposed,
			CollidingWith: result.CollidingWith,
			Message:       result.Message,
		}
		logging.Workflow("session %s: collision on attempt %d/%d, replanning",
			ws.sessionID, ws.iterations, e.cfg.MaxIterations)
		return statePlan
	}

	ws.errMsg = fmt.Sprintf("%v: %s", ErrMaxRetriesExceeded, result.Message)
	return stateFail
}

// commit applies the verified batch to the store in a single logical step:
// creations first, then position/rotation updates, then deletions. Each
// object-level apply is atomic; the batch as a whole is not, and per-object
// failures are recorded without aborting the rest.
func (e *Engine) commit(ws *workflowState) state {
	placements := map[string]types.Placement{}
	if ws.proposed != nil {
		for _, p := range ws.proposed.Placements {
			placements[p.ObjectID] = p
		}
	}

	// Creations: pending objects enter the scene already placed.
	for i := range ws.pending {
		obj := ws.pending[i].Clone()
		action := types.FinalAction{ObjectID: obj.ID, Action: types.ActionPlace}
		if p, ok := placements[obj.ID]; ok {
			obj.Position = p.Position
			obj.Rotation = p.Rotation
			delete(placements, obj.ID)
		}
		if _, err := e.store.Add(obj); err != nil {
			action.Success = false
			action.Message = err.Error()
		} else {
			action.Success = true
		}
		ws.actions = append(ws.actions, action)
	}

	// Updates for existing objects, in proposal order.
	if ws.proposed != nil {
		for _, p := range ws.proposed.Placements {
			if _, ok := placements[p.ObjectID]; !ok {
				continue // consumed by a creation above
			}
			action := types.FinalAction{ObjectID: p.ObjectID, Action: p.Action}
			posOK := e.store.UpdatePosition(p.ObjectID, types.FullUpdate(*p.Position))
			rotOK := e.store.UpdateRotation(p.ObjectID, types.FullUpdate(*p.Rotation))
			if posOK && rotOK {
				action.Success = true
			} else {
				action.Success = false
				action.Message = fmt.Sprintf("object %s not found", p.ObjectID)
			}
			ws.actions = append(ws.actions, action)
		}
	}

	// Deletions last.
	if ws.resolution != nil {
		for _, id := range ws.resolution.DeleteIDs {
			action := types.FinalAction{ObjectID: id, Action: types.ActionDelete}
			if e.store.Remove(id) {
				action.Success = true
			} else {
				action.Success = false
				action.Message = fmt.Sprintf("object %s not found", id)
			}
			ws.actions = append(ws.actions, action)
		}
	}

	succeeded, failed := 0, 0
	for _, a := range ws.actions {
		if a.Success {
			succeeded++
		} else {
			failed++
		}
	}
	ws.success = failed == 0 && succeeded > 0
	if failed > 0 {
		ws.errMsg = commitSummary(ws.actions)
	}

	e.checkpoint()
	logging.Workflow("session %s: committed %d/%d actions", ws.sessionID, succeeded, len(ws.actions))
	return stateDone
}

// checkpoint flushes the scene file if configured. The watcher is suppressed
// so our own write does not come back as an external edit. A flush failure
// does not fail the turn: memory is the source of truth.
func (e *Engine) checkpoint() {
	if e.cfg.ScenePath == "" {
		return
	}
	if e.watcher != nil {
		e.watcher.Suppress(2 * time.Second)
	}
	if err := e.store.Flush(e.cfg.ScenePath); err != nil {
		logging.Get(logging.CategoryScene).Error("checkpoint flush failed: %v", err)
	}
}

// appendTurn records the finished turn in the ledger, exactly once.
func (e *Engine) appendTurn(ws *workflowState) types.Turn {
	turn := types.Turn{
		ID:              uuid.NewString(),
		SessionID:       ws.sessionID,
		Timestamp:       time.Now().UTC(),
		Prompt:          ws.prompt,
		Command:         ws.command,
		Proposed:        ws.proposed,
		Verification:    ws.verification,
		Success:         ws.success,
		Error:           ws.errMsg,
		Iterations:      ws.iterations,
		Actions:         ws.actions,
		UnresolvedNames: ws.unresolved,
	}
	turn.Number = e.ledger.Append(turn)
	return turn
}

// result shapes the caller-facing outcome, enumerating partial failures and
// unresolved names.
func (e *Engine) result(ws *workflowState, turn types.Turn) *Result {
	r := &Result{
		SessionID:    ws.sessionID,
		TurnNumber:   turn.Number,
		Success:      ws.success,
		ErrorMessage: ws.errMsg,
		FinalActions: ws.actions,
		Unresolved:   ws.unresolved,
		Iterations:   ws.iterations,
	}
	switch {
	case ws.success && len(ws.unresolved) > 0:
		r.Message = fmt.Sprintf("done, but could not resolve: %s", strings.Join(ws.unresolved, ", "))
	case ws.success:
		r.Message = "done"
	case len(ws.actions) > 0:
		r.Message = commitSummary(ws.actions)
	default:
		r.Message = ws.errMsg
	}
	return r
}

// callContext bounds one collaborator call.
func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.CallTimeout)
}

// commitSummary enumerates which ids applied and which did not.
func commitSummary(actions []types.FinalAction) string {
	var ok, bad []string
	for _, a := range actions {
		if a.Success {
			ok = append(ok, a.ObjectID)
		} else {
			bad = append(bad, fmt.Sprintf("%s (%s)", a.ObjectID, a.Message))
		}
	}
	return fmt.Sprintf("applied: [%s]; failed: [%s]", strings.Join(ok, ", "), strings.Join(bad, ", "))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

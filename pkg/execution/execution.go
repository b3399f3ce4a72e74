// Package execution sequences one request through the pipeline:
// resolve -> pre-request hook -> re-resolve on mutation -> build & send ->
// test hook -> persist scope mutations -> result.
package execution

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/the-dev-tools/apirun/pkg/hook"
	"github.com/the-dev-tools/apirun/pkg/http/request"
	"github.com/the-dev-tools/apirun/pkg/http/response"
	"github.com/the-dev-tools/apirun/pkg/httpclient"
	"github.com/the-dev-tools/apirun/pkg/idwrap"
	"github.com/the-dev-tools/apirun/pkg/logconsole"
	"github.com/the-dev-tools/apirun/pkg/model/mrequest"
	"github.com/the-dev-tools/apirun/pkg/model/mresult"
	"github.com/the-dev-tools/apirun/pkg/model/mvar"
	"github.com/the-dev-tools/apirun/pkg/varstore"
	"github.com/the-dev-tools/apirun/pkg/varsystem"
)

type Executor struct {
	store  varstore.Store
	hooks  hook.Runner
	logger *slog.Logger

	// Client overrides per-definition client construction when set; tests
	// inject fakes through it.
	Client httpclient.HttpClient

	// Logs, when set, receives hook console output per execution.
	Logs *logconsole.LogChanMap
}

func New(store varstore.Store, hooks hook.Runner, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:  store,
		hooks:  hooks,
		logger: logger,
	}
}

// scopeState is the per-execution view of one variable scope: the fetched
// entries plus mutations awaiting persistence.
type scopeState struct {
	kind    varstore.ScopeKind
	id      *idwrap.IDWrap
	vars    []mvar.Var
	pending map[string]mvar.Update
}

func (s *scopeState) active() bool {
	return s.id != nil
}

func (s *scopeState) stringMap() map[string]string {
	return varsystem.NewVarMap(s.vars).ToStringMap()
}

// apply merges hook updates into the in-memory view immediately and schedules
// them for persistence. Mutations for an absent scope are dropped.
func (s *scopeState) apply(updates map[string]mvar.Update) bool {
	if !s.active() || len(updates) == 0 {
		return false
	}
	s.vars = varstore.ApplyUpdates(*s.id, s.vars, updates)
	for k, v := range updates {
		s.pending[k] = v
	}
	return true
}

// Execute runs one request definition against the optional environment and
// collection scopes. It always returns a result; every failure mode is folded
// into it.
func (e *Executor) Execute(ctx context.Context, def mrequest.RequestDefinition, envID, collID *idwrap.IDWrap) mresult.ExecutionResult {
	execID := idwrap.NewNow()

	env := e.fetchScope(ctx, varstore.ScopeKindEnvironment, envID)
	coll := e.fetchScope(ctx, varstore.ScopeKindCollection, collID)

	varMap := varsystem.NewMergedVarMap(coll.vars, env.vars)
	resolved := request.ResolveDefinition(def, varMap)

	var console []string

	// Pre-request hook: mutations take effect for this execution right away,
	// so the request is re-resolved from the original definition before send.
	if script := strings.TrimSpace(def.PreRequestScript); script != "" {
		outcome, err := e.hooks.RunPreRequest(ctx, script, snapshotDefinition(resolved), env.stringMap(), coll.stringMap())
		if err != nil {
			e.logger.WarnContext(ctx, "pre-request hook failed",
				"execution_id", execID.String(), "error", err)
		} else {
			console = e.emitConsole(ctx, execID, console, outcome.Console)
			envChanged := env.apply(outcome.EnvUpdates)
			collChanged := coll.apply(outcome.CollectionUpdates)
			if envChanged || collChanged {
				varMap = varsystem.NewMergedVarMap(coll.vars, env.vars)
				resolved = request.ResolveDefinition(def, varMap)
			}
		}
	}

	result := e.buildAndSend(ctx, execID, resolved)

	// Test hook runs on success and on failure alike.
	if script := strings.TrimSpace(def.TestScript); script != "" {
		outcome, err := e.hooks.RunTest(ctx, script, result, env.stringMap(), coll.stringMap())
		if err != nil {
			e.logger.WarnContext(ctx, "test hook failed",
				"execution_id", execID.String(), "error", err)
			result.TestResults = append(result.TestResults, mresult.TestResult{
				Name:   "test script",
				Passed: false,
				Error:  err.Error(),
			})
		} else {
			console = e.emitConsole(ctx, execID, console, outcome.Console)
			env.apply(outcome.EnvUpdates)
			coll.apply(outcome.CollectionUpdates)
			result.TestResults = append(result.TestResults, outcome.Tests...)
		}
	}

	e.persistScope(ctx, execID, env)
	e.persistScope(ctx, execID, coll)

	result.Console = console
	return result
}

func (e *Executor) buildAndSend(ctx context.Context, execID idwrap.IDWrap, resolved mrequest.RequestDefinition) mresult.ExecutionResult {
	built, err := request.Build(resolved)
	if err != nil {
		e.logger.WarnContext(ctx, "request build failed",
			"execution_id", execID.String(), "error", err)
		result := response.AssembleFailure(execID, echoDefinition(resolved), err, nil, 0)
		result.ErrorCode = mresult.ErrorCodeInvalidRequest
		return result
	}

	logRequestDispatch(ctx, e.logger, execID, resolved.Name, built)

	client := e.Client
	if client == nil {
		client = httpclient.NewWithOptions(httpclient.Options{
			Timeout:            resolved.Timeout,
			FollowRedirects:    resolved.ShouldFollowRedirects(),
			MaxRedirects:       resolved.MaxRedirects,
			InsecureSkipVerify: resolved.InsecureSkipVerify,
		})
	}

	echo := request.ConvertRequestToEcho(built)
	resp, err := request.SendRequestWithContext(ctx, built, client)
	if err != nil {
		if resp != nil {
			// The transport produced a status line before failing; carry it.
			return response.AssembleFailure(execID, echo, err, &resp.HttpResp, resp.LapTime)
		}
		return response.AssembleFailure(execID, echo, err, nil, 0)
	}

	return response.Assemble(execID, echo, resp.HttpResp, resp.LapTime)
}

// fetchScope loads a scope fresh for this execution. Fetch failures are
// logged and read as an empty scope; resolution stays best-effort.
func (e *Executor) fetchScope(ctx context.Context, kind varstore.ScopeKind, id *idwrap.IDWrap) *scopeState {
	state := &scopeState{
		kind:    kind,
		id:      id,
		pending: make(map[string]mvar.Update),
	}
	if id == nil || e.store == nil {
		state.id = nil
		return state
	}

	vars, err := e.store.Get(ctx, kind, *id)
	if err != nil && !errors.Is(err, varstore.ErrScopeNotFound) {
		e.logger.WarnContext(ctx, "variable scope fetch failed",
			"scope_kind", kind.String(), "scope_id", id.String(), "error", err)
	}
	state.vars = vars
	return state
}

// persistScope flushes accumulated mutations; failures are logged, never
// surfaced. The in-memory result already reflects the mutation.
func (e *Executor) persistScope(ctx context.Context, execID idwrap.IDWrap, s *scopeState) {
	if !s.active() || len(s.pending) == 0 || e.store == nil {
		return
	}
	if err := e.store.Patch(ctx, s.kind, *s.id, s.pending); err != nil {
		e.logger.ErrorContext(ctx, "variable scope patch failed",
			"execution_id", execID.String(),
			"scope_kind", s.kind.String(), "scope_id", s.id.String(), "error", err)
	}
}

func (e *Executor) emitConsole(ctx context.Context, execID idwrap.IDWrap, console, lines []string) []string {
	for _, line := range lines {
		e.logger.DebugContext(ctx, "hook console", "execution_id", execID.String(), "line", line)
		if e.Logs != nil {
			_ = e.Logs.SendMsgToExecution(execID, line, logconsole.LogLevelUnspecified)
		}
	}
	return append(console, lines...)
}

func snapshotDefinition(def mrequest.RequestDefinition) hook.RequestSnapshot {
	headers := make(map[string]string, len(def.Headers))
	for _, h := range def.Headers {
		if h.IsEnabled() {
			headers[h.Key] = h.Value
		}
	}
	queries := make(map[string]string, len(def.Queries))
	for _, q := range def.Queries {
		if q.IsEnabled() {
			queries[q.Key] = q.Value
		}
	}
	return hook.RequestSnapshot{
		Method:  def.Method,
		URL:     def.URL,
		Headers: headers,
		Queries: queries,
		Body:    bodyText(def.Body),
	}
}

func bodyText(body mrequest.Body) string {
	switch body.Kind {
	case mrequest.BodyKindGraphQL:
		if body.GraphQL != nil {
			return body.GraphQL.Query
		}
		return ""
	default:
		return body.Raw
	}
}

// echoDefinition approximates the request echo when building failed before a
// transport request existed.
func echoDefinition(def mrequest.RequestDefinition) mresult.RequestEcho {
	headers := make([]mresult.Header, 0, len(def.Headers))
	for _, h := range def.Headers {
		if h.IsEnabled() {
			headers = append(headers, mresult.Header{HeaderKey: h.Key, Value: h.Value})
		}
	}
	return mresult.RequestEcho{
		Method:  def.Method,
		URL:     def.URL,
		Headers: headers,
		Body:    bodyText(def.Body),
	}
}

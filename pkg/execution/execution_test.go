package execution_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/apirun/pkg/execution"
	"github.com/the-dev-tools/apirun/pkg/hook"
	"github.com/the-dev-tools/apirun/pkg/hook/exprhook"
	"github.com/the-dev-tools/apirun/pkg/idwrap"
	"github.com/the-dev-tools/apirun/pkg/logconsole"
	"github.com/the-dev-tools/apirun/pkg/model/mcollection"
	"github.com/the-dev-tools/apirun/pkg/model/menv"
	"github.com/the-dev-tools/apirun/pkg/model/mrequest"
	"github.com/the-dev-tools/apirun/pkg/model/mresult"
	"github.com/the-dev-tools/apirun/pkg/model/mvar"
	"github.com/the-dev-tools/apirun/pkg/varstore"
)

func seedStores(t *testing.T) (*varstore.MemStore, idwrap.IDWrap, idwrap.IDWrap) {
	t.Helper()
	store := varstore.NewMemStore(nil)

	envID := idwrap.NewNow()
	store.SetEnvironment(menv.Env{ID: envID, Name: "test"}, []mvar.Var{
		{ID: idwrap.NewNow(), ScopeID: envID, VarKey: "host", Value: "env-host", Enabled: true},
		{ID: idwrap.NewNow(), ScopeID: envID, VarKey: "token", Value: "env-token", Enabled: true},
	})

	collNode := mcollection.Node{ID: idwrap.NewNow(), Kind: mcollection.NodeKindRoot, Name: "api"}
	store.SetCollectionNode(collNode, []mvar.Var{
		{ID: idwrap.NewNow(), ScopeID: collNode.ID, VarKey: "host", Value: "coll-host", Enabled: true},
		{ID: idwrap.NewNow(), ScopeID: collNode.ID, VarKey: "path", Value: "/v1/users", Enabled: true},
	})

	return store, envID, collNode.ID
}

func TestExecuteResolvesWithScopePrecedence(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("X-Host-Used")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	store, envID, collID := seedStores(t)
	exec := execution.New(store, exprhook.New(), nil)

	def := mrequest.RequestDefinition{
		Name:    "precedence",
		Method:  "GET",
		URL:     srv.URL + "{{path}}",
		Headers: []mrequest.Header{{Key: "X-Host-Used", Value: "{{host}}"}},
	}

	result := exec.Execute(context.Background(), def, &envID, &collID)

	require.True(t, result.Success, "error: %s", result.ErrorMessage)
	assert.Equal(t, "/v1/users", gotPath)
	assert.Equal(t, "env-host", gotAuth, "environment shadows collection")
	require.NotNil(t, result.Response)
	assert.Equal(t, int32(200), result.Response.Status)
}

func TestExecuteHTTPErrorStatusIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := execution.New(nil, exprhook.New(), nil)
	result := exec.Execute(context.Background(), mrequest.RequestDefinition{Method: "GET", URL: srv.URL}, nil, nil)

	assert.True(t, result.Success)
	require.NotNil(t, result.Response)
	assert.Equal(t, int32(500), result.Response.Status)
	assert.Empty(t, result.ErrorCode)
}

func TestExecutePreRequestMutationAffectsSend(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, envID, collID := seedStores(t)
	exec := execution.New(store, exprhook.New(), nil)

	def := mrequest.RequestDefinition{
		Method:           "GET",
		URL:              srv.URL,
		Headers:          []mrequest.Header{{Key: "Authorization", Value: "Bearer {{token}}"}},
		PreRequestScript: `setEnv("token", "hook-token")`,
	}

	result := exec.Execute(context.Background(), def, &envID, &collID)

	require.True(t, result.Success, "error: %s", result.ErrorMessage)
	assert.Equal(t, "Bearer hook-token", gotAuth, "mutation takes effect in the same execution")

	// and it was persisted for the next execution
	vars, err := store.Get(context.Background(), varstore.ScopeKindEnvironment, envID)
	require.NoError(t, err)
	byKey := map[string]string{}
	for _, v := range vars {
		byKey[v.VarKey] = v.Value
	}
	assert.Equal(t, "hook-token", byKey["token"])
}

func TestExecuteTestHookRunsOnNetworkFailure(t *testing.T) {
	// closed port: connection refused
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	exec := execution.New(nil, exprhook.New(), nil)
	def := mrequest.RequestDefinition{
		Method:     "GET",
		URL:        url,
		TestScript: `test("failure observed", !result.success)`,
	}

	result := exec.Execute(context.Background(), def, nil, nil)

	assert.False(t, result.Success)
	assert.Equal(t, mresult.ErrorCodeConnection, result.ErrorCode)
	require.Len(t, result.TestResults, 1)
	assert.Equal(t, "failure observed", result.TestResults[0].Name)
	assert.True(t, result.TestResults[0].Passed)
}

func TestExecuteTestHookErrorYieldsSyntheticFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := execution.New(nil, exprhook.New(), nil)
	def := mrequest.RequestDefinition{
		Method:     "GET",
		URL:        srv.URL,
		TestScript: `noSuchBuiltin()`,
	}

	result := exec.Execute(context.Background(), def, nil, nil)

	assert.True(t, result.Success, "hook errors never fail the execution")
	require.Len(t, result.TestResults, 1)
	assert.False(t, result.TestResults[0].Passed)
	assert.NotEmpty(t, result.TestResults[0].Error)
}

func TestExecutePreRequestHookErrorIsIsolated(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, envID, collID := seedStores(t)
	exec := execution.New(store, exprhook.New(), nil)

	def := mrequest.RequestDefinition{
		Method:           "GET",
		URL:              srv.URL,
		Headers:          []mrequest.Header{{Key: "Authorization", Value: "Bearer {{token}}"}},
		PreRequestScript: `brokenCall(`,
	}

	result := exec.Execute(context.Background(), def, &envID, &collID)

	require.True(t, result.Success)
	assert.Equal(t, "Bearer env-token", gotAuth, "request proceeds with the pre-hook resolution")
}

func TestExecuteBuildFailureIsInvalidRequest(t *testing.T) {
	exec := execution.New(nil, exprhook.New(), nil)
	def := mrequest.RequestDefinition{
		Method:     "POST",
		URL:        "https://example.com",
		Body:       mrequest.Body{Kind: mrequest.BodyKindJSON, Raw: `{"broken":`},
		TestScript: `test("still runs", !result.success)`,
	}

	result := exec.Execute(context.Background(), def, nil, nil)

	assert.False(t, result.Success)
	assert.Equal(t, mresult.ErrorCodeInvalidRequest, result.ErrorCode)
	assert.Nil(t, result.Response)
	require.Len(t, result.TestResults, 1)
	assert.True(t, result.TestResults[0].Passed, "test hook runs even when nothing was sent")
}

func TestExecuteMutationsForAbsentScopeDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, envID, _ := seedStores(t)
	exec := execution.New(store, exprhook.New(), nil)

	def := mrequest.RequestDefinition{
		Method:           "GET",
		URL:              srv.URL,
		PreRequestScript: `setCollection("orphan", "x")`,
	}

	// no collection scope attached
	result := exec.Execute(context.Background(), def, &envID, nil)
	require.True(t, result.Success)
}

func TestExecuteConsoleAccumulates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := execution.New(nil, exprhook.New(), nil)
	def := mrequest.RequestDefinition{
		Method:           "GET",
		URL:              srv.URL,
		PreRequestScript: `log("before")`,
		TestScript:       `log("after")`,
	}

	result := exec.Execute(context.Background(), def, nil, nil)

	require.True(t, result.Success)
	assert.Equal(t, []string{"before", "after"}, result.Console)
}

func TestExecuteStreamsConsoleToLogChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	logs := logconsole.NewLogChanMap()
	exec := execution.New(nil, exprhook.New(), nil)
	exec.Logs = &logs

	// no channel registered for this execution; sends must not block
	def := mrequest.RequestDefinition{
		Method:           "GET",
		URL:              srv.URL,
		PreRequestScript: `log("line one")`,
	}
	result := exec.Execute(context.Background(), def, nil, nil)

	require.True(t, result.Success)
	assert.Equal(t, []string{"line one"}, result.Console)
}

// failingStore trips the persistence path without affecting reads.
type failingStore struct {
	*varstore.MemStore
	patchErr error
	patched  bool
}

func (s *failingStore) Patch(ctx context.Context, kind varstore.ScopeKind, id idwrap.IDWrap, updates map[string]mvar.Update) error {
	s.patched = true
	return s.patchErr
}

func TestExecutePersistFailureNotSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mem, envID, _ := seedStores(t)
	store := &failingStore{MemStore: mem, patchErr: errors.New("disk full")}
	exec := execution.New(store, exprhook.New(), nil)

	def := mrequest.RequestDefinition{
		Method:           "GET",
		URL:              srv.URL,
		PreRequestScript: `setEnv("k", "v")`,
	}

	result := exec.Execute(context.Background(), def, &envID, nil)

	assert.True(t, result.Success, "persistence failures are logged, never surfaced")
	assert.True(t, store.patched)
}

// recordingRunner asserts the hook sees post-mutation scope values.
type recordingRunner struct {
	preOutcome  hook.Outcome
	testEnvSeen map[string]string
}

func (r *recordingRunner) RunPreRequest(ctx context.Context, script string, req hook.RequestSnapshot, envVars, collVars map[string]string) (hook.Outcome, error) {
	return r.preOutcome, nil
}

func (r *recordingRunner) RunTest(ctx context.Context, script string, result mresult.ExecutionResult, envVars, collVars map[string]string) (hook.Outcome, error) {
	r.testEnvSeen = envVars
	return hook.Outcome{}, nil
}

func TestExecuteTestHookSeesPreHookMutations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, envID, _ := seedStores(t)
	runner := &recordingRunner{
		preOutcome: hook.Outcome{EnvUpdates: map[string]mvar.Update{"token": mvar.Set("mutated")}},
	}
	exec := execution.New(store, runner, nil)

	def := mrequest.RequestDefinition{
		Method:           "GET",
		URL:              srv.URL,
		PreRequestScript: "x",
		TestScript:       "x",
	}

	result := exec.Execute(context.Background(), def, &envID, nil)

	require.True(t, result.Success)
	assert.Equal(t, "mutated", runner.testEnvSeen["token"])
}

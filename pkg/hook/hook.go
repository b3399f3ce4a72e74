// Package hook defines the contract between the execution pipeline and the
// user-script runtime. The engine treats implementations as opaque; the
// default runner lives in hook/exprhook.
package hook

import (
	"context"

	"github.com/the-dev-tools/apirun/pkg/model/mresult"
	"github.com/the-dev-tools/apirun/pkg/model/mvar"
)

// RequestSnapshot is the resolved request-so-far handed to the pre-request
// hook.
type RequestSnapshot struct {
	Method  string
	URL     string
	Headers map[string]string
	Queries map[string]string
	Body    string
}

// Outcome is everything a hook invocation produced. Update maps distinguish
// explicit unsets from sets; a nil map means no mutations for that scope.
type Outcome struct {
	EnvUpdates        map[string]mvar.Update
	CollectionUpdates map[string]mvar.Update
	Console           []string
	Tests             []mresult.TestResult
}

func (o Outcome) HasMutations() bool {
	return len(o.EnvUpdates) > 0 || len(o.CollectionUpdates) > 0
}

// Runner executes user scripts at the two pipeline hook points. Script
// failures are reported through the error return; the pipeline isolates
// them and never aborts on a hook error.
type Runner interface {
	RunPreRequest(ctx context.Context, script string, req RequestSnapshot, envVars, collVars map[string]string) (Outcome, error)
	RunTest(ctx context.Context, script string, result mresult.ExecutionResult, envVars, collVars map[string]string) (Outcome, error)
}

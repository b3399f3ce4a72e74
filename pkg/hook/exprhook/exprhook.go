// Package exprhook is the default hook.Runner. Scripts are evaluated one
// statement per line with expr-lang; each line may call the mutation,
// console, and assertion builtins or any plain expression. {{ }} markers are
// interpolated against the merged variable maps before evaluation.
package exprhook

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/the-dev-tools/apirun/pkg/hook"
	"github.com/the-dev-tools/apirun/pkg/model/mresult"
	"github.com/the-dev-tools/apirun/pkg/model/mvar"
	"github.com/the-dev-tools/apirun/pkg/varsystem"
)

type Runner struct{}

func New() *Runner {
	return &Runner{}
}

var _ hook.Runner = (*Runner)(nil)

func (r *Runner) RunPreRequest(ctx context.Context, script string, req hook.RequestSnapshot, envVars, collVars map[string]string) (hook.Outcome, error) {
	data := map[string]any{
		"request": map[string]any{
			"method":  req.Method,
			"url":     req.URL,
			"headers": toAnyMap(req.Headers),
			"queries": toAnyMap(req.Queries),
			"body":    req.Body,
		},
	}
	return runScript(ctx, script, data, envVars, collVars)
}

func (r *Runner) RunTest(ctx context.Context, script string, result mresult.ExecutionResult, envVars, collVars map[string]string) (hook.Outcome, error) {
	resultBinding := map[string]any{
		"success": result.Success,
		"error":   result.ErrorMessage,
	}
	data := map[string]any{
		"result":   resultBinding,
		"response": responseBinding(result.Response),
	}
	return runScript(ctx, script, data, envVars, collVars)
}

// responseBinding mirrors the shape scripts see for assertions: status,
// decoded body, flat headers, duration.
func responseBinding(resp *mresult.ResponseInfo) map[string]any {
	if resp == nil {
		return map[string]any{}
	}
	headers := make(map[string]any, len(resp.Headers))
	for _, h := range resp.Headers {
		headers[h.HeaderKey] = h.Value
	}

	var body any = string(resp.Body)
	if json.Valid(resp.Body) {
		var decoded any
		dec := json.NewDecoder(bytes.NewReader(resp.Body))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err == nil {
			body = decoded
		}
	}

	return map[string]any{
		"status":   int(resp.Status),
		"body":     body,
		"headers":  headers,
		"duration": int(resp.Duration),
	}
}

func runScript(ctx context.Context, script string, data map[string]any, envVars, collVars map[string]string) (hook.Outcome, error) {
	outcome := hook.Outcome{
		EnvUpdates:        map[string]mvar.Update{},
		CollectionUpdates: map[string]mvar.Update{},
	}

	varMap := mergedVarMap(envVars, collVars)

	env := map[string]any{
		"env":        toAnyMap(envVars),
		"collection": toAnyMap(collVars),
		"setEnv": func(key string, value any) bool {
			outcome.EnvUpdates[key] = mvar.Set(stringify(value))
			return true
		},
		"unsetEnv": func(key string) bool {
			outcome.EnvUpdates[key] = mvar.Unset()
			return true
		},
		"setCollection": func(key string, value any) bool {
			outcome.CollectionUpdates[key] = mvar.Set(stringify(value))
			return true
		},
		"unsetCollection": func(key string) bool {
			outcome.CollectionUpdates[key] = mvar.Unset()
			return true
		},
		"log": func(args ...any) bool {
			parts := make([]string, 0, len(args))
			for _, a := range args {
				parts = append(parts, stringify(a))
			}
			outcome.Console = append(outcome.Console, strings.Join(parts, " "))
			return true
		},
		"test": func(name string, passed bool) bool {
			outcome.Tests = append(outcome.Tests, mresult.TestResult{Name: name, Passed: passed})
			return passed
		},
		"uuid": helperUUID,
		"ulid": helperULID,
	}
	for k, v := range data {
		env[k] = v
	}

	for i, line := range strings.Split(script, "\n") {
		if err := ctx.Err(); err != nil {
			return hook.Outcome{}, err
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}

		line = varMap.ReplaceVars(line)

		program, err := expr.Compile(line, expr.Env(env))
		if err != nil {
			return hook.Outcome{}, fmt.Errorf("script line %d: %w", i+1, err)
		}
		if _, err := expr.Run(program, env); err != nil {
			return hook.Outcome{}, fmt.Errorf("script line %d: %w", i+1, err)
		}
	}

	return outcome, nil
}

func mergedVarMap(envVars, collVars map[string]string) varsystem.VarMap {
	varMap := make(varsystem.VarMap, len(envVars)+len(collVars))
	for k, v := range collVars {
		varMap[k] = mvar.Var{VarKey: k, Value: v, Enabled: true}
	}
	for k, v := range envVars {
		varMap[k] = mvar.Var{VarKey: k, Value: v, Enabled: true}
	}
	return varMap
}

func toAnyMap(src map[string]string) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// helperUUID generates a new UUID string. Defaults to v4.
// Usage in scripts: uuid() or uuid("v4") or uuid("v7")
func helperUUID(args ...string) (string, error) {
	version := "v4"
	if len(args) > 0 {
		version = args[0]
	}

	switch version {
	case "v4":
		return uuid.New().String(), nil
	case "v7":
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("uuid: failed to generate v7: %w", err)
		}
		return id.String(), nil
	default:
		return "", fmt.Errorf("uuid: unsupported version %q, use \"v4\" or \"v7\"", version)
	}
}

func helperULID() string {
	return ulid.Make().String()
}

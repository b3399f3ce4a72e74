//nolint:revive // exported
package varsystem

import (
	"strings"

	"github.com/the-dev-tools/apirun/pkg/model/mvar"
)

// VarMap is a flattened key -> variable lookup built once per resolution
// pass. Disabled and empty-keyed entries never make it into the map.
type VarMap map[string]mvar.Var

func NewVarMap(vars []mvar.Var) VarMap {
	varMap := make(VarMap, len(vars))
	for _, v := range vars {
		if !v.Enabled || v.VarKey == "" {
			continue
		}
		varMap[v.VarKey] = v
	}
	return varMap
}

// NewMergedVarMap builds the lookup for one execution. Environment entries
// shadow collection entries with the same key.
func NewMergedVarMap(collectionVars, envVars []mvar.Var) VarMap {
	varMap := NewVarMap(collectionVars)
	for k, v := range NewVarMap(envVars) {
		varMap[k] = v
	}
	return varMap
}

func (vm VarMap) Get(varKey string) (mvar.Var, bool) {
	val, ok := vm[strings.TrimSpace(varKey)]
	return val, ok
}

func (vm VarMap) ToStringMap() map[string]string {
	result := make(map[string]string, len(vm))
	for k, v := range vm {
		result[k] = v.Value
	}
	return result
}

// MergeVars overlays current onto base, keyed by VarKey. Order of the result
// is unspecified.
func MergeVars(base, current []mvar.Var) []mvar.Var {
	merged := make(map[string]mvar.Var, len(base)+len(current))
	for _, v := range base {
		merged[v.VarKey] = v
	}
	for _, v := range current {
		merged[v.VarKey] = v
	}
	result := make([]mvar.Var, 0, len(merged))
	for _, v := range merged {
		result = append(result, v)
	}
	return result
}

// {{varKey}}
func GetVarKeyFromRaw(raw string) string {
	return raw[mvar.PrefixSize : len(raw)-mvar.SuffixSize]
}

func CheckIsVar(raw string) bool {
	return len(raw) >= mvar.PrefixSize+mvar.SuffixSize &&
		strings.HasPrefix(raw, mvar.Prefix) && strings.HasSuffix(raw, mvar.Suffix)
}

func CheckStringHasAnyVarKey(raw string) bool {
	return strings.Contains(raw, mvar.Prefix) && strings.Contains(raw, mvar.Suffix)
}

// ReplaceVars substitutes every {{ key }} occurrence found in the map.
// Substitution is best-effort: unknown keys and unterminated markers are
// left verbatim, never an error.
func (vm VarMap) ReplaceVars(raw string) string {
	if len(vm) == 0 || !CheckStringHasAnyVarKey(raw) {
		return raw
	}

	var b strings.Builder
	for {
		startIndex := strings.Index(raw, mvar.Prefix)
		if startIndex == -1 {
			b.WriteString(raw)
			break
		}

		endIndex := strings.Index(raw[startIndex:], mvar.Suffix)
		if endIndex == -1 {
			b.WriteString(raw)
			break
		}

		rawVar := raw[startIndex : startIndex+endIndex+mvar.SuffixSize]
		val, ok := vm.Get(GetVarKeyFromRaw(rawVar))
		if ok {
			b.WriteString(raw[:startIndex])
			b.WriteString(val.Value)
		} else {
			b.WriteString(raw[:startIndex+len(rawVar)])
		}
		raw = raw[startIndex+len(rawVar):]
	}

	return b.String()
}

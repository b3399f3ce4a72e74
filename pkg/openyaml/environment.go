package openyaml

import (
	"gopkg.in/yaml.v3"

	"github.com/the-dev-tools/apirun/pkg/idwrap"
	"github.com/the-dev-tools/apirun/pkg/model/mvar"
)

type YamlVariable struct {
	Key     string `yaml:"key"`
	Value   string `yaml:"value"`
	Enabled *bool  `yaml:"enabled,omitempty"`
	Secret  bool   `yaml:"secret,omitempty"`
}

type YamlEnvironment struct {
	Name      string         `yaml:"name,omitempty"`
	Variables []YamlVariable `yaml:"variables"`
}

// ReadSingleEnvironment parses an environment .yaml file. Collection variable
// files share the same format.
func ReadSingleEnvironment(data []byte) (*YamlEnvironment, error) {
	var env YamlEnvironment
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// ToVars materializes the file entries as scope variables owned by scopeID.
func (e YamlEnvironment) ToVars(scopeID idwrap.IDWrap) []mvar.Var {
	vars := make([]mvar.Var, 0, len(e.Variables))
	for _, v := range e.Variables {
		enabled := true
		if v.Enabled != nil {
			enabled = *v.Enabled
		}
		vars = append(vars, mvar.Var{
			ID:      idwrap.NewNow(),
			ScopeID: scopeID,
			VarKey:  v.Key,
			Value:   v.Value,
			Enabled: enabled,
			Secret:  v.Secret,
		})
	}
	return vars
}

// WriteEnvironment serializes an environment back to YAML, used after a run
// persists script mutations to file-backed scopes.
func WriteEnvironment(env YamlEnvironment) ([]byte, error) {
	return yaml.Marshal(env)
}

// FromVars converts scope variables back to the file representation.
func FromVars(name string, vars []mvar.Var) YamlEnvironment {
	env := YamlEnvironment{Name: name}
	for _, v := range vars {
		entry := YamlVariable{Key: v.VarKey, Value: v.Value, Secret: v.Secret}
		if !v.Enabled {
			disabled := false
			entry.Enabled = &disabled
		}
		env.Variables = append(env.Variables, entry)
	}
	return env
}

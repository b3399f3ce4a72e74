package request_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/apirun/pkg/http/request"
	"github.com/the-dev-tools/apirun/pkg/model/mrequest"
	"github.com/the-dev-tools/apirun/pkg/model/mvar"
	"github.com/the-dev-tools/apirun/pkg/varsystem"
)

func testVarMap() varsystem.VarMap {
	return varsystem.NewVarMap([]mvar.Var{
		{VarKey: "host", Value: "api.example.com", Enabled: true},
		{VarKey: "token", Value: "t-123", Enabled: true},
		{VarKey: "user", Value: "alice", Enabled: true},
	})
}

func TestResolveDefinitionSubstitutesEverywhere(t *testing.T) {
	def := mrequest.RequestDefinition{
		Method: "POST",
		URL:    "https://{{host}}/users",
		Headers: []mrequest.Header{
			{Key: "X-{{user}}", Value: "Bearer {{token}}"},
		},
		Queries: []mrequest.Query{
			{Key: "who", Value: "{{user}}"},
		},
		Body: mrequest.Body{Kind: mrequest.BodyKindJSON, Raw: `{"name":"{{user}}"}`},
		Auth: mrequest.Auth{
			Kind:   mrequest.AuthKindBearer,
			Bearer: &mrequest.AuthBearer{Token: "{{token}}"},
		},
	}

	resolved := request.ResolveDefinition(def, testVarMap())

	assert.Equal(t, "https://api.example.com/users", resolved.URL)
	assert.Equal(t, "X-alice", resolved.Headers[0].Key)
	assert.Equal(t, "Bearer t-123", resolved.Headers[0].Value)
	assert.Equal(t, "alice", resolved.Queries[0].Value)
	assert.Equal(t, `{"name":"alice"}`, resolved.Body.Raw)
	require.NotNil(t, resolved.Auth.Bearer)
	assert.Equal(t, "t-123", resolved.Auth.Bearer.Token)
}

func TestResolveDefinitionDoesNotMutateInput(t *testing.T) {
	def := mrequest.RequestDefinition{
		URL:     "https://{{host}}",
		Headers: []mrequest.Header{{Key: "Auth", Value: "{{token}}"}},
		Auth: mrequest.Auth{
			Kind:   mrequest.AuthKindBearer,
			Bearer: &mrequest.AuthBearer{Token: "{{token}}"},
		},
	}

	_ = request.ResolveDefinition(def, testVarMap())

	assert.Equal(t, "https://{{host}}", def.URL)
	assert.Equal(t, "{{token}}", def.Headers[0].Value)
	assert.Equal(t, "{{token}}", def.Auth.Bearer.Token)
}

func TestResolveDefinitionEmptyMapReturnsInput(t *testing.T) {
	def := mrequest.RequestDefinition{URL: "https://{{host}}"}
	resolved := request.ResolveDefinition(def, varsystem.NewVarMap(nil))
	assert.Equal(t, def, resolved)
}

func TestResolveDefinitionUnknownKeysStayVerbatim(t *testing.T) {
	def := mrequest.RequestDefinition{URL: "https://{{host}}/{{missing}}"}
	resolved := request.ResolveDefinition(def, testVarMap())
	assert.Equal(t, "https://api.example.com/{{missing}}", resolved.URL)
}

func TestResolveDefinitionFileFieldsStayVerbatim(t *testing.T) {
	def := mrequest.RequestDefinition{
		URL: "https://{{host}}",
		Body: mrequest.Body{
			Kind: mrequest.BodyKindFormData,
			Form: []mrequest.FormField{
				{Key: "{{user}}", Value: "/tmp/{{user}}.txt", IsFile: true},
				{Key: "note", Value: "from {{user}}"},
			},
		},
	}

	resolved := request.ResolveDefinition(def, testVarMap())

	assert.Equal(t, "alice", resolved.Body.Form[0].Key)
	assert.Equal(t, "/tmp/{{user}}.txt", resolved.Body.Form[0].Value)
	assert.Equal(t, "from alice", resolved.Body.Form[1].Value)
}

func TestResolveDefinitionGraphQL(t *testing.T) {
	def := mrequest.RequestDefinition{
		URL: "https://{{host}}/graphql",
		Body: mrequest.Body{
			Kind: mrequest.BodyKindGraphQL,
			GraphQL: &mrequest.GraphQLBody{
				Query:     "query { user(name: \"{{user}}\") { id } }",
				Variables: `{"who":"{{user}}"}`,
			},
		},
	}

	resolved := request.ResolveDefinition(def, testVarMap())

	assert.Contains(t, resolved.Body.GraphQL.Query, `"alice"`)
	assert.Equal(t, `{"who":"alice"}`, resolved.Body.GraphQL.Variables)
	// the original pointer target is untouched
	assert.Contains(t, def.Body.GraphQL.Query, "{{user}}")
}

//nolint:revive // exported
package mrequest

import (
	"time"
)

type BodyKind int8

const (
	BodyKindNone       BodyKind = 0
	BodyKindJSON       BodyKind = 1
	BodyKindRaw        BodyKind = 2
	BodyKindXML        BodyKind = 3
	BodyKindUrlEncoded BodyKind = 4
	BodyKindFormData   BodyKind = 5
	BodyKindBinary     BodyKind = 6
	BodyKindGraphQL    BodyKind = 7
)

type AuthKind int8

const (
	AuthKindNone   AuthKind = 0
	AuthKindBasic  AuthKind = 1
	AuthKindBearer AuthKind = 2
	AuthKindAPIKey AuthKind = 3
	AuthKindJWT    AuthKind = 4
	AuthKindOAuth2 AuthKind = 5
)

type APIKeyPlacement int8

const (
	APIKeyPlacementHeader APIKeyPlacement = 0
	APIKeyPlacementQuery  APIKeyPlacement = 1
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRedirects = 5
)

type Header struct {
	Key         string `json:"key" yaml:"key"`
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Enabled is tri-state on the wire; nil means enabled.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

func (h Header) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

type Query struct {
	Key         string `json:"key" yaml:"key"`
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

func (q Query) IsEnabled() bool {
	return q.Enabled == nil || *q.Enabled
}

// FormField is one entry of a url-encoded or multipart body. IsFile marks a
// multipart field whose Value is a filesystem path instead of literal text.
type FormField struct {
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value" yaml:"value"`
	IsFile  bool   `json:"is_file,omitempty" yaml:"is_file,omitempty"`
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

func (f FormField) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

type GraphQLBody struct {
	Query         string `json:"query" yaml:"query"`
	OperationName string `json:"operation_name,omitempty" yaml:"operation_name,omitempty"`
	// Variables holds the JSON-encoded variables object, may be empty.
	Variables string `json:"variables,omitempty" yaml:"variables,omitempty"`
}

type Body struct {
	Kind       BodyKind     `json:"kind" yaml:"kind"`
	Raw        string       `json:"raw,omitempty" yaml:"raw,omitempty"`
	Form       []FormField  `json:"form,omitempty" yaml:"form,omitempty"`
	UrlEncoded []FormField  `json:"url_encoded,omitempty" yaml:"url_encoded,omitempty"`
	GraphQL    *GraphQLBody `json:"graphql,omitempty" yaml:"graphql,omitempty"`
	FilePath   string       `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

type AuthBasic struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type AuthBearer struct {
	Token string `json:"token" yaml:"token"`
}

type AuthAPIKey struct {
	Key       string          `json:"key" yaml:"key"`
	Value     string          `json:"value" yaml:"value"`
	Placement APIKeyPlacement `json:"placement" yaml:"placement"`
}

// AuthJWT signs a token from Secret and the JSON claims in Payload and sends
// it as a bearer token. Algorithm is one of HS256, HS384, HS512.
type AuthJWT struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Secret    string `json:"secret" yaml:"secret"`
	Payload   string `json:"payload" yaml:"payload"`
}

// AuthOAuth2 carries an already-obtained access token; the token flow itself
// lives outside the engine.
type AuthOAuth2 struct {
	AccessToken string `json:"access_token" yaml:"access_token"`
	TokenType   string `json:"token_type,omitempty" yaml:"token_type,omitempty"`
}

type Auth struct {
	Kind   AuthKind    `json:"kind" yaml:"kind"`
	Basic  *AuthBasic  `json:"basic,omitempty" yaml:"basic,omitempty"`
	Bearer *AuthBearer `json:"bearer,omitempty" yaml:"bearer,omitempty"`
	APIKey *AuthAPIKey `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	JWT    *AuthJWT    `json:"jwt,omitempty" yaml:"jwt,omitempty"`
	OAuth2 *AuthOAuth2 `json:"oauth2,omitempty" yaml:"oauth2,omitempty"`
}

// RequestDefinition is the caller-owned description of a single request.
// The engine never mutates it; resolution produces a copy.
type RequestDefinition struct {
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Method  string   `json:"method" yaml:"method"`
	URL     string   `json:"url" yaml:"url"`
	Headers []Header `json:"headers,omitempty" yaml:"headers,omitempty"`
	Queries []Query  `json:"queries,omitempty" yaml:"queries,omitempty"`
	Auth    Auth     `json:"auth,omitempty" yaml:"auth,omitempty"`
	Body    Body     `json:"body,omitempty" yaml:"body,omitempty"`

	PreRequestScript string `json:"pre_request_script,omitempty" yaml:"pre_request_script,omitempty"`
	TestScript       string `json:"test_script,omitempty" yaml:"test_script,omitempty"`

	Timeout            time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	FollowRedirects    *bool         `json:"follow_redirects,omitempty" yaml:"follow_redirects,omitempty"`
	MaxRedirects       int           `json:"max_redirects,omitempty" yaml:"max_redirects,omitempty"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

func (d RequestDefinition) ShouldFollowRedirects() bool {
	return d.FollowRedirects == nil || *d.FollowRedirects
}

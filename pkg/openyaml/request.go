// Package openyaml reads request and environment definition files. The YAML
// shapes are decoupled from the engine models so file format changes never
// leak into the pipeline.
package openyaml

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/the-dev-tools/apirun/pkg/model/mrequest"
)

// Duration accepts Go duration strings ("10s", "1m30s") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Value == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type YamlKeyValue struct {
	Key         string `yaml:"key"`
	Value       string `yaml:"value"`
	Description string `yaml:"description,omitempty"`
	Enabled     *bool  `yaml:"enabled,omitempty"`
}

type YamlFormField struct {
	Key     string `yaml:"key"`
	Value   string `yaml:"value"`
	IsFile  bool   `yaml:"is_file,omitempty"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

type YamlGraphQL struct {
	Query         string `yaml:"query"`
	OperationName string `yaml:"operation_name,omitempty"`
	Variables     string `yaml:"variables,omitempty"`
}

type YamlBody struct {
	Kind       string          `yaml:"kind,omitempty"`
	Raw        string          `yaml:"raw,omitempty"`
	Form       []YamlFormField `yaml:"form,omitempty"`
	UrlEncoded []YamlFormField `yaml:"url_encoded,omitempty"`
	GraphQL    *YamlGraphQL    `yaml:"graphql,omitempty"`
	FilePath   string          `yaml:"file_path,omitempty"`
}

type YamlAuth struct {
	Kind   string               `yaml:"kind,omitempty"`
	Basic  *mrequest.AuthBasic  `yaml:"basic,omitempty"`
	Bearer *mrequest.AuthBearer `yaml:"bearer,omitempty"`
	APIKey *YamlAPIKey          `yaml:"api_key,omitempty"`
	JWT    *mrequest.AuthJWT    `yaml:"jwt,omitempty"`
	OAuth2 *mrequest.AuthOAuth2 `yaml:"oauth2,omitempty"`
}

type YamlAPIKey struct {
	Key       string `yaml:"key"`
	Value     string `yaml:"value"`
	Placement string `yaml:"placement,omitempty"`
}

type YamlRequest struct {
	Name    string         `yaml:"name,omitempty"`
	Method  string         `yaml:"method"`
	URL     string         `yaml:"url"`
	Headers []YamlKeyValue `yaml:"headers,omitempty"`
	Queries []YamlKeyValue `yaml:"queries,omitempty"`
	Auth    *YamlAuth      `yaml:"auth,omitempty"`
	Body    *YamlBody      `yaml:"body,omitempty"`

	PreRequestScript string `yaml:"pre_request_script,omitempty"`
	TestScript       string `yaml:"test_script,omitempty"`

	Timeout            Duration `yaml:"timeout,omitempty"`
	FollowRedirects    *bool    `yaml:"follow_redirects,omitempty"`
	MaxRedirects       int      `yaml:"max_redirects,omitempty"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify,omitempty"`
}

// ReadSingleRequest parses one request .yaml file into the engine model.
func ReadSingleRequest(data []byte) (*mrequest.RequestDefinition, error) {
	var req YamlRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return req.ToModel()
}

func (r YamlRequest) ToModel() (*mrequest.RequestDefinition, error) {
	def := mrequest.RequestDefinition{
		Name:               r.Name,
		Method:             r.Method,
		URL:                r.URL,
		PreRequestScript:   r.PreRequestScript,
		TestScript:         r.TestScript,
		Timeout:            time.Duration(r.Timeout),
		FollowRedirects:    r.FollowRedirects,
		MaxRedirects:       r.MaxRedirects,
		InsecureSkipVerify: r.InsecureSkipVerify,
	}

	for _, h := range r.Headers {
		def.Headers = append(def.Headers, mrequest.Header{
			Key: h.Key, Value: h.Value, Description: h.Description, Enabled: h.Enabled,
		})
	}
	for _, q := range r.Queries {
		def.Queries = append(def.Queries, mrequest.Query{
			Key: q.Key, Value: q.Value, Description: q.Description, Enabled: q.Enabled,
		})
	}

	if r.Body != nil {
		kind, err := parseBodyKind(r.Body.Kind)
		if err != nil {
			return nil, err
		}
		def.Body = mrequest.Body{
			Kind:       kind,
			Raw:        r.Body.Raw,
			Form:       convertFormFields(r.Body.Form),
			UrlEncoded: convertFormFields(r.Body.UrlEncoded),
			FilePath:   r.Body.FilePath,
		}
		if r.Body.GraphQL != nil {
			def.Body.GraphQL = &mrequest.GraphQLBody{
				Query:         r.Body.GraphQL.Query,
				OperationName: r.Body.GraphQL.OperationName,
				Variables:     r.Body.GraphQL.Variables,
			}
		}
	}

	if r.Auth != nil {
		auth, err := r.Auth.toModel()
		if err != nil {
			return nil, err
		}
		def.Auth = auth
	}

	return &def, nil
}

func convertFormFields(fields []YamlFormField) []mrequest.FormField {
	if len(fields) == 0 {
		return nil
	}
	result := make([]mrequest.FormField, len(fields))
	for i, f := range fields {
		result[i] = mrequest.FormField{Key: f.Key, Value: f.Value, IsFile: f.IsFile, Enabled: f.Enabled}
	}
	return result
}

func (a YamlAuth) toModel() (mrequest.Auth, error) {
	auth := mrequest.Auth{
		Basic:  a.Basic,
		Bearer: a.Bearer,
		JWT:    a.JWT,
		OAuth2: a.OAuth2,
	}

	switch strings.ToLower(a.Kind) {
	case "", "none":
		auth.Kind = mrequest.AuthKindNone
	case "basic":
		auth.Kind = mrequest.AuthKindBasic
	case "bearer":
		auth.Kind = mrequest.AuthKindBearer
	case "api_key", "apikey":
		auth.Kind = mrequest.AuthKindAPIKey
	case "jwt":
		auth.Kind = mrequest.AuthKindJWT
	case "oauth2":
		auth.Kind = mrequest.AuthKindOAuth2
	default:
		return auth, fmt.Errorf("unknown auth kind %q", a.Kind)
	}

	if a.APIKey != nil {
		placement := mrequest.APIKeyPlacementHeader
		switch strings.ToLower(a.APIKey.Placement) {
		case "", "header":
		case "query":
			placement = mrequest.APIKeyPlacementQuery
		default:
			return auth, fmt.Errorf("unknown api key placement %q", a.APIKey.Placement)
		}
		auth.APIKey = &mrequest.AuthAPIKey{Key: a.APIKey.Key, Value: a.APIKey.Value, Placement: placement}
	}

	return auth, nil
}

func parseBodyKind(kind string) (mrequest.BodyKind, error) {
	switch strings.ToLower(kind) {
	case "", "none":
		return mrequest.BodyKindNone, nil
	case "json":
		return mrequest.BodyKindJSON, nil
	case "raw", "text":
		return mrequest.BodyKindRaw, nil
	case "xml":
		return mrequest.BodyKindXML, nil
	case "url_encoded", "urlencoded", "x-www-form-urlencoded":
		return mrequest.BodyKindUrlEncoded, nil
	case "form_data", "formdata", "multipart":
		return mrequest.BodyKindFormData, nil
	case "binary":
		return mrequest.BodyKindBinary, nil
	case "graphql":
		return mrequest.BodyKindGraphQL, nil
	default:
		return mrequest.BodyKindNone, fmt.Errorf("unknown body kind %q", kind)
	}
}

package request

import (
	"github.com/the-dev-tools/apirun/pkg/model/mrequest"
	"github.com/the-dev-tools/apirun/pkg/varsystem"
)

// ResolveDefinition substitutes {{ }} placeholders across a definition and
// returns the resolved copy. With an empty map the input is returned
// unchanged. The input definition is never mutated.
func ResolveDefinition(def mrequest.RequestDefinition, varMap varsystem.VarMap) mrequest.RequestDefinition {
	if len(varMap) == 0 {
		return def
	}

	resolved := def
	resolved.URL = varMap.ReplaceVars(def.URL)

	if len(def.Headers) > 0 {
		resolved.Headers = make([]mrequest.Header, len(def.Headers))
		for i, h := range def.Headers {
			h.Key = varMap.ReplaceVars(h.Key)
			h.Value = varMap.ReplaceVars(h.Value)
			resolved.Headers[i] = h
		}
	}

	if len(def.Queries) > 0 {
		resolved.Queries = make([]mrequest.Query, len(def.Queries))
		for i, q := range def.Queries {
			q.Key = varMap.ReplaceVars(q.Key)
			q.Value = varMap.ReplaceVars(q.Value)
			resolved.Queries[i] = q
		}
	}

	resolved.Body = resolveBody(def.Body, varMap)
	resolved.Auth = resolveAuth(def.Auth, varMap)
	return resolved
}

func resolveBody(body mrequest.Body, varMap varsystem.VarMap) mrequest.Body {
	resolved := body
	switch body.Kind {
	case mrequest.BodyKindJSON, mrequest.BodyKindRaw, mrequest.BodyKindXML:
		resolved.Raw = varMap.ReplaceVars(body.Raw)
	case mrequest.BodyKindUrlEncoded:
		resolved.UrlEncoded = resolveFormFields(body.UrlEncoded, varMap)
		resolved.Raw = varMap.ReplaceVars(body.Raw)
	case mrequest.BodyKindFormData:
		resolved.Form = resolveFormFields(body.Form, varMap)
	case mrequest.BodyKindGraphQL:
		if body.GraphQL != nil {
			gql := *body.GraphQL
			gql.Query = varMap.ReplaceVars(gql.Query)
			gql.Variables = varMap.ReplaceVars(gql.Variables)
			resolved.GraphQL = &gql
		}
	}
	return resolved
}

func resolveFormFields(fields []mrequest.FormField, varMap varsystem.VarMap) []mrequest.FormField {
	if len(fields) == 0 {
		return fields
	}
	resolved := make([]mrequest.FormField, len(fields))
	for i, f := range fields {
		f.Key = varMap.ReplaceVars(f.Key)
		// File paths stay verbatim; only text values are templated.
		if !f.IsFile {
			f.Value = varMap.ReplaceVars(f.Value)
		}
		resolved[i] = f
	}
	return resolved
}

func resolveAuth(auth mrequest.Auth, varMap varsystem.VarMap) mrequest.Auth {
	resolved := auth
	switch auth.Kind {
	case mrequest.AuthKindBasic:
		if auth.Basic != nil {
			basic := *auth.Basic
			basic.Username = varMap.ReplaceVars(basic.Username)
			basic.Password = varMap.ReplaceVars(basic.Password)
			resolved.Basic = &basic
		}
	case mrequest.AuthKindBearer:
		if auth.Bearer != nil {
			bearer := *auth.Bearer
			bearer.Token = varMap.ReplaceVars(bearer.Token)
			resolved.Bearer = &bearer
		}
	case mrequest.AuthKindAPIKey:
		if auth.APIKey != nil {
			apiKey := *auth.APIKey
			apiKey.Key = varMap.ReplaceVars(apiKey.Key)
			apiKey.Value = varMap.ReplaceVars(apiKey.Value)
			resolved.APIKey = &apiKey
		}
	case mrequest.AuthKindJWT:
		if auth.JWT != nil {
			jwtAuth := *auth.JWT
			jwtAuth.Secret = varMap.ReplaceVars(jwtAuth.Secret)
			jwtAuth.Payload = varMap.ReplaceVars(jwtAuth.Payload)
			resolved.JWT = &jwtAuth
		}
	case mrequest.AuthKindOAuth2:
		if auth.OAuth2 != nil {
			oauth := *auth.OAuth2
			oauth.AccessToken = varMap.ReplaceVars(oauth.AccessToken)
			resolved.OAuth2 = &oauth
		}
	}
	return resolved
}

package request

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/the-dev-tools/apirun/pkg/httpclient"
	"github.com/the-dev-tools/apirun/pkg/model/mrequest"
)

const HeaderAuthorization = "Authorization"

var ErrUnsupportedAuth = fmt.Errorf("unsupported auth configuration")

// applyAuth layers authentication-derived headers and query parameters on top
// of the user-supplied ones. Incomplete credentials are skipped, matching the
// behaviour of leaving the auth section empty.
func applyAuth(headers []httpclient.Header, queries []httpclient.Query, auth mrequest.Auth) ([]httpclient.Header, []httpclient.Query, error) {
	switch auth.Kind {
	case mrequest.AuthKindNone:
		return headers, queries, nil
	case mrequest.AuthKindBearer:
		if auth.Bearer != nil && auth.Bearer.Token != "" {
			headers = setHeader(headers, HeaderAuthorization, "Bearer "+auth.Bearer.Token)
		}
		return headers, queries, nil
	case mrequest.AuthKindBasic:
		if auth.Basic != nil && auth.Basic.Username != "" && auth.Basic.Password != "" {
			cred := base64.StdEncoding.EncodeToString([]byte(auth.Basic.Username + ":" + auth.Basic.Password))
			headers = setHeader(headers, HeaderAuthorization, "Basic "+cred)
		}
		return headers, queries, nil
	case mrequest.AuthKindAPIKey:
		if auth.APIKey == nil || auth.APIKey.Key == "" || auth.APIKey.Value == "" {
			return headers, queries, nil
		}
		switch auth.APIKey.Placement {
		case mrequest.APIKeyPlacementHeader:
			headers = setHeader(headers, auth.APIKey.Key, auth.APIKey.Value)
		case mrequest.APIKeyPlacementQuery:
			queries = append(queries, httpclient.Query{QueryKey: auth.APIKey.Key, Value: auth.APIKey.Value})
		}
		return headers, queries, nil
	case mrequest.AuthKindJWT:
		if auth.JWT == nil || auth.JWT.Secret == "" {
			return headers, queries, nil
		}
		token, err := signJWT(*auth.JWT)
		if err != nil {
			return nil, nil, err
		}
		headers = setHeader(headers, HeaderAuthorization, "Bearer "+token)
		return headers, queries, nil
	case mrequest.AuthKindOAuth2:
		if auth.OAuth2 != nil && auth.OAuth2.AccessToken != "" {
			tokenType := auth.OAuth2.TokenType
			if tokenType == "" {
				tokenType = "Bearer"
			}
			headers = setHeader(headers, HeaderAuthorization, tokenType+" "+auth.OAuth2.AccessToken)
		}
		return headers, queries, nil
	default:
		return nil, nil, fmt.Errorf("%w: auth kind %d", ErrUnsupportedAuth, auth.Kind)
	}
}

func signJWT(auth mrequest.AuthJWT) (string, error) {
	var method jwt.SigningMethod
	switch strings.ToUpper(auth.Algorithm) {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return "", fmt.Errorf("%w: jwt algorithm %q", ErrUnsupportedAuth, auth.Algorithm)
	}

	claims := jwt.MapClaims{}
	if auth.Payload != "" {
		if err := json.Unmarshal([]byte(auth.Payload), &claims); err != nil {
			return "", fmt.Errorf("jwt payload is not a JSON object: %w", err)
		}
	}

	return jwt.NewWithClaims(method, claims).SignedString([]byte(auth.Secret))
}

// setHeader replaces an existing header value (case-insensitive key match,
// position preserved) or appends a new one.
func setHeader(headers []httpclient.Header, key, value string) []httpclient.Header {
	for i, h := range headers {
		if strings.EqualFold(h.HeaderKey, key) {
			headers[i].Value = value
			return headers
		}
	}
	return append(headers, httpclient.Header{HeaderKey: key, Value: value})
}

func hasHeader(headers []httpclient.Header, key string) bool {
	for _, h := range headers {
		if strings.EqualFold(h.HeaderKey, key) {
			return true
		}
	}
	return false
}

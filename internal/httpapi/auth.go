package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const tokenAudience = "estimator"

const (
	scopeAdminRead  = "admin:read"
	scopeAdminWrite = "admin:write"
)

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

func unauthorized(message string) *authError {
	return &authError{status: http.StatusUnauthorized, code: "unauthorized", message: message}
}

func forbidden(message string) *authError {
	return &authError{status: http.StatusForbidden, code: "forbidden", message: message}
}

// operatorToken is an authenticated admin caller.
type operatorToken struct {
	Operator  string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

func (t operatorToken) has(scope string) bool {
	_, ok := t.Scopes[scope]
	return ok
}

// operatorClaims is the JWT payload admin tokens carry. Scopes may be a
// JSON array or a space separated string.
type operatorClaims struct {
	Subject  string          `json:"sub"`
	Audience string          `json:"aud"`
	Expiry   json.Number     `json:"exp"`
	Scopes   json.RawMessage `json:"scopes"`
}

// authorizeOperator checks an HS256 operator token and the scope the admin
// route needs.
func authorizeOperator(authHeader, secret, scope string, now time.Time) (operatorToken, *authError) {
	token, err := verifyOperatorToken(authHeader, secret, now)
	if err != nil {
		return operatorToken{}, err
	}
	if scope != "" && !token.has(scope) {
		return operatorToken{}, forbidden("missing required scope: " + scope)
	}
	return token, nil
}

func verifyOperatorToken(authHeader, secret string, now time.Time) (operatorToken, *authError) {
	raw, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return operatorToken{}, unauthorized("missing or invalid bearer token")
	}
	segments := strings.Split(strings.TrimSpace(raw), ".")
	if len(segments) != 3 {
		return operatorToken{}, unauthorized("invalid jwt format")
	}
	if err := checkSignature(segments, secret); err != nil {
		return operatorToken{}, err
	}

	var header struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(segments[0], &header); err != nil || header.Alg != "HS256" {
		return operatorToken{}, unauthorized("unsupported jwt algorithm")
	}
	var claims operatorClaims
	if err := decodeSegment(segments[1], &claims); err != nil {
		return operatorToken{}, unauthorized("invalid jwt payload")
	}
	if claims.Subject == "" {
		return operatorToken{}, unauthorized("missing sub claim")
	}
	if claims.Audience != tokenAudience {
		return operatorToken{}, unauthorized("invalid aud claim")
	}
	exp, err := claims.Expiry.Int64()
	if err != nil {
		return operatorToken{}, unauthorized("invalid exp claim")
	}
	if now.Unix() >= exp {
		return operatorToken{}, unauthorized("token expired")
	}
	scopes := scopeSet(claims.Scopes)
	if len(scopes) == 0 {
		return operatorToken{}, forbidden("no scopes granted")
	}
	return operatorToken{Operator: claims.Subject, Scopes: scopes, ExpiresAt: time.Unix(exp, 0).UTC()}, nil
}

func checkSignature(segments []string, secret string) *authError {
	sig, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil {
		return unauthorized("invalid jwt signature")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(segments[0] + "." + segments[1]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return unauthorized("jwt signature mismatch")
	}
	return nil
}

func decodeSegment(segment string, into any) error {
	data, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, into)
}

func scopeSet(raw json.RawMessage) map[string]struct{} {
	out := map[string]struct{}{}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if json.Unmarshal(raw, &joined) != nil {
			return out
		}
		list = strings.Fields(joined)
	}
	for _, scope := range list {
		if scope != "" {
			out[scope] = struct{}{}
		}
	}
	return out
}

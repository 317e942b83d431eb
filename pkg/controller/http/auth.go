package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"gopkg.in/yaml.v3"
)

var ErrUnauthorized = goerr.New("unauthorized", goerr.T(model.ErrTagUnauthorized))

// Authenticator resolves the caller of a request. It returns an error tagged
// with model.ErrTagUnauthorized when the request carries no valid credential.
type Authenticator interface {
	Authenticate(r *http.Request) (model.UserID, error)
}

type tokenEntry struct {
	Token string       `yaml:"token"`
	User  model.UserID `yaml:"user"`
}

type tokenFile struct {
	Tokens []tokenEntry `yaml:"tokens"`
}

// TokenAuthenticator accepts "Authorization: Bearer <token>" for a fixed token table
type TokenAuthenticator struct {
	entries []tokenEntry
}

// ParseTokens reads a token table such as:
//
//	tokens:
//	  - token: s3cr3t
//	    user: alice
func ParseTokens(data []byte) (*TokenAuthenticator, error) {
	var f tokenFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, goerr.Wrap(err, "failed to parse token table")
	}

	seen := make(map[string]struct{}, len(f.Tokens))
	for i, e := range f.Tokens {
		if e.Token == "" || e.User == "" {
			return nil, goerr.New("token entry requires token and user", goerr.V("index", i))
		}
		if _, ok := seen[e.Token]; ok {
			return nil, goerr.New("duplicated token", goerr.V("user", e.User))
		}
		seen[e.Token] = struct{}{}
	}

	return &TokenAuthenticator{entries: f.Tokens}, nil
}

// LoadTokens reads the token table at path
func LoadTokens(path string) (*TokenAuthenticator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read token table", goerr.V("path", path))
	}
	return ParseTokens(data)
}

func (x *TokenAuthenticator) Authenticate(r *http.Request) (model.UserID, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", goerr.Wrap(ErrUnauthorized, "missing bearer token")
	}

	for _, e := range x.entries {
		if subtle.ConstantTimeCompare([]byte(e.Token), []byte(token)) == 1 {
			return e.User, nil
		}
	}
	return "", goerr.Wrap(ErrUnauthorized, "unknown token")
}

type ctxUserKey struct{}

func withUser(ctx context.Context, user model.UserID) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, user)
}

func userFrom(ctx context.Context) model.UserID {
	if user, ok := ctx.Value(ctxUserKey{}).(model.UserID); ok {
		return user
	}
	return ""
}

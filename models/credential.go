package models

import "strings"

// Credential authenticates a signature fetch. The empty credential means
// the server session is already established and no token is needed.
type Credential string

// Split separates the "username:token" form. A credential without a
// colon is a bare token.
func (c Credential) Split() (username, token string) {
	user, tok, found := strings.Cut(string(c), ":")
	if !found || tok == "" {
		return "", user
	}
	return user, tok
}

// IsEmpty reports whether no token is carried
func (c Credential) IsEmpty() bool {
	return c == ""
}

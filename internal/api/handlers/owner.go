package handlers

import (
	"fmt"
	"net/http"

	middleware "github.com/markdave123-py/docchat/internal/api/middlewares"
	"github.com/markdave123-py/docchat/internal/core"
)

// resolveOwner picks the caller's owner id. A validated token wins; a claimed
// id that disagrees with the token is rejected.
func resolveOwner(r *http.Request, claimed ...string) (string, error) {
	var body string
	for _, c := range claimed {
		if c != "" {
			body = c
			break
		}
	}
	if tokenOwner, ok := middleware.OwnerFromContext(r.Context()); ok {
		if body != "" && body != tokenOwner {
			return "", fmt.Errorf("%w: owner does not match token", core.ErrUnauthorized)
		}
		return tokenOwner, nil
	}
	if body == "" {
		return "", core.ErrUnauthorized
	}
	return body, nil
}

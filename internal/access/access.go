// Package access checks viewer tokens against a webinar's authorized links.
package access

import (
	"errors"

	"github.com/aura-webinar/virtual-live/internal/models"
)

// ErrAccessDenied is returned for an empty or unknown token.
var ErrAccessDenied = errors.New("access denied")

// Authorize returns the subject bound to token. Matching is exact.
func Authorize(token string, links []models.AuthorizedLink) (string, error) {
	if token == "" {
		return "", ErrAccessDenied
	}
	for _, l := range links {
		if l.Token == token {
			return l.SubjectID, nil
		}
	}
	return "", ErrAccessDenied
}

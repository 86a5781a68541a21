package access

import (
	"errors"
	"testing"

	"github.com/aura-webinar/virtual-live/internal/models"
)

func TestAuthorize(t *testing.T) {
	links := []models.AuthorizedLink{
		{Token: "abc123", SubjectID: "user-1"},
		{Token: "def456", SubjectID: "user-2"},
	}
	tests := []struct {
		name    string
		token   string
		want    string
		wantErr error
	}{
		{"known token", "def456", "user-2", nil},
		{"unknown token", "zzz", "", ErrAccessDenied},
		{"empty token", "", "", ErrAccessDenied},
		{"case differs", "ABC123", "", ErrAccessDenied},
		{"prefix only", "abc", "", ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Authorize(tt.token, links)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected subject %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAuthorize_NoLinks(t *testing.T) {
	if _, err := Authorize("abc", nil); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
}

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"items-api/internal/models"
)

func TestCanAccess(t *testing.T) {
	tests := []struct {
		name   string
		caller *models.User
		target int64
		want   bool
	}{
		{"owner", &models.User{ID: 5}, 5, true},
		{"other user", &models.User{ID: 7}, 5, false},
		{"admin on own", &models.User{ID: 1, IsAdmin: true}, 1, true},
		{"admin on other", &models.User{ID: 1, IsAdmin: true}, 5, true},
		{"nil caller", nil, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccess(tt.caller, tt.target))
		})
	}
}

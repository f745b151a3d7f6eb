package utils

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestUserIDFromContext(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name   string
		ctx    context.Context
		wantID uuid.UUID
		wantOK bool
	}{
		{"Given stored guest Then returned", WithUserID(context.Background(), id), id, true},
		{"Given empty context Then missing", context.Background(), uuid.Nil, false},
		{"Given nil id Then missing", WithUserID(context.Background(), uuid.Nil), uuid.Nil, false},
		{"Given string under another key Then missing", context.WithValue(context.Background(), "user_id", id.String()), uuid.Nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := UserIDFromContext(tt.ctx)
			if ok != tt.wantOK || got != tt.wantID {
				t.Errorf("UserIDFromContext() = %s, %v, want %s, %v", got, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

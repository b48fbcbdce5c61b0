package server

import (
	"testing"

	"github.com/dgellow/release-watch/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestDecideReconciliation(t *testing.T) {
	linked := &storage.User{ID: "by-id"}
	byEmail := &storage.User{ID: "by-email"}

	tests := []struct {
		name       string
		byID       *storage.User
		byEmail    *storage.User
		wantAction reconcileAction
		wantTarget *storage.User
	}{
		{"found by id", linked, nil, actionLinkByID, linked},
		{"id wins over email", linked, byEmail, actionLinkByID, linked},
		{"found by email", nil, byEmail, actionLinkByEmail, byEmail},
		{"neither", nil, nil, actionCreate, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, target := decideReconciliation(tt.byID, tt.byEmail)
			assert.Equal(t, tt.wantAction, action)
			assert.Same(t, tt.wantTarget, target)
		})
	}
}

func TestReconcileActionString(t *testing.T) {
	assert.Equal(t, "link_by_id", actionLinkByID.String())
	assert.Equal(t, "link_by_email", actionLinkByEmail.String())
	assert.Equal(t, "create", actionCreate.String())
	assert.Equal(t, "reconcileAction(9)", reconcileAction(9).String())
}

package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/todo-assistant/internal/store"
)

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"trims", "  Buy milk \n", "Buy milk", false},
		{"empty", "", "", true},
		{"whitespace only", " \t\n ", "", true},
		{"max length", strings.Repeat("a", MaxTitleLength), strings.Repeat("a", MaxTitleLength), false},
		{"too long", strings.Repeat("a", MaxTitleLength+1), "", true},
		{"counts characters not bytes", strings.Repeat("é", MaxTitleLength), strings.Repeat("é", MaxTitleLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateTitle(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindValidation, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTodoService_CreateRejectsBlankTitle(t *testing.T) {
	s := newTestStore(t)
	svc := NewTodoService(s)
	ctx := context.Background()
	u := newUser(t, s, "a@example.com")

	_, err := svc.Create(ctx, u.ID, "   ")
	assert.Equal(t, KindValidation, KindOf(err))

	todos, err := svc.List(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestTodoService_UpdateRejectsBlankSuppliedTitle(t *testing.T) {
	s := newTestStore(t)
	svc := NewTodoService(s)
	ctx := context.Background()
	u := newUser(t, s, "a@example.com")

	todo, err := svc.Create(ctx, u.ID, "Keep me")
	require.NoError(t, err)

	blank := "  "
	_, err = svc.Update(ctx, u.ID, todo.ID, store.TodoPatch{Title: &blank})
	assert.Equal(t, KindValidation, KindOf(err))

	got, err := svc.Get(ctx, u.ID, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keep me", got.Title)

	padded := "  Renamed  "
	updated, err := svc.Update(ctx, u.ID, todo.ID, store.TodoPatch{Title: &padded})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
}

func TestTodoService_NotFoundIsUniform(t *testing.T) {
	s := newTestStore(t)
	svc := NewTodoService(s)
	ctx := context.Background()
	owner := newUser(t, s, "owner@example.com")
	other := newUser(t, s, "other@example.com")

	todo, err := svc.Create(ctx, owner.ID, "Private")
	require.NoError(t, err)

	_, missingErr := svc.Get(ctx, owner.ID, "does-not-exist")
	_, foreignErr := svc.Get(ctx, other.ID, todo.ID)
	require.Error(t, missingErr)
	require.Error(t, foreignErr)
	assert.Equal(t, KindNotFound, KindOf(missingErr))
	assert.Equal(t, KindNotFound, KindOf(foreignErr))
	assert.Equal(t, missingErr.Error(), foreignErr.Error())

	_, err = svc.Toggle(ctx, other.ID, todo.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, KindNotFound, KindOf(svc.Delete(ctx, other.ID, todo.ID)))
}

func TestTodoService_ToggleTwiceAndDeleteTwice(t *testing.T) {
	s := newTestStore(t)
	svc := NewTodoService(s)
	ctx := context.Background()
	u := newUser(t, s, "a@example.com")

	todo, err := svc.Create(ctx, u.ID, "Flip")
	require.NoError(t, err)

	first, err := svc.Toggle(ctx, u.ID, todo.ID)
	require.NoError(t, err)
	assert.True(t, first.Completed)
	second, err := svc.Toggle(ctx, u.ID, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, todo.Completed, second.Completed)

	require.NoError(t, svc.Delete(ctx, u.ID, todo.ID))
	assert.Equal(t, KindNotFound, KindOf(svc.Delete(ctx, u.ID, todo.ID)))
}

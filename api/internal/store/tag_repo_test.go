package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errbook/api/internal/question"
)

func TestEnsureSystem(t *testing.T) {
	ctx := context.Background()
	tags := NewTagRepo(newTestDB(t))

	n, err := tags.EnsureSystem(ctx, "math", "", []string{"一次函数", "二次函数"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = tags.EnsureSystem(ctx, "math", "", []string{"一次函数", "勾股定理"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "existing system tags are kept")

	n, err = tags.EnsureSystem(ctx, "math", "八年级上", []string{"全等三角形的判定"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := tags.List(ctx, "", "math")
	require.NoError(t, err)
	byName := map[string]Tag{}
	for _, tg := range all {
		byName[tg.Name] = tg
	}
	require.Len(t, byName, 5)
	assert.Equal(t, byName["八年级上"].ID, byName["全等三角形的判定"].ParentID)
	assert.Empty(t, byName["一次函数"].ParentID)
}

func TestTagList(t *testing.T) {
	ctx := context.Background()
	items := NewItemRepo(newTestDB(t))
	_, err := items.Tags.EnsureSystem(ctx, "english", "", []string{"语法"})
	require.NoError(t, err)
	_, err = items.Create(ctx, NewItem{OwnerID: "u1", Record: rec("q", question.SubjectEnglish, "时态")})
	require.NoError(t, err)
	_, err = items.Create(ctx, NewItem{OwnerID: "u2", Record: rec("q", question.SubjectMath, "秘密")})
	require.NoError(t, err)

	got, err := items.Tags.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"语法", "时态"}, tagNames(got), "system tags first")

	got, err = items.Tags.List(ctx, "u2", "math")
	require.NoError(t, err)
	assert.Equal(t, []string{"秘密"}, tagNames(got))
}

func TestForItemsEmpty(t *testing.T) {
	m, err := NewTagRepo(newTestDB(t)).ForItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}

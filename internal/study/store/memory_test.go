package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzi-braunschweig/pia-system/internal/study"
	"github.com/hzi-braunschweig/pia-system/pkg/domain"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
)

func TestMemoryCatalog(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Seed(&study.Group{
		ID:         "study-a",
		Name:       "Test Study",
		Attributes: map[string]string{study.AttrRegistrationLimit: "2"},
	})

	t.Run("find returns a copy", func(t *testing.T) {
		g, err := m.FindByID(ctx, "study-a")
		require.NoError(t, err)
		g.Attributes[study.AttrRegistrationLimit] = "999"

		again, err := m.FindByID(ctx, "study-a")
		require.NoError(t, err)
		assert.Equal(t, "2", again.Attributes[study.AttrRegistrationLimit])
	})

	t.Run("unknown group yields not found", func(t *testing.T) {
		_, err := m.FindByID(ctx, "missing")
		require.ErrorIs(t, err, sentinel.ErrNotFound)

		_, err = m.MemberCount(ctx, "missing")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("membership is idempotent", func(t *testing.T) {
		user := domain.NewUserID()
		require.NoError(t, m.AddMember(ctx, "study-a", user))
		require.NoError(t, m.AddMember(ctx, "study-a", user))

		count, err := m.MemberCount(ctx, "study-a")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("attribute mutation opens and closes the study", func(t *testing.T) {
		require.NoError(t, m.RemoveAttribute(ctx, "study-a", study.AttrRegistrationLimit))
		g, err := m.FindByID(ctx, "study-a")
		require.NoError(t, err)
		_, present := g.RegistrationLimit()
		assert.False(t, present)

		require.NoError(t, m.SetAttribute(ctx, "study-a", study.AttrRegistrationLimit, ""))
		g, err = m.FindByID(ctx, "study-a")
		require.NoError(t, err)
		limit, present := g.RegistrationLimit()
		assert.True(t, present)
		assert.Equal(t, study.Unlimited, limit)
	})
}

func TestRegistrationLimitParsing(t *testing.T) {
	cases := []struct {
		name    string
		attrs   map[string]string
		limit   int
		present bool
	}{
		{"absent attribute", map[string]string{}, 0, false},
		{"nil attributes", nil, 0, false},
		{"empty value", map[string]string{study.AttrRegistrationLimit: ""}, study.Unlimited, true},
		{"whitespace value", map[string]string{study.AttrRegistrationLimit: "  "}, study.Unlimited, true},
		{"non-numeric value", map[string]string{study.AttrRegistrationLimit: "lots"}, study.Unlimited, true},
		{"negative value", map[string]string{study.AttrRegistrationLimit: "-5"}, study.Unlimited, true},
		{"zero", map[string]string{study.AttrRegistrationLimit: "0"}, 0, true},
		{"numeric value", map[string]string{study.AttrRegistrationLimit: "100"}, 100, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &study.Group{ID: "s", Attributes: tc.attrs}
			limit, present := g.RegistrationLimit()
			assert.Equal(t, tc.present, present)
			if present {
				assert.Equal(t, tc.limit, limit)
			}
		})
	}
}

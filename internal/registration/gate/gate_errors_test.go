package gate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hzi-braunschweig/pia-system/internal/registration/gate"
	"github.com/hzi-braunschweig/pia-system/internal/study"
	"github.com/hzi-braunschweig/pia-system/internal/study/mocks"
	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// Store failures cannot be produced with the in-memory catalog, so these
// paths use mocks.
func TestEvaluate_StoreFailures(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection refused")

	t.Run("group lookup fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		catalog := mocks.NewMockCatalog(ctrl)
		catalog.EXPECT().
			FindByID(gomock.Any(), domain.StudyID("flaky")).
			Return(nil, storeErr)

		d, err := gate.New(catalog, nil).Evaluate(ctx, "flaky")
		require.ErrorIs(t, err, storeErr)
		assert.NotEqual(t, gate.DecisionOK, d)
	})

	t.Run("member count fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		catalog := mocks.NewMockCatalog(ctrl)
		catalog.EXPECT().
			FindByID(gomock.Any(), domain.StudyID("flaky")).
			Return(&study.Group{
				ID:         "flaky",
				Attributes: map[string]string{study.AttrRegistrationLimit: "10"},
			}, nil)
		catalog.EXPECT().
			MemberCount(gomock.Any(), domain.StudyID("flaky")).
			Return(0, storeErr)

		d, err := gate.New(catalog, nil).Evaluate(ctx, "flaky")
		require.ErrorIs(t, err, storeErr)
		assert.NotEqual(t, gate.DecisionOK, d)
	})

	t.Run("unlimited study never counts members", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		catalog := mocks.NewMockCatalog(ctrl)
		catalog.EXPECT().
			FindByID(gomock.Any(), domain.StudyID("open")).
			Return(&study.Group{
				ID:         "open",
				Attributes: map[string]string{study.AttrRegistrationLimit: "-1"},
			}, nil)

		d, err := gate.New(catalog, nil).Evaluate(ctx, "open")
		require.NoError(t, err)
		assert.Equal(t, gate.DecisionOK, d)
	})
}

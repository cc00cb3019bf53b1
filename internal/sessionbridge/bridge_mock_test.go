package sessionbridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	portmocks "github.com/target/towertrack-portal/internal/mocks"
	"github.com/target/towertrack-portal/internal/ports"
)

func TestBridge_ForwardsCredentialThenRevokes(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := portmocks.NewMockSessionBackend(ctrl)
	cred := ports.SessionCredential{Token: "id-token", Email: "a@x.com"}

	gomock.InOrder(
		backend.EXPECT().Establish(gomock.Any(), cred).Return(nil),
		backend.EXPECT().Revoke(gomock.Any()).Return(nil),
	)

	b := New(Options{Backend: backend})
	ctx := context.Background()
	require.True(t, b.Start(ctx, 1, cred))
	require.NoError(t, b.Await(ctx))
	require.NoError(t, b.Teardown(ctx, 2))
	assert.Equal(t, StatusNone, b.State().Status)
}

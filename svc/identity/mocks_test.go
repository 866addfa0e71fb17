package identity_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/faceswap/svc/identity"
)

type MockOAuthProvider struct {
	mock.Mock
}

func (m *MockOAuthProvider) AuthURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockOAuthProvider) Exchange(ctx context.Context, code string) (*identity.OAuthProfile, error) {
	args := m.Called(ctx, code)
	if p := args.Get(0); p != nil {
		return p.(*identity.OAuthProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

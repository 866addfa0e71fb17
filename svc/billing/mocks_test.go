package billing_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/faceswap/svc/billing"
)

type MockCardProcessor struct {
	mock.Mock
}

func (m *MockCardProcessor) Name() string {
	return "mock"
}

func (m *MockCardProcessor) CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.Checkout, error) {
	args := m.Called(ctx, req)
	if c := args.Get(0); c != nil {
		return c.(*billing.Checkout), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCardProcessor) RetrieveCheckout(ctx context.Context, id string) (*billing.CheckoutResult, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*billing.CheckoutResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockTransferVerifier struct {
	mock.Mock
}

func (m *MockTransferVerifier) Verify(ctx context.Context, attempt *billing.Attempt, hash string) error {
	return m.Called(ctx, attempt, hash).Error(0)
}

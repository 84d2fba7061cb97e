// Package mocks provides hand-written testify mocks shared by the package
// tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"go.pilab.hu/trustgate/domain"
)

// IdentityProvider is a mock of domain.IdentityProvider.
type IdentityProvider struct {
	mock.Mock
}

var _ domain.IdentityProvider = (*IdentityProvider)(nil)

func (m *IdentityProvider) VerifyToken(ctx context.Context, accessToken string) (*domain.TokenInfo, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenInfo), args.Error(1)
}

func (m *IdentityProvider) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *IdentityProvider) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *IdentityProvider) ExchangeOAuthCode(ctx context.Context, external domain.SessionTokens) (*domain.Session, error) {
	args := m.Called(ctx, external)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *IdentityProvider) ListFactors(ctx context.Context, userID string) ([]*domain.Factor, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Factor), args.Error(1)
}

func (m *IdentityProvider) EnrollFactor(ctx context.Context, userID, factorType, friendlyName string) (*domain.Enrollment, error) {
	args := m.Called(ctx, userID, factorType, friendlyName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Enrollment), args.Error(1)
}

func (m *IdentityProvider) ChallengeFactor(ctx context.Context, factorID string) (string, error) {
	args := m.Called(ctx, factorID)
	return args.String(0), args.Error(1)
}

func (m *IdentityProvider) VerifyFactor(ctx context.Context, factorID, challengeID, code string) error {
	args := m.Called(ctx, factorID, challengeID, code)
	return args.Error(0)
}

func (m *IdentityProvider) UnenrollFactor(ctx context.Context, factorID string) error {
	args := m.Called(ctx, factorID)
	return args.Error(0)
}

func (m *IdentityProvider) GetIdentities(ctx context.Context, userID string) ([]*domain.Identity, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Identity), args.Error(1)
}

func (m *IdentityProvider) LinkIdentity(ctx context.Context, userID, provider string) (string, error) {
	args := m.Called(ctx, userID, provider)
	return args.String(0), args.Error(1)
}

func (m *IdentityProvider) UnlinkIdentity(ctx context.Context, userID, identityID string) error {
	args := m.Called(ctx, userID, identityID)
	return args.Error(0)
}

func (m *IdentityProvider) ListDevices(ctx context.Context, userID string) ([]*domain.Device, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Device), args.Error(1)
}

package mocks

import (
	"context"

	"polegrid/internal/model"
	"polegrid/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockRegistrationService struct {
	mock.Mock
}

func (m *MockRegistrationService) Register(ctx context.Context, entity model.Entity, sub service.Submission) (*model.Record, error) {
	args := m.Called(ctx, entity, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Record), args.Error(1)
}

func (m *MockRegistrationService) List(ctx context.Context, entity model.Entity) ([]model.Record, error) {
	args := m.Called(ctx, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Record), args.Error(1)
}

func (m *MockRegistrationService) Upload(ctx context.Context, f service.File) (*service.StoredFile, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.StoredFile), args.Error(1)
}

func (m *MockRegistrationService) Message(entity model.Entity) string {
	args := m.Called(entity)
	return args.String(0)
}

func (m *MockRegistrationService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

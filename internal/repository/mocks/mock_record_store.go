package mocks

import (
	"context"

	"polegrid/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Read(ctx context.Context) (model.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.Document), args.Error(1)
}

func (m *MockRecordStore) Write(ctx context.Context, doc model.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockRecordStore) Append(ctx context.Context, collection string, rec model.Record) error {
	args := m.Called(ctx, collection, rec)
	return args.Error(0)
}

func (m *MockRecordStore) List(ctx context.Context, collection string) ([]model.Record, error) {
	args := m.Called(ctx, collection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Record), args.Error(1)
}

func (m *MockRecordStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"storybook-server/internal/storage"
)

// MockObjectStorage is a mock type for the ObjectStorage type
type MockObjectStorage struct {
	mock.Mock
}

func (_m *MockObjectStorage) Put(ctx context.Context, key string, contentType string, data []byte) error {
	return _m.Called(ctx, key, contentType, data).Error(0)
}

func (_m *MockObjectStorage) Delete(ctx context.Context, key string) error {
	return _m.Called(ctx, key).Error(0)
}

func (_m *MockObjectStorage) DeletePrefix(ctx context.Context, prefix string) error {
	return _m.Called(ctx, prefix).Error(0)
}

func (_m *MockObjectStorage) PublicURL(key string) string {
	ret := _m.Called(key)
	return ret.String(0)
}

// NewMockObjectStorage creates a new instance of MockObjectStorage.
// The first argument is typically a *testing.T value.
func NewMockObjectStorage(t interface {
	mock.TestingT
	Helper()
}) *MockObjectStorage {
	m := &MockObjectStorage{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ storage.ObjectStorage = (*MockObjectStorage)(nil)

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"storybook-server/internal/service"
)

// MockImageClient is a mock type for the ImageClient type
type MockImageClient struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, prompt
func (_m *MockImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	ret := _m.Called(ctx, prompt)

	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	return r0, ret.Error(1)
}

// NewMockImageClient creates a new instance of MockImageClient.
// The first argument is typically a *testing.T value.
func NewMockImageClient(t interface {
	mock.TestingT
	Helper()
}) *MockImageClient {
	m := &MockImageClient{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.ImageClient = (*MockImageClient)(nil)

// MockSpeechClient is a mock type for the SpeechClient type
type MockSpeechClient struct {
	mock.Mock
}

// Synthesize provides a mock function with given fields: ctx, text, instructions
func (_m *MockSpeechClient) Synthesize(ctx context.Context, text string, instructions string) ([]byte, error) {
	ret := _m.Called(ctx, text, instructions)

	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	return r0, ret.Error(1)
}

// NewMockSpeechClient creates a new instance of MockSpeechClient.
// The first argument is typically a *testing.T value.
func NewMockSpeechClient(t interface {
	mock.TestingT
	Helper()
}) *MockSpeechClient {
	m := &MockSpeechClient{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.SpeechClient = (*MockSpeechClient)(nil)

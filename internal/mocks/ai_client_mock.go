package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"storybook-server/internal/service"
)

// MockAIClient is a mock type for the AIClient type
type MockAIClient struct {
	mock.Mock
}

// GenerateText provides a mock function with given fields: ctx, userID, systemPrompt, userInput
func (_m *MockAIClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string) (string, string, service.UsageInfo, error) {
	ret := _m.Called(ctx, userID, systemPrompt, userInput)

	var r0 string
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(string)
	}

	var r1 string
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(string)
	}

	var r2 service.UsageInfo
	if ret.Get(2) != nil {
		r2 = ret.Get(2).(service.UsageInfo)
	}

	return r0, r1, r2, ret.Error(3)
}

// NewMockAIClient creates a new instance of MockAIClient.
// The first argument is typically a *testing.T value.
func NewMockAIClient(t interface {
	mock.TestingT
	Helper()
}) *MockAIClient {
	m := &MockAIClient{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.AIClient = (*MockAIClient)(nil)

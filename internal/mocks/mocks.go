// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

func (m *MockConfig) Engine() config.EngineConfig {
	args := m.Called()
	return args.Get(0).(config.EngineConfig)
}

func (m *MockConfig) Capture() config.CaptureConfig {
	args := m.Called()
	return args.Get(0).(config.CaptureConfig)
}

func (m *MockConfig) Executor() config.ExecutorConfig {
	args := m.Called()
	return args.Get(0).(config.ExecutorConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Inference() config.InferenceConfig {
	args := m.Called()
	return args.Get(0).(config.InferenceConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

func (m *MockConfig) UI() map[string]interface{} {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]interface{})
}

// -- Turn Collaborator Mocks --

// MockCaptureProvider mocks the schemas.CaptureProvider interface.
type MockCaptureProvider struct {
	mock.Mock
}

func (m *MockCaptureProvider) Capture(ctx context.Context) (schemas.Image, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Image), args.Error(1)
}

// MockInputExecutor mocks the schemas.InputExecutor interface.
type MockInputExecutor struct {
	mock.Mock
}

func (m *MockInputExecutor) Execute(ctx context.Context, action schemas.Action) error {
	return m.Called(ctx, action).Error(0)
}

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Event Mocks --

// MockEventPublisher mocks the schemas.EventPublisher interface.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, ev schemas.TurnEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// MockTurnRecorder mocks the schemas.TurnRecorder interface.
type MockTurnRecorder struct {
	mock.Mock
}

func (m *MockTurnRecorder) Record(ctx context.Context, ev schemas.TurnEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockTurnRecorder) Close() error {
	return m.Called().Error(0)
}

package events

import (
	"testing"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEventBus is a mock for EventBus.Bus
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Subscribe(topic string, fn interface{}) error {
	args := m.Called(topic, fn)
	return args.Error(0)
}

func (m *MockEventBus) SubscribeAsync(topic string, fn interface{}, transactional bool) error {
	args := m.Called(topic, fn, transactional)
	return args.Error(0)
}

func (m *MockEventBus) SubscribeOnce(topic string, fn interface{}) error {
	args := m.Called(topic, fn)
	return args.Error(0)
}

func (m *MockEventBus) SubscribeOnceAsync(topic string, fn interface{}) error {
	args := m.Called(topic, fn)
	return args.Error(0)
}

func (m *MockEventBus) Unsubscribe(topic string, handler interface{}) error {
	args := m.Called(topic, handler)
	return args.Error(0)
}

func (m *MockEventBus) Publish(topic string, args ...interface{}) {
	m.Called(append([]interface{}{topic}, args...)...)
}

func (m *MockEventBus) HasCallback(topic string) bool {
	args := m.Called(topic)
	return args.Bool(0)
}

func (m *MockEventBus) WaitAsync() {
	m.Called()
}

func TestNewSubscribers_RegistersAllTopics(t *testing.T) {
	mockBus := new(MockEventBus)

	topics := []string{
		domain.EventBatchStarted,
		domain.EventBatchCompleted,
		domain.EventBatchFailed,
		domain.EventConflictDetected,
	}
	for _, topic := range topics {
		mockBus.On("Subscribe", topic, mock.Anything).Return(nil)
	}

	_ = NewSubscribers(logger.Mock(), mockBus)

	for _, topic := range topics {
		mockBus.AssertCalled(t, "Subscribe", topic, mock.Anything)
	}

	batchHandlers := 0
	conflictHandlers := 0
	for _, call := range mockBus.Calls {
		require.Len(t, call.Arguments, 2)
		switch call.Arguments.Get(1).(type) {
		case func(domain.BatchEvent):
			batchHandlers++
		case func(domain.ConflictEvent):
			conflictHandlers++
		}
	}
	assert.Equal(t, 3, batchHandlers)
	assert.Equal(t, 1, conflictHandlers)
}

func TestNewSubscribers_SubscribeError(t *testing.T) {
	mockBus := new(MockEventBus)
	mockBus.On("Subscribe", mock.Anything, mock.Anything).Return(assert.AnError)

	// errors are logged, never panicked on
	assert.NotPanics(t, func() {
		_ = NewSubscribers(logger.Mock(), mockBus)
	})
}

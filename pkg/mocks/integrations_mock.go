package mocks

import (
	"context"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/ai"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/messaging"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockCRMStore is a mock implementation of crm.Store interface.
type MockCRMStore struct {
	mock.Mock
}

func (m *MockCRMStore) Get(ctx context.Context, tenantID string, entity models.EntityType, id string) (crm.Record, error) {
	args := m.Called(ctx, tenantID, entity, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(crm.Record), args.Error(1)
}

func (m *MockCRMStore) Find(ctx context.Context, tenantID string, entity models.EntityType, field, value string) (crm.Record, error) {
	args := m.Called(ctx, tenantID, entity, field, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(crm.Record), args.Error(1)
}

func (m *MockCRMStore) Create(ctx context.Context, tenantID string, entity models.EntityType, fields map[string]any) (crm.Record, error) {
	args := m.Called(ctx, tenantID, entity, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(crm.Record), args.Error(1)
}

func (m *MockCRMStore) Update(ctx context.Context, tenantID string, entity models.EntityType, id string, fields map[string]any) (crm.Record, error) {
	args := m.Called(ctx, tenantID, entity, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(crm.Record), args.Error(1)
}

func (m *MockCRMStore) Users(ctx context.Context, tenantID string) ([]crm.User, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]crm.User), args.Error(1)
}

func (m *MockCRMStore) CountAssigned(ctx context.Context, tenantID string, entity models.EntityType) (map[string]int, error) {
	args := m.Called(ctx, tenantID, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]int), args.Error(1)
}

// MockSender is a mock implementation of messaging.Sender interface.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg messaging.Message) (messaging.Dispatch, error) {
	args := m.Called(ctx, msg)

	return args.Get(0).(messaging.Dispatch), args.Error(1)
}

// MockAIInvoker is a mock implementation of ai.Invoker interface.
type MockAIInvoker struct {
	mock.Mock
}

func (m *MockAIInvoker) Invoke(ctx context.Context, req ai.Request) (map[string]any, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}

// Package mocks provides testify mocks for the database package.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/redispatch/curtailcast/internal/database"
	"github.com/redispatch/curtailcast/internal/models"
)

// MockCurtailmentRepository is a mock of database.CurtailmentRepository.
type MockCurtailmentRepository struct {
	mock.Mock
}

func (m *MockCurtailmentRepository) ListEvents(ctx context.Context, facilityID string, start, end time.Time) ([]models.CurtailmentEvent, error) {
	args := m.Called(ctx, facilityID, start, end)
	events, _ := args.Get(0).([]models.CurtailmentEvent)
	return events, args.Error(1)
}

func (m *MockCurtailmentRepository) ListFacilities(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockCurtailmentRepository) SaveSeries(ctx context.Context, series models.ReconstructedSeries) error {
	return m.Called(ctx, series).Error(0)
}

func (m *MockCurtailmentRepository) SavePredictions(ctx context.Context, predictions models.PredictionSeries) error {
	return m.Called(ctx, predictions).Error(0)
}

func (m *MockCurtailmentRepository) Close() error {
	return m.Called().Error(0)
}

var _ database.CurtailmentRepository = (*MockCurtailmentRepository)(nil)

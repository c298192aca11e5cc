package mocks

import (
	"context"
	"encoding/json"

	"github.com/BearBump/TrackProxy/internal/integrations/upstream"
	"github.com/BearBump/TrackProxy/internal/integrations/upstream/fallback"
	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockOfficialSource struct {
	mock.Mock
}

func (m *MockOfficialSource) Query(ctx context.Context, reference string) (upstream.Payload, error) {
	ret := m.Called(ctx, reference)
	return ret.Get(0).(upstream.Payload), ret.Error(1)
}

type MockFallbackSource struct {
	mock.Mock
}

func (m *MockFallbackSource) Query(ctx context.Context, reference, hint string) (upstream.Payload, error) {
	ret := m.Called(ctx, reference, hint)
	return ret.Get(0).(upstream.Payload), ret.Error(1)
}

func (m *MockFallbackSource) QueryShipment(ctx context.Context, kind fallback.ShipmentKind, id, hint string) (upstream.Payload, error) {
	ret := m.Called(ctx, kind, id, hint)
	return ret.Get(0).(upstream.Payload), ret.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(raw json.RawMessage, kind models.SourceKind) models.TrackingResult {
	ret := m.Called(raw, kind)
	return ret.Get(0).(models.TrackingResult)
}

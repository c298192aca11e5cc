package tracking

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/BearBump/TrackProxy/internal/integrations/upstream"
	"github.com/BearBump/TrackProxy/internal/integrations/upstream/fallback"
	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/BearBump/TrackProxy/internal/services/reconcile"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	trackingmocks "github.com/BearBump/TrackProxy/internal/services/tracking/mocks"
)

type ServiceSuite struct {
	suite.Suite

	official *trackingmocks.MockOfficialSource
	fallback *trackingmocks.MockFallbackSource
	svc      *Service
}

func (s *ServiceSuite) SetupTest() {
	s.official = &trackingmocks.MockOfficialSource{}
	s.fallback = &trackingmocks.MockFallbackSource{}
	s.svc = New(s.official, s.fallback, reconcile.New(nil))
}

func (s *ServiceSuite) TestTrack_OfficialSuccess_NoFallback() {
	body := json.RawMessage(`{"dataList":[{"time":"2025-03-02 10:00:00","context":"Delivered"}]}`)
	s.official.On("Query", mock.Anything, "ABC123").
		Return(upstream.Payload{Source: models.SourceOfficial, Body: body}, nil).
		Once()

	res, err := s.svc.Track(context.Background(), models.TrackingQuery{Reference: "  ABC123 "})
	s.Require().NoError(err)
	s.Require().Equal("ABC123", res.Reference)
	s.Require().Equal(models.SourceOfficial, res.SourceKind)
	s.Require().Len(res.Events, 1)

	s.official.AssertExpectations(s.T())
	s.fallback.AssertNotCalled(s.T(), "Query", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestTrack_OfficialEmpty_FallbackOnce() {
	s.official.On("Query", mock.Anything, "ABC123").
		Return(upstream.Payload{}, &upstream.Error{Kind: upstream.KindEmpty, Upstream: "official"}).
		Once()
	s.fallback.On("Query", mock.Anything, "ABC123", "B").
		Return(upstream.Payload{
			Source: models.FallbackSource("B"),
			Body:   json.RawMessage(`{"trackings":[{"eventTime":"2025-04-01 12:00:00","eventDescription":"Departed"}]}`),
		}, nil).
		Once()

	res, err := s.svc.Track(context.Background(), models.TrackingQuery{Reference: "ABC123", TenantHint: "B"})
	s.Require().NoError(err)
	s.Require().Equal(models.SourceKind("fallback:B"), res.SourceKind)
	s.Require().Len(res.Events, 1)

	s.official.AssertExpectations(s.T())
	s.fallback.AssertExpectations(s.T())
	s.fallback.AssertNumberOfCalls(s.T(), "Query", 1)
}

func (s *ServiceSuite) TestTrack_BothFail_ReturnsFallbackError() {
	s.official.On("Query", mock.Anything, "ABC123").
		Return(upstream.Payload{}, &upstream.Error{Kind: upstream.KindTimeout, Upstream: "official"}).
		Once()
	notFound := &upstream.Error{Kind: upstream.KindNotFound, Upstream: "fallback", Status: 404}
	s.fallback.On("Query", mock.Anything, "ABC123", "").
		Return(upstream.Payload{}, notFound).
		Once()

	_, err := s.svc.Track(context.Background(), models.TrackingQuery{Reference: "ABC123"})
	s.Require().Same(notFound, err)
}

func (s *ServiceSuite) TestTrack_InvalidReference_NoNetwork() {
	for _, ref := range []string{"", "AB", "AB 123", "ABCDEFGHIJKLMNOPQRSTUVWXYZ012345", "ABC_123"} {
		_, err := s.svc.Track(context.Background(), models.TrackingQuery{Reference: ref})
		s.Require().Error(err, ref)
	}
	s.official.AssertNotCalled(s.T(), "Query", mock.Anything, mock.Anything)
	s.fallback.AssertNotCalled(s.T(), "Query", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestTrack_UsesReconciler() {
	rec := &trackingmocks.MockReconciler{}
	svc := New(s.official, s.fallback, rec)

	body := json.RawMessage(`{}`)
	s.official.On("Query", mock.Anything, "JOB-1").
		Return(upstream.Payload{Source: models.SourceOfficial, Body: body}, nil).
		Once()
	rec.On("Reconcile", body, models.SourceOfficial).
		Return(models.TrackingResult{Events: []*models.TrackingEvent{}}).
		Once()

	res, err := svc.Track(context.Background(), models.TrackingQuery{Reference: "JOB-1"})
	s.Require().NoError(err)
	s.Require().Equal("JOB-1", res.Reference)
	rec.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestShipment() {
	s.fallback.On("QueryShipment", mock.Anything, fallback.ShipmentOne, "S-1", "A").
		Return(upstream.Payload{Source: models.FallbackSource("A"), Body: json.RawMessage(`{"id":"S-1"}`)}, nil).
		Once()

	p, err := s.svc.Shipment(context.Background(), fallback.ShipmentOne, " S-1 ", "A")
	s.Require().NoError(err)
	s.Require().Equal(models.FallbackSource("A"), p.Source)

	_, err = s.svc.Shipment(context.Background(), fallback.ShipmentOne, "  ", "")
	s.Require().ErrorIs(err, ErrShipmentIDRequired)

	s.fallback.AssertExpectations(s.T())
	s.official.AssertNotCalled(s.T(), "Query", mock.Anything, mock.Anything)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

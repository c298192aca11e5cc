package tracking

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/BearBump/TrackProxy/internal/integrations/upstream"
	"github.com/BearBump/TrackProxy/internal/integrations/upstream/fallback"
	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/pkg/errors"
)

type OfficialSource interface {
	Query(ctx context.Context, reference string) (upstream.Payload, error)
}

type FallbackSource interface {
	Query(ctx context.Context, reference, hint string) (upstream.Payload, error)
	QueryShipment(ctx context.Context, kind fallback.ShipmentKind, id, hint string) (upstream.Payload, error)
}

type Reconciler interface {
	Reconcile(raw json.RawMessage, kind models.SourceKind) models.TrackingResult
}

var ErrShipmentIDRequired = errors.New("shipment id is required")

type Service struct {
	official   OfficialSource
	fallback   FallbackSource
	reconciler Reconciler
}

func New(official OfficialSource, fb FallbackSource, r Reconciler) *Service {
	return &Service{official: official, fallback: fb, reconciler: r}
}

// Track: сначала official, при любой его ошибке ровно один раз fallback. Параллельно не запускаем.
func (s *Service) Track(ctx context.Context, q models.TrackingQuery) (models.TrackingResult, error) {
	ref, err := models.NormalizeReference(q.Reference)
	if err != nil {
		return models.TrackingResult{}, err
	}
	hint := strings.TrimSpace(q.TenantHint)

	attempts := []upstream.Attempt[upstream.Payload]{
		{
			Name: "official",
			Run: func(ctx context.Context) (upstream.Payload, error) {
				return s.official.Query(ctx, ref)
			},
		},
		{
			Name: "fallback",
			Run: func(ctx context.Context) (upstream.Payload, error) {
				return s.fallback.Query(ctx, ref, hint)
			},
		},
	}

	p, err := upstream.FirstSuccess(ctx, attempts, nil)
	if err != nil {
		slog.Warn("tracking lookup failed", "reference", ref, "kind", string(upstream.KindOf(err)), "error", err.Error())
		return models.TrackingResult{}, err
	}

	res := s.reconciler.Reconcile(p.Body, p.Source)
	res.Reference = ref
	res.SourceKind = p.Source
	slog.Info("tracking resolved", "reference", ref, "source", string(p.Source), "events", len(res.Events))
	return res, nil
}

// Shipment ищет отгрузку только через fallback и отдаёт тело апстрима без сведения.
func (s *Service) Shipment(ctx context.Context, kind fallback.ShipmentKind, id, hint string) (upstream.Payload, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return upstream.Payload{}, ErrShipmentIDRequired
	}
	p, err := s.fallback.QueryShipment(ctx, kind, id, strings.TrimSpace(hint))
	if err != nil {
		slog.Warn("shipment lookup failed", "kind", string(kind), "id", id, "error", err.Error())
		return upstream.Payload{}, err
	}
	return p, nil
}

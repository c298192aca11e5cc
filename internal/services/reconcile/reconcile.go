package reconcile

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/BearBump/TrackProxy/internal/models"
)

type Reconciler struct {
	loc *time.Location
}

// New: loc — зона для времени без смещения, nil означает DefaultLocation.
func New(loc *time.Location) *Reconciler {
	if loc == nil {
		loc = DefaultLocation
	}
	return &Reconciler{loc: loc}
}

// Reconcile собирает единую ленту событий из сырого ответа апстрима.
// Пустой или нераспознанный ответ даёт результат без событий со статусом unknown.
func (r *Reconciler) Reconcile(raw json.RawMessage, kind models.SourceKind) models.TrackingResult {
	res := models.TrackingResult{
		SourceKind: kind,
		Events:     []*models.TrackingEvent{},
		Children:   []models.ChildShipment{},
	}

	a := officialAdapter
	if kind.IsFallback() {
		a = fallbackAdapter
	}

	root, ok := a.root(raw)
	if ok {
		res.Events = r.events(a, root)
		for _, child := range root.list(a.Children) {
			res.Children = append(res.Children, models.ChildShipment{
				Reference: a.childRef(child),
				Events:    r.events(a, child),
			})
		}
	}

	res.Summary = summarize(res.Events, res.Children)
	return res
}

func (r *Reconciler) events(a adapter, rec record) []*models.TrackingEvent {
	out := make([]*models.TrackingEvent, 0)
	out = r.appendList(out, rec, a.Main)
	out = r.appendList(out, rec, a.Nodes)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityRank != out[j].PriorityRank {
			return out[i].PriorityRank > out[j].PriorityRank
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > 0 {
		out[0].IsCurrent = true
	}
	return out
}

func (r *Reconciler) appendList(out []*models.TrackingEvent, rec record, ls listSpec) []*models.TrackingEvent {
	for _, item := range rec.list(ls.Field) {
		ts, ok := parseTimestamp(item.str(ls.Fields.Time), r.loc)
		if !ok {
			// Узлы без времени — заглушки будущих этапов, а не события.
			continue
		}
		label := item.str(ls.Fields.Label)
		code := item.str(ls.Fields.Code)
		out = append(out, &models.TrackingEvent{
			Timestamp:    ts,
			StatusCode:   code,
			StatusLabel:  label,
			Location:     item.str(ls.Fields.Location),
			SourceTag:    ls.Tag,
			PriorityRank: Rank(label, code),
		})
	}
	return out
}

func summarize(events []*models.TrackingEvent, children []models.ChildShipment) models.TrackingSummary {
	s := models.TrackingSummary{
		CurrentStatus: statusOf(events),
		TotalEvents:   len(events),
		LastUpdate:    latest(events),
		Children:      make([]models.ChildSummary, 0, len(children)),
	}
	for _, c := range children {
		s.Children = append(s.Children, models.ChildSummary{
			Reference:       c.Reference,
			LatestStatus:    statusOf(c.Events),
			LatestTimestamp: latest(c.Events),
			EventCount:      len(c.Events),
		})
	}
	return s
}

func statusOf(events []*models.TrackingEvent) string {
	if len(events) == 0 {
		return models.TrackingStatusUnknown
	}
	if events[0].StatusLabel != "" {
		return events[0].StatusLabel
	}
	if events[0].StatusCode != "" {
		return events[0].StatusCode
	}
	return models.TrackingStatusUnknown
}

func latest(events []*models.TrackingEvent) *time.Time {
	var newest time.Time
	for _, e := range events {
		if e.Timestamp.After(newest) {
			newest = e.Timestamp
		}
	}
	if newest.IsZero() {
		return nil
	}
	return &newest
}

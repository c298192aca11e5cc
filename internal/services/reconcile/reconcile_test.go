package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/stretchr/testify/require"
)

func TestReconcile_OfficialDeliveredBeatsWarehouse(t *testing.T) {
	raw := json.RawMessage(`{
		"soNum": "ABC123",
		"dataList": [{"time": "2025-03-02 10:00:00", "context": "Delivered to consignee", "location": "Sydney"}],
		"orderNodes": [
			{"nodeTime": "2025-03-01 09:00:00", "nodeName": "Warehouse received"},
			{"nodeTime": "", "nodeName": "Arrived at port"}
		]
	}`)

	res := New(nil).Reconcile(raw, models.SourceOfficial)

	require.Len(t, res.Events, 2)
	cur := res.Current()
	require.Equal(t, "Delivered to consignee", cur.StatusLabel)
	require.Equal(t, RankDelivered, cur.PriorityRank)
	require.Equal(t, "official-dataList", cur.SourceTag)
	require.True(t, cur.IsCurrent)
	require.False(t, res.Events[1].IsCurrent)
	require.Equal(t, RankWarehouse, res.Events[1].PriorityRank)
	require.Equal(t, "official-orderNodes", res.Events[1].SourceTag)

	// 10:00 по UTC+8 — это 02:00 UTC.
	t1 := time.Date(2025, 3, 2, 2, 0, 0, 0, time.UTC)
	require.Equal(t, t1, cur.Timestamp)
	require.NotNil(t, res.Summary.LastUpdate)
	require.Equal(t, t1, *res.Summary.LastUpdate)
	require.Equal(t, "Delivered to consignee", res.Summary.CurrentStatus)
	require.Equal(t, 2, res.Summary.TotalEvents)
}

func TestReconcile_RankBeatsRecency(t *testing.T) {
	raw := json.RawMessage(`{
		"dataList": [
			{"time": "2025-03-05 08:00:00", "context": "Departed from port of loading"},
			{"time": "2025-03-01 08:00:00", "context": "Discharged from vessel"},
			{"time": "2025-03-07 08:00:00", "context": "Customs note"}
		]
	}`)

	res := New(time.UTC).Reconcile(raw, models.SourceOfficial)

	require.Len(t, res.Events, 3)
	require.Equal(t, RankDischarged, res.Events[0].PriorityRank)
	require.Equal(t, RankDeparted, res.Events[1].PriorityRank)
	require.Equal(t, RankOther, res.Events[2].PriorityRank)
	require.Equal(t, time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC), *res.Summary.LastUpdate)
}

func TestReconcile_EstimateDoesNotBecomeCurrent(t *testing.T) {
	raw := json.RawMessage(`{
		"dataList": [
			{"time": "2025-03-01 08:00:00", "context": "Departed from port"},
			{"time": "2025-03-09 08:00:00", "context": "预计送达"},
			{"time": "2025-03-10 08:00:00", "context": "Not delivered"}
		]
	}`)

	res := New(nil).Reconcile(raw, models.SourceOfficial)

	require.Len(t, res.Events, 3)
	require.Equal(t, "Departed from port", res.Current().StatusLabel)
	require.Equal(t, RankDeparted, res.Current().PriorityRank)
	require.Equal(t, "Departed from port", res.Summary.CurrentStatus)
	require.Equal(t, RankEstimated, res.Events[1].PriorityRank)
	require.Equal(t, RankOther, res.Events[2].PriorityRank)
}

func TestReconcile_SameRankNewestFirst(t *testing.T) {
	raw := json.RawMessage(`{
		"dataList": [
			{"time": "2025-03-01T08:00:00Z", "context": "Scan A"},
			{"time": "2025-03-03T08:00:00Z", "context": "Scan B"},
			{"time": "2025-03-02T08:00:00Z", "context": "Scan C"}
		]
	}`)

	res := New(nil).Reconcile(raw, models.SourceOfficial)

	got := []string{}
	for _, e := range res.Events {
		got = append(got, e.StatusLabel)
	}
	require.Equal(t, []string{"Scan B", "Scan C", "Scan A"}, got)
}

func TestReconcile_Deterministic(t *testing.T) {
	raw := json.RawMessage(`{
		"dataList": [
			{"time": "2025-03-01 08:00", "context": "Booking confirmed"},
			{"time": "2025-03-01 08:00", "context": "Booked again"},
			{"time": 1740816000000, "context": "已到港"}
		],
		"orderNodes": [{"nodeTime": "2025-03-01", "nodeName": "预计到达"}]
	}`)

	r := New(nil)
	first, err := json.Marshal(r.Reconcile(raw, models.SourceOfficial))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(r.Reconcile(raw, models.SourceOfficial))
		require.NoError(t, err)
		require.JSONEq(t, string(first), string(again))
	}
}

func TestReconcile_DropsUnparseableTimestamps(t *testing.T) {
	raw := json.RawMessage(`{
		"dataList": [
			{"time": "not a date", "context": "Delivered"},
			{"context": "Delivered"},
			{"time": null, "context": "Delivered"}
		],
		"orderNodes": [{"nodeTime": "", "nodeName": "Delivered"}]
	}`)

	res := New(nil).Reconcile(raw, models.SourceOfficial)

	require.Empty(t, res.Events)
	require.Equal(t, models.TrackingStatusUnknown, res.Summary.CurrentStatus)
	require.Nil(t, res.Summary.LastUpdate)
}

func TestReconcile_EmptyPayloads(t *testing.T) {
	for _, raw := range []string{``, `null`, `[]`, `{}`, `"text"`, `{"dataList": "oops"}`} {
		res := New(nil).Reconcile(json.RawMessage(raw), models.SourceOfficial)
		require.NotNil(t, res.Events, raw)
		require.Empty(t, res.Events, raw)
		require.Empty(t, res.Children, raw)
		require.Equal(t, models.TrackingStatusUnknown, res.Summary.CurrentStatus, raw)
		require.Equal(t, 0, res.Summary.TotalEvents, raw)
	}
}

func TestReconcile_FallbackWrappedWithChildren(t *testing.T) {
	raw := json.RawMessage(`{
		"code": 200,
		"description": "success",
		"data": {
			"trackingRef": "JOB-1",
			"trackings": [{"eventTime": "2025-04-01 12:00:00", "eventCode": "DEP", "eventDescription": "Departed", "eventLocation": "Shanghai"}],
			"headNodes": [
				{"nodeTime": "2025-04-03 12:00:00", "nodeName": "ETA Sydney"},
				{"nodeTime": "", "nodeName": "Delivered"}
			],
			"subTrackings": [
				{"trackingRef": "JOB-1-A", "trackings": [
					{"eventTime": "2025-04-02 09:00:00", "eventDescription": "Arrived at port"},
					{"eventTime": "2025-04-05 09:00:00", "eventDescription": "Signed"}
				]},
				{"trackingRef": "JOB-1-B", "trackings": []}
			]
		}
	}`)

	res := New(nil).Reconcile(raw, models.FallbackSource("B"))

	require.Equal(t, models.FallbackSource("B"), res.SourceKind)
	require.Len(t, res.Events, 2)
	require.Equal(t, "Departed", res.Events[0].StatusLabel)
	require.Equal(t, "DEP", res.Events[0].StatusCode)
	require.Equal(t, "Shanghai", res.Events[0].Location)
	require.Equal(t, "fallback-trackings", res.Events[0].SourceTag)
	require.Equal(t, RankEstimated, res.Events[1].PriorityRank)
	require.Equal(t, "fallback-headNodes", res.Events[1].SourceTag)

	// Дочерние события не попадают в основную ленту.
	require.Len(t, res.Children, 2)
	require.Equal(t, "JOB-1-A", res.Children[0].Reference)
	require.Len(t, res.Children[0].Events, 2)

	require.Len(t, res.Summary.Children, 2)
	a := res.Summary.Children[0]
	require.Equal(t, "JOB-1-A", a.Reference)
	require.Equal(t, "Signed", a.LatestStatus)
	require.Equal(t, 2, a.EventCount)
	require.Equal(t, time.Date(2025, 4, 5, 1, 0, 0, 0, time.UTC), *a.LatestTimestamp)

	b := res.Summary.Children[1]
	require.Equal(t, models.TrackingStatusUnknown, b.LatestStatus)
	require.Nil(t, b.LatestTimestamp)
	require.Equal(t, 0, b.EventCount)
}

func TestReconcile_FallbackUnwrappedBody(t *testing.T) {
	raw := json.RawMessage(`{"trackings": [{"eventTime": "2025-04-01T12:00:00+08:00", "eventDescription": "Vessel departed"}]}`)

	res := New(nil).Reconcile(raw, models.FallbackSource("A"))

	require.Len(t, res.Events, 1)
	require.Equal(t, RankDeparted, res.Events[0].PriorityRank)
	require.Equal(t, time.Date(2025, 4, 1, 4, 0, 0, 0, time.UTC), res.Events[0].Timestamp)
}

func TestReconcile_OfficialIgnoresFallbackFields(t *testing.T) {
	raw := json.RawMessage(`{"trackings": [{"eventTime": "2025-04-01 12:00:00", "eventDescription": "Departed"}]}`)

	res := New(nil).Reconcile(raw, models.SourceOfficial)
	require.Empty(t, res.Events)
}

func TestRank(t *testing.T) {
	cases := []struct {
		label string
		code  string
		want  int
	}{
		{label: "DELIVERED", want: RankDelivered},
		{label: "Signed", want: RankDelivered},
		{label: "Re-assigned to driver", want: RankOther},
		{label: "已签收", want: RankDelivered},
		{label: "Delivery appointment booked", want: RankAppointment},
		{label: "Container picked up from terminal", want: RankTerminal},
		{label: "已提柜", want: RankTerminal},
		{label: "Discharged", want: RankDischarged},
		{label: "Arrived at port of discharge", want: RankArrived},
		{label: "到港", want: RankArrived},
		{label: "Vessel departed", want: RankDeparted},
		{label: "ETA: 2025-05-01", want: RankEstimated},
		{label: "Shipment details updated", want: RankOther},
		{label: "Warehouse inbound", want: RankWarehouse},
		{label: "已入库", want: RankWarehouse},
		{label: "Booking confirmed", want: RankBooking},
		{label: "", code: "delivered", want: RankDelivered},
		{label: "", code: "", want: RankOther},
		{label: "Customs hold", want: RankOther},
		{label: "预计送达", want: RankEstimated},
		{label: "Estimated delivery", want: RankEstimated},
		{label: "ETA delivered", want: RankEstimated},
		{label: "预计到港", want: RankEstimated},
		{label: "Not delivered", want: RankOther},
		{label: "Undelivered, returned to depot", want: RankOther},
		{label: "Delivery failed", want: RankOther},
		{label: "未签收", want: RankOther},
		{label: "Unloaded at CFS", want: RankDischarged},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Rank(tc.label, tc.code), tc.label)
	}
}

func TestParseTimestamp(t *testing.T) {
	loc := DefaultLocation
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{in: "2025-01-02T03:04:05Z", want: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ok: true},
		{in: "2025-01-02 11:04:05", want: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ok: true},
		{in: "2025-01-02T11:04:05", want: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ok: true},
		{in: "2025-01-02 11:04", want: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC), ok: true},
		{in: "2025-01-02", want: time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC), ok: true},
		{in: "1735787045000", want: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ok: true},
		{in: "1735787045", want: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ok: true},
		{in: "", ok: false},
		{in: "yesterday", ok: false},
		{in: "-5", ok: false},
	}
	for _, tc := range cases {
		got, ok := parseTimestamp(tc.in, loc)
		require.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			require.True(t, tc.want.Equal(got), "%s: got %s", tc.in, got)
		}
	}
}

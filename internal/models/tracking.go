package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Статус, который отдаётся, когда ни один источник не дал событий.
const TrackingStatusUnknown = "unknown"

const (
	ReferenceMinLen = 3
	ReferenceMaxLen = 30
)

var referenceRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

var (
	ErrReferenceRequired = errors.New("reference is required")
	ErrReferenceLength   = errors.New("reference must be 3-30 characters long")
	ErrReferenceCharset  = errors.New("reference may contain only letters, digits and hyphens")
)

// SourceKind: "official" или "fallback:<tenantId>".
type SourceKind string

const SourceOfficial SourceKind = "official"

const fallbackPrefix = "fallback:"

func FallbackSource(tenantID string) SourceKind {
	return SourceKind(fallbackPrefix + tenantID)
}

func (k SourceKind) IsOfficial() bool { return k == SourceOfficial }

func (k SourceKind) IsFallback() bool { return strings.HasPrefix(string(k), fallbackPrefix) }

// TenantID возвращает id тенанта для fallback-источника, иначе "".
func (k SourceKind) TenantID() string {
	if !k.IsFallback() {
		return ""
	}
	return strings.TrimPrefix(string(k), fallbackPrefix)
}

type TrackingQuery struct {
	Reference  string
	TenantHint string
}

// NormalizeReference обрезает пробелы по краям и проверяет длину и алфавит.
func NormalizeReference(raw string) (string, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return "", ErrReferenceRequired
	}
	if len(ref) < ReferenceMinLen || len(ref) > ReferenceMaxLen {
		return "", ErrReferenceLength
	}
	if !referenceRe.MatchString(ref) {
		return "", ErrReferenceCharset
	}
	return ref, nil
}

type TrackingEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	StatusCode   string    `json:"statusCode,omitempty"`
	StatusLabel  string    `json:"statusLabel"`
	Location     string    `json:"location,omitempty"`
	SourceTag    string    `json:"sourceTag"`
	PriorityRank int       `json:"priorityRank"`
	IsCurrent    bool      `json:"isCurrent"`
}

type ChildSummary struct {
	Reference       string     `json:"reference"`
	LatestStatus    string     `json:"latestStatus"`
	LatestTimestamp *time.Time `json:"latestTimestamp,omitempty"`
	EventCount      int        `json:"eventCount"`
}

type TrackingSummary struct {
	CurrentStatus string         `json:"currentStatus"`
	TotalEvents   int            `json:"totalEvents"`
	LastUpdate    *time.Time     `json:"lastUpdate,omitempty"`
	Children      []ChildSummary `json:"children"`
}

// ChildShipment — события дочерней отправки (subTracking), хранятся отдельно от основного списка.
type ChildShipment struct {
	Reference string           `json:"reference"`
	Events    []*TrackingEvent `json:"events"`
}

type TrackingResult struct {
	Reference  string           `json:"reference"`
	SourceKind SourceKind       `json:"sourceKind"`
	Events     []*TrackingEvent `json:"events"`
	Children   []ChildShipment  `json:"children"`
	Summary    TrackingSummary  `json:"summary"`
}

// Current возвращает событие, помеченное текущим, или nil.
func (r *TrackingResult) Current() *TrackingEvent {
	if len(r.Events) == 0 {
		return nil
	}
	return r.Events[0]
}

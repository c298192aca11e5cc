package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/pkg/errors"
)

type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindHTTP        Kind = "http"
	KindEmpty       Kind = "empty"
	KindMalformed   Kind = "malformed"
	KindRejected    Kind = "rejected"
	KindNotFound    Kind = "not_found"
	KindConfig      Kind = "config"
	KindRateLimited Kind = "rate_limited"
)

// Error — ошибка одного апстрима. Endpoint и Err только для логов, клиенту не отдаются.
type Error struct {
	Kind     Kind
	Upstream string
	Endpoint string
	// Status: HTTP-статус ответа или code из тела мягкого отказа.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s upstream: %s", e.Upstream, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Transport: сетевой сбой, таймаут или не-2xx. Только после таких ошибок пробуем зеркало.
func (e *Error) Transport() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork, KindHTTP:
		return true
	}
	return false
}

func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

func IsTransport(err error) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Transport()
}

// Payload — сырое тело от апстрима и его источник.
type Payload struct {
	Source models.SourceKind
	Body   json.RawMessage
}

// FromDoError классифицирует ошибку http.Client.Do.
func FromDoError(name, endpoint string, err error) *Error {
	kind := KindNetwork
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Upstream: name, Endpoint: endpoint, Err: err}
}

// FromStatus возвращает ошибку для не-2xx ответа, nil для 2xx.
func FromStatus(name, endpoint string, resp *http.Response) *Error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	return &Error{Kind: KindHTTP, Upstream: name, Endpoint: endpoint, Status: resp.StatusCode}
}

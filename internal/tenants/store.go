package tenants

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const DefaultSiteConfigKey = "siteConfig"

// loadTimeout ограничивает холодную загрузку конфига из KV.
const loadTimeout = 5 * time.Second

var (
	ErrStoreUnavailable = errors.New("config store unavailable")
	ErrNoUsableTenant   = errors.New("no usable tenant configured")
	ErrUnauthorized     = errors.New("invalid admin token")
	ErrAdminDisabled    = errors.New("admin token is not configured")
)

// KV — долговременное key-value хранилище (Redis или Postgres).
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Notifier сообщает другим инстансам, что конфиг поменялся.
type Notifier interface {
	ConfigUpdated(ctx context.Context, key string) error
}

// Snapshot — загруженный набор тенантов и упорядоченное подмножество пригодных.
type Snapshot struct {
	ByID   map[string]models.Tenant
	Usable []models.Tenant
}

func NewSnapshot(list []models.Tenant) *Snapshot {
	s := &Snapshot{ByID: make(map[string]models.Tenant, len(list))}
	for _, t := range list {
		s.ByID[t.ID] = t
	}
	for _, t := range s.ByID {
		if t.Usable() {
			s.Usable = append(s.Usable, t)
		}
	}
	sort.SliceStable(s.Usable, func(i, j int) bool {
		if s.Usable[i].Priority != s.Usable[j].Priority {
			return s.Usable[i].Priority < s.Usable[j].Priority
		}
		return s.Usable[i].ID < s.Usable[j].ID
	})
	return s
}

type Store struct {
	kv         KV
	key        string
	cache      *Cache
	adminToken string
	notifier   Notifier
	group      singleflight.Group
}

func New(kv KV, cache *Cache, adminToken string) *Store {
	if cache == nil {
		cache = NewCache(0)
	}
	return &Store{kv: kv, key: DefaultSiteConfigKey, cache: cache, adminToken: adminToken}
}

func (s *Store) WithKey(key string) *Store {
	if key != "" {
		s.key = key
	}
	return s
}

func (s *Store) WithNotifier(n Notifier) *Store {
	s.notifier = n
	return s
}

func (s *Store) Key() string { return s.key }

// Invalidate сбрасывает кэш (вызывается после мутации и по сообщению из Kafka).
func (s *Store) Invalidate() { s.cache.Invalidate() }

func (s *Store) GetTenants(ctx context.Context) (map[string]models.Tenant, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Tenant, len(snap.ByID))
	for id, t := range snap.ByID {
		out[id] = t
	}
	return out, nil
}

func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap, ok := s.cache.Get(); ok {
		return snap, nil
	}

	v, err, _ := s.group.Do(s.key, func() (any, error) {
		if snap, ok := s.cache.Get(); ok {
			return snap, nil
		}
		// Загрузку делят все ждущие вызовы, поэтому отмена первого клиента её не обрывает.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		snap, err := s.load(loadCtx)
		if err != nil {
			return nil, err
		}
		s.cache.Set(snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (s *Store) load(ctx context.Context) (*Snapshot, error) {
	b, ok, err := s.readSite(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Пустое хранилище: никаких встроенных ключей, fallback должен упасть явно.
		slog.Warn("site config is empty, no tenants loaded", "key", s.key)
		return NewSnapshot(nil), nil
	}

	doc, err := parseSiteDoc(b)
	if err != nil {
		return nil, errors.Wrap(ErrStoreUnavailable, err.Error())
	}
	raw, err := doc.companies()
	if err != nil {
		return nil, errors.Wrap(ErrStoreUnavailable, err.Error())
	}
	list, err := ParseCompanies(raw)
	if err != nil {
		return nil, errors.Wrap(ErrStoreUnavailable, err.Error())
	}
	snap := NewSnapshot(list)
	slog.Info("tenants loaded", "total", len(snap.ByID), "usable", len(snap.Usable))
	return snap, nil
}

func (s *Store) readSite(ctx context.Context) ([]byte, bool, error) {
	if s.kv == nil {
		return nil, false, errors.Wrap(ErrStoreUnavailable, "kv binding is not configured")
	}
	b, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, false, errors.Wrap(ErrStoreUnavailable, err.Error())
	}
	if !ok || len(bytes.TrimSpace(b)) == 0 {
		return nil, false, nil
	}
	return b, true, nil
}

// Resolve возвращает тенантов в порядке опроса. Пригодный hint идёт первым.
func (s *Store) Resolve(ctx context.Context, hint string) ([]models.Tenant, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap.Usable) == 0 {
		return nil, ErrNoUsableTenant
	}

	out := make([]models.Tenant, 0, len(snap.Usable))
	if t, ok := snap.ByID[hint]; ok && hint != "" && t.Usable() {
		out = append(out, t)
	}
	for _, t := range snap.Usable {
		if len(out) > 0 && t.ID == out[0].ID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// GetSite отдаёт сырой blob конфигурации сайта.
func (s *Store) GetSite(ctx context.Context) (json.RawMessage, bool, error) {
	b, ok, err := s.readSite(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return json.RawMessage(b), true, nil
}

// Authorize сверяет токен администратора за постоянное время.
func (s *Store) Authorize(callerToken string) error {
	if s.adminToken == "" {
		return ErrAdminDisabled
	}
	if subtle.ConstantTimeCompare([]byte(callerToken), []byte(s.adminToken)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// PutTenants заменяет api.companies, сохраняя остальные ключи site config.
func (s *Store) PutTenants(ctx context.Context, list []models.Tenant, callerToken string) error {
	if err := s.Authorize(callerToken); err != nil {
		return err
	}
	for _, t := range list {
		if t.ID == "" {
			return errors.Wrap(ErrInvalidConfig, "company id is required")
		}
	}

	b, _, err := s.readSite(ctx)
	if err != nil {
		return err
	}
	doc, err := parseSiteDoc(b)
	if err != nil {
		// Битый blob перезаписываем, а не блокируем админку.
		slog.Warn("existing site config is unreadable, replacing", "key", s.key, "error", err.Error())
		doc = siteDoc{}
	}
	doc, err = doc.withCompanies(list)
	if err != nil {
		return err
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "marshal site config")
	}
	return s.write(ctx, out)
}

// PutSite сохраняет присланный blob как есть после проверки формата.
func (s *Store) PutSite(ctx context.Context, blob json.RawMessage, callerToken string) error {
	if err := s.Authorize(callerToken); err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.Wrap(ErrInvalidConfig, "site config must be a JSON object")
	}
	doc, err := parseSiteDoc(trimmed)
	if err != nil {
		return err
	}
	raw, err := doc.companies()
	if err != nil {
		return err
	}
	if _, err := ParseCompanies(raw); err != nil {
		return err
	}
	return s.write(ctx, trimmed)
}

func (s *Store) write(ctx context.Context, b []byte) error {
	if s.kv == nil {
		return errors.Wrap(ErrStoreUnavailable, "kv binding is not configured")
	}
	if err := s.kv.Put(ctx, s.key, b); err != nil {
		return errors.Wrap(ErrStoreUnavailable, err.Error())
	}
	s.cache.Invalidate()
	slog.Info("site config updated", "key", s.key)

	if s.notifier != nil {
		if err := s.notifier.ConfigUpdated(ctx, s.key); err != nil {
			// Локальный кэш уже сброшен, остальные инстансы догонят по TTL.
			slog.Error("notify config update", "key", s.key, "error", err.Error())
		}
	}
	return nil
}

package tenants

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/BearBump/TrackProxy/internal/models"
	"github.com/pkg/errors"
)

var ErrInvalidConfig = errors.New("invalid site config")

// companyEntry — запись в api.companies. Поля совпадают с форматом админки.
type companyEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AppKey   string `json:"appKey"`
	AppToken string `json:"appToken"`
	Priority int    `json:"priority"`
	Enabled  *bool  `json:"enabled"`
}

func (c companyEntry) tenant(id string) models.Tenant {
	if c.ID != "" {
		id = c.ID
	}
	// Старые записи без enabled считаем включёнными.
	enabled := true
	if c.Enabled != nil {
		enabled = *c.Enabled
	}
	return models.Tenant{
		ID:       id,
		Name:     c.Name,
		AppKey:   c.AppKey,
		AppToken: c.AppToken,
		Priority: c.Priority,
		Enabled:  enabled,
	}
}

// ParseCompanies разбирает companies в виде массива или объекта {id: {...}}.
func ParseCompanies(raw json.RawMessage) ([]models.Tenant, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var out []models.Tenant
	switch raw[0] {
	case '[':
		var list []companyEntry
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errors.Wrap(ErrInvalidConfig, err.Error())
		}
		for _, c := range list {
			out = append(out, c.tenant(""))
		}
	case '{':
		var byID map[string]companyEntry
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, errors.Wrap(ErrInvalidConfig, err.Error())
		}
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, byID[id].tenant(id))
		}
	default:
		return nil, errors.Wrap(ErrInvalidConfig, "companies must be an array or an object")
	}

	for _, t := range out {
		if t.ID == "" {
			return nil, errors.Wrap(ErrInvalidConfig, "company id is required")
		}
	}
	return out, nil
}

// siteDoc — site config как map, чтобы при записи не терять чужие ключи (site, branding, footer).
type siteDoc map[string]json.RawMessage

func parseSiteDoc(b []byte) (siteDoc, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return siteDoc{}, nil
	}
	var doc siteDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if doc == nil {
		doc = siteDoc{}
	}
	return doc, nil
}

// root возвращает объект, в котором лежит api: либо сам документ, либо вложенный siteConfig.
func (d siteDoc) root() (siteDoc, bool, error) {
	inner, ok := d["siteConfig"]
	if !ok {
		return d, false, nil
	}
	sub, err := parseSiteDoc(inner)
	if err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

func (d siteDoc) companies() (json.RawMessage, error) {
	root, _, err := d.root()
	if err != nil {
		return nil, err
	}
	apiRaw, ok := root["api"]
	if !ok {
		return nil, nil
	}
	var api map[string]json.RawMessage
	if err := json.Unmarshal(apiRaw, &api); err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, "api: "+err.Error())
	}
	return api["companies"], nil
}

// withCompanies подменяет api.companies, сохраняя остальное содержимое и исходную обёртку.
func (d siteDoc) withCompanies(list []models.Tenant) (siteDoc, error) {
	root, wrapped, err := d.root()
	if err != nil {
		return nil, err
	}

	api := map[string]json.RawMessage{}
	if apiRaw, ok := root["api"]; ok {
		if err := json.Unmarshal(apiRaw, &api); err != nil {
			return nil, errors.Wrap(ErrInvalidConfig, "api: "+err.Error())
		}
		if api == nil {
			api = map[string]json.RawMessage{}
		}
	}

	if list == nil {
		list = []models.Tenant{}
	}
	cb, err := json.Marshal(list)
	if err != nil {
		return nil, errors.Wrap(err, "marshal companies")
	}
	api["companies"] = cb

	ab, err := json.Marshal(api)
	if err != nil {
		return nil, errors.Wrap(err, "marshal api")
	}
	newRoot := siteDoc{}
	for k, v := range root {
		newRoot[k] = v
	}
	newRoot["api"] = ab

	if !wrapped {
		return newRoot, nil
	}
	rb, err := json.Marshal(newRoot)
	if err != nil {
		return nil, errors.Wrap(err, "marshal siteConfig")
	}
	out := siteDoc{}
	for k, v := range d {
		out[k] = v
	}
	out["siteConfig"] = rb
	return out, nil
}

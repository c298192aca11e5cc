package models

// Tenant — набор учётных данных для fallback-апстрима (в исходной системе "company").
type Tenant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AppKey   string `json:"appKey"`
	AppToken string `json:"appToken"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

// Usable: включён и оба секрета заданы.
func (t Tenant) Usable() bool {
	return t.Enabled && t.AppKey != "" && t.AppToken != ""
}

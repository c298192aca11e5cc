package reconcile

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// fieldMap — какие поля записи апстрима дают время, код, метку и место.
type fieldMap struct {
	Time     string
	Code     string
	Label    string
	Location string
}

type listSpec struct {
	Field  string
	Tag    string
	Fields fieldMap
}

// adapter описывает форму ответа одного апстрима. Вся информация "какое поле что значит" живёт здесь.
type adapter struct {
	Main     listSpec
	Nodes    listSpec
	Children string
	ChildRef []string
	// Unwrap: ответ может быть завёрнут в {code, description, data:{...}}.
	Unwrap bool
}

var officialAdapter = adapter{
	Main: listSpec{
		Field:  "dataList",
		Tag:    "official-dataList",
		Fields: fieldMap{Time: "time", Code: "status", Label: "context", Location: "location"},
	},
	Nodes: listSpec{
		Field:  "orderNodes",
		Tag:    "official-orderNodes",
		Fields: fieldMap{Time: "nodeTime", Code: "nodeCode", Label: "nodeName", Location: "nodeLocation"},
	},
	Children: "subTrackings",
	ChildRef: []string{"soNum", "trackingNum"},
}

var fallbackAdapter = adapter{
	Main: listSpec{
		Field:  "trackings",
		Tag:    "fallback-trackings",
		Fields: fieldMap{Time: "eventTime", Code: "eventCode", Label: "eventDescription", Location: "eventLocation"},
	},
	Nodes: listSpec{
		Field:  "headNodes",
		Tag:    "fallback-headNodes",
		Fields: fieldMap{Time: "nodeTime", Code: "nodeCode", Label: "nodeName", Location: "location"},
	},
	Children: "subTrackings",
	ChildRef: []string{"trackingRef", "soNum"},
	Unwrap:   true,
}

type record map[string]json.RawMessage

// str читает поле как строку. Числа отдаются в десятичном виде (epoch ms, числовые коды).
func (r record) str(field string) string {
	raw := bytes.TrimSpace(r[field])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

func (r record) list(field string) []record {
	raw := bytes.TrimSpace(r[field])
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]record, 0, len(items))
	for _, it := range items {
		var rec record
		if err := json.Unmarshal(it, &rec); err != nil || rec == nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func decodeRecord(raw []byte) (record, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
		return nil, false
	}
	return rec, true
}

// root снимает обёртку {code, description, data:{...}}, если адаптер её ожидает.
func (a adapter) root(raw []byte) (record, bool) {
	rec, ok := decodeRecord(raw)
	if !ok {
		return nil, false
	}
	if !a.Unwrap {
		return rec, true
	}
	if _, has := rec[a.Main.Field]; has {
		return rec, true
	}
	if inner, ok := decodeRecord(rec["data"]); ok {
		return inner, true
	}
	return rec, true
}

func (a adapter) childRef(rec record) string {
	for _, f := range a.ChildRef {
		if v := rec.str(f); v != "" {
			return v
		}
	}
	return ""
}

package reconcile

import "strings"

const (
	RankDelivered   = 100
	RankAppointment = 90
	RankTerminal    = 80
	RankDischarged  = 70
	RankArrived     = 60
	RankDeparted    = 50
	RankEstimated   = 40
	RankWarehouse   = 30
	RankBooking     = 20
	RankOther       = 10
)

type rankRule struct {
	rank     int
	keywords []string
	// words сравниваются с отдельными словами метки, чтобы "eta" не ловилось внутри "details".
	words []string
	// negatable: правило не срабатывает на метках с отрицанием ("not delivered", "未签收").
	negatable bool
}

// Прогноз проверяется раньше всех правил: "预计送达" и "ETA delivered" — ещё не доставка.
var estimateRule = rankRule{rank: RankEstimated, keywords: []string{"estimated", "预计"}, words: []string{"eta", "etd"}}

var negationRule = rankRule{keywords: []string{"undeliver", "unsuccessful", "fail", "未", "失败", "拒收"}, words: []string{"not", "never"}}

// Порядок важен: проверяем от старшего ранга к младшему.
var rankRules = []rankRule{
	{rank: RankDelivered, keywords: []string{"delivered", "actual delivery", "signed for", "collected", "签收", "送达", "妥投", "已交付"}, words: []string{"signed", "pod"}, negatable: true},
	{rank: RankAppointment, keywords: []string{"appointment", "预约"}},
	{rank: RankTerminal, keywords: []string{"picked up from terminal", "pickup from terminal", "terminal pickup", "提柜", "码头提货"}},
	{rank: RankDischarged, keywords: []string{"discharged", "unloaded", "devanned", "卸船", "卸柜", "拆柜"}},
	{rank: RankArrived, keywords: []string{"arrived at port", "arrival at port", "port arrival", "vessel arrived", "到港", "抵港"}},
	{rank: RankDeparted, keywords: []string{"departed", "departure", "sailed", "离港", "开船", "开航"}},
	{rank: RankWarehouse, keywords: []string{"warehouse", "入仓", "入库", "仓库"}},
	{rank: RankBooking, keywords: []string{"booking", "booked", "picked up from shipper", "pickup from shipper", "订舱", "揽收"}},
}

// Rank возвращает ранг события по метке (или коду, если метки нет).
func Rank(label, code string) int {
	s := label
	if strings.TrimSpace(s) == "" {
		s = code
	}
	low := strings.ToLower(s)
	if low == "" {
		return RankOther
	}

	words := splitWords(low)
	if estimateRule.matches(low, words) {
		return RankEstimated
	}
	negated := negationRule.matches(low, words)
	for _, r := range rankRules {
		if r.negatable && negated {
			continue
		}
		if r.matches(low, words) {
			return r.rank
		}
	}
	return RankOther
}

func (r rankRule) matches(low string, words map[string]struct{}) bool {
	for _, kw := range r.keywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	for _, w := range r.words {
		if _, ok := words[w]; ok {
			return true
		}
	}
	return false
}

func splitWords(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		out[w] = struct{}{}
	}
	return out
}

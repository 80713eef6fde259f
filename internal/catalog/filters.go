package catalog

import (
	"regexp"
	"strings"
)

// RejectReason names the post-filter that dropped an item.
type RejectReason string

const (
	RejectNone     RejectReason = ""
	RejectNonBook  RejectReason = "non_book"
	RejectStatus   RejectReason = "status"
	RejectPrice    RejectReason = "price"
	RejectExcluded RejectReason = "excluded_content"
	RejectMissing  RejectReason = "missing_fields"
)

// FilterConfig holds the heuristics applied to every normalized product.
type FilterConfig struct {
	NonBookKeywords  []string
	ExcludedKeywords []string
	MinPrice         float64
	MaxPrice         float64
	// AllowedStatuses applies only when the product reports a status.
	AllowedStatuses []string
}

var agePattern = regexp.MustCompile(`\d+\s*\+\s*лет|\d+\s*[-–—]\s*\d+\s*лет`)

// DefaultFilters returns the production heuristics.
func DefaultFilters() FilterConfig {
	return FilterConfig{
		NonBookKeywords: []string{
			"игра", "игрушка", "конструктор", "пазл", "кубики", "тетрадь", "блокнот",
			"планнер", "ежедневник", "записная книжка", "канцтовары", "офисные товары",
		},
		ExcludedKeywords: []string{
			// children's goods
			"для детей", "детская", "детские", "дошкольник", "дошкольная", "дошкольное",
			"малыш", "малыша", "ребенок", "детский", "детского", "детских",
			"книжка-картинка", "книжка с картинками", "раскраска", "раскраски",
			"прописи", "пропись", "азбука", "букварь", "слог", "слоги",
			// games and toys
			"игра", "игры", "игрушка", "игрушки", "пазл", "пазлы", "конструктор",
			"кубики", "мягкая игрушка", "плюшевый", "плюшевая", "плюшевое",
			"настольная игра", "настольные игры", "детская игра", "детские игры",
			// stationery
			"тетрадь", "тетради", "планнер", "планнеры", "ежедневник", "ежедневники",
			"блокнот", "блокноты", "записная книжка", "записные книжки",
			"канцтовары", "канцелярские товары", "офисные товары",
			// early-learning materials
			"развивающая", "развивающие", "для развития", "обучающая", "обучающие",
			"развивающая игра", "развивающие игры", "обучающая игра", "обучающие игры",
		},
		MinPrice:        50,
		MaxPrice:        5000,
		AllowedStatuses: []string{"canBuy", "preOrder", "offline"},
	}
}

// check runs the filters in order and returns the first one that rejects.
func (f FilterConfig) check(title, author string, price float64, status *string) RejectReason {
	lowerTitle := strings.ToLower(title)

	if containsAny(lowerTitle, f.NonBookKeywords) {
		return RejectNonBook
	}
	if status != nil && *status != "" && !contains(f.AllowedStatuses, *status) {
		return RejectStatus
	}
	if price < f.MinPrice || price > f.MaxPrice {
		return RejectPrice
	}
	text := strings.ToLower(title + " " + author)
	if containsAny(text, f.ExcludedKeywords) || agePattern.MatchString(text) {
		return RejectExcluded
	}
	if strings.TrimSpace(title) == "" || price <= 0 {
		return RejectMissing
	}
	return RejectNone
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

package config

// RelevanceConfig captures the keyword gate for polled sources and the
// priority directions used by the ranker. Both can be customized via
// config.yaml; empty file values keep the baked-in defaults.
type RelevanceConfig struct {
	Keywords           []string `json:"keywords" yaml:"keywords"`
	PriorityDirections []string `json:"priority_directions" yaml:"priority_directions"`
}

var defaultKeywords = []string{
	"грант",
	"конкурс",
	"субсиди",
	"финансирован",
	"поддержк",
	"нириокр",
	"ниокр",
	"стипенди",
	"фонд",
	"grant",
	"funding",
	"competition",
}

var defaultDirections = []string{
	"транспортные системы",
	"суперкомпьютерные технологии",
	"биомедицинские технологии",
	"химические технологии",
	"новые материалы",
	"машиностроение",
	"космические технологии",
	"оборонные технологии",
	"цифровые технологии",
	"энергетическое машиностроение",
}

// DefaultRelevance returns the baked-in keyword and direction defaults.
func DefaultRelevance() RelevanceConfig {
	return RelevanceConfig{
		Keywords:           append([]string{}, defaultKeywords...),
		PriorityDirections: append([]string{}, defaultDirections...),
	}
}

// MergeRelevance overlays non-empty override lists onto the base config.
func MergeRelevance(base, override RelevanceConfig) RelevanceConfig {
	if len(override.Keywords) > 0 {
		base.Keywords = append([]string{}, override.Keywords...)
	}
	if len(override.PriorityDirections) > 0 {
		base.PriorityDirections = append([]string{}, override.PriorityDirections...)
	}
	return base
}

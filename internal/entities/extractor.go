package entities

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rapbattles/batalla/internal/fuzzy"
	"github.com/rapbattles/batalla/internal/reference"
	"github.com/rapbattles/batalla/internal/textnorm"
)

const (
	KeyPersonAKA  = "person_aka"
	KeyCountry    = "country"
	KeyEventType  = "event_type"
	KeyPhase      = "phase"
	KeyEventName  = "event_name"
	KeyEventPlace = "event_place"
	KeyEventCity  = "event_city"
	KeyYear       = "year"
	KeyActive     = "active"
)

type Method string

const (
	MethodExact   Method = "exact"
	MethodSynonym Method = "synonym"
	MethodFuzzy   Method = "fuzzy"
	MethodKeyword Method = "keyword"
	MethodPattern Method = "pattern"
)

const (
	DefaultPersonThreshold  = 80
	DefaultCountryThreshold = 85

	minFuzzyRunes = 3
	minPlaceRunes = 4
	maxNgram      = 3
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

type Match struct {
	Entity string  `json:"entity"`
	Value  string  `json:"value"`
	Input  string  `json:"input"`
	Method Method  `json:"method"`
	Score  float64 `json:"score"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

type Result struct {
	Original   string            `json:"original"`
	Normalized string            `json:"normalized"`
	Entities   map[string]string `json:"entities"`
	Matches    []Match           `json:"matches"`
}

type Config struct {
	PersonThreshold  float64
	CountryThreshold float64
}

type Extractor struct {
	vocab            *Vocabulary
	personThreshold  float64
	countryThreshold float64
}

func NewExtractor(vocab *Vocabulary, cfg Config) *Extractor {
	if cfg.PersonThreshold <= 0 {
		cfg.PersonThreshold = DefaultPersonThreshold
	}
	if cfg.CountryThreshold <= 0 {
		cfg.CountryThreshold = DefaultCountryThreshold
	}
	if vocab == nil {
		vocab = &Vocabulary{stopwords: map[string]struct{}{}}
	}
	return &Extractor{vocab: vocab, personThreshold: cfg.PersonThreshold, countryThreshold: cfg.CountryThreshold}
}

// Extract infers structured entities from a free-text question. Keyword and
// exact reference hits are found first; the remaining words are then
// fuzzy-matched against person aliases and countries.
func (e *Extractor) Extract(query string, refs reference.Values) Result {
	normalized := textnorm.Normalize(query)
	run := &extraction{
		normalized: normalized,
		tokens:     textnorm.Tokens(normalized),
		result: Result{
			Original:   query,
			Normalized: normalized,
			Entities:   map[string]string{},
		},
	}
	if normalized == "" {
		return run.result
	}

	run.keyword(KeyEventType, e.vocab.eventTypes)
	run.keyword(KeyPhase, e.vocab.phases)
	run.keyword(KeyActive, e.vocab.active)
	run.year()
	run.reference(KeyEventName, refs.EventNames, 1)
	run.reference(KeyEventPlace, refs.EventPlaces, minPlaceRunes)
	run.reference(KeyEventCity, refs.EventCities, minPlaceRunes)
	run.reference(KeyCountry, refs.Countries, 1)
	e.countrySynonym(run, refs.Countries)
	run.reference(KeyPersonAKA, refs.PersonAKAs, 1)

	if _, ok := run.result.Entities[KeyPersonAKA]; !ok {
		run.fuzzy(KeyPersonAKA, refs.PersonAKAs, e.personThreshold, e.vocab, nil)
	}
	if _, ok := run.result.Entities[KeyCountry]; !ok {
		choices := mergeChoices(refs.Countries, e.vocab.CountryNames())
		run.fuzzy(KeyCountry, choices, e.countryThreshold, e.vocab, func(value string) string {
			return e.resolveCountry(value, refs.Countries)
		})
	}

	sort.SliceStable(run.result.Matches, func(i, j int) bool {
		return run.result.Matches[i].Start < run.result.Matches[j].Start
	})
	return run.result
}

func (e *Extractor) countrySynonym(run *extraction, refCountries []string) {
	if _, ok := run.result.Entities[KeyCountry]; ok {
		return
	}
	for _, kw := range e.vocab.countries {
		start, end, ok := textnorm.FindWord(run.normalized, kw.Variant)
		if !ok {
			continue
		}
		method := MethodSynonym
		if kw.Variant == kw.Value {
			method = MethodKeyword
		}
		run.record(Match{
			Entity: KeyCountry,
			Value:  e.resolveCountry(kw.Value, refCountries),
			Input:  kw.Variant,
			Method: method,
			Score:  100,
			Start:  start,
			End:    end,
		})
		return
	}
}

// resolveCountry prefers the spelling the database uses for a canonical
// country, e.g. "spain" when the events table stores English names.
func (e *Extractor) resolveCountry(value string, refCountries []string) string {
	if len(refCountries) == 0 {
		return value
	}
	entry, ok := e.vocab.country(value)
	if !ok {
		return value
	}
	candidates := append([]string{entry.Name}, entry.Variants...)
	for _, candidate := range candidates {
		if containsString(refCountries, candidate) {
			return candidate
		}
	}
	return value
}

type extraction struct {
	normalized string
	tokens     []textnorm.Token
	consumed   [][2]int
	result     Result
}

func (x *extraction) record(match Match) {
	if _, exists := x.result.Entities[match.Entity]; exists {
		return
	}
	x.result.Entities[match.Entity] = match.Value
	x.result.Matches = append(x.result.Matches, match)
	x.consumed = append(x.consumed, [2]int{match.Start, match.End})
}

func (x *extraction) keyword(entity string, keywords []keyword) {
	for _, kw := range keywords {
		start, end, ok := textnorm.FindWord(x.normalized, kw.Variant)
		if !ok {
			continue
		}
		x.record(Match{Entity: entity, Value: kw.Value, Input: kw.Variant, Method: MethodKeyword, Score: 100, Start: start, End: end})
		return
	}
}

func (x *extraction) year() {
	loc := yearPattern.FindStringIndex(x.normalized)
	if loc == nil {
		return
	}
	value := x.normalized[loc[0]:loc[1]]
	x.record(Match{Entity: KeyYear, Value: value, Input: value, Method: MethodPattern, Score: 100, Start: loc[0], End: loc[1]})
}

// reference records the longest choice found verbatim on word boundaries,
// the earliest one in the text when several have the same length.
func (x *extraction) reference(entity string, choices []string, minRunes int) {
	if _, ok := x.result.Entities[entity]; ok {
		return
	}
	var best *Match
	for _, choice := range choices {
		if utf8.RuneCountInString(choice) < minRunes {
			continue
		}
		start, end, ok := textnorm.FindWord(x.normalized, choice)
		if !ok {
			continue
		}
		if best != nil && (len(choice) < len(best.Value) || (len(choice) == len(best.Value) && start >= best.Start)) {
			continue
		}
		best = &Match{Entity: entity, Value: choice, Input: choice, Method: MethodExact, Score: 100, Start: start, End: end}
	}
	if best != nil {
		x.record(*best)
	}
}

// fuzzy walks the unconsumed word n-grams in text order and records the
// first one that corrects to a different choice with the same word count.
// Multi-word candidates may carry short words ("el menor") as long as one
// word is meaningful on its own.
func (x *extraction) fuzzy(entity string, choices []string, threshold float64, vocab *Vocabulary, resolve func(string) string) {
	if len(choices) == 0 {
		return
	}
	byWords := map[int][]string{}
	for _, choice := range choices {
		words := len(strings.Fields(choice))
		if words > maxNgram {
			continue
		}
		byWords[words] = append(byWords[words], choice)
	}

	for i := range x.tokens {
		for n := maxNgram; n >= 1; n-- {
			if i+n > len(x.tokens) || len(byWords[n]) == 0 {
				continue
			}
			gram := x.tokens[i : i+n]
			if !x.eligible(gram, vocab) {
				continue
			}
			start, end := gram[0].Start, gram[n-1].End
			candidate := joinTokens(gram)
			corrected, score, ok := fuzzy.Lookup(candidate, byWords[n], threshold)
			if !ok || corrected == candidate {
				continue
			}
			if resolve != nil {
				corrected = resolve(corrected)
			}
			x.record(Match{Entity: entity, Value: corrected, Input: candidate, Method: MethodFuzzy, Score: score, Start: start, End: end})
			return
		}
	}
}

func (x *extraction) eligible(gram []textnorm.Token, vocab *Vocabulary) bool {
	meaningful := false
	for _, token := range gram {
		if x.isConsumed(token.Start, token.End) {
			return false
		}
		if isNumeric(token.Text) {
			return false
		}
		if utf8.RuneCountInString(token.Text) >= minFuzzyRunes && !vocab.IsStopword(token.Text) {
			meaningful = true
		}
	}
	return meaningful
}

func (x *extraction) isConsumed(start, end int) bool {
	for _, span := range x.consumed {
		if start < span[1] && end > span[0] {
			return true
		}
	}
	return false
}

func joinTokens(tokens []textnorm.Token) string {
	parts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		parts = append(parts, token.Text)
	}
	return strings.Join(parts, " ")
}

func isNumeric(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func mergeChoices(primary, extra []string) []string {
	out := append([]string(nil), primary...)
	for _, value := range extra {
		if !containsString(out, value) {
			out = append(out, value)
		}
	}
	return out
}

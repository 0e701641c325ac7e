package entities

import (
	_ "embed"
	"fmt"
	"io/fs"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rapbattles/batalla/internal/textnorm"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

type CountryEntry struct {
	Name     string   `yaml:"name"`
	Variants []string `yaml:"variants"`
}

type vocabularyFile struct {
	Countries  []CountryEntry      `yaml:"countries"`
	EventTypes map[string][]string `yaml:"event_types"`
	Phases     map[string][]string `yaml:"phases"`
	Active     map[string][]string `yaml:"active"`
	Stopwords  []string            `yaml:"stopwords"`
}

type keyword struct {
	Value   string
	Variant string
}

type Vocabulary struct {
	Countries  []CountryEntry
	eventTypes []keyword
	phases     []keyword
	active     []keyword
	countries  []keyword
	stopwords  map[string]struct{}
}

func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(defaultVocabulary)
}

func LoadVocabulary(fsys fs.FS, name string) (*Vocabulary, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %q: %w", name, err)
	}
	return ParseVocabulary(data)
}

func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var raw vocabularyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}

	vocab := &Vocabulary{stopwords: map[string]struct{}{}}
	for i, entry := range raw.Countries {
		name := textnorm.Normalize(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("country entry %d has no name", i)
		}
		normalized := CountryEntry{Name: name}
		vocab.countries = append(vocab.countries, keyword{Value: name, Variant: name})
		for _, variant := range entry.Variants {
			variant = textnorm.Normalize(variant)
			if variant == "" || variant == name {
				continue
			}
			normalized.Variants = append(normalized.Variants, variant)
			vocab.countries = append(vocab.countries, keyword{Value: name, Variant: variant})
		}
		vocab.Countries = append(vocab.Countries, normalized)
	}
	vocab.eventTypes = flattenKeywords(raw.EventTypes)
	vocab.phases = flattenKeywords(raw.Phases)
	vocab.active = flattenKeywords(raw.Active)
	for _, word := range raw.Stopwords {
		if word = textnorm.Normalize(word); word != "" {
			vocab.stopwords[word] = struct{}{}
		}
	}
	sortLongestFirst(vocab.countries)
	return vocab, nil
}

func (v *Vocabulary) IsStopword(word string) bool {
	_, ok := v.stopwords[word]
	return ok
}

func (v *Vocabulary) CountryNames() []string {
	names := make([]string, 0, len(v.Countries))
	for _, entry := range v.Countries {
		names = append(names, entry.Name)
	}
	return names
}

func (v *Vocabulary) country(name string) (CountryEntry, bool) {
	for _, entry := range v.Countries {
		if entry.Name == name {
			return entry, true
		}
	}
	return CountryEntry{}, false
}

func flattenKeywords(groups map[string][]string) []keyword {
	var out []keyword
	for value, variants := range groups {
		value = textnorm.Normalize(value)
		if value == "" {
			continue
		}
		out = append(out, keyword{Value: value, Variant: value})
		for _, variant := range variants {
			variant = textnorm.Normalize(variant)
			if variant == "" || variant == value {
				continue
			}
			out = append(out, keyword{Value: value, Variant: variant})
		}
	}
	sortLongestFirst(out)
	return out
}

// sortLongestFirst orders keywords so that "cuartos de final" is tried before
// "final" and "semifinal" before "final".
func sortLongestFirst(keywords []keyword) {
	sort.SliceStable(keywords, func(i, j int) bool {
		if len(keywords[i].Variant) != len(keywords[j].Variant) {
			return len(keywords[i].Variant) > len(keywords[j].Variant)
		}
		return keywords[i].Variant < keywords[j].Variant
	})
}

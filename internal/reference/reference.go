package reference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rapbattles/batalla/internal/textnorm"
)

type Field struct {
	Table  string
	Column string
}

func (f Field) String() string {
	return f.Table + "." + f.Column
}

var (
	FieldPersonAKA     = Field{Table: "persons", Column: "aka"}
	FieldPersonCountry = Field{Table: "persons", Column: "country"}
	FieldEventCountry  = Field{Table: "events", Column: "country"}
	FieldEventName     = Field{Table: "events", Column: "name"}
	FieldEventPlace    = Field{Table: "events", Column: "place"}
	FieldEventCity     = Field{Table: "events", Column: "city"}
)

var Fields = []Field{
	FieldPersonAKA,
	FieldPersonCountry,
	FieldEventCountry,
	FieldEventName,
	FieldEventPlace,
	FieldEventCity,
}

var ErrUnknownField = errors.New("unknown reference field")

// Values is an immutable snapshot of the reference corpus. Every list is
// normalized, deduplicated and sorted.
type Values struct {
	PersonAKAs  []string  `json:"person_akas"`
	Countries   []string  `json:"countries"`
	EventNames  []string  `json:"event_names"`
	EventPlaces []string  `json:"event_places"`
	EventCities []string  `json:"event_cities"`
	LoadedAt    time.Time `json:"loaded_at"`
}

func (v Values) Loaded() bool {
	return !v.LoadedAt.IsZero()
}

func (v Values) Counts() map[string]int {
	return map[string]int{
		"person_akas":  len(v.PersonAKAs),
		"countries":    len(v.Countries),
		"event_names":  len(v.EventNames),
		"event_places": len(v.EventPlaces),
		"event_cities": len(v.EventCities),
	}
}

type Source interface {
	DistinctValues(ctx context.Context, field Field) ([]string, error)
}

type Cache struct {
	source Source
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	values Values
}

func NewCache(source Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{source: source, logger: logger, now: time.Now}
}

func NewStaticCache(values Values) *Cache {
	cache := NewCache(nil, nil)
	cache.values = normalizeValues(values)
	if cache.values.LoadedAt.IsZero() {
		cache.values.LoadedAt = cache.now().UTC()
	}
	return cache
}

func (c *Cache) Values() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values
}

// Load fetches every field concurrently and swaps the snapshot in only when
// all of them succeed. On failure the previous snapshot stays in place.
func (c *Cache) Load(ctx context.Context) (Values, error) {
	if c.source == nil {
		return Values{}, fmt.Errorf("reference source is not configured")
	}

	results := make([][]string, len(Fields))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, field := range Fields {
		group.Go(func() error {
			values, err := c.source.DistinctValues(groupCtx, field)
			if err != nil {
				return fmt.Errorf("load %s: %w", field, err)
			}
			results[i] = values
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Values{}, err
	}

	loaded := normalizeValues(Values{
		PersonAKAs:  results[0],
		Countries:   append(append([]string{}, results[1]...), results[2]...),
		EventNames:  results[3],
		EventPlaces: results[4],
		EventCities: results[5],
		LoadedAt:    c.now().UTC(),
	})

	c.mu.Lock()
	c.values = loaded
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "reference values loaded",
		slog.Int("person_akas", len(loaded.PersonAKAs)),
		slog.Int("countries", len(loaded.Countries)),
		slog.Int("event_names", len(loaded.EventNames)),
		slog.Int("event_places", len(loaded.EventPlaces)),
		slog.Int("event_cities", len(loaded.EventCities)),
	)
	return loaded, nil
}

func (c *Cache) Run(ctx context.Context, interval time.Duration, onReload func(Values, error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			values, err := c.Load(ctx)
			if err != nil {
				c.logger.WarnContext(ctx, "reference reload failed", slog.Any("error", err))
			}
			if onReload != nil {
				onReload(values, err)
			}
		}
	}
}

func (c *Cache) HealthCheck(_ context.Context) error {
	if !c.Values().Loaded() {
		return errors.New("reference values are not loaded")
	}
	return nil
}

func normalizeValues(values Values) Values {
	values.PersonAKAs = normalizeList(values.PersonAKAs)
	values.Countries = normalizeList(values.Countries)
	values.EventNames = normalizeList(values.EventNames)
	values.EventPlaces = normalizeList(values.EventPlaces)
	values.EventCities = normalizeList(values.EventCities)
	return values
}

func normalizeList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		normalized := textnorm.Normalize(item)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	return out
}

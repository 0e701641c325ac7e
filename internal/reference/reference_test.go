package reference

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu     sync.Mutex
	values map[Field][]string
	fail   map[Field]error
	calls  int
}

func (f *fakeSource) DistinctValues(_ context.Context, field Field) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[field]; err != nil {
		return nil, err
	}
	return f.values[field], nil
}

func TestLoadNormalizesAndMergesCountries(t *testing.T) {
	source := &fakeSource{values: map[Field][]string{
		FieldPersonAKA:     {"Aczino", "Chuty", "aczino", " "},
		FieldPersonCountry: {"México", "España"},
		FieldEventCountry:  {"Mexico", "Argentina"},
		FieldEventName:     {"Red Bull Batalla 2023"},
		FieldEventPlace:    {"Movistar Arena"},
		FieldEventCity:     {"Bogotá"},
	}}
	cache := NewCache(source, nil)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return fixed }

	values, err := cache.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := []string{"aczino", "chuty"}; !reflect.DeepEqual(values.PersonAKAs, want) {
		t.Fatalf("PersonAKAs = %v, want %v", values.PersonAKAs, want)
	}
	if want := []string{"argentina", "espana", "mexico"}; !reflect.DeepEqual(values.Countries, want) {
		t.Fatalf("Countries = %v, want %v", values.Countries, want)
	}
	if values.EventCities[0] != "bogota" {
		t.Fatalf("EventCities = %v", values.EventCities)
	}
	if !values.LoadedAt.Equal(fixed) {
		t.Fatalf("LoadedAt = %v", values.LoadedAt)
	}
	if source.calls != len(Fields) {
		t.Fatalf("source calls = %d, want %d", source.calls, len(Fields))
	}
	if !reflect.DeepEqual(cache.Values(), values) {
		t.Fatal("Values() does not return the loaded snapshot")
	}
}

func TestLoadFailureKeepsPreviousSnapshot(t *testing.T) {
	source := &fakeSource{values: map[Field][]string{FieldPersonAKA: {"wos"}}}
	cache := NewCache(source, nil)
	if _, err := cache.Load(context.Background()); err != nil {
		t.Fatalf("first Load() error = %v", err)
	}

	source.fail = map[Field]error{FieldEventName: errors.New("db down")}
	if _, err := cache.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if got := cache.Values().PersonAKAs; !reflect.DeepEqual(got, []string{"wos"}) {
		t.Fatalf("PersonAKAs after failed reload = %v", got)
	}
}

func TestHealthCheckRequiresLoadedValues(t *testing.T) {
	cache := NewCache(&fakeSource{}, nil)
	if err := cache.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check error before load")
	}
	if _, err := cache.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cache.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestStaticCache(t *testing.T) {
	cache := NewStaticCache(Values{PersonAKAs: []string{"Skone", "skone"}})
	if got := cache.Values().PersonAKAs; !reflect.DeepEqual(got, []string{"skone"}) {
		t.Fatalf("PersonAKAs = %v", got)
	}
	if _, err := cache.Load(context.Background()); err == nil {
		t.Fatal("expected error loading a static cache")
	}
	if counts := cache.Values().Counts(); counts["person_akas"] != 1 {
		t.Fatalf("Counts() = %v", counts)
	}
}

func TestRunReloadsUntilCancelled(t *testing.T) {
	source := &fakeSource{values: map[Field][]string{FieldPersonAKA: {"bnet"}}}
	cache := NewCache(source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		cache.Run(ctx, 5*time.Millisecond, func(Values, error) {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	cancel()
	<-done
	if !cache.Values().Loaded() {
		t.Fatal("expected values after periodic reload")
	}
}

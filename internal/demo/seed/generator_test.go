package seed

import (
	"reflect"
	"testing"
	"time"
)

func testConfig(seed int64, participants int) Config {
	return Config{
		Seed:                 seed,
		Events:               4,
		ParticipantsPerEvent: participants,
		StartDate:            time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGeneratorDeterministicForSeed(t *testing.T) {
	d1 := NewGenerator(testConfig(42, 8)).Generate(5)
	d2 := NewGenerator(testConfig(42, 8)).Generate(5)
	if !reflect.DeepEqual(d1, d2) {
		t.Fatal("datasets differ for the same seed")
	}

	d3 := NewGenerator(testConfig(43, 8)).Generate(5)
	if reflect.DeepEqual(d1.Battles, d3.Battles) {
		t.Fatal("different seeds produced identical battles")
	}
}

func TestGeneratorBuildsSingleEliminationBrackets(t *testing.T) {
	for _, tc := range []struct {
		participants int
		battles      int
		phases       []string
	}{
		{participants: 4, battles: 3, phases: []string{"semifinal", "final"}},
		{participants: 8, battles: 7, phases: []string{"cuartos", "semifinal", "final"}},
		{participants: 16, battles: 15, phases: []string{"octavos", "cuartos", "semifinal", "final"}},
	} {
		dataset := NewGenerator(testConfig(7, tc.participants)).Generate(2)
		if len(dataset.Events) != 2 {
			t.Fatalf("events = %d", len(dataset.Events))
		}
		if len(dataset.Battles) != 2*tc.battles {
			t.Fatalf("participants=%d battles = %d, want %d", tc.participants, len(dataset.Battles), 2*tc.battles)
		}
		if err := dataset.validate(); err != nil {
			t.Fatalf("validate() error = %v", err)
		}

		first := dataset.Battles[:tc.battles]
		final := first[len(first)-1]
		if final.Phase != "final" || final.Event != 0 {
			t.Fatalf("last battle = %+v", final)
		}
		seen := map[string]bool{}
		for _, battle := range first {
			seen[battle.Phase] = true
			if len(battle.Participants) != 2 || battle.Participants[0] == battle.Participants[1] {
				t.Fatalf("participants = %v", battle.Participants)
			}
		}
		for _, phase := range tc.phases {
			if !seen[phase] {
				t.Fatalf("phase %q missing for %d participants", phase, tc.participants)
			}
		}

		semifinalWinners := map[int]bool{}
		for _, battle := range first {
			if battle.Phase == "semifinal" {
				semifinalWinners[battle.Winner] = true
			}
		}
		for _, participant := range final.Participants {
			if !semifinalWinners[participant] {
				t.Fatalf("finalist %d did not win a semifinal", participant)
			}
		}
	}
}

func TestGeneratorEventTypes(t *testing.T) {
	dataset := NewGenerator(testConfig(3, 8)).Generate(20)
	for i, event := range dataset.Events {
		switch event.Type {
		case "nacional":
			if event.City == "" || event.Place == "" {
				t.Fatalf("event %d missing venue: %+v", i, event)
			}
		case "internacional":
		default:
			t.Fatalf("event %d type = %q", i, event.Type)
		}
		if event.Date.Before(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("event %d date = %s", i, event.Date)
		}
	}
}

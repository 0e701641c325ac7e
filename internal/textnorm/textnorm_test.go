package textnorm

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Ñengo MÉXICO":            "nengo mexico",
		"Perú":                    "peru",
		"  Red   Bull\tBatalla  ": "red bull batalla",
		"¿Quién ganó?":            "¿quien gano?",
		"":                        "",
		"República Dominicana":    "republica dominicana",
	}
	for input, want := range cases {
		if got := Normalize(input); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once := Normalize("Álvaro CHÁVEZ Ñandú")
	if twice := Normalize(once); twice != once {
		t.Fatalf("Normalize(Normalize(x)) = %q, want %q", twice, once)
	}
}

func TestWordsAndTokens(t *testing.T) {
	words := Words("¿cuantas batallas gano aczino en 2023?")
	want := []string{"cuantas", "batallas", "gano", "aczino", "en", "2023"}
	if !reflect.DeepEqual(words, want) {
		t.Fatalf("Words() = %v, want %v", words, want)
	}

	tokens := Tokens("hola chuty")
	if len(tokens) != 2 || tokens[1].Text != "chuty" || tokens[1].Start != 5 || tokens[1].End != 10 {
		t.Fatalf("Tokens() = %+v", tokens)
	}
}

func TestContainsWordRespectsBoundaries(t *testing.T) {
	cases := []struct {
		text   string
		phrase string
		want   bool
	}{
		{"batallas internacionales de chuty", "chuty", true},
		{"la final internacional", "nacional", false},
		{"la final internacional", "internacional", true},
		{"semifinal de aczino", "final", false},
		{"el menor vs bnet", "el menor", true},
		{"elmenor", "el menor", false},
		{"", "x", false},
	}
	for _, tc := range cases {
		if got := ContainsWord(tc.text, tc.phrase); got != tc.want {
			t.Fatalf("ContainsWord(%q, %q) = %v, want %v", tc.text, tc.phrase, got, tc.want)
		}
	}
}

func TestFindWordSkipsEmbeddedMatch(t *testing.T) {
	start, end, ok := FindWord("semifinal y final", "final")
	if !ok {
		t.Fatal("expected a match")
	}
	if start != 12 || end != 17 {
		t.Fatalf("FindWord() = (%d, %d)", start, end)
	}
}

package seed

import (
	"fmt"
	"math/rand"
	"time"
)

type Person struct {
	AKA      string
	FullName string
	Country  string
	Active   bool
}

type Event struct {
	Name    string
	Type    string
	Country string
	City    string
	Place   string
	Date    time.Time
}

// Battle refers to its event and participants by index into the dataset
// slices. Participants are listed in stage order.
type Battle struct {
	Event        int
	Name         string
	Phase        string
	Participants []int
	Winner       int
}

type Dataset struct {
	Persons []Person
	Events  []Event
	Battles []Battle
}

type venue struct {
	country string
	city    string
	place   string
}

var rappers = []Person{
	{AKA: "Aczino", FullName: "Mauricio Hernández González", Country: "mexico", Active: true},
	{AKA: "Chuty", FullName: "Francisco Javier Rodríguez", Country: "espana", Active: true},
	{AKA: "Wos", FullName: "Valentín Oliva", Country: "argentina", Active: false},
	{AKA: "Skone", FullName: "Adrián Díaz", Country: "espana", Active: true},
	{AKA: "Bnet", FullName: "Ignacio López", Country: "espana", Active: true},
	{AKA: "Gazir", FullName: "Gabriel Ruiz", Country: "espana", Active: true},
	{AKA: "Trueno", FullName: "Mateo Palacios", Country: "argentina", Active: false},
	{AKA: "Rapder", FullName: "Ricardo Fernández", Country: "mexico", Active: true},
	{AKA: "Jaze", FullName: "Jason Sánchez", Country: "peru", Active: true},
	{AKA: "Replik", FullName: "Juan Pablo Cuevas", Country: "chile", Active: true},
	{AKA: "Teorema", FullName: "Andrés Ospina", Country: "colombia", Active: true},
	{AKA: "Mecha", FullName: "Juan Manuel Mecha", Country: "argentina", Active: true},
	{AKA: "Valles-T", FullName: "Miguel Valles", Country: "chile", Active: true},
	{AKA: "Chystemc", FullName: "Christian Vidal", Country: "peru", Active: true},
	{AKA: "Dtoke", FullName: "Marcos Mazzei", Country: "argentina", Active: false},
	{AKA: "Blon", FullName: "Ramón Cuervo", Country: "espana", Active: true},
	{AKA: "Yartzi", FullName: "Yartzi Ortiz", Country: "puerto rico", Active: true},
	{AKA: "Kaiser", FullName: "Diego Torres", Country: "chile", Active: true},
	{AKA: "Nitro", FullName: "Luis Alberto Nitro", Country: "cuba", Active: true},
	{AKA: "Lobo Estepario", FullName: "Alejandro López", Country: "mexico", Active: true},
}

var venues = []venue{
	{country: "mexico", city: "ciudad de mexico", place: "Palacio de los Deportes"},
	{country: "mexico", city: "monterrey", place: "Arena Monterrey"},
	{country: "espana", city: "madrid", place: "WiZink Center"},
	{country: "espana", city: "barcelona", place: "Palau Sant Jordi"},
	{country: "argentina", city: "buenos aires", place: "Estadio Obras"},
	{country: "chile", city: "santiago", place: "Movistar Arena"},
	{country: "peru", city: "lima", place: "Coliseo Dibós"},
	{country: "colombia", city: "bogota", place: "Movistar Arena"},
}

var displayCountry = map[string]string{
	"mexico":    "México",
	"espana":    "España",
	"argentina": "Argentina",
	"chile":     "Chile",
	"peru":      "Perú",
	"colombia":  "Colombia",
}

var bracketPhases = map[int][]string{
	4:  {"semifinal", "final"},
	8:  {"cuartos", "semifinal", "final"},
	16: {"octavos", "cuartos", "semifinal", "final"},
}

type Generator struct {
	rnd          *rand.Rand
	participants int
	start        time.Time
}

func NewGenerator(cfg Config) *Generator {
	participants := cfg.ParticipantsPerEvent
	if _, ok := bracketPhases[participants]; !ok {
		participants = 8
	}
	return &Generator{
		rnd:          rand.New(rand.NewSource(cfg.Seed)),
		participants: participants,
		start:        cfg.StartDate,
	}
}

func (g *Generator) Generate(events int) Dataset {
	dataset := Dataset{Persons: append([]Person(nil), rappers...)}
	for i := 0; i < events; i++ {
		event := g.nextEvent(i)
		dataset.Events = append(dataset.Events, event)
		dataset.Battles = append(dataset.Battles, g.bracket(i, dataset.Persons)...)
	}
	return dataset
}

func (g *Generator) nextEvent(index int) Event {
	date := g.start.AddDate(0, index*2, g.rnd.Intn(28))
	if g.rnd.Intn(100) < 30 {
		return Event{
			Name:    fmt.Sprintf("Red Bull Batalla Internacional %d", date.Year()),
			Type:    "internacional",
			Country: venues[g.rnd.Intn(len(venues))].country,
			Date:    date,
		}
	}
	v := venues[g.rnd.Intn(len(venues))]
	return Event{
		Name:    fmt.Sprintf("FMS %s %d Jornada %d", displayCountry[v.country], date.Year(), index+1),
		Type:    "nacional",
		Country: v.country,
		City:    v.city,
		Place:   v.place,
		Date:    date,
	}
}

func (g *Generator) bracket(eventIndex int, persons []Person) []Battle {
	round := g.rnd.Perm(len(persons))[:g.participants]
	var battles []Battle
	for _, phase := range bracketPhases[g.participants] {
		next := make([]int, 0, len(round)/2)
		for i := 0; i+1 < len(round); i += 2 {
			pair := []int{round[i], round[i+1]}
			winner := pair[g.rnd.Intn(2)]
			battles = append(battles, Battle{
				Event:        eventIndex,
				Name:         persons[pair[0]].AKA + " vs " + persons[pair[1]].AKA,
				Phase:        phase,
				Participants: pair,
				Winner:       winner,
			})
			next = append(next, winner)
		}
		round = next
	}
	return battles
}

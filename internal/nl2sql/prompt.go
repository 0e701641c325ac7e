package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"
)

const DefaultSchema = `events(evento_id bigint not null, name text not null, type text, country text, city text, place text, date date)
persons(person_id bigint not null, aka text not null, full_name text, country text, active boolean not null)
battles(battle_id bigint not null, evento_id bigint not null, name text, phase text, winner_id bigint)
battle_participants(battle_id bigint not null, person_id bigint not null, position smallint not null, is_winner boolean not null)`

var DefaultExamples = []Example{
	{
		Question: "cuantas batallas ha ganado chuty",
		SQL: `SELECT COUNT(*) AS victorias
FROM battle_participants bp
JOIN persons p ON p.person_id = bp.person_id
WHERE lower(p.aka) = 'chuty' AND bp.is_winner`,
	},
	{
		Question: "que mcs de mexico siguen activos",
		SQL:      `SELECT aka FROM persons WHERE lower(country) = 'mexico' AND active ORDER BY aka`,
	},
	{
		Question: "quien gano la final internacional de 2023",
		SQL: `SELECT p.aka, e.name
FROM battles b
JOIN events e ON e.evento_id = b.evento_id
JOIN persons p ON p.person_id = b.winner_id
WHERE b.phase = 'final' AND e.type = 'internacional' AND EXTRACT(YEAR FROM e.date) = 2023`,
	},
}

const systemPrompt = `Traduces preguntas en español sobre batallas de freestyle a una sola consulta SQL para PostgreSQL.
Reglas:
- Devuelve solo la consulta, sin explicaciones ni Markdown.
- Solo SELECT. Nunca modifiques datos.
- Usa únicamente las tablas y columnas del esquema.
- Compara textos con lower(columna) y los valores de entidades tal como se entregan.
- Limita a 200 filas salvo que se pida un conteo o un total.`

func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Esquema:\n%s\n", schemaOrDefault(req.Schema))

	examples := req.Examples
	if examples == nil {
		examples = DefaultExamples
	}
	if len(examples) > 0 {
		b.WriteString("\nEjemplos:\n")
		for _, example := range examples {
			fmt.Fprintf(&b, "Pregunta: %s\nSQL: %s\n", example.Question, example.SQL)
		}
	}

	if len(req.Entities) > 0 {
		fmt.Fprintf(&b, "\nEntidades detectadas: %s\n", entitiesJSON(req.Entities))
	}
	fmt.Fprintf(&b, "\nPregunta: %s", strings.TrimSpace(req.Question))
	if req.NormalizedQuestion != "" && req.NormalizedQuestion != strings.TrimSpace(req.Question) {
		fmt.Fprintf(&b, "\nPregunta normalizada: %s", req.NormalizedQuestion)
	}
	return b.String()
}

func schemaOrDefault(schema string) string {
	if strings.TrimSpace(schema) == "" {
		return DefaultSchema
	}
	return strings.TrimSpace(schema)
}

func entitiesJSON(entities map[string]string) string {
	encoded, err := json.Marshal(entities)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

package services

import (
	"fmt"
	"strings"

	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/entities"
)

// The schema descriptions tell the model what JSON to produce. The field
// names are the wire format the validator accepts; changing them breaks
// every stored map, so they are spelled out rather than derived.
const graphSchemaDescription = `Devuelve únicamente un objeto JSON con esta estructura exacta:
{
  "titulo_central": "tema principal de la página",
  "nodos": [
    {"id": "n1", "titulo": "concepto", "descripcion": "explicación breve", "fragmentos": ["id-de-fragmento"]}
  ],
  "relaciones": [
    {"origen": "n1", "destino": "n2", "tipo": "relación entre conceptos"}
  ]
}
En "fragmentos" lista los identificadores de los fragmentos que respaldan cada nodo.`

const graphWorkedExample = `{"titulo_central":"Fotosíntesis","nodos":[{"id":"n1","titulo":"Clorofila","descripcion":"Pigmento que captura la energía de la luz","fragmentos":["f-1"]},{"id":"n2","titulo":"Glucosa","descripcion":"Azúcar producido a partir de CO2 y agua","fragmentos":["f-2"]}],"relaciones":[{"origen":"n1","destino":"n2","tipo":"produce"}]}`

const flatSchemaDescription = `Devuelve únicamente un objeto JSON con esta estructura exacta:
{
  "titulo_central": "tema principal de la página",
  "conceptos_clave": ["concepto uno", "concepto dos"],
  "resumen_ejecutivo": "resumen de dos o tres frases"
}
Incluye entre 5 y 7 conceptos clave.`

const flatWorkedExample = `{"titulo_central":"Fotosíntesis","conceptos_clave":["Clorofila","Energía lumínica","Dióxido de carbono","Glucosa","Oxígeno"],"resumen_ejecutivo":"La fotosíntesis convierte luz, agua y CO2 en glucosa y oxígeno. La clorofila captura la energía lumínica que impulsa el proceso."}`

// PromptBuilder renders the prompt variants the generation run escalates
// through: a baseline, a stricter fenced-output variant, and a worked
// example used when a model answers with opaque output. The configured
// map schema picks which output shape the prompts describe.
type PromptBuilder struct {
	maxFragmentChars int
	schema           string
}

// NewPromptBuilder creates a prompt builder using the configured map
// schema and per fragment length budget
func NewPromptBuilder(cfg *config.DomainConfig) *PromptBuilder {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &PromptBuilder{
		maxFragmentChars: cfg.PromptFragmentMaxChars,
		schema:           cfg.MapSchema,
	}
}

// Baseline is the first-attempt prompt: fragments plus schema description
func (b *PromptBuilder) Baseline(fragments []*entities.Fragment) string {
	var sb strings.Builder
	sb.WriteString("Eres un asistente que construye mapas mentales a partir de fragmentos de texto capturados en una página web.\n\n")
	sb.WriteString("Fragmentos capturados, cada uno precedido por su identificador:\n\n")
	sb.WriteString(b.fragmentBlock(fragments))
	sb.WriteString("\n")
	sb.WriteString(b.schemaDescription())
	sb.WriteString("\nNo incluyas texto fuera del JSON.")
	return sb.String()
}

// Strict is the second-attempt prompt: same content, but the JSON must
// arrive inside a fenced code block
func (b *PromptBuilder) Strict(fragments []*entities.Fragment) string {
	var sb strings.Builder
	sb.WriteString("Eres un asistente que construye mapas mentales a partir de fragmentos de texto capturados en una página web.\n\n")
	sb.WriteString("Fragmentos capturados, cada uno precedido por su identificador:\n\n")
	sb.WriteString(b.fragmentBlock(fragments))
	sb.WriteString("\n")
	sb.WriteString(b.schemaDescription())
	sb.WriteString("\nEnvuelve el objeto JSON en un bloque de código cercado:\n```json\n{ ... }\n```\nNo escribas absolutamente nada fuera del bloque de código.")
	return sb.String()
}

// WorkedExample is the forced-retry prompt: a complete example of the
// expected output comes first so the model has a shape to copy
func (b *PromptBuilder) WorkedExample(fragments []*entities.Fragment) string {
	var sb strings.Builder
	sb.WriteString("Ejemplo completo del formato exacto que debes producir:\n```json\n")
	sb.WriteString(b.workedExample())
	sb.WriteString("\n```\n\n")
	sb.WriteString("Ahora genera un objeto JSON con esa misma estructura para los siguientes fragmentos. Responde solo con el JSON, sin explicaciones.\n\n")
	sb.WriteString(b.fragmentBlock(fragments))
	return sb.String()
}

func (b *PromptBuilder) schemaDescription() string {
	if b.schema == "graph" {
		return graphSchemaDescription
	}
	return flatSchemaDescription
}

func (b *PromptBuilder) workedExample() string {
	if b.schema == "graph" {
		return graphWorkedExample
	}
	return flatWorkedExample
}

// fragmentBlock renders one line per fragment: identifier, optional title,
// text truncated to the configured budget
func (b *PromptBuilder) fragmentBlock(fragments []*entities.Fragment) string {
	var sb strings.Builder
	for _, f := range fragments {
		content := f.Content()
		text := truncateRunes(content.OriginalText(), b.maxFragmentChars)
		if title := content.Title(); title != "" {
			sb.WriteString(fmt.Sprintf("[%s] %s: %s\n", f.ID().String(), title, text))
		} else {
			sb.WriteString(fmt.Sprintf("[%s] %s\n", f.ID().String(), text))
		}
	}
	return sb.String()
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

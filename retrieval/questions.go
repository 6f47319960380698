package retrieval

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Strategy says which context a question gets.
type Strategy string

const (
	// StrategyRAG uses the retrieved corpus lines only.
	StrategyRAG Strategy = "rag"
	// StrategyHybrid adds the matching fact rows.
	StrategyHybrid Strategy = "hibrida"
)

type Question struct {
	Text     string
	Strategy Strategy
	Code     string
	Table    string
	FromYear int
	ToYear   int
}

// DefaultQuestions is the built-in set: ten descriptive questions answered
// from data and ten exploratory ones answered from the corpus.
var DefaultQuestions = []Question{
	{"¿Cuál es la evolución temporal del número de defunciones por F10 (alcohol) entre 2011 y 2016, diferenciando por sexo?", StrategyHybrid, "F10", "fact_defunciones", 2011, 2016},
	{"¿Qué entidades federativas presentan las mayores tasas de urgencias por F12 (cannabis) en 2015?", StrategyHybrid, "F12", "fact_urgencias", 2015, 2015},
	{"¿Cuál es la proporción de defunciones por F14 (cocaína) respecto al total de muertes por sustancias en 2015?", StrategyHybrid, "F14", "fact_defunciones", 2015, 2015},
	{"¿En qué grupos de edad se concentran las defunciones por F15 (estimulantes)?", StrategyHybrid, "F15", "fact_defunciones", 0, 0},
	{"¿Qué diagnósticos presentan el mayor incremento relativo de casos entre 2011 y 2016?", StrategyHybrid, "", "fact_defunciones", 2011, 2016},
	{"¿Qué palabras son más frecuentes en frases asociadas con F10 (alcohol)?", StrategyRAG, "", "", 0, 0},
	{"¿Qué frases del corpus mencionan simultáneamente términos asociados con dependencia y opioides?", StrategyRAG, "", "", 0, 0},
	{"¿Qué códigos CIE-10 aparecen más referenciados en el corpus textual?", StrategyRAG, "", "", 0, 0},
	{"¿Qué porcentaje de frases menciona más de una sustancia psicoactiva?", StrategyRAG, "", "", 0, 0},
	{"¿Qué entidades con mayor número de urgencias por F16 (alucinógenos) aparecen en frases con lenguaje de alarma o gravedad?", StrategyHybrid, "F16", "fact_urgencias", 0, 0},
	{"¿Qué códigos CIE-10 son los nodos más centrales del grafo de comorbilidad (grado y betweenness)?", StrategyRAG, "", "", 0, 0},
	{"¿Qué sustancias se encuentran más conectadas con F10 (alcohol)?", StrategyRAG, "", "", 0, 0},
	{"¿Existen comunidades o clústeres que agrupen sustancias similares según sus conexiones en el grafo?", StrategyRAG, "", "", 0, 0},
	{"¿Qué tan fuerte es la conexión entre F12 (cannabis) y F20–F29 (trastornos psicóticos)?", StrategyRAG, "", "", 0, 0},
	{"¿Qué pares de diagnósticos tienen la mayor coocurrencia según el grafo de comorbilidad?", StrategyRAG, "", "", 0, 0},
	{"¿Qué términos aparecen más próximos (semánticamente) a crack o piedra?", StrategyRAG, "", "", 0, 0},
	{"¿Los diagnósticos más centrales en el grafo de comorbilidad son también los que presentan mayor número de defunciones?", StrategyRAG, "", "", 0, 0},
	{"¿Qué pares de diagnósticos con alta coocurrencia en el grafo se mencionan juntos en el corpus textual?", StrategyRAG, "", "", 0, 0},
	{"¿Qué combinaciones de sustancias según el grafo se mencionan frecuentemente juntas en el corpus textual?", StrategyRAG, "", "", 0, 0},
	{"Según los patrones del grafo y el corpus textual, ¿qué nuevas combinaciones de sustancias podrían representar riesgo emergente de policonsumo?", StrategyRAG, "", "", 0, 0},
}

// LoadQuestions reads one question per line. A line may carry the hybrid
// fields after the text, separated by "|":
//
//	pregunta|hibrida|F10|fact_defunciones|2011|2016
//
// Blank lines and lines starting with # are skipped.
func LoadQuestions(path string) ([]Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open questions: %w", err)
	}
	defer f.Close()

	var out []Question
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Split(text, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		q := Question{Text: parts[0], Strategy: StrategyRAG}
		if len(parts) > 1 && parts[1] != "" {
			q.Strategy = Strategy(strings.ToLower(parts[1]))
			if q.Strategy != StrategyRAG && q.Strategy != StrategyHybrid {
				return nil, fmt.Errorf("%s:%d: unknown strategy %q", path, line, parts[1])
			}
		}
		if len(parts) > 2 {
			q.Code = strings.ToUpper(parts[2])
		}
		if len(parts) > 3 {
			q.Table = parts[3]
		}
		for i, dst := range []*int{&q.FromYear, &q.ToYear} {
			if len(parts) > 4+i && parts[4+i] != "" {
				if *dst, err = strconv.Atoi(parts[4+i]); err != nil {
					return nil, fmt.Errorf("%s:%d: year %q: %w", path, line, parts[4+i], err)
				}
			}
		}
		if q.Strategy == StrategyHybrid && q.Table == "" {
			return nil, fmt.Errorf("%s:%d: hybrid question without a fact table", path, line)
		}
		out = append(out, q)
	}
	return out, sc.Err()
}

package corpus

import (
	"regexp"
	"strings"
)

// IndexStopwords is the short list applied when building TF-IDF indexes
// over sentences.
var IndexStopwords = []string{
	"de", "la", "que", "el", "en", "y", "a", "los", "del", "se", "las", "por",
	"un", "para", "con", "no", "una", "su", "al", "lo", "como", "más", "mas",
	"pero", "sus", "le", "ya", "o", "este", "sí", "si", "porque", "esta",
	"entre", "cuando", "muy", "sin", "sobre", "también", "tambien", "me",
	"hasta", "hay", "donde", "quien",
}

// DescriptiveStopwords is the long list used for word-frequency tables.
var DescriptiveStopwords = []string{
	"a", "acá", "ahí", "ajena", "ajenas", "ajeno", "ajenos", "al", "algo",
	"alguna", "algunas", "alguno", "algunos", "algún", "allá", "allí", "ambos",
	"ante", "antes", "aquel", "aquella", "aquellas", "aquello", "aquellos",
	"aquí", "arriba", "así", "atrás", "aun", "aunque", "bajo", "bastante",
	"bien", "cabe", "cada", "casi", "cierta", "ciertas", "cierto", "ciertos",
	"como", "con", "conmigo", "conseguimos", "conseguir", "consigo", "consigue",
	"consiguen", "consigues", "contigo", "contra", "cual", "cuales",
	"cualesquiera", "cualquier", "cualquiera", "cuan", "cuando", "cuanta",
	"cuantas", "cuanto", "cuantos", "de", "dejar", "del", "demasiada",
	"demasiadas", "demasiado", "demasiados", "demás", "dentro", "desde",
	"donde", "dos", "durante", "el", "ella", "ellas", "ello", "ellos",
	"emplean", "emplear", "empleas", "empleo", "empleáis", "en", "encima",
	"entonces", "entre", "era", "eramos", "eran", "eras", "eres", "es", "esa",
	"esas", "ese", "eso", "esos", "esta", "estaba", "estado", "estamos",
	"estar", "estas", "este", "esto", "estos", "estoy", "estáis", "están",
	"etc", "fin", "fue", "fueron", "fui", "fuimos", "gueno", "ha", "hace",
	"hacemos", "hacen", "hacer", "haces", "hacia", "hacéis", "hago", "hasta",
	"incluso", "intenta", "intentamos", "intentan", "intentar", "intento", "ir",
	"jamás", "junto", "juntos", "la", "largo", "las", "lo", "los", "mas", "me",
	"menos", "mi", "mientras", "mis", "misma", "mismas", "mismo", "mismos",
	"modo", "mucha", "muchas", "mucho", "muchos", "muchísima", "muchísimas",
	"muchísimo", "muchísimos", "muy", "más", "mía", "mías", "mío", "míos",
	"nada", "ni", "ninguna", "ningunas", "ninguno", "ningunos", "ningún", "no",
	"nos", "nosotras", "nosotros", "nuestra", "nuestras", "nuestro", "nuestros",
	"nunca", "o", "otra", "otras", "otro", "otros", "para", "parecer", "pero",
	"poca", "pocas", "poco", "pocos", "podemos", "poder", "podría", "podríamos",
	"podrían", "podéis", "por", "por qué", "porque", "primero", "puede",
	"pueden", "puedo", "pues", "que", "querer", "quienes", "quienesquiera",
	"quienquiera", "quizá", "quizás", "quién", "qué", "sabe", "sabemos",
	"saben", "saber", "sabes", "sabéis", "se", "según", "ser", "si", "siempre",
	"siendo", "sin", "sino", "so", "sobre", "sois", "solamente", "solo",
	"somos", "son", "soy", "sr", "sra", "sres", "sta", "su", "sus", "suya",
	"suyas", "suyo", "suyos", "sí", "tal", "tales", "tambien", "también",
	"tampoco", "tan", "tanta", "tantas", "tanto", "tantos", "te", "tenemos",
	"tener", "tengo", "tenéis", "ti", "tiempo", "tiene", "tienen", "toda",
	"todas", "todo", "todos", "tomar", "trabaja", "trabajamos", "trabajan",
	"trabajar", "trabajas", "trabajo", "trabajáis", "tras", "tu", "tus", "tuya",
	"tuyas", "tuyo", "tuyos", "tú", "un", "una", "unas", "uno", "unos", "usa",
	"usamos", "usan", "usar", "usas", "uso", "usted", "ustedes", "usáis", "va",
	"vais", "vamos", "van", "varia", "varias", "vario", "varios", "vaya",
	"verdadera", "vosotras", "vosotros", "voy", "vuestra", "vuestras",
	"vuestro", "vuestros", "y", "ya", "yo", "él", "último",
}

var descriptiveSet = func() map[string]bool {
	m := make(map[string]bool, len(DescriptiveStopwords))
	for _, w := range DescriptiveStopwords {
		m[w] = true
	}
	return m
}()

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// Tokenize lower-cases text, splits it on non-word runs and drops
// descriptive stopwords.
func Tokenize(text string) []string {
	var out []string
	for _, p := range nonWord.Split(strings.ToLower(text), -1) {
		if p != "" && !descriptiveSet[p] {
			out = append(out, p)
		}
	}
	return out
}

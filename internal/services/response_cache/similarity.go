package response_cache

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Function words that carry no meaning for matching support questions.
var stopWords = map[string]struct{}{
	"a": {}, "o": {}, "as": {}, "os": {}, "um": {}, "uma": {}, "uns": {}, "umas": {},
	"de": {}, "do": {}, "da": {}, "dos": {}, "das": {},
	"em": {}, "no": {}, "na": {}, "nos": {}, "nas": {},
	"e": {}, "ou": {}, "que": {}, "qual": {}, "quais": {}, "quanto": {}, "quanta": {},
	"para": {}, "pra": {}, "por": {}, "com": {}, "se": {}, "me": {},
	"meu": {}, "minha": {}, "eu": {}, "voce": {}, "ao": {}, "aos": {},
	"the": {}, "an": {}, "of": {}, "is": {}, "what": {}, "how": {}, "much": {},
}

// synonyms maps surface forms onto one canonical token
var synonyms = map[string]string{
	"custa":        "preco",
	"custo":        "preco",
	"custam":       "preco",
	"valor":        "preco",
	"valores":      "preco",
	"precos":       "preco",
	"price":        "preco",
	"cost":         "preco",
	"mensalidade":  "mensal",
	"anuidade":     "anual",
	"cancelamento": "cancelar",
	"cancela":      "cancelar",
	"pagamento":    "pagar",
	"pago":         "pagar",
}

// stripMarks folds accented letters onto their base letter
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokenize turns a message into the set of content tokens used for
// similarity: lower-cased, accent-folded, split on anything that is not a
// letter or digit, with stop words dropped and synonyms canonicalized.
func Tokenize(text string) map[string]struct{} {
	folded := stripMarks(strings.ToLower(text))
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		if canonical, ok := synonyms[f]; ok {
			f = canonical
		}
		tokens[f] = struct{}{}
	}
	return tokens
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets score 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity tokenizes both messages and scores them
func Similarity(a, b string) float64 {
	return Jaccard(Tokenize(a), Tokenize(b))
}

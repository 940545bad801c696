package sentiment

import "regexp"

type keyword struct {
	term    string
	emotion Emotion
}

// Lexicons are matched by substring containment on the lowercased text.
// Order matters for emotion detection: the first hit wins, positive first.
var positiveLexicon = []keyword{
	{"excelente", EmotionSatisfied},
	{"bueno", EmotionSatisfied},
	{"genial", EmotionSatisfied},
	{"perfecto", EmotionSatisfied},
	{"gracias", EmotionSatisfied},
	{"rápido", EmotionSatisfied},
	{"limpio", EmotionSatisfied},
	{"puntual", EmotionSatisfied},
	{"amable", EmotionSatisfied},
	{"cómodo", EmotionSatisfied},
}

var negativeLexicon = []keyword{
	{"malo", EmotionFrustrated},
	{"pésimo", EmotionAngry},
	{"terrible", EmotionAngry},
	{"sucio", EmotionFrustrated},
	{"tardanza", EmotionFrustrated},
	{"demora", EmotionFrustrated},
	{"atrasado", EmotionFrustrated},
	{"nunca", EmotionAngry},
	{"siempre", EmotionFrustrated},
	{"grosero", EmotionAngry},
	{"lleno", EmotionFrustrated},
	{"esperar", EmotionFrustrated},
}

// interrogatives mark a confused rider when no lexicon term matched.
var interrogatives = []string{"?", "cómo", "dónde"}

type categoryRule struct {
	pattern  *regexp.Regexp
	category Category
}

// categoryRules are tried in order; the first match wins.
var categoryRules = []categoryRule{
	{regexp.MustCompile(`(?i)conductor|chofer|driver`), CategoryDriver},
	{regexp.MustCompile(`(?i)limpio|sucio|basura|higiene`), CategoryCleanliness},
	{regexp.MustCompile(`(?i)tarde|demora|atrasado|puntual|horario`), CategoryPunctuality},
	{regexp.MustCompile(`(?i)precio|caro|barato|tarifa|costo`), CategoryFare},
	{regexp.MustCompile(`(?i)servicio|atención`), CategoryService},
}

// Suggested replies.
const (
	ReplyPositive        = "¡Muchas gracias por tu comentario! Nos alegra que hayas tenido una buena experiencia con CityTransit."
	ReplyNegativeDriver  = "Lamentamos tu experiencia. Hemos registrado tu queja y tomaremos acciones con el personal involucrado. Gracias por ayudarnos a mejorar."
	ReplyNegativeClean   = "Disculpa las molestias. Hemos notificado al equipo de limpieza para mejorar nuestros estándares de higiene."
	ReplyNegativeLate    = "Sentimos el retraso. Estamos trabajando en optimizar nuestros horarios. Tu feedback es muy valioso."
	ReplyNegativeFare    = "Entendemos tu preocupación sobre las tarifas. Recuerda que tenemos promociones y descuentos disponibles en la app."
	ReplyNegativeGeneric = "Lamentamos tu experiencia. Hemos registrado tu comentario y trabajaremos para mejorar. ¿Podemos ayudarte con algo más?"
	ReplyNeutral         = "Gracias por tu comentario. Si necesitas más ayuda, no dudes en contactarnos."
	ReplyDefault         = "Gracias por tu comentario."
)

var negativeReplies = map[Category]string{
	CategoryDriver:      ReplyNegativeDriver,
	CategoryCleanliness: ReplyNegativeClean,
	CategoryPunctuality: ReplyNegativeLate,
	CategoryFare:        ReplyNegativeFare,
}

// ReplyFor returns the suggested reply for a sentiment and category.
func ReplyFor(label Label, category Category) string {
	switch label {
	case LabelPositive:
		return ReplyPositive
	case LabelNegative:
		if reply, ok := negativeReplies[category]; ok {
			return reply
		}
		return ReplyNegativeGeneric
	default:
		return ReplyNeutral
	}
}

package sentiment

import (
	"math"
	"strings"
)

const (
	scoreFloor        = 0.1
	noHitNeutralScore = 0.8
	wordsPerHit       = 0.1

	basePriority     = 3
	negativePriority = 4
	angryPriority    = 5
	actionPriority   = 4
)

// labelOrder is the argmax tie-break order: on equal scores the earlier
// label wins.
var labelOrder = []Label{LabelNegative, LabelPositive, LabelNeutral}

// analysis is the part of a result that depends only on the text.
type analysis struct {
	label    Label
	scores   Scores
	emotion  Emotion
	category Category
	priority int
}

// analyze scores lowercased, non-blank text.
func analyze(lower string) analysis {
	scores := score(lower)
	label := argmax(scores)
	emotion := detectEmotion(lower)

	return analysis{
		label:    label,
		scores:   scores,
		emotion:  emotion,
		category: detectCategory(lower),
		priority: priorityFor(label, emotion),
	}
}

func countHits(text string, lexicon []keyword) int {
	n := 0
	for _, k := range lexicon {
		if strings.Contains(text, k.term) {
			n++
		}
	}
	return n
}

func score(text string) Scores {
	positive := countHits(text, positiveLexicon)
	negative := countHits(text, negativeLexicon)
	if positive == 0 && negative == 0 {
		return Scores{Positive: scoreFloor, Negative: scoreFloor, Neutral: noHitNeutralScore}
	}

	denom := math.Max(float64(len(strings.Fields(text)))*wordsPerHit, 1)
	pos := math.Min(float64(positive)/denom, 1)
	neg := math.Min(float64(negative)/denom, 1)
	neutral := 1 - math.Max(pos, neg)

	return Scores{
		Positive: math.Max(pos, scoreFloor),
		Negative: math.Max(neg, scoreFloor),
		Neutral:  math.Max(neutral, scoreFloor),
	}
}

func argmax(scores Scores) Label {
	best := labelOrder[0]
	for _, label := range labelOrder[1:] {
		if scores.Get(label) > scores.Get(best) {
			best = label
		}
	}
	return best
}

func detectEmotion(text string) Emotion {
	for _, lexicon := range [][]keyword{positiveLexicon, negativeLexicon} {
		for _, k := range lexicon {
			if strings.Contains(text, k.term) {
				return k.emotion
			}
		}
	}
	for _, q := range interrogatives {
		if strings.Contains(text, q) {
			return EmotionConfused
		}
	}
	return EmotionNeutral
}

func detectCategory(text string) Category {
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(text) {
			return rule.category
		}
	}
	return CategoryService
}

func priorityFor(label Label, emotion Emotion) int {
	priority := basePriority
	if label == LabelNegative {
		priority = negativePriority
	}
	if emotion == EmotionAngry {
		priority = angryPriority
	}
	return priority
}

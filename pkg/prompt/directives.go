package prompt

import "ghostwriter/pkg/model"

// Directives are the concrete, checkable style constraints derived
// from a persona. They are the single source of voice: prompts embed
// them verbatim, and persona differentiation tests compare them.
type Directives struct {
	MaxExclamations int    // per artifact
	MaxReactions    int    // casual reaction phrases per artifact
	MaxEmoji        int    // soft cap, 0 disables entirely
	SentenceBias    string // "short", "medium" or "long"
	Diction         string // vocabulary guidance for the age/gender band
}

// toneBase maps each tone to its baseline energy budget.
var toneBase = map[model.Tone]Directives{
	model.ToneNeutral:      {MaxExclamations: 0, MaxReactions: 0, MaxEmoji: 0, SentenceBias: "medium"},
	model.ToneProfessional: {MaxExclamations: 0, MaxReactions: 0, MaxEmoji: 0, SentenceBias: "long"},
	model.ToneBright:       {MaxExclamations: 2, MaxReactions: 2, MaxEmoji: 1, SentenceBias: "medium"},
	model.ToneFriendly:     {MaxExclamations: 2, MaxReactions: 3, MaxEmoji: 1, SentenceBias: "short"},
	model.ToneTrendy:       {MaxExclamations: 3, MaxReactions: 3, MaxEmoji: 2, SentenceBias: "short"},
}

var dictionTable = map[model.AgeBand]map[model.Gender]string{
	model.AgeTwenties: {
		model.GenderFemale: "casual vocabulary with current slang used sparingly",
		model.GenderMale:   "casual direct vocabulary, light on slang",
	},
	model.AgeThirties: {
		model.GenderFemale: "everyday vocabulary, warm but not childish",
		model.GenderMale:   "everyday vocabulary, plain and concrete",
	},
	model.AgeForties: {
		model.GenderFemale: "mature everyday vocabulary, no slang",
		model.GenderMale:   "mature plain vocabulary, no slang",
	},
	model.AgeFifties: {
		model.GenderFemale: "polite traditional vocabulary, fully spelled-out words",
		model.GenderMale:   "polite traditional vocabulary, fully spelled-out words",
	},
}

// Derive builds the style directives for a persona. The mapping is a
// fixed table so the same persona always yields the same voice.
func Derive(p model.Persona) Directives {
	d, ok := toneBase[p.Tone]
	if !ok {
		d = toneBase[model.ToneNeutral]
	}

	switch p.Personality {
	case model.PersonalityLively:
		d.MaxExclamations++
		d.MaxReactions++
	case model.PersonalityCalm:
		if d.MaxExclamations > 0 {
			d.MaxExclamations--
		}
		if d.MaxReactions > 0 {
			d.MaxReactions--
		}
	case model.PersonalityAnalytic:
		d.SentenceBias = "long"
	}

	if byGender, ok := dictionTable[p.Age]; ok {
		d.Diction = byGender[p.Gender]
	}
	if d.Diction == "" {
		d.Diction = "everyday vocabulary, plain and concrete"
	}
	return d
}

package model

// AgeBand buckets the persona's age.
type AgeBand string

const (
	AgeTwenties AgeBand = "20s"
	AgeThirties AgeBand = "30s"
	AgeForties  AgeBand = "40s"
	AgeFifties  AgeBand = "50s"
)

// Gender of the persona voice.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// Personality of the persona voice.
type Personality string

const (
	PersonalityCalm     Personality = "calm"
	PersonalityLively   Personality = "lively"
	PersonalityAnalytic Personality = "analytic"
)

// Tone of the persona voice.
type Tone string

const (
	ToneNeutral      Tone = "neutral"
	ToneProfessional Tone = "professional"
	ToneBright       Tone = "bright"
	ToneFriendly     Tone = "friendly"
	ToneTrendy       Tone = "trendy"
)

// Persona is the compact voice descriptor supplied with an order.
// It is read-only; concrete style constraints are derived from it
// by the prompt package's directive table.
type Persona struct {
	Age         AgeBand
	Gender      Gender
	Personality Personality
	Tone        Tone
}

// Zero reports whether the persona was left unset by the caller.
func (p Persona) Zero() bool {
	return p.Age == "" && p.Gender == "" && p.Personality == "" && p.Tone == ""
}

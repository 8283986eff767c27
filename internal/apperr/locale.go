package apperr

import "golang.org/x/text/language"

// supported lists the locales we carry user-facing messages for. Danish
// first: it is the deployment default for the market this runs in.
var supported = []language.Tag{
	language.Danish,
	language.English,
}

var matcher = language.NewMatcher(supported)

var userMessages = map[language.Tag]map[Type]string{
	language.Danish: {
		TypeValidation: "Dokumentet kunne ikke valideres. Kontrollér indholdet og prøv igen.",
		TypeProvider:   "Udtrækstjenesten er midlertidigt utilgængelig.",
		TypeCostLimit:  "Omkostningsgrænsen for udtræk er nået. Prøv igen senere eller hæv grænsen.",
		TypeTimeout:    "Udtrækket tog for lang tid og blev afbrudt.",
		TypeExtraction: "Udtrækket kunne ikke gennemføres for dette dokument.",
	},
	language.English: {
		TypeValidation: "The document failed validation. Check the content and try again.",
		TypeProvider:   "The extraction service is temporarily unavailable.",
		TypeCostLimit:  "The extraction cost limit has been reached. Try later or raise the limit.",
		TypeTimeout:    "The extraction took too long and was cancelled.",
		TypeExtraction: "The extraction could not be completed for this document.",
	},
}

// UserMessage returns the end-user-facing message for an error type in the
// closest supported locale. Unknown locales fall back to Danish.
func UserMessage(t Type, locale string) string {
	_, idx := language.MatchStrings(matcher, locale)
	return userMessages[supported[idx]][t]
}

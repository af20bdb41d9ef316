package conversation

import (
	"fmt"
	"strings"
)

// texts holds the system messages of one language.
type texts struct {
	chooseEquipment  string
	equipmentForm    string
	notUnderstood    string
	equipmentBound   string // %s label
	openIssues       string
	issueNoSolution  string
	confirmEnhanced  string // %s text
	searching        string
	aiThinking       string
	tryThis          string // %s treatment, %s badge
	tryAI            string // %s treatment, %s cause
	askWorked        string
	noMoreSolutions  string
	resolved         string
	handOff          string
	assigned         string // %s assignment id
	escalationFailed string
	completed        string
	feedbackWorked   string // %s treatment
	feedbackFailed   string // %s treatment
	formFields       []string
}

var catalogTexts = map[string]texts{
	"en": {
		chooseEquipment:  "Which device is it? Reply with the number, or 'other' to enter it manually.",
		equipmentForm:    "I could not find that device. Please describe it as: type, manufacturer, model (for example: oven, Rational, iCombi Pro).",
		notUnderstood:    "Sorry, I did not understand that.",
		equipmentBound:   "Got it: %s.",
		openIssues:       "There are unresolved issues for this device. Reply with a number to continue one of them, or 'new' to report a new problem.",
		issueNoSolution:  "That issue has no solution yet. Let me ask a few questions first.",
		confirmEnhanced:  "Did I understand the problem correctly? \"%s\" (yes/no)",
		searching:        "Thanks. Looking for a solution...",
		aiThinking:       "No known fix matches. Working out a diagnosis...",
		tryThis:          "Try this: %s (%s).",
		tryAI:            "Try this: %s Possible cause: %s",
		askWorked:        "Did it work? Reply yes or no, or 'technician' to request a technician.",
		noMoreSolutions:  "I have no further suggestions.",
		resolved:         "Great, I have recorded the fix. This session is now closed.",
		handOff:          "I am handing this over to a technician.",
		assigned:         "A technician has been assigned (reference %s). This session is now closed.",
		escalationFailed: "I could not reach technician dispatch. Send any message to try again.",
		completed:        "This session is closed. Please start a new session for another problem.",
		feedbackWorked:   "This worked: %s",
		feedbackFailed:   "This did not work: %s",
		formFields:       []string{"type", "manufacturer", "model"},
	},
	"de": {
		chooseEquipment:  "Um welches Gerät geht es? Antworte mit der Nummer oder 'anderes', um es manuell einzugeben.",
		equipmentForm:    "Ich habe das Gerät nicht gefunden. Bitte beschreibe es so: Typ, Hersteller, Modell (zum Beispiel: Ofen, Rational, iCombi Pro).",
		notUnderstood:    "Entschuldigung, das habe ich nicht verstanden.",
		equipmentBound:   "Alles klar: %s.",
		openIssues:       "Für dieses Gerät gibt es offene Fälle. Antworte mit einer Nummer, um einen fortzusetzen, oder 'neu' für ein neues Problem.",
		issueNoSolution:  "Für diesen Fall gibt es noch keine Lösung. Ich stelle erst ein paar Fragen.",
		confirmEnhanced:  "Habe ich das Problem richtig verstanden? \"%s\" (ja/nein)",
		searching:        "Danke. Ich suche nach einer Lösung...",
		aiThinking:       "Keine bekannte Lösung passt. Ich erstelle eine Diagnose...",
		tryThis:          "Versuche Folgendes: %s (%s).",
		tryAI:            "Versuche Folgendes: %s Mögliche Ursache: %s",
		askWorked:        "Hat es funktioniert? Antworte ja oder nein, oder 'Techniker' für einen Techniker.",
		noMoreSolutions:  "Ich habe keine weiteren Vorschläge.",
		resolved:         "Super, die Lösung ist gespeichert. Diese Sitzung ist beendet.",
		handOff:          "Ich übergebe den Fall an einen Techniker.",
		assigned:         "Ein Techniker wurde zugewiesen (Referenz %s). Diese Sitzung ist beendet.",
		escalationFailed: "Die Technikervermittlung ist nicht erreichbar. Schicke eine beliebige Nachricht, um es erneut zu versuchen.",
		completed:        "Diese Sitzung ist beendet. Bitte starte eine neue Sitzung für ein weiteres Problem.",
		feedbackWorked:   "Das hat funktioniert: %s",
		feedbackFailed:   "Das hat nicht funktioniert: %s",
		formFields:       []string{"Typ", "Hersteller", "Modell"},
	},
}

// DefaultLanguage is used for unknown language codes.
const DefaultLanguage = "en"

// SupportedLanguage reports whether system messages exist for lang.
func SupportedLanguage(lang string) bool {
	_, ok := catalogTexts[strings.ToLower(lang)]
	return ok
}

func textsFor(lang string) texts {
	if t, ok := catalogTexts[strings.ToLower(lang)]; ok {
		return t
	}
	return catalogTexts[DefaultLanguage]
}

// CompletedNotice is the reply to a message sent to a completed session.
func CompletedNotice(lang string) string {
	return textsFor(lang).completed
}

func (t texts) presentation(c candidateView) string {
	var b strings.Builder
	if c.ai {
		cause := c.cause
		if cause == "" {
			cause = "-"
		}
		fmt.Fprintf(&b, t.tryAI, c.treatment, cause)
	} else {
		fmt.Fprintf(&b, t.tryThis, c.treatment, c.badge)
	}
	b.WriteString(" ")
	b.WriteString(t.askWorked)
	return b.String()
}

type candidateView struct {
	treatment string
	badge     string
	cause     string
	ai        bool
}

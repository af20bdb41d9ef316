package conversation

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

// Replies are matched after normalize, in English and German.
var (
	yesReplies = set("yes", "y", "yeah", "yep", "ja", "j", "correct", "right", "it worked", "worked",
		"fixed", "solved", "that worked", "it works", "works", "hat funktioniert", "funktioniert", "richtig", "stimmt")
	noReplies = set("no", "n", "nope", "nein", "wrong", "didn't work", "did not work", "not fixed",
		"still broken", "doesn't work", "does not work", "hat nicht funktioniert", "funktioniert nicht", "falsch")
	skipReplies = set("skip", "diagnose", "diagnose now", "überspringen", "ueberspringen")
	newReplies  = set("new", "continue", "new problem", "none", "other", "neu", "weiter", "neues problem", "keins", "anderes")
)

var technicianWords = []string{"technician", "techniker", "mechanic", "service person"}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// normalize lowercases, collapses whitespace and trims surrounding punctuation.
func normalize(text string) string {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	return strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) && r != '\'' || unicode.IsSpace(r)
	})
}

func isYes(text string) bool  { return yesReplies[normalize(text)] }
func isNo(text string) bool   { return noReplies[normalize(text)] }
func isSkip(text string) bool { return skipReplies[normalize(text)] }
func isNew(text string) bool  { return newReplies[normalize(text)] }

func wantsTechnician(text string) bool {
	n := normalize(text)
	for _, w := range technicianWords {
		if strings.Contains(n, w) {
			return true
		}
	}
	return false
}

// parseChoice reads a 1-based list number ("2", "#2", "2.") within [1,n].
func parseChoice(text string, n int) (int, bool) {
	s := strings.TrimPrefix(normalize(text), "#")
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i, true
}

const maxFieldLen = 64

var formKeys = map[string]string{
	"type": "type", "typ": "type", "gerät": "type", "geraet": "type",
	"manufacturer": "manufacturer", "brand": "manufacturer", "make": "manufacturer", "hersteller": "manufacturer",
	"model": "model", "modell": "model",
	"category": "category", "kategorie": "category",
}

// parseEquipmentForm reads "type: oven; manufacturer: Rational; model: X"
// or, when positional is set, "oven, Rational, X". The type is required.
func parseEquipmentForm(text string, positional bool) (store.EquipmentFields, bool) {
	var f store.EquipmentFields
	text = strings.TrimSpace(text)
	if text == "" {
		return f, false
	}

	if strings.Contains(text, ":") {
		parts := strings.FieldsFunc(text, func(r rune) bool { return r == ';' || r == '\n' })
		for _, part := range parts {
			key, value, ok := strings.Cut(part, ":")
			if !ok {
				return store.EquipmentFields{}, false
			}
			value = strings.TrimSpace(value)
			if len(value) > maxFieldLen {
				return store.EquipmentFields{}, false
			}
			switch formKeys[normalize(key)] {
			case "type":
				f.Type = value
			case "manufacturer":
				f.Manufacturer = value
			case "model":
				f.Model = value
			case "category":
				f.Category = value
			default:
				return store.EquipmentFields{}, false
			}
		}
		return f, f.Type != ""
	}

	if !positional {
		return f, false
	}
	parts := strings.Split(text, ",")
	if len(parts) > 3 {
		return f, false
	}
	values := make([]string, 3)
	for i, p := range parts {
		values[i] = strings.TrimSpace(p)
		if len(values[i]) > maxFieldLen {
			return store.EquipmentFields{}, false
		}
	}
	f = store.EquipmentFields{Type: values[0], Manufacturer: values[1], Model: values[2]}
	return f, f.Type != ""
}

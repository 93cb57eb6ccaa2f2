// Package cleaner normalizes raw call-center transcripts: it strips
// timestamps and system lines and replaces personally identifiable
// information with placeholder tokens. Patterns are tuned to one transcript
// format and Chilean-locale identifiers, not a general PII library.
package cleaner

import (
	"regexp"
	"strings"
)

// Redaction placeholders. Double-bracket tokens mark hard identifiers,
// single-bracket tokens mark soft entities (names, dates, amounts).
const (
	tokenRUT     = "<<RUT>>"
	tokenEmail   = "<<EMAIL>>"
	tokenPhone   = "<<TELEFONO>>"
	tokenAddress = "<<DIRECCION>>"
	tokenPerson  = "<PERSON>"
	tokenDate    = "<DATE>"
	tokenNumber  = "<NUM>"
)

// RUT formats: dotted with check digit (12.345.678-9) and dashed groups.
var rutRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,3}\.\d{3}\.\d{3}-[\dkK]\b`),
	regexp.MustCompile(`\b\d{1,2}\.\d{3}\.\d{3}-[\dkK]\b`),
	regexp.MustCompile(`\b\d{1,3}-\d{3}-\d{3}-\d\b`),
}

var (
	emailRegex   = regexp.MustCompile(`\b[\w.-]+@[\w.-]+\.\w+\b`)
	phoneRegex   = regexp.MustCompile(`\b\+?\d[\d\s-]{7,}\d\b`)
	addressRegex = regexp.MustCompile(`(?i)\b(?:calle|avenida|av\.?|pasaje|pje\.?)\s+[^\n,]+`)
)

// Dates like "15 de marzo de 1986" or "01/05/2024".
var dateRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,2}\s+de\s+(?:enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)\s+de\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
}

// Remaining standalone numbers (prices, quantities). Must run after the
// RUT/phone passes so already-redacted identifiers are not re-matched.
var numberRegex = regexp.MustCompile(`\b\d+(?:[.,]\d+)*\b`)

// nameSpan matches a capitalized proper-name phrase ("Juan", "Ana Maria Rojas").
const nameSpan = `[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(?:\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)*`

// Self-introduction cues. The cue word is case-insensitive, the name span is
// not: only capitalized words after the cue are treated as a name. The cue
// is captured so the replacement keeps it.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\b(?i:soy)\s+)` + nameSpan),
	regexp.MustCompile(`(\b(?i:mi nombre es)\s+)` + nameSpan),
	regexp.MustCompile(`(\b(?i:le atiende)\s+)` + nameSpan),
	regexp.MustCompile(`(\b(?i:saluda)\s+)` + nameSpan),
	regexp.MustCompile(`(\b(?i:le habla)\s+)` + nameSpan),
	regexp.MustCompile(`(\b(?i:habla)\s+)` + nameSpan),
	regexp.MustCompile(`(\b(?i:me llamo)\s+)` + nameSpan),
}

var speakerLineRegex = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\]\s*(?i:(agente|cliente)):\s*(.*)$`)

// Normalize cleans a raw transcript: drops system and end-of-call lines,
// redacts PII, strips timestamps from AGENTE/CLIENTE lines and uppercases
// the speaker. Lines outside the standard format are passed through fully
// redacted rather than rejected. Normalize is idempotent: placeholder
// tokens contain nothing any pattern re-matches.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "SISTEMA:") ||
			strings.Contains(strings.ToUpper(line), "[FIN DE LA LLAMADA]") {
			continue
		}

		if m := speakerLineRegex.FindStringSubmatch(line); m != nil {
			speaker, content := m[1], m[2]
			out = append(out, strings.ToUpper(speaker)+": "+strings.TrimSpace(redact(content)))
			continue
		}

		out = append(out, redact(line))
	}

	return strings.Join(out, "\n")
}

// redact replaces PII in one line. Order matters: identifier-like patterns
// first, then names, then dates and leftover numbers, so a later pass never
// partially re-matches an already-redacted token.
func redact(text string) string {
	for _, re := range rutRegexes {
		text = re.ReplaceAllString(text, tokenRUT)
	}
	text = emailRegex.ReplaceAllString(text, tokenEmail)
	text = phoneRegex.ReplaceAllString(text, tokenPhone)
	text = addressRegex.ReplaceAllString(text, tokenAddress)
	text = redactNames(text)
	for _, re := range dateRegexes {
		text = re.ReplaceAllString(text, tokenDate)
	}
	return numberRegex.ReplaceAllString(text, tokenNumber)
}

// redactNames replaces the capitalized name span after a cue phrase with
// <PERSON>, keeping the cue itself.
func redactNames(text string) string {
	for _, re := range namePatterns {
		text = re.ReplaceAllString(text, "${1}"+tokenPerson)
	}
	return text
}

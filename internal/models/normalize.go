package models

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	locationSeparators = regexp.MustCompile(`[ \-/.()]+`)
	repeatedUnderscore = regexp.MustCompile(`_{2,}`)
	trailingClause     = regexp.MustCompile(`, .*`)
)

// FoldAccents strips diacritics: "Gáldar" becomes "Galdar", "Ñ" becomes "N".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeLocation turns an AEMET station location into a series name:
// "SANTA CRUZ DE TENERIFE (LLANO)" becomes "santa_cruz_de_tenerife_llano".
func NormalizeLocation(s string) string {
	s = FoldAccents(s)
	s = locationSeparators.ReplaceAllString(s, "_")
	s = repeatedUnderscore.ReplaceAllString(s, "_")
	return strings.ToLower(strings.Trim(s, "_"))
}

// NormalizeMunicipalityName drops any trailing ", article" clause and joins
// words with underscores: "Palmas de Gran Canaria, Las" becomes
// "Palmas_de_Gran_Canaria".
func NormalizeMunicipalityName(s string) string {
	s = trailingClause.ReplaceAllString(s, "")
	return strings.ReplaceAll(FoldAccents(strings.TrimSpace(s)), " ", "_")
}

// NormalizeMeasurement turns a Grafcan location name into a series name.
func NormalizeMeasurement(s string) string {
	s = FoldAccents(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "(", "")
	return strings.ReplaceAll(s, ")", "")
}

var fieldNameReplacer = strings.NewReplacer(" ", "_", ".", "", "(", "", ")", "", "°", "")

// CleanFieldName builds a Grafcan field column from its observed property
// name and unit: ("Air Temperature", "°C") becomes "air_temperature_c".
func CleanFieldName(name, unit string) string {
	s := fieldNameReplacer.Replace(strings.ToLower(name + "_" + unit))
	return strings.Trim(s, "_")
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

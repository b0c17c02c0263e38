package phonetic

import "strings"

// cyrillicToLatin maps lowercase Cyrillic letters to a practical Latin
// rendering. The target is phonetic encoding input, not display text, so the
// mapping favours how letters sound over any romanisation standard. Hard and
// soft signs carry no sound and map to nothing.
var cyrillicToLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d",
	'е': "e", 'ё': "yo", 'ж': "zh", 'з': "z", 'и': "i",
	'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t",
	'у': "u", 'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch",
	'ш': "sh", 'щ': "sch", 'ъ': "", 'ы': "y", 'ь': "",
	'э': "e", 'ю': "yu", 'я': "ya",
}

// Transliterate renders Cyrillic letters in s as Latin so that Double
// Metaphone can encode them. Non-Cyrillic runes pass through unchanged;
// strings without Cyrillic are returned as-is without allocating.
func Transliterate(s string) string {
	hasCyrillic := false
	for _, r := range s {
		if _, ok := cyrillicToLatin[r]; ok {
			hasCyrillic = true
			break
		}
	}
	if !hasCyrillic {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if lat, ok := cyrillicToLatin[r]; ok {
			sb.WriteString(lat)
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

package rgog

// languageBitPosition is the fixed 128-slot BCP-47-like language tag
// table RGOG packs into ManifestEntry.Languages{1,2} (spec.md GLOSSARY
// "Language bit-set (RGOG)"). Bit assignments are fixed by the format and
// must match across implementations; grounded on
// original_source/examples/rgog/common.py's LANGUAGE_MAP.
var languageBitPosition = map[string]int{
	"en-US": 0, "en-GB": 1, "fr-FR": 2, "de-DE": 3, "es-ES": 4,
	"es-MX": 5, "pl-PL": 6, "ru-RU": 7, "it-IT": 8, "pt-BR": 9,
	"pt-PT": 10, "zh-Hans": 11, "zh-Hant": 12, "ja-JP": 13, "ko-KR": 14,
	"tr-TR": 15, "cs-CZ": 16, "hu-HU": 17, "nl-NL": 18, "sv-SE": 19,
	"nb-NO": 20, "da-DK": 21, "fi-FI": 22, "ar": 23, "th-TH": 24,
	"el-GR": 25, "ro-RO": 26, "uk-UA": 27, "bg-BG": 28, "hr-HR": 29,
	"vi-VN": 30, "id-ID": 31, "hi-IN": 32, "he-IL": 33, "sk-SK": 34,
	"sl-SI": 35, "sr-Latn": 36, "lt-LT": 37, "lv-LV": 38, "et-EE": 39,
	"is-IS": 40, "ms-MY": 41, "fil-PH": 42, "ca-ES": 43, "eu-ES": 44,
	"gl-ES": 45, "cy-GB": 46, "ga-IE": 47, "mt-MT": 48, "af-ZA": 49,
	"sw-KE": 50, "zu-ZA": 51, "xh-ZA": 52, "am-ET": 53, "bn-BD": 54,
	"gu-IN": 55, "kn-IN": 56, "ml-IN": 57, "mr-IN": 58, "pa-IN": 59,
	"ta-IN": 60, "te-IN": 61, "ne-NP": 62, "si-LK": 63, "my-MM": 64,
	"km-KH": 65, "lo-LA": 66, "ka-GE": 67, "hy-AM": 68, "az-Latn-AZ": 69,
	"kk-KZ": 70, "uz-Latn-UZ": 71, "mn-MN": 72, "bo-CN": 73, "ug-CN": 74,
	"ps-AF": 75, "fa-IR": 76, "ur-PK": 77, "sd-Arab-PK": 78, "ks-Arab-IN": 79,
	"dz-BT": 80, "ti-ET": 81, "om-ET": 82, "so-SO": 83,
}

var bitPositionLanguage = func() map[int]string {
	m := make(map[int]string, len(languageBitPosition))
	for lang, pos := range languageBitPosition {
		m[pos] = lang
	}
	return m
}()

// LanguagesToBitflags packs a language tag list into the two-uint64
// bit-set RGOG stores per depot manifest.
func LanguagesToBitflags(languages []string) (lo, hi uint64) {
	for _, lang := range languages {
		pos, ok := languageBitPosition[lang]
		if !ok {
			continue
		}
		if pos < 64 {
			lo |= 1 << uint(pos)
		} else {
			hi |= 1 << uint(pos-64)
		}
	}
	return lo, hi
}

// BitflagsToLanguages unpacks a (lo, hi) bit-set back into tags, sorted
// by bit position for deterministic output.
func BitflagsToLanguages(lo, hi uint64) []string {
	var out []string
	for pos := 0; pos < 64; pos++ {
		if lo&(1<<uint(pos)) != 0 {
			if lang, ok := bitPositionLanguage[pos]; ok {
				out = append(out, lang)
			}
		}
	}
	for pos := 0; pos < 64; pos++ {
		if hi&(1<<uint(pos)) != 0 {
			if lang, ok := bitPositionLanguage[pos+64]; ok {
				out = append(out, lang)
			}
		}
	}
	return out
}

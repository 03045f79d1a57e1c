package recognize

import "strings"

// deepgramLanguages lists the languages accepted by Deepgram's nova-2
// streaming model, in the order they are reported to clients.
var deepgramLanguages = []string{
	"en-US", "en", "en-AU", "en-GB", "en-IN", "en-NZ",
	"bg", "ca", "cs", "da", "da-DK", "de", "de-CH", "el",
	"es", "es-419", "et", "fi", "fr", "fr-CA", "hi", "hu",
	"id", "it", "ja", "ko", "ko-KR", "lt", "lv", "ms",
	"nl", "nl-BE", "no", "pl", "pt", "pt-BR", "pt-PT", "ro",
	"ru", "sk", "sv", "sv-SE", "th", "th-TH", "tr", "uk",
	"vi", "zh", "zh-CN", "zh-HK", "zh-Hans", "zh-Hant", "zh-TW",
}

// DefaultLanguages returns a copy of the built-in language table.
func DefaultLanguages() []string {
	out := make([]string, len(deepgramLanguages))
	copy(out, deepgramLanguages)
	return out
}

// NormalizeTag converts POSIX-style locale names such as "en_US.UTF-8" into
// BCP-47 tags ("en-US"). The language subtag is lowercased and a two-letter
// region uppercased.
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, ".@"); i >= 0 {
		tag = tag[:i]
	}
	tag = strings.ReplaceAll(tag, "_", "-")
	if tag == "" || strings.EqualFold(tag, "C") || strings.EqualFold(tag, "POSIX") {
		return ""
	}

	parts := strings.Split(tag, "-")
	parts[0] = strings.ToLower(parts[0])
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) == 2 {
			parts[i] = strings.ToUpper(parts[i])
		}
	}
	return strings.Join(parts, "-")
}

// Match returns the entry of supported that best serves tag: an exact
// (case-insensitive) match first, then the bare language subtag. It returns
// false when neither is supported.
func Match(tag string, supported []string) (string, bool) {
	tag = NormalizeTag(tag)
	if tag == "" {
		return "", false
	}
	for _, s := range supported {
		if strings.EqualFold(s, tag) {
			return s, true
		}
	}
	base, _, _ := strings.Cut(tag, "-")
	for _, s := range supported {
		if strings.EqualFold(s, base) {
			return s, true
		}
	}
	return "", false
}

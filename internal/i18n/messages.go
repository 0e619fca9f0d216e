// Package i18n localizes the status texts shown next to a generation.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	KeyPreparing    = "generation.preparing"
	KeyGenerating   = "generation.generating"
	KeyCompleted    = "generation.completed"
	KeyFailed       = "generation.failed"
	KeyTimedOut     = "generation.timed_out"
	KeyCancelled    = "generation.cancelled"
	KeyBriefCreated = "brief.created"
	KeyFeedbackSent = "feedback.sent"
)

var supported = []language.Tag{
	language.English,
	language.TraditionalChinese,
}

var matcher = language.NewMatcher(supported)

var entries = map[string]map[language.Tag]string{
	KeyPreparing: {
		language.English:            "Preparing generation...",
		language.TraditionalChinese: "正在準備生成...",
	},
	KeyGenerating: {
		language.English:            "Generating...",
		language.TraditionalChinese: "生成中...",
	},
	KeyCompleted: {
		language.English:            "Generation complete!",
		language.TraditionalChinese: "生成完成！",
	},
	KeyFailed: {
		language.English:            "Generation failed: %s",
		language.TraditionalChinese: "生成失敗: %s",
	},
	KeyTimedOut: {
		language.English:            "Generation timed out, please retry",
		language.TraditionalChinese: "生成超時，請重試",
	},
	KeyCancelled: {
		language.English:            "Generation cancelled",
		language.TraditionalChinese: "已取消生成",
	},
	KeyBriefCreated: {
		language.English:            "Brief created!",
		language.TraditionalChinese: "Brief 建立成功！",
	},
	KeyFeedbackSent: {
		language.English:            "Feedback submitted, weights updated!",
		language.TraditionalChinese: "反饋已提交，權重已更新！",
	},
}

var cat = func() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, texts := range entries {
		for tag, text := range texts {
			if err := b.SetString(tag, key, text); err != nil {
				panic(err)
			}
		}
	}
	return b
}()

// Match resolves a locale string or Accept-Language header to a supported tag.
func Match(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return language.English
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Normalize returns the canonical string of the supported locale closest to locale.
func Normalize(locale string) string {
	return Match(locale).String()
}

// CountryLocale maps an ISO country code to a default locale, or "" when
// the country has no preference.
func CountryLocale(country string) string {
	switch strings.ToUpper(strings.TrimSpace(country)) {
	case "TW", "HK", "MO":
		return language.TraditionalChinese.String()
	case "":
		return ""
	default:
		return language.English.String()
	}
}

// Printer returns a message printer for locale.
func Printer(locale string) *message.Printer {
	return message.NewPrinter(Match(locale), message.Catalog(cat))
}

// Text renders a message key for locale.
func Text(locale, key string, args ...any) string {
	return Printer(locale).Sprintf(key, args...)
}

package i18n

import "testing"

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"":                        "en",
		"en-US":                   "en",
		"zh-TW":                   "zh-Hant",
		"zh-Hant":                 "zh-Hant",
		"zh-TW,zh;q=0.9,en;q=0.8": "zh-Hant",
		"fr-FR, en;q=0.5":         "en",
		"not a locale !!":         "en",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestText(t *testing.T) {
	if got := Text("en", KeyTimedOut); got != "Generation timed out, please retry" {
		t.Fatalf("en timed out = %q", got)
	}
	if got := Text("zh-TW", KeyTimedOut); got != "生成超時，請重試" {
		t.Fatalf("zh timed out = %q", got)
	}
	if got := Text("zh-Hant", KeyFailed, "quota"); got != "生成失敗: quota" {
		t.Fatalf("zh failed = %q", got)
	}
	if got := Text("de", KeyCompleted); got != "Generation complete!" {
		t.Fatalf("fallback = %q", got)
	}
}

func TestCountryLocale(t *testing.T) {
	if CountryLocale("tw") != "zh-Hant" || CountryLocale("HK") != "zh-Hant" {
		t.Fatalf("expected Traditional Chinese for TW/HK")
	}
	if CountryLocale("ID") != "en" || CountryLocale("") != "" {
		t.Fatalf("unexpected country mapping")
	}
}

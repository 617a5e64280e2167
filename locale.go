package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

type Locale struct {
	translations map[string]string
	locale       string
}

//go:embed lang/en_US.yaml
var defaultCatalog []byte

var (
	globalLocale  *Locale
	defaultLocale = mustParseCatalog("en_US", defaultCatalog)
)

func mustParseCatalog(locale string, data []byte) *Locale {
	l, err := parseCatalog(locale, data)
	if err != nil {
		panic(fmt.Sprintf("embedded locale %s: %v", locale, err))
	}
	return l
}

func parseCatalog(locale string, data []byte) (*Locale, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, err
	}
	return &Locale{translations: translations, locale: locale}, nil
}

// InitLocale initializes the global locale system
func InitLocale() error {
	locale := DetectSystemLocale()

	l, err := LoadLocale(locale)
	if err != nil {
		if locale != "en_US" {
			fmt.Printf("Warning: Failed to load locale '%s', falling back to en_US: %v\n", locale, err)
		}
		globalLocale = defaultLocale
		return nil
	}

	globalLocale = l
	return nil
}

// DetectSystemLocale detects the user's system locale
func DetectSystemLocale() string {
	for _, name := range []string{"LANG", "LC_ALL", "LC_MESSAGES"} {
		if locale := os.Getenv(name); locale != "" {
			// Typically "en_US.UTF-8"
			parts := strings.Split(locale, ".")
			if parts[0] != "" && parts[0] != "C" && parts[0] != "POSIX" {
				return parts[0]
			}
		}
	}

	if runtime.GOOS == "windows" {
		if locale := os.Getenv("LANG"); locale != "" {
			return locale
		}
	}

	return "en_US"
}

// LoadLocale loads a locale file from the lang/ directory next to the executable.
func LoadLocale(locale string) (*Locale, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	return LoadLocaleFrom(filepath.Join(filepath.Dir(exePath), "lang"), locale)
}

func LoadLocaleFrom(dir, locale string) (*Locale, error) {
	localeFile := filepath.Join(dir, locale+".yaml")

	data, err := os.ReadFile(localeFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read locale file %s: %w", localeFile, err)
	}

	l, err := parseCatalog(locale, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse locale file %s: %w", localeFile, err)
	}
	return l, nil
}

// T translates a key with optional fmt-style parameters. Keys missing from
// the active locale fall back to en_US, then to the key itself.
func T(key string, params ...interface{}) string {
	translation, ok := lookup(globalLocale, key)
	if !ok {
		translation, ok = lookup(defaultLocale, key)
	}
	if !ok {
		return key
	}

	if len(params) > 0 {
		return fmt.Sprintf(translation, params...)
	}

	return translation
}

func lookup(l *Locale, key string) (string, bool) {
	if l == nil {
		return "", false
	}
	v, ok := l.translations[key]
	return v, ok
}

// GetLocale returns the current locale code (e.g., "en_US", "ru_RU")
func GetLocale() string {
	if globalLocale == nil {
		return "en_US"
	}
	return globalLocale.locale
}

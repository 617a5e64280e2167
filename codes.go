package main

import (
	"fmt"
	"regexp"
	"strings"
)

var codePattern = regexp.MustCompile(`(?i)\b(?:[A-Z0-9]{4,5}-){4}[A-Z0-9]{4,5}\b`)

// ParseCodes extracts every code in text, upper-cased, unique, in first-seen order.
func ParseCodes(text string) []string {
	matches := codePattern.FindAllString(strings.ToUpper(text), -1)
	seen := make(map[string]bool, len(matches))
	codes := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		codes = append(codes, m)
	}
	return codes
}

// IsCode reports whether s is exactly one code.
func IsCode(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	loc := codePattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// FilterUnattempted drops codes already in the ledger and returns the dropped ones too.
func FilterUnattempted(codes []string, ledger *Ledger) (fresh, skipped []string) {
	fresh = make([]string, 0, len(codes))
	for _, c := range codes {
		if ledger.Has(c) {
			skipped = append(skipped, c)
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, skipped
}

type Platform string

const (
	PlatformSteam Platform = "Steam"
	PlatformXbox  Platform = "Xbox Live"
	PlatformEpic  Platform = "Epic"
	PlatformPSN   Platform = "PSN"
)

var Platforms = []Platform{PlatformSteam, PlatformXbox, PlatformEpic, PlatformPSN}

func ParsePlatform(s string) (Platform, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "xbox", "xbl":
		return PlatformXbox, nil
	case "playstation", "ps":
		return PlatformPSN, nil
	}
	for _, p := range Platforms {
		if strings.ToLower(string(p)) == key {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q (choose one of Steam, Xbox Live, Epic, PSN)", s)
}

// RedeemLabel is the lower-cased button text that selects this platform.
func (p Platform) RedeemLabel() string {
	return "redeem for " + strings.ToLower(string(p))
}

// Package vkaudio searches and resolves tracks from VK Audio. Stream URLs
// come back obfuscated in several formats; the decode chain below tries
// each known encoding in order until one yields a playable URL.
package vkaudio

import (
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	mp3URLPattern = regexp.MustCompile(`https?://[^"'>\s]+\.mp3[^"'>\s]*`)
	hexEscape     = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)
)

// cipher substitutions seen in VK payloads, applied before anything else.
var cipherSubstitutions = []struct{ from, to string }{
	{"vk_audio_url", "https://cs"},
	{"vk_audio", "https://ps"},
	{"%2F", "/"},
	{"%3A", ":"},
	{"%3F", "?"},
	{"%3D", "="},
	{"%26", "&"},
}

type decodeFunc func(string) (string, bool)

// decodeChain is ordered cheapest-first; DecodeURL takes the first hit.
var decodeChain = []struct {
	name string
	fn   decodeFunc
}{
	{"direct", decodeDirect},
	{"base64", decodeBase64},
	{"cipher", decodeCipher},
	{"percent", decodePercent},
	{"hex", decodeHex},
	{"rot13", decodeRot13},
}

// DecodeURL runs the encoded value through every known VK obfuscation,
// returning the first candidate that looks like a stream URL. The result
// still needs a network probe before it can be trusted.
func DecodeURL(encoded string) (string, bool) {
	if encoded == "" {
		return "", false
	}
	for _, d := range decodeChain {
		if decoded, ok := d.fn(encoded); ok {
			return decoded, true
		}
	}
	return "", false
}

// decodeCandidates returns every strategy's output in chain order, deduped.
// The resolve path probes each candidate and keeps the first that answers.
func decodeCandidates(encoded string) []string {
	if encoded == "" {
		return nil
	}
	seen := make(map[string]struct{}, len(decodeChain))
	var out []string
	for _, d := range decodeChain {
		decoded, ok := d.fn(encoded)
		if !ok {
			continue
		}
		if _, dup := seen[decoded]; dup {
			continue
		}
		seen[decoded] = struct{}{}
		out = append(out, decoded)
	}
	return out
}

func decodeDirect(s string) (string, bool) {
	if strings.HasPrefix(s, "http") {
		return s, true
	}
	return "", false
}

// decodeBase64 tries raw, padded and URL-safe variants.
func decodeBase64(s string) (string, bool) {
	variants := []string{s}
	if pad := len(s) % 4; pad != 0 {
		variants = append(variants, s+strings.Repeat("=", 4-pad))
	}
	variants = append(variants, strings.NewReplacer("-", "+", "_", "/").Replace(s))

	for _, v := range variants {
		raw, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			continue
		}
		decoded := string(raw)
		if strings.HasPrefix(decoded, "http") && hasAudioHint(decoded) {
			return decoded, true
		}
	}
	return "", false
}

// decodeCipher reverses VK's homegrown obfuscation: token substitution,
// the audio_api_unavailable wrapper, and \xHH escapes.
func decodeCipher(s string) (string, bool) {
	decoded := s
	for _, sub := range cipherSubstitutions {
		decoded = strings.ReplaceAll(decoded, sub.from, sub.to)
	}

	if strings.Contains(decoded, "audio_api_unavailable") {
		if m := mp3URLPattern.FindString(decoded); m != "" {
			return m, true
		}
	}

	for hexEscape.MatchString(decoded) {
		decoded = hexEscape.ReplaceAllStringFunc(decoded, func(esc string) string {
			n, err := strconv.ParseUint(esc[2:], 16, 8)
			if err != nil {
				return esc
			}
			return string(rune(n))
		})
	}

	if strings.HasPrefix(decoded, "http") && hasAudioHint(decoded) {
		return decoded, true
	}
	return "", false
}

func decodePercent(s string) (string, bool) {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return "", false
	}
	if decoded != s && strings.HasPrefix(decoded, "http") {
		return decoded, true
	}
	return "", false
}

func decodeHex(s string) (string, bool) {
	if len(s) == 0 || len(s)%2 != 0 {
		return "", false
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", false
	}
	decoded := string(raw)
	if strings.HasPrefix(decoded, "http") {
		return decoded, true
	}
	return "", false
}

func decodeRot13(s string) (string, bool) {
	decoded := strings.Map(rot13, s)
	if strings.HasPrefix(decoded, "http") {
		return decoded, true
	}
	return "", false
}

func rot13(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return 'a' + (r-'a'+13)%26
	case r >= 'A' && r <= 'Z':
		return 'A' + (r-'A'+13)%26
	default:
		return r
	}
}

func hasAudioHint(u string) bool {
	lower := strings.ToLower(u)
	return strings.Contains(lower, ".mp3") || strings.Contains(lower, ".m4a")
}

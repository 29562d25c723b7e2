package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify はタイトルをURL向けスラッグにする。
// ベトナム語等のダイアクリティカルマークは NFD 分解して除去する。
// Đ/đ は結合文字に分解されないので先に置換しておく。
func Slugify(s string) string {
	s = strings.ReplaceAll(s, "Đ", "D")
	s = strings.ReplaceAll(s, "đ", "d")

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	s = strings.ToLower(s)
	var sb strings.Builder
	prevDash := true // 先頭のダッシュを抑止
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				sb.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.TrimRight(sb.String(), "-")
}

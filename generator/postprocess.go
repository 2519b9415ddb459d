package generator

import (
	"regexp"
	"strings"
)

var (
	titleRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```$")
)

// CleanMarkdown 去掉首尾空白，并拆掉包在外层的代码块。
func CleanMarkdown(raw string) (string, error) {
	md := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(md); len(m) == 2 {
		md = strings.TrimSpace(m[1])
	}
	if md == "" {
		return "", ErrEmptyResponse
	}
	return md, nil
}

// DeckTitle 取第一个一级标题，没有则返回 ""。
func DeckTitle(md string) string {
	m := titleRe.FindStringSubmatch(md)
	if len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// Snippet 合并空白并截断到 limit 个字符，用于日志。
func Snippet(s string, limit int) string {
	joined := strings.Join(strings.Fields(s), " ")
	r := []rune(joined)
	if len(r) <= limit {
		return joined
	}
	return string(r[:limit])
}

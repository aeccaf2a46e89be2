package model

import (
	"regexp"
	"strconv"
)

// checkPattern は s が re に一致するかを検証する。
func checkPattern(typ string, re *regexp.Regexp, s string) error {
	if !re.MatchString(s) {
		return &ParseError{Type: typ, Input: s}
	}
	return nil
}

// checkDecimal は s が先頭ゼロなしの10進数で lo <= n < hi に収まるかを検証する。
func checkDecimal(typ, s string, lo, hi uint64) (uint64, error) {
	if s == "" || len(s) > 1 && s[0] == '0' {
		return 0, &ParseError{Type: typ, Input: s}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n < lo || n >= hi {
		return 0, &ParseError{Type: typ, Input: s}
	}
	return n, nil
}

// checkRange は整数値が lo <= n <= hi に収まるかを検証する。
func checkRange(typ string, n, lo, hi int) error {
	if n < lo || n > hi {
		return &ParseError{Type: typ, Input: strconv.Itoa(n)}
	}
	return nil
}

// unmarshalParsed はUnmarshalTextの共通処理。
func unmarshalParsed[T any](dst *T, b []byte, parse func(string) (T, error)) error {
	v, err := parse(string(b))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

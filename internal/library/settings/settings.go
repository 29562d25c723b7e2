package settings

import (
	"context"
	"strconv"
)

// 設定キー（settings テーブルの setting_key）
const (
	KeyLateFeePerDay        = "late_fee_per_day"
	KeyMaxBooksPerMember    = "max_books_per_member"
	KeyRenewalExtensionDays = "renewal_extension_days"
)

// 既定値。キーが無い・パースできない場合はエラーではなくこちらへフォールバックする。
const (
	DefaultLateFeePerDay        = 0.0
	DefaultMaxBooksPerMember    = 5
	DefaultRenewalExtensionDays = 7
)

// Values は型付けされた設定一式。操作ごとに（必要ならそのTx内で）解決し直す。
// プロセス内キャッシュはしない。
type Values struct {
	LateFeePerDay        float64
	MaxBooksPerMember    int
	RenewalExtensionDays int
}

// Getter は生の文字列値を引く。見つからなければ ok=false（エラーではない）。
type Getter func(ctx context.Context, key string) (value string, ok bool, err error)

// Resolve は3キーをまとめて解決する。返すエラーはデータ層の障害のみ。
func Resolve(ctx context.Context, get Getter) (Values, error) {
	var v Values

	raw, ok, err := get(ctx, KeyLateFeePerDay)
	if err != nil {
		return v, err
	}
	v.LateFeePerDay = FeePerDay(raw, ok)

	raw, ok, err = get(ctx, KeyMaxBooksPerMember)
	if err != nil {
		return v, err
	}
	v.MaxBooksPerMember = MaxBooks(raw, ok)

	raw, ok, err = get(ctx, KeyRenewalExtensionDays)
	if err != nil {
		return v, err
	}
	v.RenewalExtensionDays = RenewalDays(raw, ok)

	return v, nil
}

// FeePerDay: 非負の数値のみ有効。無効値は 0（罰金なし）。
func FeePerDay(raw string, ok bool) float64 {
	if !ok {
		return DefaultLateFeePerDay
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return DefaultLateFeePerDay
	}
	return f
}

// MaxBooks: 非負整数のみ有効
func MaxBooks(raw string, ok bool) int {
	if !ok {
		return DefaultMaxBooksPerMember
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return DefaultMaxBooksPerMember
	}
	return n
}

// RenewalDays: 正の整数のみ有効（0日延長は意味がないため既定値へ）
func RenewalDays(raw string, ok bool) int {
	if !ok {
		return DefaultRenewalExtensionDays
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultRenewalExtensionDays
	}
	return n
}

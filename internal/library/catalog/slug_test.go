package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Clean Code", "clean-code"},
		{"  The Go Programming Language  ", "the-go-programming-language"},
		{"C++ Primer (5th Edition)", "c-primer-5th-edition"},
		// ベトナム語: ダイアクリティカルマーク除去と Đ の置換
		{"Đắc Nhân Tâm", "dac-nhan-tam"},
		{"Nhà Giả Kim", "nha-gia-kim"},
		{"Tuổi Trẻ Đáng Giá Bao Nhiêu", "tuoi-tre-dang-gia-bao-nhieu"},
		{"Café Society", "cafe-society"},
		{"1984", "1984"},
		{"---", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in), "input %q", tc.in)
	}
}

func TestAvgRating(t *testing.T) {
	b := Book{RatingSum: 0, RatingCount: 0}
	assert.Equal(t, 0.0, b.AvgRating())

	b = Book{RatingSum: 9, RatingCount: 2}
	assert.Equal(t, 4.5, b.AvgRating())
}

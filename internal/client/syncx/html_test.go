package syncx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHTMLEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "<p>a</p>", "<p>a</p>", true},
		{"whitespace", "<p>hello   world</p>", "<p>hello\n world </p>", true},
		{"attribute order", `<a href="x" class="y">l</a>`, `<a class="y" href="x">l</a>`, true},
		{"comments ignored", "<p>a<!-- c --></p>", "<p>a</p>", true},
		{"different text", "<p>a</p>", "<p>b</p>", false},
		{"different tag", "<p>a</p>", "<h1>a</h1>", false},
		{"different attribute", `<p class="x">a</p>`, `<p class="y">a</p>`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isHTMLEqual(tc.a, tc.b))
		})
	}
}

func TestPlainText_OneLinePerBlock(t *testing.T) {
	got := plainText("<h1>Title</h1><p>first <b>bold</b></p><ul><li>one</li><li>two</li></ul>")
	assert.Equal(t, "Title\nfirst bold\none\ntwo", got)
	assert.Equal(t, "plain", plainText("plain"))
}

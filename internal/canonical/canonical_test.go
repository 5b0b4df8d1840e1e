package canonical

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{
			name:   "paragraphs become lines",
			markup: `<p>北迴線和仁=崇德間落石。</p><p>預計18時恢復通車。</p>`,
			want:   "北迴線和仁=崇德間落石。\n預計18時恢復通車。",
		},
		{
			name:   "inline elements join",
			markup: `<p>預計<strong>18時</strong><span>恢復</span>通車</p>`,
			want:   "預計18時恢復通車",
		},
		{
			name:   "br and nested divs",
			markup: `<div><div>第一行<br>第二行</div></div>`,
			want:   "第一行\n第二行",
		},
		{
			name:   "scripts and styles dropped",
			markup: `<style>p{color:red}</style><p>內容</p><script>var x = "<p>no</p>";</script>`,
			want:   "內容",
		},
		{
			name:   "entities unescaped and whitespace collapsed",
			markup: "<p>  A&amp;B \t  &nbsp; C  </p>",
			want:   "A&B C",
		},
		{
			name:   "full-width digits and punctuation folded",
			markup: `<p>預計１８：３０恢復，請旅客留意。</p>`,
			want:   "預計18:30恢復,請旅客留意。",
		},
		{
			name:   "unclosed tags tolerated",
			markup: `<p>未關閉<b>粗體<p>下一段`,
			want:   "未關閉粗體\n下一段",
		},
		{
			name:   "table cells",
			markup: `<table><tr><td>瑞芳</td><td>08:30</td></tr></table>`,
			want:   "瑞芳\n08:30",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Canonicalize(tt.markup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.Text)
			assert.Equal(t, Fingerprint(tt.want), doc.Fingerprint)
		})
	}
}

func TestCanonicalize_MarkupOnlyChangeKeepsFingerprint(t *testing.T) {
	a, err := Canonicalize(`<p>預計18時恢復通車。</p>`)
	require.NoError(t, err)
	b, err := Canonicalize("<div class=\"x\">\n  預計18時恢復通車。\n</div>")
	require.NoError(t, err)
	c, err := Canonicalize(`<p>預計19時恢復通車。</p>`)
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestCanonicalize_NoText(t *testing.T) {
	for _, markup := range []string{"", "   ", "<div></div>", "<script>alert(1)</script>"} {
		doc, err := Canonicalize(markup)
		require.ErrorIs(t, err, ErrNoText, markup)
		assert.Empty(t, doc.Text)
		assert.Equal(t, Fingerprint(markup), doc.Fingerprint)
	}
}

func TestCanonicalize_Deterministic(t *testing.T) {
	markup := `<p>第3報</p><p>已於16:48恢復單線，預計18時恢復雙線。</p>`
	first, err := Canonicalize(markup)
	require.NoError(t, err)
	for range 5 {
		again, err := Canonicalize(markup)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("test")
	assert.Equal(t, "md5:098f6bcd4621d373cade4e832627b4f6", fp)
	assert.True(t, strings.HasPrefix(Fingerprint(""), HashPrefix))
	assert.Len(t, fp, len(HashPrefix)+32)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		" 預計 １８時\r\n\r\n  恢復   通車 ",
		"a　b",
		"",
		"\n\n\n",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
	assert.Equal(t, "預計 18時\n恢復 通車", Normalize(" 預計 １８時\r\n\r\n  恢復   通車 "))
}

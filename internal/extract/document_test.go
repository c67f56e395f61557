package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dashboard = `<!DOCTYPE html>
<html><head><title> Member Area </title></head>
<body>
  <ul class="jadwal">
    <li><span>Senin 08:00-09:40 ALG101 Algoritma</span></li>
    <li><span class="badge">Rabu 10:00-11:40 <b>ignored</b> tail</span></li>
  </ul>
  <ul class="sidebar">
    <li><a href="/member/pertemuan/pke/101"><i class="fa fa-circle-o"></i> <span>Meeting 3 - ALG101 Intro</span></a></li>
    <li><a href="/logout"><i class="fa fa-sign-out"></i><span>Keluar</span></a></li>
    <li><a href="/x">plain <em>link</em></a></li>
  </ul>
</body></html>`

func TestParse_SpansAndAnchors(t *testing.T) {
	doc, err := ParseString(dashboard)
	require.NoError(t, err)

	assert.Equal(t, "Member Area", doc.Title)

	require.Len(t, doc.Spans, 4)
	assert.Equal(t, "Senin 08:00-09:40 ALG101 Algoritma", doc.Spans[0].Text)
	assert.Equal(t, "Rabu 10:00-11:40", doc.Spans[1].Text, "text after a child element is not leading text")
	assert.Equal(t, "badge", doc.Spans[1].Class)

	require.Len(t, doc.Anchors, 3)
	meeting := doc.Anchors[0]
	assert.Equal(t, "/member/pertemuan/pke/101", meeting.Href)
	assert.Equal(t, "Meeting 3 - ALG101 Intro", meeting.SpanText)
	assert.True(t, meeting.HasIcon("fa-circle-o"))
	assert.True(t, meeting.HasIcon("fa fa-circle-o"))
	assert.False(t, meeting.HasIcon("fa-sign-out"))

	assert.Equal(t, "plain link", doc.Anchors[2].Text)
	assert.Empty(t, doc.Anchors[2].SpanText)
}

func TestParse_Empty(t *testing.T) {
	doc, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, doc.Spans)
	assert.Empty(t, doc.Anchors)
}

func TestRuleFunc(t *testing.T) {
	doc, err := ParseString(dashboard)
	require.NoError(t, err)

	var r Rule[string] = RuleFunc[string](func(d *Document) []string {
		var out []string
		for _, a := range d.Anchors {
			out = append(out, a.Href)
		}
		return out
	})
	assert.Equal(t, []string{"/member/pertemuan/pke/101", "/logout", "/x"}, r.Extract(doc))
}

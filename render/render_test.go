package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dhcgn/multipart-related/grammar"
	"github.com/dhcgn/multipart-related/model"
	"github.com/dhcgn/multipart-related/related"
)

const testContentType = `multipart/related; boundary=b; start="<img>"`

var testBody = strings.Join([]string{
	"--b",
	"Content-Id: <root>",
	"Content-Type: text/html; charset=utf-8",
	"",
	`<img src="cid:img">`,
	"--b",
	"Content-Id: <img>",
	"Content-Type: image/png",
	"",
	"data",
	"--b",
	"",
	"no headers",
	"--b--",
}, "\r\n")

func testDocument(t *testing.T, withBodies bool) Document {
	t.Helper()
	parts, err := related.ParseMessages(testContentType, testBody)
	require.NoError(t, err)

	doc := NewDocument(mustContentType(t), parts, withBodies)
	doc.ID = "msg-1"
	return doc
}

func TestNewDocument(t *testing.T) {
	doc := testDocument(t, false)

	assert.Equal(t, "multipart/related", doc.ContentType.Type)
	assert.Equal(t, `multipart/related; boundary="b"; start="<img>"`, doc.ContentType.Value)
	require.Len(t, doc.Parts, 3)

	assert.False(t, doc.Parts[0].Root)
	assert.True(t, doc.Parts[1].Root, "start attribute selects the root")
	assert.Equal(t, "<img>", doc.Parts[1].ContentID)
	assert.Equal(t, 4, doc.Parts[1].Size)
	assert.Empty(t, doc.Parts[1].Body)

	assert.Nil(t, doc.Parts[2].ContentType)
	assert.NotNil(t, doc.Parts[2].Headers)
}

func TestSelectDocument(t *testing.T) {
	ct, err := grammar.ParseContentType("multipart/related; boundary=b")
	require.NoError(t, err)
	parts, err := related.ParseMessages("multipart/related; boundary=b", testBody)
	require.NoError(t, err)

	doc := SelectDocument(ct, parts, []int{1, 2}, false)
	assert.Equal(t, 3, doc.TotalParts)
	require.Len(t, doc.Parts, 2)
	assert.Equal(t, 1, doc.Parts[0].Index)
	assert.Equal(t, "<img>", doc.Parts[0].ContentID)
	assert.False(t, doc.Parts[0].Root, "the first listed part is not the root when part 0 is left out")
	assert.Equal(t, 2, doc.Parts[1].Index)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc, FormatText))
	assert.Contains(t, buf.String(), "2 of 3")

	all := SelectDocument(ct, parts, nil, false)
	require.Len(t, all.Parts, 3)
	assert.True(t, all.Parts[0].Root)
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testDocument(t, true), FormatJSON))

	var got Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "msg-1", got.ID)
	require.Len(t, got.Parts, 3)
	assert.Equal(t, "data", got.Parts[1].Body)
	assert.NotContains(t, buf.String(), `"content_type": null`)
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testDocument(t, false), FormatYAML))

	var got Document
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Parts, 3)
	assert.Equal(t, "image/png", got.Parts[1].ContentType.Type)
	assert.Equal(t, "utf-8", got.Parts[0].ContentType.Attributes["charset"])
}

func TestWrite_TOML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testDocument(t, false), FormatTOML))

	var got Document
	_, err := toml.Decode(buf.String(), &got)
	require.NoError(t, err)
	require.Len(t, got.Parts, 3)
	assert.True(t, got.Parts[1].Root)
	assert.Equal(t, "<root>", got.Parts[0].Headers["Content-Id"])
}

func TestWrite_Text(t *testing.T) {
	doc := testDocument(t, true)
	doc.Parts[1].File = "part-001.png"

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc, FormatText))
	out := buf.String()

	assert.Contains(t, out, "Message:")
	assert.Contains(t, out, "#1 image/png [root]")
	assert.Contains(t, out, "#2 (no content type)")
	assert.Contains(t, out, "part-001.png")
	assert.Contains(t, out, "  no headers\n")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" YML ")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	assert.Equal(t, ".yaml", f.Ext())
	assert.Equal(t, ".txt", FormatText.Ext())

	_, err = ParseFormat("xml")
	assert.Error(t, err)
	assert.Error(t, Write(&bytes.Buffer{}, Document{}, Format("xml")))
}

func mustContentType(t *testing.T) model.ContentType {
	t.Helper()
	ct, err := grammar.ParseContentType(testContentType)
	require.NoError(t, err)
	return ct
}

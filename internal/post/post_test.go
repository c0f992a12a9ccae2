package post

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedFields(t *testing.T) {
	p := &Post{ID: "aXb1", Upvotes: 1200, Downvotes: 35}
	assert.Equal(t, "https://9gag.com/gag/aXb1", p.URL())
	assert.Equal(t, "https://img-9gag-fun.9cache.com/photo/aXb1_700bwp.webp", p.ImageURL())
	assert.Equal(t, 1165, p.Points())
}

func TestStringListsFields(t *testing.T) {
	p := &Post{
		ID:          "aXb1",
		Type:        "photo",
		Section:     "Funny",
		Title:       "First post",
		PublishTime: time.Date(2019, 10, 1, 12, 30, 0, 0, time.UTC),
	}
	s := p.String()
	assert.True(t, strings.HasPrefix(s, "Post #aXb1\n post_type: photo"))
	assert.Contains(t, s, "publish_time: 2019-10-01T12:30:00Z")
	assert.Contains(t, s, "url: https://9gag.com/gag/aXb1")
}

func TestJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(&Post{ID: "aXb1", CommentCount: 3})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"post_id":"aXb1"`)
	assert.Contains(t, string(data), `"comment_count":3`)
}

package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Embedded(t *testing.T) {
	ms, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].ID)
	assert.Contains(t, ms[0].Content, "backfill_audits")
	for i := 1; i < len(ms); i++ {
		assert.Less(t, ms[i-1].ID, ms[i].ID)
	}
}

func TestLoad_OrderingAndFiltering(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":   {Data: []byte("SELECT 10;")},
		"002_second.sql":  {Data: []byte("SELECT 2;")},
		"notes.sql":       {Data: []byte("ignored")},
		"abc_bad_id.sql":  {Data: []byte("ignored")},
		"003_readme.txt":  {Data: []byte("ignored")},
		"001_initial.sql": {Data: []byte("SELECT 1;")},
	}
	ms, err := load(fsys)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{ms[0].ID, ms[1].ID, ms[2].ID})
	assert.Equal(t, "SELECT 2;", ms[1].Content)
}

func TestLoad_DuplicateID(t *testing.T) {
	_, err := load(fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	})
	assert.ErrorContains(t, err, "share id 1")
}

package rarity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/custard-cli/internal/model"
)

func day(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func row(store, flavor, date string) model.Observation {
	return model.Observation{StoreID: store, Flavor: flavor, Date: day(date)}
}

func sampleRows() []model.Observation {
	return []model.Observation{
		row("mt-horeb", "Turtle", "2026-03-10"),
		row("verona", "Turtle", "2026-03-10"),
		row("madison-todd", "TURTLE", "2026-03-10"),
		row("sun-prairie", "Butter Pecan", "2026-03-10"),
		row("middleton", "Butter Pecan", "2026-03-10"),
		row("fitchburg", "Mint Explosion", "2026-03-10"),
		row("fitchburg", "Turtle", "2026-03-09"),
	}
}

func TestBuild(t *testing.T) {
	tbl := Build(sampleRows(), day("2026-03-10").Add(9*time.Hour), "g1")

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, 3, tbl.StoresServing("Turtle"))
	assert.Equal(t, 2, tbl.StoresServing("butter pecan"))
	assert.Equal(t, 1, tbl.StoresServing("Mint Explosion"))
	assert.Equal(t, 0, tbl.StoresServing("Vanilla"))

	assert.Equal(t, 1, tbl.Rank("Mint Explosion"))
	assert.Equal(t, 2, tbl.Rank("Butter Pecan"))
	assert.Equal(t, 3, tbl.Rank("Turtle"))
	assert.Equal(t, 0, tbl.Rank("Vanilla"))
}

func TestNilTable(t *testing.T) {
	var tbl *Table
	assert.Equal(t, 0, tbl.StoresServing("Turtle"))
	assert.Equal(t, 0, tbl.Rank("Turtle"))
	assert.Equal(t, 0, tbl.Len())
}

func TestCache_ReusesMatchingGeneration(t *testing.T) {
	var c Cache
	builds := 0
	build := func() (*Table, error) {
		builds++
		return Build(sampleRows(), day("2026-03-10"), ""), nil
	}

	a, err := c.Get("g1", build)
	require.NoError(t, err)
	b, err := c.Get("g1", build)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, builds)
	assert.Equal(t, "g1", a.Generation)

	_, err = c.Get("g2", build)
	require.NoError(t, err)
	assert.Equal(t, 2, builds)

	c.Reset()
	_, err = c.Get("g2", build)
	require.NoError(t, err)
	assert.Equal(t, 3, builds)
}

func TestCache_BuildErrorKeepsPrevious(t *testing.T) {
	var c Cache
	first, err := c.Get("g1", func() (*Table, error) { return Build(nil, day("2026-03-10"), ""), nil })
	require.NoError(t, err)

	_, err = c.Get("g2", func() (*Table, error) { return nil, errors.New("boom") })
	require.Error(t, err)

	again, err := c.Get("g1", func() (*Table, error) { t.Fatal("unexpected rebuild"); return nil, nil })
	require.NoError(t, err)
	assert.Same(t, first, again)
}

func TestFingerprint(t *testing.T) {
	d := day("2026-03-10")
	cap1 := d.Add(10 * time.Hour)

	assert.Equal(t, Fingerprint(d, cap1, 10), Fingerprint(d, cap1, 10))
	assert.NotEqual(t, Fingerprint(d, cap1, 10), Fingerprint(d, cap1, 11))
	assert.NotEqual(t, Fingerprint(d, cap1, 10), Fingerprint(d, cap1.Add(time.Second), 10))
	assert.Len(t, Fingerprint(d, cap1, 10), 16)
}

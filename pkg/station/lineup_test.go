package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSortsByChannel(t *testing.T) {
	lineup := Build([]Station{
		{ID: "3", ChannelNumber: "13.1", CallSign: "FOX"},
		{ID: "1", ChannelNumber: "4.1", CallSign: "ABC"},
		{ID: "4", ChannelNumber: "1000", CallSign: "LOCAL"},
		{ID: "2", ChannelNumber: "9.1", CallSign: "PBS"},
		{ID: "5", ChannelNumber: "4.2", CallSign: "ABC2"},
	})

	var channels []string
	for _, s := range lineup.Stations() {
		channels = append(channels, s.ChannelNumber)
	}

	assert.Equal(t, []string{"4.1", "4.2", "9.1", "13.1", "1000"}, channels)
}

func TestBuildDuplicateChannelLastWriteWins(t *testing.T) {
	lineup := Build([]Station{
		{ID: "1", ChannelNumber: "4.1", CallSign: "ABC"},
		{ID: "2", ChannelNumber: "9.1", CallSign: "PBS"},
		{ID: "3", ChannelNumber: "4.1", CallSign: "ABC-HD"},
	})

	require.Equal(t, 2, lineup.Len())

	s, ok := lineup.ByChannel("4.1")
	require.True(t, ok)
	assert.Equal(t, "ABC-HD", s.CallSign)

	_, ok = lineup.ByID("1")
	assert.False(t, ok, "overwritten station must not be reachable by id")
}

func TestBuildChannelNumbersUnique(t *testing.T) {
	input := []Station{
		{ChannelNumber: "2.1"}, {ChannelNumber: "2.1"}, {ChannelNumber: "5.1"},
		{ChannelNumber: "x"}, {ChannelNumber: "x"}, {ChannelNumber: "2.10"},
	}

	seen := map[string]bool{}
	for _, s := range Build(input).Stations() {
		assert.False(t, seen[s.ChannelNumber], "duplicate channel %s", s.ChannelNumber)
		seen[s.ChannelNumber] = true
	}
	assert.Len(t, seen, 4)
}

func TestLineupLookups(t *testing.T) {
	lineup := Build([]Station{
		{ID: "10", ChannelNumber: "4.1", CallSign: "ABC"},
		{ID: "20", ChannelNumber: "9.1", CallSign: "PBS"},
	})

	s, ok := lineup.ByCallSign("PBS")
	require.True(t, ok)
	assert.Equal(t, "9.1", s.ChannelNumber)

	s, ok = lineup.ByID("10")
	require.True(t, ok)
	assert.Equal(t, "ABC", s.CallSign)

	_, ok = lineup.ByChannel("7.1")
	assert.False(t, ok)

	var empty *Lineup
	_, ok = empty.ByChannel("4.1")
	assert.False(t, ok)
	assert.Zero(t, empty.Len())
}

func TestStationsReturnsCopy(t *testing.T) {
	lineup := Build([]Station{{ChannelNumber: "4.1", CallSign: "ABC"}})

	stations := lineup.Stations()
	stations[0].CallSign = "changed"

	s, _ := lineup.ByChannel("4.1")
	assert.Equal(t, "ABC", s.CallSign)
}

func TestCompareChannels(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"4.1", "13.1", -1},
		{"13.1", "4.1", 1},
		{"4.1", "4.1", 0},
		{"4.2", "4.10", -1},
		{"4", "4.1", -1},
		{"1000", "abc", -1},
		{"abc", "abd", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareChannels(tt.a, tt.b))
		})
	}
}

func TestNormalizeCallSign(t *testing.T) {
	assert.Equal(t, "CBS", NormalizeCallSign("4.1 CBS"))
	assert.Equal(t, "KUSDDT2", NormalizeCallSign("KUSDDT2"))

	ch, ok := ChannelFromCallSign("13.1 FOX")
	assert.True(t, ok)
	assert.Equal(t, "13.1", ch)

	_, ok = ChannelFromCallSign("FOX")
	assert.False(t, ok)
}

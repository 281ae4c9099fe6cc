package multiplexer

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunerproxy/tunerproxy/pkg/station"
)

// remapStep separates the channel ranges of consecutive sources.
const remapStep = 100

// Source is one instance lineup in configuration order.
type Source struct {
	Name   string
	Lineup *station.Lineup
}

type Route struct {
	// Source is the index into the slice given to Merge.
	Source int
	// Station is the station as known by its own instance.
	Station station.Station
}

// Merged holds read-only views of the source lineups. It never owns them.
type Merged struct {
	lineup *station.Lineup
	routes map[string]Route
}

func (m *Merged) Lineup() *station.Lineup {
	return m.lineup
}

// Route maps a merged channel number back to its originating instance.
func (m *Merged) Route(channel string) (Route, bool) {
	r, ok := m.routes[channel]
	return r, ok
}

// RouteByID maps an original station id back to its originating instance.
func (m *Merged) RouteByID(id string) (Route, bool) {
	st, ok := m.lineup.ByID(id)
	if !ok {
		return Route{}, false
	}
	return m.Route(st.ChannelNumber)
}

// Merge combines lineups, first seen call sign wins. Without remap a
// channel number already taken by an earlier source is dropped too.
func Merge(sources []Source, remap bool) *Merged {
	logger := log.With().Str("module", "multiplexer").Logger()

	merged := &Merged{routes: map[string]Route{}}
	seenCallSigns := map[string]string{}
	var stations []station.Station

	for i, src := range sources {
		for _, st := range src.Lineup.Stations() {
			callSign := station.NormalizeCallSign(st.CallSign)

			if from, ok := seenCallSigns[callSign]; ok {
				debugDrop(logger, src.Name, st, "duplicate call sign, first seen in "+from)
				continue
			}

			channel := st.ChannelNumber
			if remap {
				channel = Remap(channel, i)
			}

			if _, ok := merged.routes[channel]; ok {
				if remap {
					logger.Warn().
						Str("source", src.Name).
						Str("channel", channel).
						Str("callsign", st.CallSign).
						Msg("remapped channel still collides, dropping station")
				} else {
					debugDrop(logger, src.Name, st, "channel number already taken")
				}
				continue
			}

			seenCallSigns[callSign] = src.Name
			merged.routes[channel] = Route{Source: i, Station: st}

			out := st
			out.ChannelNumber = channel
			stations = append(stations, out)
		}
	}

	// insertion order is the documented merge order, keep it
	merged.lineup = station.FromOrdered(stations)

	logger.Debug().
		Int("sources", len(sources)).
		Int("stations", len(stations)).
		Bool("remap", remap).
		Msg("lineups merged")

	return merged
}

// Remap encodes the source index into the channel number, 13.1 from
// source 2 becomes 213.1. Source 0 keeps its numbers.
func Remap(channel string, index int) string {
	if index == 0 {
		return channel
	}

	major, minor, hasMinor := strings.Cut(channel, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		// not numeric, prefix with the index to stay unique
		return strconv.Itoa(index) + "-" + channel
	}

	remapped := strconv.Itoa(n + remapStep*index)
	if hasMinor {
		remapped += "." + minor
	}
	return remapped
}

func debugDrop(logger zerolog.Logger, source string, st station.Station, reason string) {
	logger.Debug().
		Str("source", source).
		Str("channel", st.ChannelNumber).
		Str("callsign", st.CallSign).
		Msg(reason)
}

package station

import (
	"sort"
	"strconv"
	"strings"
)

// Lineup is an ordered, read-only set of stations with unique channel numbers.
// A new Lineup is built on every refresh, existing ones are never mutated.
type Lineup struct {
	stations   []Station
	byChannel  map[string]int
	byCallSign map[string]int
	byID       map[string]int
}

// Build turns raw station records into a Lineup. Duplicate channel numbers
// are resolved last-write-wins, the result is sorted by channel number.
func Build(stations []Station) *Lineup {
	latest := make(map[string]Station, len(stations))
	for _, s := range stations {
		latest[s.ChannelNumber] = s
	}

	sorted := make([]Station, 0, len(latest))
	for _, s := range latest {
		sorted = append(sorted, s)
	}

	sort.Slice(sorted, func(i, j int) bool {
		return CompareChannels(sorted[i].ChannelNumber, sorted[j].ChannelNumber) < 0
	})

	return newLineup(sorted)
}

// FromOrdered keeps the given order. Channel numbers must already be unique.
func FromOrdered(stations []Station) *Lineup {
	return newLineup(append([]Station(nil), stations...))
}

func newLineup(stations []Station) *Lineup {
	l := &Lineup{
		stations:   stations,
		byChannel:  make(map[string]int, len(stations)),
		byCallSign: make(map[string]int, len(stations)),
		byID:       make(map[string]int, len(stations)),
	}

	for i, s := range stations {
		l.byChannel[s.ChannelNumber] = i
		if _, ok := l.byCallSign[s.CallSign]; !ok {
			l.byCallSign[s.CallSign] = i
		}
		if s.ID != "" {
			l.byID[s.ID] = i
		}
	}

	return l
}

func (l *Lineup) Len() int {
	if l == nil {
		return 0
	}
	return len(l.stations)
}

// Stations returns a copy of the stations in channel order.
func (l *Lineup) Stations() []Station {
	if l == nil {
		return nil
	}
	return append([]Station(nil), l.stations...)
}

func (l *Lineup) ByChannel(channel string) (Station, bool) {
	if l == nil {
		return Station{}, false
	}
	return l.lookup(l.byChannel, channel)
}

func (l *Lineup) ByCallSign(callSign string) (Station, bool) {
	if l == nil {
		return Station{}, false
	}
	return l.lookup(l.byCallSign, callSign)
}

func (l *Lineup) ByID(id string) (Station, bool) {
	if l == nil {
		return Station{}, false
	}
	return l.lookup(l.byID, id)
}

func (l *Lineup) lookup(index map[string]int, key string) (Station, bool) {
	i, ok := index[key]
	if !ok {
		return Station{}, false
	}
	return l.stations[i], true
}

// CompareChannels orders channel numbers like "4.1" < "13.1" < "1000".
// Numbers that do not parse fall back to lexical ordering after all
// numeric ones.
func CompareChannels(a, b string) int {
	amaj, amin, aok := splitChannel(a)
	bmaj, bmin, bok := splitChannel(b)

	switch {
	case aok && bok:
		if amaj != bmaj {
			return cmpInt(amaj, bmaj)
		}
		if amin != bmin {
			return cmpInt(amin, bmin)
		}
		return strings.Compare(a, b)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func splitChannel(ch string) (major, minor int, ok bool) {
	majorStr, minorStr, hasMinor := strings.Cut(ch, ".")

	var err error
	major, err = strconv.Atoi(majorStr)
	if err != nil {
		return 0, 0, false
	}

	if hasMinor {
		minor, err = strconv.Atoi(minorStr)
		if err != nil {
			return 0, 0, false
		}
	}

	return major, minor, true
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

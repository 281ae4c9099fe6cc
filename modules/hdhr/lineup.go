package hdhr

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/tunerproxy/tunerproxy/pkg/station"
)

type lineupEntry struct {
	XMLName     xml.Name `json:"-" xml:"Program"`
	GuideNumber string
	GuideName   string
	URL         string
}

type lineupDoc struct {
	XMLName  xml.Name      `xml:"Lineup"`
	Programs []lineupEntry `xml:"Program"`
}

func (m *ModuleCtx) entries(lineup *station.Lineup) []lineupEntry {
	stations := lineup.Stations()
	out := make([]lineupEntry, 0, len(stations))
	for _, st := range stations {
		out = append(out, lineupEntry{
			GuideNumber: st.ChannelNumber,
			GuideName:   guideName(st),
			URL:         m.autoURL(st),
		})
	}
	return out
}

func (m *ModuleCtx) lineupJSON(w http.ResponseWriter, r *http.Request) {
	lineup, err := m.device.Lineup(r.Context())
	if err != nil {
		m.fail(w, err, "could not load lineup")
		return
	}

	writeJSON(w, m.entries(lineup))
}

func (m *ModuleCtx) lineupXML(w http.ResponseWriter, r *http.Request) {
	lineup, err := m.device.Lineup(r.Context())
	if err != nil {
		m.fail(w, err, "could not load lineup")
		return
	}

	writeXML(w, lineupDoc{Programs: m.entries(lineup)})
}

var networks = map[string]struct{}{
	"ABC": {}, "CBS": {}, "NBC": {}, "FOX": {}, "CW": {}, "PBS": {},
}

func (m *ModuleCtx) lineupM3U(w http.ResponseWriter, r *http.Request) {
	lineup, err := m.device.Lineup(r.Context())
	if err != nil {
		m.fail(w, err, "could not load lineup")
		return
	}

	w.Header().Set("Content-Type", "audio/x-mpegurl")
	_, _ = w.Write([]byte(m.renderM3U(lineup)))
}

func (m *ModuleCtx) renderM3U(lineup *station.Lineup) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")

	for _, st := range lineup.Stations() {
		name := st.CallSign
		if name == "" {
			name = st.Name
		}

		var groups []string
		if st.City != "" {
			groups = append(groups, st.City)
		}
		if _, ok := networks[name]; ok {
			groups = append(groups, "Network")
		}

		tvgName := name
		if m.config.WithCity && st.City != "" {
			tvgName = fmt.Sprintf("%s (%s)", name, st.City)
		}

		fmt.Fprintf(&b, "#EXTINF:-1 tvg-id=\"%s\" tvg-name=\"%s\" tvg-logo=\"%s\" tvg-chno=\"%s\" group-title=\"%s\", %s\n",
			channelID(st), tvgName, st.LogoURL, st.ChannelNumber, strings.Join(groups, ";"), tvgName)
		fmt.Fprintf(&b, "%s/watch/%s\n\n", m.baseURL(), st.ID)
	}

	return b.String()
}

func channelID(st station.Station) string {
	return "channel." + st.ID
}

func writeXML(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	_ = enc.Encode(v)
}

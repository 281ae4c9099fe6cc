package hdhr

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunerproxy/tunerproxy/pkg/station"
)

const deviceAuth = "tunerproxy"

type ModuleCtx struct {
	logger   zerolog.Logger
	config   Config
	device   Device
	router   chi.Router
	scanning atomic.Bool
}

func New(device Device, config *Config) *ModuleCtx {
	m := &ModuleCtx{
		logger: log.With().
			Str("module", "hdhr").
			Str("uid", device.Descriptor().UID).
			Logger(),
		config: config.withDefaultValues(),
		device: device,
	}

	r := chi.NewRouter()
	r.Get("/", m.deviceXML)
	r.Get("/device.xml", m.deviceXML)
	r.Get("/discover.json", m.discover)
	r.Get("/lineup_status.json", m.lineupStatus)
	r.Get("/lineup.json", m.lineupJSON)
	r.Get("/lineup.m3u", m.lineupM3U)
	r.Get("/tuner.m3u", m.lineupM3U)
	r.Get("/lineup.xml", m.lineupXML)
	r.Get("/lineup.post", m.lineupPost)
	r.Post("/lineup.post", m.lineupPost)
	r.Get("/auto/v{channel}", m.auto)
	r.Get("/watch/{id}", m.watch)
	r.Get("/epg.xml", m.epg)
	m.router = r

	return m
}

func (m *ModuleCtx) Shutdown() {}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

func (m *ModuleCtx) baseURL() string {
	return m.device.Descriptor().BaseURL
}

func (m *ModuleCtx) fail(w http.ResponseWriter, err error, msg string) {
	status := errorStatus(err)
	m.logger.Warn().Err(err).Int("status", status).Msg(msg)
	http.Error(w, fmt.Sprintf("%d %s: %v", status, msg, err), status)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type discoverJSON struct {
	FriendlyName    string
	Manufacturer    string
	ModelNumber     string
	FirmwareName    string
	TunerCount      int
	FirmwareVersion string
	DeviceID        string
	DeviceAuth      string
	BaseURL         string
	LineupURL       string
}

func (m *ModuleCtx) discover(w http.ResponseWriter, r *http.Request) {
	d := m.device.Descriptor()
	writeJSON(w, discoverJSON{
		FriendlyName:    d.FriendlyName,
		Manufacturer:    d.Manufacturer,
		ModelNumber:     d.ModelNumber,
		FirmwareName:    d.FirmwareName,
		TunerCount:      d.TunerCount,
		FirmwareVersion: d.FirmwareVersion,
		DeviceID:        d.UID,
		DeviceAuth:      deviceAuth,
		BaseURL:         d.BaseURL,
		LineupURL:       d.BaseURL + "/lineup.json",
	})
}

type lineupStatusJSON struct {
	ScanInProgress int
	ScanPossible   int      `json:",omitempty"`
	Progress       int      `json:",omitempty"`
	Source         string   `json:",omitempty"`
	SourceList     []string `json:",omitempty"`
}

func (m *ModuleCtx) lineupStatus(w http.ResponseWriter, r *http.Request) {
	if m.scanning.Load() {
		writeJSON(w, lineupStatusJSON{
			ScanInProgress: 1,
			Progress:       50,
		})
		return
	}

	writeJSON(w, lineupStatusJSON{
		ScanInProgress: 0,
		ScanPossible:   1,
		Source:         "Antenna",
		SourceList:     []string{"Antenna"},
	})
}

func (m *ModuleCtx) lineupPost(w http.ResponseWriter, r *http.Request) {
	scan := r.URL.Query().Get("scan")
	if scan != "start" {
		http.Error(w, fmt.Sprintf("%s is not a valid scan command", scan), http.StatusBadRequest)
		return
	}

	if !m.scanning.CompareAndSwap(false, true) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer m.scanning.Store(false)

	if err := m.device.Rescan(r.Context()); err != nil {
		m.fail(w, err, "rescan failed")
		return
	}

	m.logger.Info().Msg("stations rescanned")
	w.WriteHeader(http.StatusNoContent)
}

func (m *ModuleCtx) auto(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")

	lineup, err := m.device.Lineup(r.Context())
	if err != nil {
		m.fail(w, err, "could not load lineup")
		return
	}

	st, ok := lineup.ByChannel(channel)
	if !ok {
		http.Error(w, "404 channel not found", http.StatusNotFound)
		return
	}

	m.device.Watch(w, r, st)
}

func (m *ModuleCtx) watch(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(chi.URLParam(r, "id"), ".m3u")

	lineup, err := m.device.Lineup(r.Context())
	if err != nil {
		m.fail(w, err, "could not load lineup")
		return
	}

	st, ok := lineup.ByID(id)
	if !ok {
		http.Error(w, "404 station not found", http.StatusNotFound)
		return
	}

	m.device.Watch(w, r, st)
}

func guideName(st station.Station) string {
	if st.Name != "" {
		return st.Name
	}
	return st.CallSign
}

func (m *ModuleCtx) autoURL(st station.Station) string {
	return m.baseURL() + "/auto/v" + st.ChannelNumber
}

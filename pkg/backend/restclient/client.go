package restclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunerproxy/tunerproxy/pkg/backend"
	"github.com/tunerproxy/tunerproxy/pkg/station"
)

// first made up channel number for stations without one
const fakeChannelBase = 1000

type Config struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
}

func (c Config) withDefaultValues() Config {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.UserAgent == "" {
		c.UserAgent = "curl/7.64.1"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// ClientCtx talks to a locast style REST API. It implements both
// backend.Client and backend.Resolver.
type ClientCtx struct {
	logger zerolog.Logger
	config Config
	http   *http.Client
	now    func() time.Time
}

func New(config *Config) *ClientCtx {
	c := config.withDefaultValues()
	return &ClientCtx{
		logger: log.With().Str("module", "backend").Logger(),
		config: c,
		http:   &http.Client{Timeout: c.Timeout},
		now:    time.Now,
	}
}

type dmaResponse struct {
	DMA       string  `json:"DMA"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Active    bool    `json:"active"`
	Timezone  string  `json:"timezone"`
}

func (c *ClientCtx) Resolve(ctx context.Context, override backend.Override) (station.Region, error) {
	var path string
	switch {
	case override.HasCoords:
		path = fmt.Sprintf("/watch/dma/%s/%s",
			strconv.FormatFloat(override.Latitude, 'f', -1, 64),
			strconv.FormatFloat(override.Longitude, 'f', -1, 64))
	case override.ZipCode != "":
		path = "/watch/dma/zip/" + url.PathEscape(override.ZipCode)
	default:
		path = "/watch/dma/ip"
	}

	var dma dmaResponse
	if err := c.getJSON(ctx, path, &dma); err != nil {
		if errors.Is(err, errNotFound) {
			return station.Region{}, fmt.Errorf("%w: %s", backend.ErrInvalidLocation, path)
		}
		return station.Region{}, err
	}

	if !dma.Active || dma.DMA == "" {
		return station.Region{}, fmt.Errorf("%w: service not available in %s", backend.ErrInvalidLocation, dma.Name)
	}

	region := station.Region{
		ID:        dma.DMA,
		Name:      dma.Name,
		Latitude:  dma.Latitude,
		Longitude: dma.Longitude,
		ZipCode:   override.ZipCode,
		Timezone:  dma.Timezone,
	}

	c.logger.Info().Str("region", region.String()).Msg("location resolved")
	return region, nil
}

type listing struct {
	StartTime       int64  `json:"startTime"`
	Duration        int64  `json:"duration"`
	Title           string `json:"title"`
	EpisodeTitle    string `json:"episodeTitle"`
	Description     string `json:"description"`
	Genres          string `json:"genres"`
	VideoProperties string `json:"videoProperties"`
	Rating          string `json:"rating"`
	SeasonNumber    int    `json:"seasonNumber"`
	EpisodeNumber   int    `json:"episodeNumber"`
	IsNew           bool   `json:"isNew"`
	PreferredImage  string `json:"preferredImage"`
}

type epgStation struct {
	ID         json.Number `json:"id"`
	Name       string      `json:"name"`
	CallSign   string      `json:"callSign"`
	LogoURL    string      `json:"logoUrl"`
	Logo226URL string      `json:"logo226Url"`
	Listings   []listing   `json:"listings"`
}

func (c *ClientCtx) epg(ctx context.Context, region station.Region, hours int) ([]epgStation, error) {
	start := c.now().UTC().Format("2006-01-02") + "T00:00:00-00:00"
	path := fmt.Sprintf("/watch/epg/%s?startTime=%s&hours=%d",
		url.PathEscape(region.ID), url.QueryEscape(start), hours)

	var stations []epgStation
	if err := c.getJSON(ctx, path, &stations); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
		}
		return nil, err
	}
	return stations, nil
}

func (c *ClientCtx) ListStations(ctx context.Context, region station.Region) ([]station.Station, error) {
	raw, err := c.epg(ctx, region, 1)
	if err != nil {
		return nil, err
	}

	fake := fakeChannelBase
	stations := make([]station.Station, 0, len(raw))
	for _, s := range raw {
		channel, ok := station.ChannelFromCallSign(s.CallSign)
		if !ok {
			channel, ok = station.ChannelFromCallSign(s.Name)
		}
		if !ok {
			c.logger.Warn().
				Str("name", s.Name).
				Str("callsign", s.CallSign).
				Int("channel", fake).
				Msg("channel number not found, assigning one")
			channel = strconv.Itoa(fake)
			fake++
		}

		logo := s.LogoURL
		if logo == "" {
			logo = s.Logo226URL
		}

		stations = append(stations, station.Station{
			ID:            s.ID.String(),
			ChannelNumber: channel,
			CallSign:      station.NormalizeCallSign(s.CallSign),
			Name:          s.Name,
			City:          region.Name,
			LogoURL:       logo,
			StreamType:    station.HLS,
		})
	}

	return stations, nil
}

func (c *ClientCtx) ProgramGuide(ctx context.Context, region station.Region, days int) (backend.Guide, error) {
	if days <= 0 {
		days = 1
	}

	raw, err := c.epg(ctx, region, days*24)
	if err != nil {
		return backend.Guide{}, err
	}

	guide := backend.Guide{Channels: make([]backend.GuideChannel, 0, len(raw))}
	for _, s := range raw {
		ch := backend.GuideChannel{StationID: s.ID.String()}
		for _, l := range s.Listings {
			var genres []string
			if l.Genres != "" {
				for _, g := range strings.Split(l.Genres, ",") {
					genres = append(genres, strings.TrimSpace(g))
				}
			}

			ch.Programs = append(ch.Programs, backend.Program{
				Title:       l.Title,
				EpisodeName: l.EpisodeTitle,
				Description: l.Description,
				Start:       time.UnixMilli(l.StartTime).UTC(),
				Duration:    time.Duration(l.Duration) * time.Second,
				Genres:      genres,
				Rating:      l.Rating,
				HD:          strings.Contains(l.VideoProperties, "HD"),
				New:         l.IsNew,
				Season:      l.SeasonNumber,
				Episode:     l.EpisodeNumber,
				ImageURL:    l.PreferredImage,
			})
		}
		guide.Channels = append(guide.Channels, ch)
	}

	return guide, nil
}

type watchResponse struct {
	StreamURL string `json:"streamUrl"`
}

// StreamURL returns the highest resolution variant of the station stream.
func (c *ClientCtx) StreamURL(ctx context.Context, region station.Region, stationID string) (string, error) {
	path := fmt.Sprintf("/watch/station/%s/%s/%s",
		url.PathEscape(stationID),
		strconv.FormatFloat(region.Latitude, 'f', -1, 64),
		strconv.FormatFloat(region.Longitude, 'f', -1, 64))

	var watch watchResponse
	if err := c.getJSON(ctx, path, &watch); err != nil {
		return "", err
	}

	if watch.StreamURL == "" {
		return "", fmt.Errorf("%w: empty stream url for station %s", backend.ErrUnavailable, stationID)
	}

	best, err := c.bestVariant(ctx, watch.StreamURL)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", watch.StreamURL).Msg("could not inspect playlist, using it as is")
		return watch.StreamURL, nil
	}
	return best, nil
}

var errNotFound = errors.New("not found")

func (c *ClientCtx) do(ctx context.Context, rawURL string, auth bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	if auth {
		req.Header.Set("Content-Type", "application/json")
		if c.config.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.Token)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		res.Body.Close()
		return nil, fmt.Errorf("%w: %s", backend.ErrAuth, res.Status)
	case res.StatusCode == http.StatusNotFound:
		res.Body.Close()
		return nil, fmt.Errorf("%w: %s", errNotFound, rawURL)
	case res.StatusCode >= 400:
		res.Body.Close()
		return nil, fmt.Errorf("%w: %s", backend.ErrUnavailable, res.Status)
	}

	return res, nil
}

func (c *ClientCtx) getJSON(ctx context.Context, path string, v interface{}) error {
	res, err := c.do(ctx, c.config.BaseURL+path, true)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", backend.ErrUnavailable, path, err)
	}
	return nil
}

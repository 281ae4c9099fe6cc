package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tunerproxy/tunerproxy/pkg/backend"
)

type Config interface {
	Init(cmd *cobra.Command) error
	Set()
}

type Device struct {
	Model    string
	Firmware string
	Version  string
}

type Tuner struct {
	UID            string
	Bind           string
	Port           int
	TunerCount     int
	Multiplex      bool
	MultiplexDebug bool
	Remap          bool
	SSDP           bool
	Days           int
	Device         Device

	OverrideLocation string
	OverrideZipcodes string
}

func (Tuner) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("uid", "", "unique identifier of the device, random when empty")
	if err := viper.BindPFlag("uid", cmd.PersistentFlags().Lookup("uid")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("bind", "127.0.0.1", "bind IP address")
	if err := viper.BindPFlag("bind", cmd.PersistentFlags().Lookup("bind")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("port", 6077, "first tcp port, device i listens on port+i")
	if err := viper.BindPFlag("port", cmd.PersistentFlags().Lookup("port")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("tuner-count", 3, "tuner count reported to clients and concurrent streams per device")
	if err := viper.BindPFlag("tuner-count", cmd.PersistentFlags().Lookup("tuner-count")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("multiplex", false, "merge all regions into a single device")
	if err := viper.BindPFlag("multiplex", cmd.PersistentFlags().Lookup("multiplex")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("multiplex-debug", false, "with multiplex, also serve every region on its own port")
	if err := viper.BindPFlag("multiplex-debug", cmd.PersistentFlags().Lookup("multiplex-debug")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("remap", false, "with multiplex, renumber channels per region instead of dropping collisions")
	if err := viper.BindPFlag("remap", cmd.PersistentFlags().Lookup("remap")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("ssdp", true, "announce devices using SSDP")
	if err := viper.BindPFlag("ssdp", cmd.PersistentFlags().Lookup("ssdp")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("days", 7, "days of program guide in epg.xml")
	if err := viper.BindPFlag("days", cmd.PersistentFlags().Lookup("days")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("device.model", "HDHR3-US", "device model reported to clients")
	if err := viper.BindPFlag("device.model", cmd.PersistentFlags().Lookup("device.model")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("device.firmware", "hdhomerun3_atsc", "model firmware reported to clients")
	if err := viper.BindPFlag("device.firmware", cmd.PersistentFlags().Lookup("device.firmware")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("device.version", "1.2.3456", "model version reported to clients")
	if err := viper.BindPFlag("device.version", cmd.PersistentFlags().Lookup("device.version")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("override-location", "", "use LAT,LONG instead of IP geolocation")
	if err := viper.BindPFlag("override-location", cmd.PersistentFlags().Lookup("override-location")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("override-zipcodes", "", "comma separated zip codes, one device per zip code")
	if err := viper.BindPFlag("override-zipcodes", cmd.PersistentFlags().Lookup("override-zipcodes")); err != nil {
		return err
	}

	return nil
}

func (t *Tuner) Set() {
	t.UID = viper.GetString("uid")
	if t.UID == "" {
		t.UID = uuid.NewString()
		log.Warn().Str("uid", t.UID).Msg("no uid configured, clients will see new devices after a restart")
	}

	t.Bind = viper.GetString("bind")
	t.Port = viper.GetInt("port")
	t.TunerCount = viper.GetInt("tuner-count")
	t.Multiplex = viper.GetBool("multiplex")
	t.MultiplexDebug = viper.GetBool("multiplex-debug")
	t.Remap = viper.GetBool("remap")
	t.SSDP = viper.GetBool("ssdp")
	t.Days = viper.GetInt("days")

	t.Device.Model = viper.GetString("device.model")
	t.Device.Firmware = viper.GetString("device.firmware")
	t.Device.Version = viper.GetString("device.version")

	t.OverrideLocation = viper.GetString("override-location")
	t.OverrideZipcodes = viper.GetString("override-zipcodes")
}

// Overrides turns the location options into one override per device.
func (t *Tuner) Overrides() ([]backend.Override, error) {
	if t.OverrideLocation != "" && t.OverrideZipcodes != "" {
		return nil, errors.New("override-location and override-zipcodes are mutually exclusive")
	}

	if t.OverrideLocation != "" {
		lat, lon, ok := strings.Cut(t.OverrideLocation, ",")
		if !ok {
			return nil, fmt.Errorf("override-location %q is not LAT,LONG", t.OverrideLocation)
		}

		latitude, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
		if err != nil {
			return nil, fmt.Errorf("override-location latitude: %w", err)
		}
		longitude, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
		if err != nil {
			return nil, fmt.Errorf("override-location longitude: %w", err)
		}

		return []backend.Override{{Latitude: latitude, Longitude: longitude, HasCoords: true}}, nil
	}

	var overrides []backend.Override
	for _, zip := range strings.Split(t.OverrideZipcodes, ",") {
		zip = strings.TrimSpace(zip)
		if zip != "" {
			overrides = append(overrides, backend.Override{ZipCode: zip})
		}
	}
	return overrides, nil
}

type Stream struct {
	BytesPerRead int
	FFmpeg       string
	FFmpegArgs   []string
	Direct       bool
	Grace        time.Duration
}

func (Stream) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().Int("bytes-per-read", 1152000, "bytes read from the decoder per chunk")
	if err := viper.BindPFlag("bytes-per-read", cmd.PersistentFlags().Lookup("bytes-per-read")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("ffmpeg", "ffmpeg", "path to the decoder binary")
	if err := viper.BindPFlag("ffmpeg", cmd.PersistentFlags().Lookup("ffmpeg")); err != nil {
		return err
	}

	cmd.PersistentFlags().StringSlice("ffmpeg-args", nil, "decoder arguments, {url} is replaced by the stream url")
	if err := viper.BindPFlag("ffmpeg-args", cmd.PersistentFlags().Lookup("ffmpeg-args")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("direct", false, "redirect clients to the backend stream instead of decoding")
	if err := viper.BindPFlag("direct", cmd.PersistentFlags().Lookup("direct")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("grace", 5*time.Second, "time a decoder gets to exit before it is killed")
	if err := viper.BindPFlag("grace", cmd.PersistentFlags().Lookup("grace")); err != nil {
		return err
	}

	return nil
}

func (s *Stream) Set() {
	s.BytesPerRead = viper.GetInt("bytes-per-read")
	s.FFmpeg = viper.GetString("ffmpeg")
	s.FFmpegArgs = viper.GetStringSlice("ffmpeg-args")
	s.Direct = viper.GetBool("direct")
	s.Grace = viper.GetDuration("grace")
}

type Cache struct {
	TTL     time.Duration
	Timeout time.Duration
	Refresh string
}

func (Cache) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().Duration("cache.ttl", time.Hour, "how long station lists are cached")
	if err := viper.BindPFlag("cache.ttl", cmd.PersistentFlags().Lookup("cache.ttl")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cache.timeout", 15*time.Second, "timeout of a single station list fetch")
	if err := viper.BindPFlag("cache.timeout", cmd.PersistentFlags().Lookup("cache.timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("cache.refresh", "", "cron spec for background refresh, e.g. @every 30m")
	if err := viper.BindPFlag("cache.refresh", cmd.PersistentFlags().Lookup("cache.refresh")); err != nil {
		return err
	}

	return nil
}

func (c *Cache) Set() {
	c.TTL = viper.GetDuration("cache.ttl")
	c.Timeout = viper.GetDuration("cache.timeout")
	c.Refresh = viper.GetString("cache.refresh")
}

type Backend struct {
	URL   string
	Token string
}

func (Backend) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("backend.url", "https://api.locastnet.org/api", "base url of the streaming backend")
	if err := viper.BindPFlag("backend.url", cmd.PersistentFlags().Lookup("backend.url")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("backend.token", "", "bearer token for the streaming backend")
	if err := viper.BindPFlag("backend.token", cmd.PersistentFlags().Lookup("backend.token")); err != nil {
		return err
	}

	return nil
}

func (b *Backend) Set() {
	b.URL = viper.GetString("backend.url")
	b.Token = viper.GetString("backend.token")
}

type Server struct {
	Metrics bool
	PProf   bool
}

func (Server) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().Bool("metrics", false, "expose prometheus metrics at /metrics")
	if err := viper.BindPFlag("metrics", cmd.PersistentFlags().Lookup("metrics")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("pprof", false, "enable pprof endpoint available at /debug/pprof")
	if err := viper.BindPFlag("pprof", cmd.PersistentFlags().Lookup("pprof")); err != nil {
		return err
	}

	return nil
}

func (s *Server) Set() {
	s.Metrics = viper.GetBool("metrics")
	s.PProf = viper.GetBool("pprof")
}

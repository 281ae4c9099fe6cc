package restclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
)

// bestVariant loads an HLS playlist and returns the absolute URL of its
// highest resolution variant. Media playlists are returned unchanged.
func (c *ClientCtx) bestVariant(ctx context.Context, streamURL string) (string, error) {
	res, err := c.do(ctx, streamURL, false)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	playlist, listType, err := m3u8.DecodeFrom(res.Body, false)
	if err != nil {
		return "", fmt.Errorf("decoding playlist: %w", err)
	}

	if listType != m3u8.MASTER {
		return streamURL, nil
	}

	master := playlist.(*m3u8.MasterPlaylist)
	best := selectVariant(master.Variants)
	if best == nil {
		return streamURL, nil
	}

	return resolveReference(streamURL, best.URI)
}

func selectVariant(variants []*m3u8.Variant) *m3u8.Variant {
	var best *m3u8.Variant
	var bestPixels int

	for _, v := range variants {
		if v == nil || v.URI == "" {
			continue
		}

		pixels := resolutionPixels(v.Resolution)
		if best == nil ||
			pixels > bestPixels ||
			pixels == bestPixels && v.Bandwidth > best.Bandwidth {
			best, bestPixels = v, pixels
		}
	}

	return best
}

// resolutionPixels parses "1280x720".
func resolutionPixels(resolution string) int {
	w, h, ok := strings.Cut(strings.ToLower(resolution), "x")
	if !ok {
		return 0
	}

	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil {
		return 0
	}
	return width * height
}

func resolveReference(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}

	return baseURL.ResolveReference(refURL).String(), nil
}

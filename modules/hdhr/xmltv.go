package hdhr

import (
	"encoding/xml"
	"net/http"
	"strconv"
	"strings"

	"github.com/tunerproxy/tunerproxy/pkg/backend"
	"github.com/tunerproxy/tunerproxy/pkg/station"
)

const xmltvTimeFormat = "20060102150405 -0700"

type xmltvDoc struct {
	XMLName       xml.Name         `xml:"tv"`
	GeneratorName string           `xml:"generator-info-name,attr"`
	SourceURL     string           `xml:"source-info-url,attr,omitempty"`
	Channels      []xmltvChannel   `xml:"channel"`
	Programmes    []xmltvProgramme `xml:"programme"`
}

type xmltvChannel struct {
	ID           string     `xml:"id,attr"`
	DisplayNames []string   `xml:"display-name"`
	Icon         *xmltvIcon `xml:"icon,omitempty"`
}

type xmltvIcon struct {
	Src string `xml:"src,attr"`
}

type xmltvText struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

type xmltvEpisodeNum struct {
	System string `xml:"system,attr"`
	Value  string `xml:",chardata"`
}

type xmltvVideo struct {
	Aspect  string `xml:"aspect"`
	Quality string `xml:"quality"`
}

type xmltvRating struct {
	System string `xml:"system,attr,omitempty"`
	Value  string `xml:"value"`
}

type xmltvProgramme struct {
	Start      string            `xml:"start,attr"`
	Stop       string            `xml:"stop,attr"`
	Channel    string            `xml:"channel,attr"`
	Title      xmltvText         `xml:"title"`
	SubTitle   *xmltvText        `xml:"sub-title,omitempty"`
	Desc       *xmltvText        `xml:"desc,omitempty"`
	Categories []xmltvText       `xml:"category"`
	EpisodeNum []xmltvEpisodeNum `xml:"episode-num"`
	Icon       *xmltvIcon        `xml:"icon,omitempty"`
	Video      xmltvVideo        `xml:"video"`
	New        *struct{}         `xml:"new,omitempty"`
	Rating     *xmltvRating      `xml:"rating,omitempty"`
}

func (m *ModuleCtx) epg(w http.ResponseWriter, r *http.Request) {
	lineup, err := m.device.Lineup(r.Context())
	if err != nil {
		m.fail(w, err, "could not load lineup")
		return
	}

	guide, err := m.device.Guide(r.Context(), m.config.Days)
	if err != nil {
		m.fail(w, err, "could not load guide")
		return
	}

	writeXML(w, buildXMLTV(lineup, guide, m.baseURL()))
}

func buildXMLTV(lineup *station.Lineup, guide backend.Guide, baseURL string) xmltvDoc {
	doc := xmltvDoc{
		GeneratorName: "tunerproxy",
		SourceURL:     baseURL,
	}

	for _, st := range lineup.Stations() {
		ch := xmltvChannel{
			ID:           channelID(st),
			DisplayNames: displayNames(st),
		}
		if st.LogoURL != "" {
			ch.Icon = &xmltvIcon{Src: st.LogoURL}
		}
		doc.Channels = append(doc.Channels, ch)
	}

	for _, gc := range guide.Channels {
		st, ok := lineup.ByID(gc.StationID)
		if !ok {
			continue
		}

		for _, p := range gc.Programs {
			doc.Programmes = append(doc.Programmes, programme(st, p))
		}
	}

	return doc
}

func displayNames(st station.Station) []string {
	names := []string{}
	for _, n := range []string{st.ChannelNumber + " " + st.CallSign, st.CallSign, st.Name, st.ChannelNumber} {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}

		dup := false
		for _, seen := range names {
			if seen == n {
				dup = true
				break
			}
		}
		if !dup {
			names = append(names, n)
		}
	}
	return names
}

func programme(st station.Station, p backend.Program) xmltvProgramme {
	out := xmltvProgramme{
		Start:   p.Start.Format(xmltvTimeFormat),
		Stop:    p.Start.Add(p.Duration).Format(xmltvTimeFormat),
		Channel: channelID(st),
		Title:   xmltvText{Lang: "en", Value: p.Title},
		Video:   xmltvVideo{Aspect: "4:3", Quality: "SD"},
	}

	if p.EpisodeName != "" {
		out.SubTitle = &xmltvText{Lang: "en", Value: p.EpisodeName}
	}
	if p.Description != "" {
		out.Desc = &xmltvText{Lang: "en", Value: p.Description}
	}
	for _, g := range p.Genres {
		out.Categories = append(out.Categories, xmltvText{Lang: "en", Value: g})
	}
	if p.Season > 0 && p.Episode > 0 {
		// xmltv_ns is zero based
		out.EpisodeNum = append(out.EpisodeNum,
			xmltvEpisodeNum{
				System: "xmltv_ns",
				Value:  strconv.Itoa(p.Season-1) + "." + strconv.Itoa(p.Episode-1) + ".",
			},
			xmltvEpisodeNum{
				System: "onscreen",
				Value:  "S" + pad2(p.Season) + "E" + pad2(p.Episode),
			})
	}
	if p.ImageURL != "" {
		out.Icon = &xmltvIcon{Src: p.ImageURL}
	}
	if p.HD {
		out.Video = xmltvVideo{Aspect: "16:9", Quality: "HDTV"}
	}
	if p.New {
		out.New = &struct{}{}
	}
	if p.Rating != "" {
		out.Rating = &xmltvRating{System: "VCHIP", Value: p.Rating}
	}

	return out
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

type deviceDoc struct {
	XMLName     xml.Name      `xml:"urn:schemas-upnp-org:device-1-0 root"`
	SpecVersion specVersion   `xml:"specVersion"`
	URLBase     string        `xml:"URLBase"`
	Device      deviceElement `xml:"device"`
}

type specVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type deviceElement struct {
	DeviceType   string `xml:"deviceType"`
	FriendlyName string `xml:"friendlyName"`
	Manufacturer string `xml:"manufacturer"`
	ModelName    string `xml:"modelName"`
	ModelNumber  string `xml:"modelNumber"`
	SerialNumber string `xml:"serialNumber"`
	UDN          string `xml:"UDN"`
}

func (m *ModuleCtx) deviceXML(w http.ResponseWriter, r *http.Request) {
	d := m.device.Descriptor()
	writeXML(w, deviceDoc{
		SpecVersion: specVersion{Major: 1, Minor: 0},
		URLBase:     d.BaseURL,
		Device: deviceElement{
			DeviceType:   "urn:schemas-upnp-org:device:MediaServer:1",
			FriendlyName: d.FriendlyName,
			Manufacturer: d.Manufacturer,
			ModelName:    d.ModelNumber,
			ModelNumber:  d.FirmwareVersion,
			SerialNumber: d.UID,
			UDN:          "uuid:" + d.UID,
		},
	})
}

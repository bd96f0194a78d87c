package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"metro-price-map/internal/dataset"
	"metro-price-map/internal/pricing"
	"metro-price-map/internal/viewstate"
)

type stationLine struct {
	ID        int64    `json:"id" yaml:"id"`
	Name      string   `json:"station_name" yaml:"station_name"`
	Valid     bool     `json:"valid" yaml:"valid"`
	ZIP       string   `json:"zip" yaml:"zip"`
	Contained bool     `json:"contained" yaml:"contained"`
	Fallbacks []string `json:"fallbacks" yaml:"fallbacks"`
}

type popupLine struct {
	ZIP         string            `json:"zip" yaml:"zip"`
	Price       string            `json:"price" yaml:"price"`
	Predictions map[string]string `json:"predictions" yaml:"predictions"`
	History     int               `json:"history_points" yaml:"history_points"`
	Nearby      []string          `json:"nearby" yaml:"nearby"`
}

type report struct {
	Regions  int           `json:"regions" yaml:"regions"`
	Priced   int           `json:"priced" yaml:"priced"`
	Stations []stationLine `json:"stations" yaml:"stations"`
	Popup    *popupLine    `json:"popup,omitempty" yaml:"popup,omitempty"`
}

func buildReport(snap *dataset.Snapshot) report {
	rep := report{Stations: []stationLine{}}
	if snap == nil {
		return rep
	}
	rep.Regions = len(snap.Regions)
	for _, z := range snap.ZIPs() {
		if snap.Prices.Lookup(z) != nil {
			rep.Priced++
		}
	}
	for i, st := range snap.Stations {
		m := snap.Matches[i]
		rep.Stations = append(rep.Stations, stationLine{ID: st.ID, Name: st.Name, Valid: st.Valid, ZIP: m.ZIP, Contained: m.Contained, Fallbacks: m.Fallbacks})
	}
	return rep
}

func popupReport(p *viewstate.Popup) *popupLine {
	if p == nil {
		return nil
	}
	proj := p.Projection()
	out := &popupLine{
		ZIP:   p.ZIP,
		Price: pricing.FormatUSD(p.Price),
		Predictions: map[string]string{
			"1-Month":   pricing.FormatUSD(proj.Month),
			"1-Quarter": pricing.FormatUSD(proj.Quarter),
			"1-Year":    pricing.FormatUSD(proj.Year),
		},
		History: len(p.History),
		Nearby:  []string{},
	}
	for _, n := range p.Nearby {
		out.Nearby = append(out.Nearby, fmt.Sprintf("%s (%.2f mi)", n.Name, n.DistanceMiles))
	}
	return out
}

func writeReport(w io.Writer, format string, rep report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "regions kept: %d (priced %d)\n\n", rep.Regions, rep.Priced)
	fmt.Fprintln(tw, "ID\tSTATION\tZIP\tMATCH\tFALLBACKS")
	for _, s := range rep.Stations {
		kind := "contained"
		switch {
		case !s.Valid:
			kind = "invalid"
		case s.ZIP == "":
			kind = "none"
		case !s.Contained:
			kind = "nearest"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.ZIP, kind, strings.Join(s.Fallbacks, ","))
	}
	if p := rep.Popup; p != nil {
		fmt.Fprintf(tw, "\nZIP %s\tprice %s\n", p.ZIP, p.Price)
		for _, k := range []string{"1-Month", "1-Quarter", "1-Year"} {
			fmt.Fprintf(tw, "  %s\t%s\n", k, p.Predictions[k])
		}
		fmt.Fprintf(tw, "  history\t%d points\n", p.History)
		for _, n := range p.Nearby {
			fmt.Fprintf(tw, "  near\t%s\n", n)
		}
	}
	return tw.Flush()
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const fixtureFC = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"ZCTA5CE10":"20002"},"geometry":{"type":"Polygon","coordinates":[[[-77.02,38.88],[-76.99,38.88],[-76.99,38.91],[-77.02,38.91],[-77.02,38.88]]]}},
 {"type":"Feature","properties":{"ZCTA5CE10":"21502"},"geometry":{"type":"Polygon","coordinates":[[[-78.8,39.6],[-78.7,39.6],[-78.7,39.7],[-78.8,39.7],[-78.8,39.6]]]}}
]}`

const fixtureStations = `[
 {"station_name":"Union Station","line_code1":"RD","lat":38.8977,"lon":-77.0063},
 {"station_name":"Ghost","lat":null,"lon":-77.0}
]`

func writeFixtures(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	bdir := filepath.Join(dir, "boundaries")
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bdir, "dc.geojson"), []byte(fixtureFC), 0o644); err != nil {
		t.Fatal(err)
	}
	sp := filepath.Join(dir, "stations.json")
	if err := os.WriteFile(sp, []byte(fixtureStations), 0o644); err != nil {
		t.Fatal(err)
	}
	return Options{Config: filepath.Join(dir, "none.yaml"), Stations: sp, Dir: bdir, Output: filepath.Join(dir, "out"), ZIP: "20002"}
}

func TestRunJSON(t *testing.T) {
	opts := writeFixtures(t)
	opts.Format = "json"
	if err := run(context.Background(), opts); err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := os.ReadFile(opts.Output)
	if err != nil {
		t.Fatal(err)
	}
	var rep report
	if err := json.Unmarshal(b, &rep); err != nil {
		t.Fatalf("decode: %v\n%s", err, b)
	}
	if rep.Regions != 1 || len(rep.Stations) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if strings.Contains(string(b), `"fallbacks": null`) {
		t.Errorf("fallbacks should encode as [], got:\n%s", b)
	}
	if s := rep.Stations[0]; s.ZIP != "20002" || !s.Contained {
		t.Errorf("union station = %+v", s)
	}
	if s := rep.Stations[1]; s.Valid || s.ZIP != "" {
		t.Errorf("ghost station = %+v", s)
	}
	if rep.Popup == nil || rep.Popup.Price != "—" || len(rep.Popup.Nearby) != 1 {
		t.Errorf("popup = %+v", rep.Popup)
	}
}

func TestWriteReportFormats(t *testing.T) {
	rep := report{Regions: 3, Priced: 1, Stations: []stationLine{
		{ID: 1, Name: "A", Valid: true, ZIP: "20001", Contained: true, Fallbacks: []string{}},
		{ID: 2, Name: "B", Valid: true, ZIP: "20002", Fallbacks: []string{"20003", "20004"}},
	}}
	var text bytes.Buffer
	if err := writeReport(&text, "text", rep); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"regions kept: 3", "contained", "nearest", "20003,20004"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, text.String())
		}
	}
	var y bytes.Buffer
	if err := writeReport(&y, "yaml", rep); err != nil {
		t.Fatal(err)
	}
	var back report
	if err := yaml.Unmarshal(y.Bytes(), &back); err != nil || back.Regions != 3 || len(back.Stations) != 2 {
		t.Errorf("yaml output = %+v, %v", back, err)
	}
}

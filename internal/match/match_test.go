package match

import (
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"metro-price-map/internal/boundary"
	"metro-price-map/internal/geometry"
	"metro-price-map/internal/station"
)

var eng = geometry.Default

func square(zip string, cx, cy, half float64) boundary.Region {
	ring := []geometry.Point{
		geometry.P(cx-half, cy-half), geometry.P(cx+half, cy-half),
		geometry.P(cx+half, cy+half), geometry.P(cx-half, cy+half),
		geometry.P(cx-half, cy-half),
	}
	return boundary.Region{ZIP: zip, Kind: string(geometry.KindPolygon), Shape: geometry.NewPolygon(ring)}
}

func st(id int64, lon, lat float64) station.Station {
	return station.Station{ID: id, Name: "s", Lon: lon, Lat: lat, Valid: true}
}

func TestMatchStationContained(t *testing.T) {
	// A 为 (0,0)-(1,1) 正方形，B 远离
	regions := []boundary.Region{square("A", 0.5, 0.5, 0.5), square("B", 40, 40, 0.5)}
	res := MatchStation(eng, st(1, 0.5, 0.5), regions, Centroids(eng, regions))
	if res.ZIP != "A" || !res.Contained {
		t.Fatalf("primary = %q contained=%v, want A contained", res.ZIP, res.Contained)
	}
	if len(res.Fallbacks) != 0 {
		t.Errorf("fallbacks = %v, want empty", res.Fallbacks)
	}
}

func TestMatchStationNearestOrdering(t *testing.T) {
	regions := []boundary.Region{
		square("A", 0, 0, 0.2),
		square("B", 10, 10, 0.2),
		square("C", 5, 5, 0.2),
	}
	res := MatchStation(eng, st(1, 1, 1), regions, Centroids(eng, regions))
	if res.Contained {
		t.Fatalf("station should not be contained")
	}
	got := append([]string{res.ZIP}, res.Fallbacks...)
	if want := []string{"A", "C", "B"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ordering = %v, want %v", got, want)
	}
}

func TestMatchStationFallbackLimit(t *testing.T) {
	var regions []boundary.Region
	for i, zip := range []string{"Z1", "Z2", "Z3", "Z4", "Z5", "Z6"} {
		regions = append(regions, square(zip, float64(i+1)*2, 0, 0.1))
	}
	res := MatchStation(eng, st(1, 0, 0), regions, Centroids(eng, regions))
	if res.ZIP != "Z1" {
		t.Errorf("primary = %q, want Z1", res.ZIP)
	}
	if want := []string{"Z2", "Z3", "Z4"}; !reflect.DeepEqual(res.Fallbacks, want) {
		t.Errorf("fallbacks = %v, want %v", res.Fallbacks, want)
	}
}

func TestMatchStationFirstContainingWins(t *testing.T) {
	regions := []boundary.Region{square("X", 0, 0, 1), square("Y", 0, 0, 2)}
	res := MatchStation(eng, st(1, 0.1, 0.1), regions, nil)
	if res.ZIP != "X" {
		t.Errorf("primary = %q, want first containing region X", res.ZIP)
	}
}

func TestMatchStationEmptyRegions(t *testing.T) {
	res := MatchStation(eng, st(7, 1, 1), nil, nil)
	if !res.Empty() || len(res.Fallbacks) != 0 || res.StationID != 7 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestMatchStationInvalidCoordinates(t *testing.T) {
	regions := []boundary.Region{square("A", 0.5, 0.5, 0.5)}
	bad := station.Station{ID: 3, Lon: 0.5}
	if res := MatchStation(eng, bad, regions, Centroids(eng, regions)); !res.Empty() {
		t.Errorf("station with missing latitude must not match, got %+v", res)
	}
}

type failingEngine struct{ geometry.Engine }

func (f failingEngine) Contains(s geometry.Shape, p geometry.Point) (bool, error) {
	if s.Kind() == geometry.KindMultiPolygon {
		return false, errors.New("bad ring")
	}
	return f.Engine.Contains(s, p)
}

func TestMatchStationContainmentErrorIsNonContaining(t *testing.T) {
	ring := []geometry.Point{geometry.P(0, 0), geometry.P(1, 0), geometry.P(1, 1), geometry.P(0, 1), geometry.P(0, 0)}
	broken := boundary.Region{ZIP: "M", Kind: string(geometry.KindMultiPolygon), Shape: geometry.NewMultiPolygon([][]geometry.Point{ring})}
	good := square("G", 0.5, 0.5, 0.5)
	e := failingEngine{eng}
	res := MatchStation(e, st(1, 0.5, 0.5), []boundary.Region{broken, good}, nil)
	if res.ZIP != "G" || !res.Contained {
		t.Errorf("expected G contained, got %+v", res)
	}

	// 畸形环（未闭合）也不应中断匹配
	open := boundary.Region{ZIP: "O", Kind: string(geometry.KindPolygon), Shape: geometry.NewPolygon(ring[:4])}
	res = MatchStation(eng, st(1, 0.5, 0.5), []boundary.Region{open, good}, nil)
	if res.ZIP != "G" {
		t.Errorf("malformed ring should be skipped, got %+v", res)
	}
}

func TestMatchAll(t *testing.T) {
	regions := []boundary.Region{square("A", 0.5, 0.5, 0.5), square("B", 3, 3, 0.5)}
	stations := []station.Station{st(1, 0.5, 0.5), st(2, 2, 2), {ID: 3}}
	got := MatchAll(eng, stations, regions)
	if len(got) != 3 {
		t.Fatalf("results = %d", len(got))
	}
	if got[0].ZIP != "A" || !got[0].Contained {
		t.Errorf("station 1: %+v", got[0])
	}
	if got[1].ZIP != "B" || got[1].Contained || !reflect.DeepEqual(got[1].Fallbacks, []string{"A"}) {
		t.Errorf("station 2: %+v", got[1])
	}
	if !got[2].Empty() {
		t.Errorf("station 3 should be empty: %+v", got[2])
	}
}

func TestFilterNearStationsExample(t *testing.T) {
	// 0.01 度纬度约 0.69 英里
	cols := []boundary.Collection{{
		Source: "dc",
		Regions: []boundary.Region{
			square("near", -77.0, 38.90, 0.001),
			square("far", -77.0, 39.50, 0.001),
		},
	}}
	stations := []station.Station{st(1, -77.0, 38.905), {ID: 2}}
	got := FilterNearStations(eng, cols, stations, 0)
	if len(got) != 1 || len(got[0].Regions) != 1 || got[0].Regions[0].ZIP != "near" {
		t.Fatalf("default radius result = %+v", got)
	}
	if got[0].Source != "dc" {
		t.Errorf("source not preserved")
	}
	wide := FilterNearStations(eng, cols, stations, 50)
	if len(wide[0].Regions) != 2 {
		t.Errorf("50 mile radius should keep both regions")
	}
}

func TestFilterNearStationsNoValidStations(t *testing.T) {
	cols := []boundary.Collection{{Regions: []boundary.Region{square("A", 0, 0, 0.1)}}}
	got := FilterNearStations(eng, cols, []station.Station{{ID: 1}}, 3)
	if len(got[0].Regions) != 0 {
		t.Errorf("regions without any valid station nearby must be dropped")
	}
}

func TestFilterNearStationsSoundAndComplete(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var regions []boundary.Region
	for i := 0; i < 120; i++ {
		regions = append(regions, square(string(rune('a'+i%26))+string(rune('0'+i/26)),
			-77.3+rng.Float64()*0.6, 38.7+rng.Float64()*0.5, 0.005))
	}
	var stations []station.Station
	for i := 0; i < 40; i++ {
		stations = append(stations, st(int64(i), -77.3+rng.Float64()*0.6, 38.7+rng.Float64()*0.5))
	}
	stations = append(stations, station.Station{ID: 99})
	const radius = 3.0
	got := FilterNearStations(eng, []boundary.Collection{{Regions: regions}}, stations, radius)

	kept := map[string]bool{}
	for _, r := range got[0].Regions {
		kept[r.ZIP] = true
	}
	for _, r := range regions {
		c, _ := eng.Centroid(r.Shape)
		near := false
		for _, s := range stations {
			if s.Valid && eng.DistanceMiles(c, s.Point()) <= radius {
				near = true
				break
			}
		}
		if near != kept[r.ZIP] {
			t.Errorf("region %s kept=%v but near=%v", r.ZIP, kept[r.ZIP], near)
		}
	}
	if len(got[0].Regions) > len(regions) {
		t.Errorf("output larger than input")
	}
}

func TestNearestStations(t *testing.T) {
	stations := []station.Station{
		st(1, 3, 0),
		{ID: 2, Lon: 0.1},
		st(3, 1, 0),
		st(4, 2, 0),
		st(5, 1, 0),
		st(6, 0.5, 0),
	}
	got := NearestStations(eng, geometry.P(0, 0), stations, 3)
	var ids []int64
	for _, n := range got {
		ids = append(ids, n.ID)
		if n.DistanceMiles <= 0 {
			t.Errorf("station %d missing distance", n.ID)
		}
	}
	// 3 与 5 距离相同，保持原始顺序
	if want := []int64{6, 3, 5}; !reflect.DeepEqual(ids, want) {
		t.Errorf("nearest ids = %v, want %v", ids, want)
	}
	if len(NearestStations(eng, geometry.P(0, 0), stations[:2], 0)) != 1 {
		t.Errorf("invalid stations must be excluded before ranking")
	}
}

func TestMatchStationSkipsRegionWithoutZIP(t *testing.T) {
	// 无邮编的区域即使包含站点也不能成为主匹配
	regions := []boundary.Region{square("", 0, 0, 1), square("B", 3, 0, 0.5)}
	cents := Centroids(eng, regions)
	if len(cents) != 1 || cents[0].ZIP != "B" {
		t.Fatalf("centroids = %+v, want only B", cents)
	}
	res := MatchStation(eng, st(1, 0, 0), regions, cents)
	if res.ZIP != "B" || res.Contained || len(res.Fallbacks) != 0 {
		t.Errorf("result = %+v, want nearest B", res)
	}
	if res.Empty() {
		t.Errorf("result should not be empty")
	}
}

func TestResultFallbacksEncodeAsArray(t *testing.T) {
	regions := []boundary.Region{square("A", 0.5, 0.5, 0.5)}
	for _, res := range []Result{
		MatchStation(eng, st(1, 0.5, 0.5), regions, Centroids(eng, regions)),
		MatchStation(eng, st(2, 9, 9), nil, nil),
		MatchStation(eng, station.Station{ID: 3}, regions, nil),
	} {
		b, err := json.Marshal(res)
		if err != nil {
			t.Fatal(err)
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatal(err)
		}
		if fb, ok := m["fallbacks"].([]any); !ok || len(fb) != 0 {
			t.Errorf("station %d fallbacks = %s, want []", res.StationID, b)
		}
	}
}

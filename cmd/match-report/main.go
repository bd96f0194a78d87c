// match-report：离线查看站点与邮编区域的匹配结果，可选输出某个邮编的弹窗数据
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"metro-price-map/internal/boundary"
	"metro-price-map/internal/config"
	"metro-price-map/internal/dataset"
	"metro-price-map/internal/geometry"
	"metro-price-map/internal/logger"
	"metro-price-map/internal/station"
	"metro-price-map/internal/store"
	"metro-price-map/internal/utils"
	"metro-price-map/internal/viewstate"
)

type Options struct {
	Config   string  `short:"c" long:"config" description:"Config file path" default:"data/config.yaml"`
	Stations string  `short:"s" long:"stations" description:"Stations JSON export. Reads the database (PG_*) if empty"`
	Dir      string  `short:"b" long:"boundaries" description:"Directory with *.geojson boundary files. Fetches configured URLs if empty"`
	Radius   float64 `short:"r" long:"radius" description:"Proximity radius in miles (overrides config)"`
	Format   string  `short:"f" long:"format" description:"Output format" choice:"text" choice:"json" choice:"yaml" default:"text"`
	ZIP      string  `short:"z" long:"zip" description:"Also print the popup (price, predictions, history) for this ZIP"`
	Output   string  `short:"o" long:"out" description:"Output file path. Writes to stdout if empty"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()

	if err := run(context.Background(), opts); err != nil {
		l.Error("match_report_error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	if opts.Radius > 0 {
		cfg.Match.RadiusMiles = opts.Radius
	}
	if opts.Dir != "" {
		cfg.Boundary.LocalDir = opts.Dir
	}

	loader := &dataset.Loader{Engine: geometry.Default, RadiusMiles: cfg.Match.RadiusMiles}
	var st *store.Store
	if opts.Stations != "" {
		rows, err := station.LoadJSON(opts.Stations)
		if err != nil {
			return err
		}
		loader.Stations = dataset.StaticStations(rows)
	} else {
		db, err := utils.OpenPostgresFromEnv(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		st = store.AttachDB(db)
		loader.Stations = st
		loader.Prices = st
	}
	if cfg.Boundary.LocalDir != "" {
		loader.Boundaries = dataset.LocalBoundaries{Dir: cfg.Boundary.LocalDir, ZIPKey: cfg.Boundary.ZIPProperty}
	} else {
		f := boundary.NewFetcher(time.Duration(cfg.Boundary.TimeoutSeconds)*time.Second, cfg.Boundary.ZIPProperty)
		loader.Boundaries = dataset.RemoteBoundaries{Fetcher: f, Sources: cfg.Boundary.Sources}
	}

	view := viewstate.NewStore()
	snap, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	view.SetDatasets(snap)

	rep := buildReport(view.State().Data)
	if opts.ZIP != "" {
		zip := boundary.PadZIP(opts.ZIP)
		near, _ := snap.Nearby(geometry.Default, zip, cfg.Match.NearbyCount)
		tok := view.Open(viewstate.PopupRegion, zip, zip, near)
		if st != nil {
			if err := view.LoadPopup(ctx, st, tok, zip); err != nil {
				logger.L().Warn("popup_incomplete", "zip", zip, "err", err)
			}
		}
		rep.Popup = popupReport(view.State().Popup)
	}

	var w io.Writer = os.Stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeReport(w, opts.Format, rep)
}

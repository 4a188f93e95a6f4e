package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/hherb/OpenHiker-sub005/pkg/builder"
	"github.com/hherb/OpenHiker-sub005/pkg/costmodel"
	"github.com/hherb/OpenHiker-sub005/pkg/elevation"
)

var (
	mapFile  = flag.String("f", "tyrol.osm.pbf", "openstreetmap extract for the trail network")
	elevDir  = flag.String("elev", "", "directory with SRTM .hgt tiles, empty disables elevation")
	outPath  = flag.String("out", "openhiker_region", "output path of the region graph store")
	regionID = flag.String("region", "tyrol", "region identifier stored in the graph metadata")
	profile  = flag.String("profile", "hiking", "cost profile stored edge costs are built with")
)

func newPhaseBar(phase string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(15),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset] building trail graph...", phase)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func main() {
	flag.Parse()
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	mode, err := costmodel.ParseMode(*profile)
	if err != nil {
		log.WithError(err).Fatal("parse cost profile")
	}

	var elev elevation.Source = &elevation.StaticSource{}
	if *elevDir != "" {
		elev = elevation.NewTileSource(*elevDir)
	} else {
		log.Warn("no elevation directory given, edges carry zero gain and loss")
	}

	var bar *progressbar.ProgressBar
	currentPhase := ""
	progress := func(phase string, frac float64, nodes, edges int) {
		if phase != currentPhase {
			if bar != nil {
				bar.Finish()
				fmt.Println("")
			}
			currentPhase = phase
			bar = newPhaseBar(phase)
		}
		bar.Set(int(frac * 100))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	topo := builder.NewOSMTopologySource(*mapFile)
	b := builder.NewGraphBuilder(topo, elev, mode, progress)
	if err := b.Build(ctx, *outPath, *regionID); err != nil {
		fmt.Println("")
		log.WithError(err).Fatal("graph build failed")
	}
	fmt.Println("")
	log.WithFields(logrus.Fields{
		"region":  *regionID,
		"profile": mode.String(),
		"out":     *outPath,
	}).Info("region graph ready")
}

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hherb/OpenHiker-sub005/pkg/router"
	"github.com/hherb/OpenHiker-sub005/pkg/server/rest"
	"github.com/hherb/OpenHiker-sub005/pkg/store"
	"github.com/hherb/OpenHiker-sub005/service"
)

var (
	listenAddr = flag.String("listenaddr", ":5000", "server listen address")
	regionPath = flag.String("region", "openhiker_region", "path of the built region graph store")
)

func main() {
	flag.Parse()
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// .env is optional, flags keep working without it
	_ = godotenv.Load()
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		*listenAddr = addr
	}
	if path := os.Getenv("REGION_PATH"); path != "" {
		*regionPath = path
	}

	g, err := store.OpenRegion(*regionPath)
	if err != nil {
		log.WithError(err).Fatal("open region graph store")
	}
	defer g.Close()

	meta := g.Metadata()
	log.WithFields(logrus.Fields{
		"region":  meta.RegionID,
		"profile": meta.Profile,
		"nodes":   meta.NodeCount,
		"edges":   meta.EdgeCount,
		"built":   meta.BuildDate,
	}).Info("region graph loaded")

	svc := service.NewNavigationService(router.NewRouteFinder(g), g, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promeMetrics := rest.NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(rest.PromeHttpMiddleware(promeMetrics))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	rest.NavigatorRouter(r, svc, promeMetrics)

	srv := &http.Server{Addr: *listenAddr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", *listenAddr).Info("trail routing server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	log.Info("server stopped")
}

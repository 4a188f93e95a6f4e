// Package service orchestrates the engine: parse the requested mode, run the
// route search and derive instructions plus the elevation profile for the
// transport layer.
package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hherb/OpenHiker-sub005/domain"
	"github.com/hherb/OpenHiker-sub005/pkg/costmodel"
	"github.com/hherb/OpenHiker-sub005/pkg/datastructure"
	"github.com/hherb/OpenHiker-sub005/pkg/guidance"
)

type RouteFinder interface {
	FindRoute(ctx context.Context, from, to datastructure.Coordinate, via []datastructure.Coordinate,
		mode costmodel.Mode, loop bool) (*datastructure.ComputedPath, error)
}

type GraphStore interface {
	Metadata() datastructure.RegionMetadata
}

type NavigationService struct {
	finder RouteFinder
	store  GraphStore
	log    *logrus.Logger
}

func NewNavigationService(finder RouteFinder, store GraphStore, log *logrus.Logger) *NavigationService {
	return &NavigationService{finder: finder, store: store, log: log}
}

// RouteResult bundles everything a route response needs.
type RouteResult struct {
	Path         *datastructure.ComputedPath
	Instructions []guidance.Instruction
	Profile      []guidance.ProfileSample
}

func (s *NavigationService) Route(ctx context.Context, from, to datastructure.Coordinate,
	via []datastructure.Coordinate, modeName string, loop bool) (*RouteResult, error) {
	mode, err := costmodel.ParseMode(modeName)
	if err != nil {
		return nil, domain.WrapErrorf(err, domain.ErrBadParamInput, "parse routing mode %q", modeName)
	}

	path, err := s.finder.FindRoute(ctx, from, to, via, mode, loop)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"from": from, "to": to, "via": len(via), "mode": modeName, "loop": loop,
		}).WithError(err).Warn("route request failed")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"mode":     modeName,
		"distance": path.Distance,
		"duration": path.Duration,
		"edges":    len(path.Edges),
	}).Info("route computed")

	return &RouteResult{
		Path:         path,
		Instructions: guidance.GenerateInstructions(path),
		Profile:      guidance.ElevationProfile(path),
	}, nil
}

// NewGuidanceSession prepares a navigation session for a freshly computed
// route.
func (s *NavigationService) NewGuidanceSession(result *RouteResult) *guidance.Session {
	return guidance.NewSession(result.Path, result.Instructions)
}

func (s *NavigationService) Metadata(ctx context.Context) (datastructure.RegionMetadata, error) {
	if s.store == nil {
		return datastructure.RegionMetadata{}, domain.WrapErrorf(nil, domain.ErrNoGraphLoaded, "metadata requested with no region open")
	}
	return s.store.Metadata(), nil
}

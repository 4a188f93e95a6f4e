package guidance

import (
	"context"
	"math"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/hherb/OpenHiker-sub005/pkg/datastructure"
	"github.com/hherb/OpenHiker-sub005/pkg/geo"
)

type State int

const (
	StateNotNavigating State = iota
	StateFollowing
	StateOffRoute
	StateArrived
)

func (s State) String() string {
	switch s {
	case StateNotNavigating:
		return "not_navigating"
	case StateFollowing:
		return "following"
	case StateOffRoute:
		return "off_route"
	case StateArrived:
		return "arrived"
	}
	return "unknown"
}

// Position is one GPS fix.
type Position struct {
	Lat float64
	Lon float64
}

// GuidanceState is the snapshot a UI renders after every fix.
type GuidanceState struct {
	State             State
	OffRoute          bool
	OffRouteDistance  float64
	Arrived           bool
	NextInstruction   *Instruction
	DistanceToTurn    float64
	ApproachingTurn   bool
	RemainingDistance float64
	Progress          float64
}

const (
	// off-route hysteresis: enter above the outer threshold, clear below
	// the inner one, no flicker in between
	offRouteEnterMeters = 50.0
	offRouteClearMeters = 30.0

	approachTurnMeters = 100.0
	atTurnMeters       = 30.0
	arrivalMeters      = 30.0

	segmentNeighbors = 4
	segmentRectTol   = 0.001
)

// pathSegment is one polyline segment indexed in the rtree.
type pathSegment struct {
	index     int
	a, b      datastructure.Coordinate
	startDist float64 // cumulative meters along the path at a
	length    float64
}

func (s *pathSegment) Bounds() rtreego.Rect {
	minPt := rtreego.Point{
		math.Min(s.a.Lat, s.b.Lat) - segmentRectTol,
		math.Min(s.a.Lon, s.b.Lon) - segmentRectTol,
	}
	maxPt := rtreego.Point{
		math.Max(s.a.Lat, s.b.Lat) + segmentRectTol,
		math.Max(s.a.Lon, s.b.Lon) + segmentRectTol,
	}
	rect, _ := rtreego.NewRectFromPoints(minPt, maxPt)
	return rect
}

// Session drives the navigation state machine for one computed path. Safe
// for one producer feeding fixes and other goroutines reading State.
type Session struct {
	mu           sync.Mutex
	path         *datastructure.ComputedPath
	instructions []Instruction
	segments     []pathSegment
	tree         *rtreego.Rtree

	state       State
	lastSegment int
	traveled    float64 // monotone meters along the path
	nextInstr   int
	lastFix     Position
	hasFix      bool
	offDist     float64 // perpendicular meters to the path at the last fix
}

func NewSession(path *datastructure.ComputedPath, instructions []Instruction) *Session {
	s := &Session{
		path:         path,
		instructions: instructions,
		tree:         rtreego.NewTree(2, 25, 50),
		state:        StateNotNavigating,
	}

	cumulative := 0.0
	for i := 0; i+1 < len(path.Polyline); i++ {
		a, b := path.Polyline[i], path.Polyline[i+1]
		seg := pathSegment{
			index:     i,
			a:         a,
			b:         b,
			startDist: cumulative,
			length:    geo.DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon),
		}
		cumulative += seg.length
		s.segments = append(s.segments, seg)
		s.tree.Insert(&s.segments[len(s.segments)-1])
	}

	// the first upcoming instruction is the one after START
	if len(instructions) > 1 {
		s.nextInstr = 1
	}
	return s
}

// State returns the current snapshot without consuming a fix.
func (s *Session) State() GuidanceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(s.lastFix)
}

// Update consumes one fix and returns the resulting snapshot. It never
// fails: a fix that matches nothing just leaves the state unchanged.
func (s *Session) Update(p Position) GuidanceState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastFix = p
	s.hasFix = true
	if s.state == StateArrived || len(s.segments) == 0 {
		return s.snapshot(p)
	}
	if s.state == StateNotNavigating {
		s.state = StateFollowing
	}

	offDist := s.distanceToPath(p)
	s.offDist = offDist
	if s.state == StateFollowing && offDist > offRouteEnterMeters {
		s.state = StateOffRoute
	} else if s.state == StateOffRoute && offDist < offRouteClearMeters {
		s.state = StateFollowing
	}

	if s.state == StateFollowing {
		s.advanceProgress(p)
		s.advanceInstruction(p)

		end := s.path.Polyline[len(s.path.Polyline)-1]
		if geo.DistanceMeters(p.Lat, p.Lon, end.Lat, end.Lon) < arrivalMeters {
			s.state = StateArrived
			s.traveled = s.path.Distance
		}
	}

	return s.snapshot(p)
}

// Run consumes a position stream until it closes or ctx is cancelled. Fixes
// are applied in arrival order; when the producer outpaces the consumer the
// backlog is drained and only the most recent fix is applied.
func (s *Session) Run(ctx context.Context, positions <-chan Position) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-positions:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case next, more := <-positions:
					if !more {
						break drain
					}
					p = next
				default:
					break drain
				}
			}
			s.Update(p)
		}
	}
}

// distanceToPath is the perpendicular distance from the fix to the nearest
// polyline segment, using the rtree to limit candidates.
func (s *Session) distanceToPath(p Position) float64 {
	neighbors := s.tree.NearestNeighbors(segmentNeighbors, rtreego.Point{p.Lat, p.Lon})
	best := math.Inf(1)
	for _, n := range neighbors {
		seg := n.(*pathSegment)
		d := geo.PerpendicularDistanceMeters(seg.a.Lat, seg.a.Lon, seg.b.Lat, seg.b.Lon, p.Lat, p.Lon)
		if d < best {
			best = d
		}
	}
	return best
}

// advanceProgress projects the fix onto the path, searching forward from the
// last matched segment only. Distance traveled never decreases, a brief
// reversal does not rewind progress.
func (s *Session) advanceProgress(p Position) {
	bestDist := math.Inf(1)
	bestTraveled := s.traveled
	bestSegment := s.lastSegment

	for i := s.lastSegment; i < len(s.segments); i++ {
		seg := s.segments[i]
		d := geo.PerpendicularDistanceMeters(seg.a.Lat, seg.a.Lon, seg.b.Lat, seg.b.Lon, p.Lat, p.Lon)
		if d >= bestDist {
			continue
		}
		bestDist = d
		bestSegment = i

		projLat, projLon := geo.ProjectPointToSegment(seg.a.Lat, seg.a.Lon, seg.b.Lat, seg.b.Lon, p.Lat, p.Lon)
		along := math.Min(geo.DistanceMeters(seg.a.Lat, seg.a.Lon, projLat, projLon), seg.length)
		bestTraveled = seg.startDist + along
	}

	if bestTraveled > s.traveled {
		s.traveled = bestTraveled
		s.lastSegment = bestSegment
	}
}

// advanceInstruction moves past every upcoming turn the fix is already on
// top of. FINISH is only retired by arrival.
func (s *Session) advanceInstruction(p Position) {
	for s.nextInstr < len(s.instructions) {
		instr := s.instructions[s.nextInstr]
		if instr.Sign == FINISH {
			return
		}
		if geo.DistanceMeters(p.Lat, p.Lon, instr.Point.Lat, instr.Point.Lon) >= atTurnMeters {
			return
		}
		s.nextInstr++
	}
}

func (s *Session) snapshot(p Position) GuidanceState {
	state := GuidanceState{
		State:    s.state,
		OffRoute: s.state == StateOffRoute,
		Arrived:  s.state == StateArrived,
	}
	if s.hasFix {
		state.OffRouteDistance = s.offDist
	}

	if s.path != nil && s.path.Distance > 0 {
		state.Progress = s.traveled / s.path.Distance
		state.RemainingDistance = s.path.Distance - s.traveled
	}
	if s.state == StateArrived {
		state.Progress = 1.0
		state.RemainingDistance = 0
	}

	if s.nextInstr < len(s.instructions) && s.state != StateArrived {
		instr := s.instructions[s.nextInstr]
		state.NextInstruction = &instr
		if s.hasFix {
			state.DistanceToTurn = geo.DistanceMeters(p.Lat, p.Lon, instr.Point.Lat, instr.Point.Lon)
			state.ApproachingTurn = s.state == StateFollowing && state.DistanceToTurn < approachTurnMeters
		}
	}
	return state
}

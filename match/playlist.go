package match

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	mrand "math/rand"
	"sort"

	"github.com/ayvan/automix/tracks"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

const (
	recentWindow = 5 // tracks considered by the variety score
	topPick      = 5 // candidates entering the weighted draw
)

// Generator builds playlists by stochastic rule-constrained search: filter
// the pool to compatible tracks, score every survivor, draw from the top
// scorers with exponential weighting.
type Generator struct {
	similarity *Similarity
	planner    *Planner
}

func NewGenerator(config tracks.TransitionConfig) *Generator {
	return &Generator{
		similarity: NewSimilarity(DefaultWeights()),
		planner:    NewPlanner(config),
	}
}

func (g *Generator) SetTransitionConfig(config tracks.TransitionConfig) {
	g.planner.SetConfig(config)
}

// Generate builds a playlist of at most count entries starting at seed. The
// search is deterministic when rules.RandomSeed is non-zero; otherwise the
// RNG is seeded from the process entropy source.
func (g *Generator) Generate(seed *tracks.Track, candidates []*tracks.Track, count int, rules Rules) (*tracks.Playlist, error) {
	if seed == nil {
		return nil, fmt.Errorf("seed track required")
	}
	if count <= 0 {
		return nil, fmt.Errorf("playlist count must be positive, got %d", count)
	}

	filter, err := newTrackFilter(rules.Filter)
	if err != nil {
		return nil, err
	}

	g.similarity.SetWeights(rules.Weights)
	rng := newRNG(rules.RandomSeed)

	playlist := &tracks.Playlist{
		UUID:    newUUID(),
		Entries: []tracks.PlaylistEntry{{TrackID: seed.ID}},
	}

	used := map[int64]bool{seed.ID: true}
	recent := []*tracks.Track{seed}

	available := make([]*tracks.Track, 0, len(candidates))
	for _, track := range candidates {
		if track.ID == seed.ID || !filter.matches(track) {
			continue
		}
		available = append(available, track)
	}

	current := seed

	for len(playlist.Entries) < count && len(available) > 0 {
		progress := float64(len(playlist.Entries)) / float64(count)

		next := g.selectNext(current, available, rules, progress, recent, rng)
		if next == nil {
			// Nothing passes the strict rules; retry once with every
			// constraint lifted before giving up on the playlist.
			next = g.selectNext(current, available, rules.relaxed(), progress, recent, rng)
			if next == nil {
				logrus.Debugf("playlist generation exhausted after %d entries", len(playlist.Entries))
				break
			}
		}

		plan := g.planner.CreatePlan(current, next)
		playlist.Entries[len(playlist.Entries)-1].TransitionToNext = &plan
		playlist.Entries = append(playlist.Entries, tracks.PlaylistEntry{TrackID: next.ID})

		used[next.ID] = true
		kept := available[:0]
		for _, track := range available {
			if !used[track.ID] {
				kept = append(kept, track)
			}
		}
		available = kept

		current = next
		recent = append(recent, next)
		if len(recent) > recentWindow {
			recent = recent[1:]
		}
	}

	return playlist, nil
}

// CreateWithTransitions builds a playlist with the given fixed ordering and
// plans every edge.
func (g *Generator) CreateWithTransitions(ordered []*tracks.Track) *tracks.Playlist {
	playlist := &tracks.Playlist{UUID: newUUID()}

	for i, track := range ordered {
		entry := tracks.PlaylistEntry{TrackID: track.ID}
		if i+1 < len(ordered) {
			plan := g.planner.CreatePlan(track, ordered[i+1])
			entry.TransitionToNext = &plan
		}
		playlist.Entries = append(playlist.Entries, entry)
	}

	return playlist
}

func (g *Generator) selectNext(current *tracks.Track, available []*tracks.Track, rules Rules, progress float64, recent []*tracks.Track, rng *mrand.Rand) *tracks.Track {
	compatible := make([]*tracks.Track, 0, len(available))
	for _, track := range available {
		if !g.similarity.AreCompatible(current, track, rules) {
			continue
		}
		if rules.BPMStepLimit > 0 && current.BPM > 0 && track.BPM > 0 {
			if BPMDistance(current.BPM, track.BPM) > rules.BPMStepLimit/100.0 {
				continue
			}
		}
		compatible = append(compatible, track)
	}

	if len(compatible) == 0 {
		return nil
	}

	type scored struct {
		track *tracks.Track
		score float64
	}
	list := make([]scored, 0, len(compatible))
	for _, candidate := range compatible {
		list = append(list, scored{candidate, g.scoreCandidate(current, candidate, rules, progress, recent)})
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })

	pickFrom := topPick
	if len(list) < pickFrom {
		pickFrom = len(list)
	}

	// Exponentially favor the best scorers.
	weights := make([]float64, pickFrom)
	total := 0.0
	for i := range weights {
		weights[i] = math.Exp(-0.5 * float64(i))
		total += weights[i]
	}

	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return list[i].track
		}
	}
	return list[pickFrom-1].track
}

func (g *Generator) scoreCandidate(current, candidate *tracks.Track, rules Rules, progress float64, recent []*tracks.Track) float64 {
	simScore := g.similarity.Score(current, candidate)

	arcScore := 1.0
	if rules.EnergyArc != ArcNone {
		diff := math.Abs(TargetEnergy(rules.EnergyArc, progress) - candidate.MeanEnergy())
		arcScore = 1.0 - clamp(diff, 0, 1)
	}

	bpmScore := 1.0
	if rules.PreferBPMProgression && current.BPM > 0 && candidate.BPM > 0 {
		bpmScore = 1.0 / (1.0 + BPMDistance(current.BPM, candidate.BPM)*20.0)
	}

	varietyScore := 1.0
	if len(recent) > 0 {
		totalDistance := 0.0
		for _, track := range recent {
			totalDistance += g.similarity.Distance(candidate, track)
		}
		varietyScore = clamp(totalDistance/float64(len(recent))*2.0, 0, 1)
	}

	return 0.35*simScore + 0.25*arcScore + 0.20*bpmScore + 0.20*varietyScore
}

// TargetEnergy returns the desired mean energy at a given position of the
// set for each arc shape.
func TargetEnergy(arc EnergyArc, progress float64) float64 {
	progress = clamp(progress, 0, 1)

	switch arc {
	case ArcAscending:
		return 0.2 + 0.7*progress
	case ArcPeak:
		if progress < 0.6 {
			return 0.3 + 0.7*(progress/0.6)
		}
		return 1.0 - 0.6*(progress-0.6)/0.4
	case ArcDescending:
		return 0.9 - 0.7*progress
	case ArcWave:
		return 0.5 + 0.3*math.Sin(progress*4*math.Pi)
	default:
		return 0.5
	}
}

// newRNG seeds from the given value, or from the process entropy source when
// the seed is zero (crypto/rand, so parallel generators never correlate).
func newRNG(seed uint32) *mrand.Rand {
	if seed != 0 {
		return mrand.New(mrand.NewSource(int64(seed)))
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		logrus.Errorf("entropy source unavailable, falling back to fixed seed: %s", err)
		return mrand.New(mrand.NewSource(1))
	}
	return mrand.New(mrand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
}

func newUUID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return id.String()
}

package core

import (
	"fmt"
	"sync"
)

const AVG_COUNT uint8 = 30

// StatsState tracks the last lightmap bake and a running average of bake CPU time.
type StatsState struct {
	mu sync.Mutex

	BakeAVGCounter uint8
	MStimes        [AVG_COUNT]float64
	MSavg          float64
	LastMS         float64
	Bakes          int64

	SurfaceCount int
	PixelCount   uint32
}

var onceStats sync.Once
var statsState *StatsState = nil

func StatsInitialize() {
	onceStats.Do(func() {
		statsState = &StatsState{
			MStimes: [AVG_COUNT]float64{0},
		}
	})
}

func stats() *StatsState {
	StatsInitialize()
	return statsState
}

// StatsReset clears the figures of the previous level.
func StatsReset() {
	s := stats()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.BakeAVGCounter = 0
	s.MStimes = [AVG_COUNT]float64{}
	s.MSavg = 0
	s.LastMS = 0
	s.Bakes = 0
	s.SurfaceCount = 0
	s.PixelCount = 0
}

// StatsBegin stores the surface and pixel counts of the copy pass.
func StatsBegin(surfaceCount int, pixelCount uint32) {
	s := stats()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SurfaceCount = surfaceCount
	s.PixelCount = pixelCount
}

func StatsRecordBake(ms float64) {
	s := stats()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastMS = ms
	s.MStimes[s.BakeAVGCounter] = ms
	s.Bakes++
	if s.BakeAVGCounter == AVG_COUNT-1 {
		s.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			s.MSavg += s.MStimes[i]
		}
		s.MSavg /= float64(AVG_COUNT)
	}
	s.BakeAVGCounter++
	s.BakeAVGCounter %= AVG_COUNT
}

func StatsAverageMS() float64 {
	s := stats()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MSavg
}

func StatsString() string {
	s := stats()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("CPU time: %.3fms\nSurface count: %d\nPixel count: %d K", s.LastMS, s.SurfaceCount, s.PixelCount/1024)
}

package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	defaultSampleNum = 1
	defaultSampleDen = 50
)

// ratioSampler lets num out of every den events through. A zero ratio lets
// everything through.
type ratioSampler struct {
	ratio atomic.Uint64 // num<<32 | den
	seen  atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts the window.
func (s *ratioSampler) Set(num, den int) {
	s.seen.Store(0)
	if num <= 0 || den <= 0 {
		s.ratio.Store(0)
		return
	}
	num = min(num, den)
	s.ratio.Store(uint64(uint32(num))<<32 | uint64(uint32(den)))
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	num, den := r>>32, r&0xffffffff
	return (s.seen.Add(1)-1)%den < num
}

// parseSampleRatio reads "num/den", a bare "den" meaning 1/den, or one of
// "all", "off", "0" for no sampling. Empty or malformed values fall back to the
// default ratio.
func parseSampleRatio(raw string) (num, den int) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return defaultSampleNum, defaultSampleDen
	case "all", "off", "0":
		return 0, 0
	}
	numPart, denPart, found := strings.Cut(raw, "/")
	if !found {
		numPart, denPart = "1", raw
	}
	n, errNum := strconv.Atoi(strings.TrimSpace(numPart))
	d, errDen := strconv.Atoi(strings.TrimSpace(denPart))
	if errNum != nil || errDen != nil || n <= 0 || d <= 0 {
		return defaultSampleNum, defaultSampleDen
	}
	return n, d
}

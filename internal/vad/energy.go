package vad

import (
	"fmt"
	"math"
)

// Analysis geometry of the energy classifier. 512 samples at 16 kHz is a
// 32 ms window, a common speech-analysis frame size.
const (
	energyWindowSamples  = 512
	energyContextSamples = 64
	energyNativeRateHz   = 16000
)

// Tuning constants for the adaptive energy detector.
const (
	activationSNR      = 1.5  // energy ratio where the probability starts rising
	saturationSNR      = 6.0  // energy ratio treated as certain speech
	probSmoothing      = 0.25 // weight of the previous window's probability
	noiseAdapt         = 0.05 // EMA rate for the noise floor estimate
	noiseUpdateCeiling = 0.3  // adapt the floor only below this probability
	minNoiseFloor      = 1e-4 // keeps the SNR bounded on digital silence
	warmStartCeiling   = 0.01 // cap on the first window's floor estimate
)

// energyState carries the detector's recurrent values between windows. It is
// a value type; Score never mutates a blob it was handed.
type energyState struct {
	noiseFloor float64
	lastProb   float32
	warmed     bool
}

// EnergyClassifier scores windows by their RMS energy against an adaptive
// noise floor. The floor is seeded from the first window and tracks slowly
// downward-biased (it only updates while the detector reads the signal as
// non-speech), so sustained talking cannot raise it. Probabilities are
// lightly smoothed across windows to suppress single-window flicker.
type EnergyClassifier struct {
	windowSamples  int
	contextSamples int
	sampleRateHz   uint32
}

// NewEnergyClassifier creates an energy-based speech classifier operating at
// its native 16 kHz rate.
func NewEnergyClassifier() *EnergyClassifier {
	return &EnergyClassifier{
		windowSamples:  energyWindowSamples,
		contextSamples: energyContextSamples,
		sampleRateHz:   energyNativeRateHz,
	}
}

// WindowSize returns the number of samples consumed per Score call.
func (e *EnergyClassifier) WindowSize() int {
	return e.windowSamples
}

// ContextSize returns the number of preceding samples supplied for continuity.
func (e *EnergyClassifier) ContextSize() int {
	return e.contextSamples
}

// SampleRate returns the native sample rate in Hz.
func (e *EnergyClassifier) SampleRate() uint32 {
	return e.sampleRateHz
}

// InitialState returns the cold-start state used at the beginning of every
// scoring run.
func (e *EnergyClassifier) InitialState() State {
	return energyState{}
}

// Score rates one window of native-rate samples against the adaptive noise
// floor carried in state. Identical inputs always produce identical results.
func (e *EnergyClassifier) Score(window, context []float32, state State) (float32, State, error) {
	if len(window) != e.windowSamples {
		return 0, nil, fmt.Errorf("expected %d window samples, got %d", e.windowSamples, len(window))
	}

	if len(context) != e.contextSamples {
		return 0, nil, fmt.Errorf("expected %d context samples, got %d", e.contextSamples, len(context))
	}

	s, ok := state.(energyState)
	if !ok {
		return 0, nil, fmt.Errorf("unexpected state type %T", state)
	}

	// RMS over context plus window, context first. The summation order is
	// fixed so repeated runs are bit-identical.
	var sum float64
	for _, v := range context {
		sum += float64(v) * float64(v)
	}
	for _, v := range window {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(context)+len(window)))

	if !s.warmed {
		floor := rms
		if floor > warmStartCeiling {
			floor = warmStartCeiling
		}
		if floor < minNoiseFloor {
			floor = minNoiseFloor
		}
		s.noiseFloor = floor
		s.warmed = true
	}

	snr := rms / (s.noiseFloor + 1e-9)

	var raw float32
	switch {
	case snr <= activationSNR:
		raw = 0
	case snr >= saturationSNR:
		raw = 1
	default:
		raw = float32((snr - activationSNR) / (saturationSNR - activationSNR))
	}

	prob := (1-probSmoothing)*raw + probSmoothing*s.lastProb

	// Track the noise floor only while the detector reads the window as
	// non-speech, so the floor follows the room, not the voice.
	if prob < noiseUpdateCeiling {
		s.noiseFloor = (1-noiseAdapt)*s.noiseFloor + noiseAdapt*rms
		if s.noiseFloor < minNoiseFloor {
			s.noiseFloor = minNoiseFloor
		}
	}

	s.lastProb = prob
	return prob, s, nil
}

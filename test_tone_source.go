package main

import (
	"flag"
	"log"
	"math"
	"os"

	"github.com/mortenfc/rewind/internal/audio"
)

// Generates a WAV of tone bursts separated by silence, paced roughly like
// conversational speech. Feed the result to the service with:
//
//	go run ./cmd/rewind -input test_speech.wav
func main() {
	out := flag.String("out", "test_speech.wav", "Output WAV path")
	rate := flag.Uint("rate", 16000, "Sample rate in Hz")
	bursts := flag.Int("bursts", 3, "Number of tone bursts")
	burstSec := flag.Float64("burst", 1.2, "Burst duration in seconds")
	gapSec := flag.Float64("gap", 2.0, "Silence between bursts in seconds")
	freq := flag.Float64("freq", 440, "Tone frequency in Hz")
	flag.Parse()

	if *bursts < 1 || *burstSec <= 0 || *gapSec < 0 || *freq <= 0 || *rate == 0 {
		log.Fatal("❌ bursts, burst and freq must be positive; gap must not be negative")
	}

	samples := generateBursts(uint32(*rate), *bursts, *burstSec, *gapSec, *freq)

	pcm, err := audio.EncodeSamples(samples, audio.PCM16)
	if err != nil {
		log.Fatalf("❌ Failed to encode samples: %v", err)
	}

	totalSec := float64(len(samples)) / float64(*rate)
	cfg := audio.Config{
		SampleRateHz:  uint32(*rate),
		BitDepth:      audio.PCM16,
		BufferSeconds: uint32(math.Ceil(totalSec)) + 1,
	}

	blob, err := audio.EncodeWAV(pcm, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to encode WAV: %v", err)
	}

	if err := os.WriteFile(*out, blob, 0644); err != nil {
		log.Fatalf("❌ Failed to write %s: %v", *out, err)
	}

	log.Printf("🎵 Wrote %s: %d bursts of %.1fs at %.0f Hz, %.1fs total",
		*out, *bursts, *burstSec, *freq, totalSec)
	log.Printf("💡 Try: go run ./cmd/rewind -input %s", *out)
}

// generateBursts lays out silence and sine bursts: half a gap of lead-in,
// then burst/gap pairs, ending on a gap so the last burst has trailing
// context. A 10ms raised-cosine ramp on both burst edges avoids clicks.
func generateBursts(rate uint32, bursts int, burstSec, gapSec, freq float64) []int16 {
	burstLen := int(float64(rate) * burstSec)
	gapLen := int(float64(rate) * gapSec)
	rampLen := int(float64(rate) * 0.01)

	total := gapLen/2 + bursts*(burstLen+gapLen)
	samples := make([]int16, total)

	pos := gapLen / 2
	for b := 0; b < bursts; b++ {
		for i := 0; i < burstLen && pos+i < len(samples); i++ {
			phase := 2 * math.Pi * freq * float64(i) / float64(rate)
			amp := 0.6 * 32767 * math.Sin(phase)

			if rampLen > 0 {
				if i < rampLen {
					amp *= 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(rampLen)))
				} else if burstLen-i <= rampLen {
					amp *= 0.5 * (1 - math.Cos(math.Pi*float64(burstLen-i)/float64(rampLen)))
				}
			}

			samples[pos+i] = int16(amp)
		}
		pos += burstLen + gapLen
	}

	return samples
}

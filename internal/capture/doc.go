// Package capture feeds microphone audio into the rolling ring buffer.
// A malgo capture device delivers PCM chunks on a realtime thread; the
// chunks hop through a transfer queue and a drain goroutine so the device
// callback never blocks on the ring buffer mutex. Full queue means the
// newest chunk is dropped and counted, never a stalled callback.
package capture

package link

import "time"

// Approximate bit rates per data rate, DR0 (SF12) through DR5 (SF7),
// in bits per second. This is a throughput approximation, not the full
// LoRa time-on-air formula: bandwidth, coding rate, preamble length and
// the explicit-header flag are all folded into these constants.
var drBitRates = [6]int{980, 1760, 3130, 5470, 9780, 17300}

// Maximum application payload per data rate (EU868 table).
var drMaxPayload = [6]int{51, 51, 51, 115, 242, 242}

// frameOverheadBytes is the MAC framing added on top of the
// application payload for airtime estimation.
const frameOverheadBytes = 13

// EstimateAirtime approximates the channel occupancy of a payload at
// the given data rate.
func EstimateAirtime(payloadLen int, dr uint8) time.Duration {
	if dr > 5 {
		dr = 5
	}
	bits := (payloadLen + frameOverheadBytes) * 8
	ms := bits * 1000 / drBitRates[dr]
	return time.Duration(ms) * time.Millisecond
}

// MaxPayload returns the largest application payload transmittable at
// the given data rate.
func MaxPayload(dr uint8) int {
	if dr > 5 {
		dr = 5
	}
	return drMaxPayload[dr]
}

package source

import "TrackHound/model"

// DetectQuality maps a bitrate to a quality tier. When the bitrate is
// unknown it is estimated from file size and duration; with neither
// available the tier defaults to medium.
func DetectQuality(bitrateKbps int, fileSize int64, durationSec int) model.AudioQuality {
	if bitrateKbps == 0 && fileSize > 0 && durationSec > 0 {
		// size[bytes]*8 / duration[s] / 1000 -> kbps
		bitrateKbps = int(fileSize * 8 / int64(durationSec) / 1000)
	}

	switch {
	case bitrateKbps >= 300:
		return model.QualityUltra
	case bitrateKbps >= 240:
		return model.QualityHigh
	case bitrateKbps >= 180:
		return model.QualityMedium
	case bitrateKbps > 0:
		return model.QualityLow
	default:
		return model.QualityMedium
	}
}

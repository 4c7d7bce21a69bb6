package videos

import "strings"

// SelectAudio picks the highest-bitrate audio format, preferring audio-only
// renditions when any exist. Ties keep the resolver's order.
func SelectAudio(formats []Format) (Format, error) {
	best := -1
	bestAudioOnly := false
	for i, f := range formats {
		if !f.HasAudio {
			continue
		}
		audioOnly := f.AudioOnly()
		switch {
		case best < 0:
		case audioOnly && !bestAudioOnly:
		case audioOnly == bestAudioOnly && f.Bitrate > formats[best].Bitrate:
		default:
			continue
		}
		best, bestAudioOnly = i, audioOnly
	}
	if best < 0 {
		return Format{}, ErrFormatUnavailable
	}
	return formats[best], nil
}

// SelectVideo returns the first progressive audio+video format in the given
// container. Separate tracks are never muxed, so anything else is unavailable.
func SelectVideo(formats []Format, container string) (Format, error) {
	container = strings.ToLower(strings.TrimSpace(container))
	for _, f := range formats {
		if strings.EqualFold(f.Container, container) && f.HasAudio && f.HasVideo && f.Progressive {
			return f, nil
		}
	}
	return Format{}, ErrFormatUnavailable
}

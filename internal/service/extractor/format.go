package extractor

import "strconv"

// IsProgressiveMP4 reports whether f carries both audio and video in an mp4 container
// and has a quality label.
func (f Format) IsProgressiveMP4() bool {
	return f.HasVideo && f.HasAudio && f.Container == "mp4" && f.QualityLabel != ""
}

// IsAudioOnly reports whether f carries audio and no video.
func (f Format) IsAudioOnly() bool {
	return f.HasAudio && !f.HasVideo
}

// EffectiveBitrate prefers the average bitrate and falls back to the peak one.
func (f Format) EffectiveBitrate() int {
	if f.AverageBitrate > 0 {
		return f.AverageBitrate
	}
	return f.Bitrate
}

// QualityNumber returns the leading integer of a quality label ("1080p60" -> 1080),
// or 0 when there is none.
func QualityNumber(label string) int {
	end := 0
	for end < len(label) && label[end] >= '0' && label[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(label[:end])
	if err != nil {
		return 0
	}
	return n
}

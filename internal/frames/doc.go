// Package frames samples still images from a walkthrough video.
//
// A Sampler opens the video through an Opener, resolves its duration and
// captures one JPEG at each of Offsets in order. Each capture is reported to
// an optional Observer as SeekingTo(i) followed by Captured(i). Sampling never
// guesses a duration: a missing, infinite or non-positive value fails with
// ErrDurationUnavailable. Either every frame is returned or none is, and the
// Source is closed on all paths.
//
// FFmpegOpener is the production Opener. It shells out to ffprobe for the
// duration and to ffmpeg for each capture inside a private temp directory.
package frames

// Package transcoder converts audio and video elementary streams into a new
// output, changing resolution, aspect ratio, rotation, frame rate and speed
// while reporting progress and supporting cancellation.
//
// Key pieces include:
//   - OptionsBuilder/Options: the configuration of one run, validated once
//   - Transcoder: a bounded worker pool running one run per worker, with a
//     cancellable Future and a Listener over the same completion event
//   - the engine: steps one track transcoder per output track round-robin
//   - Compositor: redraws decoded frames with scale, rotation and flip
//   - TimeInterpolator, AudioStretcher, AudioResampler: the timing layer
//   - Validator and TrackStrategy: decide what, if anything, is transcoded
//
// # Architecture
//
//	Compressing: Source -> Decoder -> timeline -> Compositor (video) or
//	             remix/stretch/resample (audio) -> Encoder -> Sink
//	Pass-through: Source -> timeline -> Sink
//
// A run whose Validator reports that nothing needs transcoding copies the
// tracks unchanged and completes with CompletionNotNeeded.
//
// # Native Libraries
//
// VP8/VP9 and Opus codecs load libmedia_vpx and libstream_opus with purego
// and register into DefaultRegistry when found. Set MEDIA_VPX_LIB_PATH or
// STREAM_OPUS_LIB_PATH to a library file, or MEDIA_SDK_LIB_PATH and
// STREAM_SDK_LIB_PATH to the directory holding them. Applications may
// register their own codecs with Registry or pass any CodecFactory.
//
// # Build Tags
//
// Optional tags disable features:
//   - novpx, noopus: skip loading the native codecs
package transcoder

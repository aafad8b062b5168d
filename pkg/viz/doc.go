// Package viz implements the audio analysis core of voxbars: a drop-oldest
// [SampleSink] fed by a live track, the [EstimateVolume] RMS estimator, the
// FFT-based [SpectrumAnalyzer], the [VolumeSmoother] and [BandSmoother] bar
// reducers, and the [State] a renderer polls.
//
// Nothing in this package blocks the producer: every handoff goes through a
// single-slot [Latest] that replaces unread values.
package viz

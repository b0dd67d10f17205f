// Package ccdc implements CCDC-style temporal segmentation of a pixel's
// multi-band observation series.
//
// Run walks the time-ordered series once as a state machine:
//
//	COLD_START      accumulate a training window and fit one model per band
//	MONITORING      score each new observation against the models, counting
//	                consecutive anomalies and refitting as members accumulate
//	BREAK_DETECTED  close the segment at the first anomaly of a full run and
//	                seed the next COLD_START after the run
//	DONE            emit the final, open segment
//
// A break needs Consecutive anomalies in a row; a shorter run is dropped.
// Results are a pure function of (dates, values, Config).
package ccdc

// Package domain models triaxial vibration sensor logs and the GPS tracks
// recorded alongside them.
//
// # Data Source
//
// The sensor writes a tab-delimited text log with one header row and one row
// per sample. Samples arrive several times per second. The columns are a fixed
// contract with the sensor firmware:
//
//	time               wall-clock instant, no zone, e.g. "2025-03-23 15:27:52.125"
//	SpeedX(mm/s)       velocity along X in millimetres per second
//	SpeedY(mm/s)       velocity along Y
//	SpeedZ(mm/s)       velocity along Z
//	DisplacementX(um)  displacement along X in micrometres
//	DisplacementY(um)  displacement along Y
//	DisplacementZ(um)  displacement along Z
//	Temperature(°C)    optional sensor temperature
//
// Cells that fail to parse are kept as NaN and counted as warnings. A
// missing temperature never aborts ingestion. A missing motion value flows
// into the bucket statistics as NaN.
//
// # Aggregation
//
// Each sample gets a vibration level, the Euclidean magnitude of its three
// velocity axes. Samples are grouped by their timestamp truncated to the
// second. Per bucket we keep mean, max, and sample standard deviation (n-1)
// of the level, plus mean and max of each displacement axis and the mean
// temperature over present values. A one-sample bucket has a NaN standard
// deviation and that NaN is carried into the severity score.
//
// # Severity
//
// See [SeverityScore]. Mean level zero is handled explicitly; every other
// numeric degeneracy propagates as NaN rather than raising an error.
//
// # Keys
//
// Every persisted record is keyed by [EpochKey], whole seconds since the Unix
// epoch of the sample's naive wall-clock time read as UTC. Keys are unique
// within a record family, not across files.
//
// # GPS
//
// GPX tracks are aligned with sensor time by a configurable offset, gaps of
// up to a minute are filled by linear interpolation, and velocity magnitude
// and heading are derived between consecutive fixes with the haversine
// distance. A [SeverityPoint] is a derived fix paired with the vibration
// result that shares its key.
package domain

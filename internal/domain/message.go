package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ResultMessage is the wire form of a ResultRecord published to result
// sinks. NaN statistics are null.
type ResultMessage struct {
	EpochSeconds     int64    `json:"epoch_seconds"`
	Timestamp        string   `json:"timestamp"`
	FileName         string   `json:"file_name"`
	SampleCount      int      `json:"sample_count"`
	MeanLevel        *float64 `json:"mean_level"`
	MaxLevel         *float64 `json:"max_level"`
	StdLevel         *float64 `json:"std_level"`
	MeanDispX        *float64 `json:"mean_disp_x"`
	MeanDispY        *float64 `json:"mean_disp_y"`
	MeanDispZ        *float64 `json:"mean_disp_z"`
	MaxDispX         *float64 `json:"max_disp_x"`
	MaxDispY         *float64 `json:"max_disp_y"`
	MaxDispZ         *float64 `json:"max_disp_z"`
	MeanTemperature  *float64 `json:"mean_temperature"`
	VelocityScore    *float64 `json:"velocity_score"`
	MeanDisplacement *float64 `json:"mean_displacement"`
	SeverityScore    *float64 `json:"severity_score"`
}

// NewResultMessage converts a result record to its wire form.
func NewResultMessage(r ResultRecord) ResultMessage {
	return ResultMessage{
		EpochSeconds:     int64(r.Key),
		Timestamp:        r.Timestamp().Format(time.RFC3339),
		FileName:         r.FileName,
		SampleCount:      r.SampleCount,
		MeanLevel:        finite(r.MeanLevel),
		MaxLevel:         finite(r.MaxLevel),
		StdLevel:         finite(r.StdLevel),
		MeanDispX:        finite(r.MeanDispX),
		MeanDispY:        finite(r.MeanDispY),
		MeanDispZ:        finite(r.MeanDispZ),
		MaxDispX:         finite(r.MaxDispX),
		MaxDispY:         finite(r.MaxDispY),
		MaxDispZ:         finite(r.MaxDispZ),
		MeanTemperature:  finite(r.MeanTemperature),
		VelocityScore:    finite(r.VelocityScore),
		MeanDisplacement: finite(r.MeanDisp),
		SeverityScore:    finite(r.SeverityScore),
	}
}

// SerializeResult marshals a result record to its JSON wire form.
func SerializeResult(r ResultRecord) ([]byte, error) {
	data, err := json.Marshal(NewResultMessage(r))
	if err != nil {
		return nil, fmt.Errorf("serialize result %d: %w", r.Key, err)
	}
	return data, nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

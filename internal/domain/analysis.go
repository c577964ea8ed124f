package domain

// Analysis is the outcome of reading and aggregating one sensor log.
type Analysis struct {
	FileName string
	Table    SampleTable
	Buckets  []SecondBucket
}

// Analyze aggregates a parsed log into scored buckets.
func Analyze(fileName string, table SampleTable) Analysis {
	return Analysis{
		FileName: fileName,
		Table:    table,
		Buckets:  AggregateBySecond(table.Samples),
	}
}

// KeyRange returns the keys of the first and last samples in file order.
// ok is false for an empty log.
func (a Analysis) KeyRange() (first, last EpochKey, ok bool) {
	s := a.Table.Samples
	if len(s) == 0 {
		return 0, 0, false
	}
	return s[0].BucketKey(), s[len(s)-1].BucketKey(), true
}

// RawRecords returns one raw record per second: the last sample of that
// second in file order, matching what sequential insert-or-replace by key
// would leave behind. collapsed counts the samples that were superseded.
func (a Analysis) RawRecords() (records []RawRecord, collapsed int) {
	now := Now()
	pos := make(map[EpochKey]int, len(a.Buckets))
	for _, s := range a.Table.Samples {
		rec := RawRecord{
			Key:         s.BucketKey(),
			FileName:    a.FileName,
			RecordedAt:  s.Timestamp,
			SpeedX:      s.SpeedX,
			SpeedY:      s.SpeedY,
			SpeedZ:      s.SpeedZ,
			DispX:       s.DispX,
			DispY:       s.DispY,
			DispZ:       s.DispZ,
			Temperature: s.Temperature,
			CreatedAt:   now,
		}
		if i, seen := pos[rec.Key]; seen {
			records[i] = rec
			collapsed++
			continue
		}
		pos[rec.Key] = len(records)
		records = append(records, rec)
	}
	return records, collapsed
}

// ResultRecords tags every bucket with the file name.
func (a Analysis) ResultRecords() []ResultRecord {
	now := Now()
	out := make([]ResultRecord, len(a.Buckets))
	for i, b := range a.Buckets {
		out[i] = ResultRecord{SecondBucket: b, FileName: a.FileName, CreatedAt: now}
	}
	return out
}

package ledger

import (
	"fmt"
	"math"
)

// StoreData records a reading on a device, folds it into the device's
// aggregation for dataType and evaluates the device's triggers against it.
// The reading is stamped with tx.Seq.
//
// The write, the aggregate update and trigger evaluation form one unit:
// every failure condition (missing or inactive device, missing write
// capability, malformed value, stale timestamp, accumulator overflow) is
// checked before any table is touched.
//
// Trigger matches never fail the write; they are reported in
// StoreResult.Firings in ascending trigger ID order.
func (l *Ledger) StoreData(tx Tx, device Principal, dataType, value string) (StoreResult, error) {
	d, ok := l.devices[device]
	if !ok {
		return StoreResult{}, ErrDeviceNotFound
	}
	if !d.Active {
		return StoreResult{}, ErrDeviceInactive
	}
	if !l.Authorize(device, tx.Caller, CapWrite) {
		return StoreResult{}, fmt.Errorf("%w: %s lacks %s on %s", ErrNotAuthorized, tx.Caller, CapWrite, device)
	}
	if err := validateFields(
		field{"data type", dataType, MaxDataTypeLength, true},
		field{"value", value, MaxValueLength, true},
	); err != nil {
		return StoreResult{}, err
	}

	q, err := parseQuantity(value)
	if err != nil {
		return StoreResult{}, err
	}

	if last, seen := l.lastWrite[device]; seen && tx.Seq <= last {
		return StoreResult{}, fmt.Errorf("%w: timestamp %d not after %d", ErrTimestampConflict, tx.Seq, last)
	}
	if _, taken := l.records[recordKey{device: device, timestamp: tx.Seq}]; taken {
		return StoreResult{}, fmt.Errorf("%w: timestamp %d already used", ErrTimestampConflict, tx.Seq)
	}

	key := aggregateKey{device: device, dataType: dataType}
	next := Aggregation{Device: device, DataType: dataType}
	if agg, exists := l.aggregates[key]; exists {
		next = *agg
	}
	sum, ok := addInt64(next.Sum, q.whole)
	if !ok {
		return StoreResult{}, fmt.Errorf("%w: sum of %s/%s", ErrArithmeticOverflow, device, dataType)
	}
	next.Count++
	next.Sum = sum
	next.Average = sum / int64(next.Count)

	// Every check has passed; commit.
	record := TelemetryRecord{
		Device:    device,
		Timestamp: tx.Seq,
		DataType:  dataType,
		Value:     value,
		Verified:  true,
	}
	l.records[recordKey{device: device, timestamp: tx.Seq}] = record
	l.lastWrite[device] = tx.Seq
	l.aggregates[key] = &next

	return StoreResult{
		Record:      record,
		Aggregation: next,
		Firings:     l.evaluateTriggers(device, dataType, q),
	}, nil
}

// evaluateTriggers compares a reading against every active trigger on the
// device watching dataType. It never mutates state.
func (l *Ledger) evaluateTriggers(device Principal, dataType string, q quantity) []Firing {
	firings := []Firing{}
	byID := l.triggers[device]
	for _, id := range l.sortedTriggerIDs(device) {
		t := byID[id]
		if !t.Active || t.DataType != dataType {
			continue
		}
		if t.Condition.matches(q, t.Threshold) {
			firings = append(firings, Firing{
				TriggerID: t.ID,
				Condition: t.Condition,
				Threshold: t.Threshold,
				Action:    t.Action,
			})
		}
	}
	return firings
}

// GetData looks up the reading a device stored at timestamp.
func (l *Ledger) GetData(device Principal, timestamp uint64) (TelemetryRecord, bool) {
	r, ok := l.records[recordKey{device: device, timestamp: timestamp}]
	return r, ok
}

// GetAggregation looks up the running summary for one metric of a device.
func (l *Ledger) GetAggregation(device Principal, dataType string) (Aggregation, bool) {
	agg, ok := l.aggregates[aggregateKey{device: device, dataType: dataType}]
	if !ok {
		return Aggregation{}, false
	}
	return *agg, true
}

// addInt64 returns a+b and false if the result does not fit in an int64.
func addInt64(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

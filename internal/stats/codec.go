package stats

import (
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/losesky/heatlink/internal/fetchengine/errorkind"
)

// encode/decode below use msgp's append-style runtime helpers directly,
// mirroring internal/cache/codec.go's NewsItem envelope rather than pulling
// in a second serialization library just for the stats sink.

func encodeOutcome(o Outcome) []byte {
	b := msgp.AppendMapHeader(nil, 9)
	b = msgp.AppendString(b, "source_id")
	b = msgp.AppendString(b, o.SourceID)
	b = msgp.AppendString(b, "started_at")
	b = msgp.AppendTime(b, o.StartedAt)
	b = msgp.AppendString(b, "duration_ms")
	b = msgp.AppendInt64(b, o.DurationMS)
	b = msgp.AppendString(b, "success")
	b = msgp.AppendBool(b, o.Success)
	b = msgp.AppendString(b, "item_count")
	b = msgp.AppendInt(b, o.ItemCount)
	b = msgp.AppendString(b, "cache_used")
	b = msgp.AppendBool(b, o.CacheUsed)
	b = msgp.AppendString(b, "error_kind")
	b = msgp.AppendString(b, string(o.ErrorKind))
	b = msgp.AppendString(b, "error_message")
	b = msgp.AppendString(b, o.ErrorMessage)
	b = msgp.AppendString(b, "call_type")
	b = msgp.AppendString(b, string(o.CallType))
	return b
}

func decodeOutcome(raw []byte) (Outcome, error) {
	var o Outcome
	sz, b, err := msgp.ReadMapHeaderBytes(raw)
	if err != nil {
		return o, err
	}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return o, err
		}
		switch key {
		case "source_id":
			o.SourceID, b, err = msgp.ReadStringBytes(b)
		case "started_at":
			o.StartedAt, b, err = msgp.ReadTimeBytes(b)
		case "duration_ms":
			o.DurationMS, b, err = msgp.ReadInt64Bytes(b)
		case "success":
			o.Success, b, err = msgp.ReadBoolBytes(b)
		case "item_count":
			o.ItemCount, b, err = msgp.ReadIntBytes(b)
		case "cache_used":
			o.CacheUsed, b, err = msgp.ReadBoolBytes(b)
		case "error_kind":
			var s string
			s, b, err = msgp.ReadStringBytes(b)
			o.ErrorKind = errorkind.Kind(s)
		case "error_message":
			o.ErrorMessage, b, err = msgp.ReadStringBytes(b)
		case "call_type":
			var s string
			s, b, err = msgp.ReadStringBytes(b)
			o.CallType = CallType(s)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return o, err
		}
	}
	return o, nil
}

func encodeAggregate(a Aggregate) []byte {
	b := msgp.AppendMapHeader(nil, 5)
	b = msgp.AppendString(b, "total_requests")
	b = msgp.AppendInt64(b, a.TotalRequests)
	b = msgp.AppendString(b, "error_count")
	b = msgp.AppendInt64(b, a.ErrorCount)
	b = msgp.AppendString(b, "sum_duration_ms")
	b = msgp.AppendInt64(b, a.SumDurationMS)
	b = msgp.AppendString(b, "success_rate")
	b = msgp.AppendFloat64(b, a.SuccessRate)
	b = msgp.AppendString(b, "avg_response_time_ms")
	b = msgp.AppendFloat64(b, a.AvgResponseTimeMS)
	return b
}

func decodeAggregate(raw []byte) (Aggregate, error) {
	var a Aggregate
	sz, b, err := msgp.ReadMapHeaderBytes(raw)
	if err != nil {
		return a, err
	}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return a, err
		}
		switch key {
		case "total_requests":
			a.TotalRequests, b, err = msgp.ReadInt64Bytes(b)
		case "error_count":
			a.ErrorCount, b, err = msgp.ReadInt64Bytes(b)
		case "sum_duration_ms":
			a.SumDurationMS, b, err = msgp.ReadInt64Bytes(b)
		case "success_rate":
			a.SuccessRate, b, err = msgp.ReadFloat64Bytes(b)
		case "avg_response_time_ms":
			a.AvgResponseTimeMS, b, err = msgp.ReadFloat64Bytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return a, err
		}
	}
	return a, nil
}

func encodeSourceStatus(s SourceStatus) []byte {
	b := msgp.AppendMapHeader(nil, 4)
	b = msgp.AppendString(b, "status")
	b = msgp.AppendString(b, s.Status)
	b = msgp.AppendString(b, "last_error")
	b = msgp.AppendString(b, s.LastError)
	b = msgp.AppendString(b, "last_update")
	b = msgp.AppendTime(b, s.LastUpdate)
	b = msgp.AppendString(b, "item_count")
	b = msgp.AppendInt(b, s.ItemCount)
	return b
}

func decodeSourceStatus(raw []byte) (SourceStatus, error) {
	var s SourceStatus
	sz, b, err := msgp.ReadMapHeaderBytes(raw)
	if err != nil {
		return s, err
	}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return s, err
		}
		switch key {
		case "status":
			s.Status, b, err = msgp.ReadStringBytes(b)
		case "last_error":
			s.LastError, b, err = msgp.ReadStringBytes(b)
		case "last_update":
			s.LastUpdate, b, err = msgp.ReadTimeBytes(b)
		case "item_count":
			s.ItemCount, b, err = msgp.ReadIntBytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return s, err
		}
	}
	return s, nil
}

func outcomeKey(sourceID string, at time.Time) string {
	return sourceID + "|" + at.UTC().Format(time.RFC3339Nano)
}

func aggregateKey(sourceID string, ct CallType) string {
	return sourceID + "|" + string(ct)
}

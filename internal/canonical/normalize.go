package canonical

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/persistorai/tracksync/internal/models"
)

// versionField holds the document's last modification time.
const versionField = "updated_at"

// toRecord converts a decoded document into a CanonicalRecord. The _id
// becomes the entity id and is removed from the payload.
func toRecord(et models.EntityType, doc bson.M) models.CanonicalRecord {
	payload := make(map[string]any, len(doc))

	for k, v := range doc {
		if k == "_id" {
			continue
		}

		payload[k] = normalize(v)
	}

	return models.CanonicalRecord{
		EntityType: et,
		EntityID:   idString(doc["_id"]),
		Payload:    payload,
		Version:    version(doc[versionField]),
	}
}

func idString(v any) string {
	switch id := v.(type) {
	case bson.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	}

	if s, ok := normalize(v).(string); ok {
		return s
	}

	return ""
}

// version returns v as unix milliseconds, or 0 when it is not a timestamp.
func version(v any) int64 {
	switch t := v.(type) {
	case bson.DateTime:
		return int64(t)
	case time.Time:
		return t.UnixMilli()
	case bson.Timestamp:
		return int64(t.T) * 1000
	}

	return 0
}

// normalize rewrites BSON values into the plain JSON-shaped types the payload
// parser reads: maps, slices, strings, numbers and booleans.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}

		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}

		return m
	case map[string]any:
		return normalize(bson.M(t))
	case bson.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bson.Decimal128:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return t.String()
		}

		return f
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case bson.Null, bson.Undefined:
		return nil
	}

	return v
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = normalize(e)
	}

	return out
}

package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// CallTotals are the raw sums behind every statistic shown for a set of calls
type CallTotals struct {
	Count      int64      `bson:"count"`
	Duration   float64    `bson:"duration"`
	Successful int64      `bson:"successful"`
	Cost       float64    `bson:"cost"`
	LastCallAt *time.Time `bson:"lastCallAt"`
}

// DayBucket is one day of call activity
type DayBucket struct {
	Date     string  `bson:"_id" json:"date"`
	Calls    int64   `bson:"calls" json:"calls"`
	Duration float64 `bson:"duration" json:"duration"`
	Cost     float64 `bson:"cost" json:"cost"`
}

// CountBucket is a count of calls sharing a key (status, ended reason)
type CountBucket struct {
	Key   string `bson:"_id" json:"key"`
	Count int64  `bson:"count" json:"count"`
}

// AssistantBucket is call activity grouped by assistant, joined with its name
type AssistantBucket struct {
	AssistantID primitive.ObjectID `bson:"_id" json:"assistantId"`
	Name        string             `bson:"name" json:"name"`
	Calls       int64              `bson:"calls" json:"calls"`
	Duration    float64            `bson:"duration" json:"duration"`
	Successful  int64              `bson:"successful" json:"successful"`
	Cost        float64            `bson:"cost" json:"cost"`
}

// totalsGroup is the $group stage shared by the stats and summary pipelines
func totalsGroup() bson.D {
	return bson.D{{Key: "$group", Value: bson.M{
		"_id":        nil,
		"count":      bson.M{"$sum": 1},
		"duration":   bson.M{"$sum": bson.M{"$ifNull": bson.A{"$duration", 0}}},
		"successful": bson.M{"$sum": bson.M{"$cond": bson.A{"$successful", 1, 0}}},
		"cost":       bson.M{"$sum": bson.M{"$ifNull": bson.A{"$cost", 0}}},
		"lastCallAt": bson.M{"$max": bson.M{"$ifNull": bson.A{"$startedAt", "$createdAt"}}},
	}}}
}

// TotalsPipeline sums every call matching the filter
func TotalsPipeline(filter CallFilter) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: filter.Match()}},
		totalsGroup(),
	}
}

// CallsByDayPipeline buckets matching calls by calendar day in the given IANA zone
func CallsByDayPipeline(filter CallFilter, timezone string) mongo.Pipeline {
	if timezone == "" {
		timezone = "UTC"
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: filter.Match()}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format":   "%Y-%m-%d",
				"date":     "$createdAt",
				"timezone": timezone,
			}},
			"calls":    bson.M{"$sum": 1},
			"duration": bson.M{"$sum": bson.M{"$ifNull": bson.A{"$duration", 0}}},
			"cost":     bson.M{"$sum": bson.M{"$ifNull": bson.A{"$cost", 0}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

// CountByPipeline counts matching calls grouped by field, largest first.
// Missing values are grouped under "unknown". A limit of 0 keeps every group.
func CountByPipeline(filter CallFilter, field string, limit int64) mongo.Pipeline {
	p := mongo.Pipeline{
		{{Key: "$match", Value: filter.Match()}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$ifNull": bson.A{"$" + field, "unknown"}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	if limit > 0 {
		p = append(p, bson.D{{Key: "$limit", Value: limit}})
	}
	return p
}

// TopAssistantsPipeline ranks assistants by call count and joins their names
func TopAssistantsPipeline(filter CallFilter, limit int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: filter.Match()}},
		{{Key: "$group", Value: bson.M{
			"_id":        "$assistantId",
			"calls":      bson.M{"$sum": 1},
			"duration":   bson.M{"$sum": bson.M{"$ifNull": bson.A{"$duration", 0}}},
			"successful": bson.M{"$sum": bson.M{"$cond": bson.A{"$successful", 1, 0}}},
			"cost":       bson.M{"$sum": bson.M{"$ifNull": bson.A{"$cost", 0}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "calls", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.M{
			"from":         AssistantsCollection,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "assistant",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$assistant", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{
			"calls":      1,
			"duration":   1,
			"successful": 1,
			"cost":       1,
			"name":       bson.M{"$ifNull": bson.A{"$assistant.name", "Deleted assistant"}},
		}}},
	}
}

func aggregate[T any](ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline) ([]T, error) {
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CallTotals sums the calls matching filter. No matches yields zero totals.
func (s *Store) CallTotals(ctx context.Context, filter CallFilter) (CallTotals, error) {
	rows, err := aggregate[CallTotals](ctx, s.calls, TotalsPipeline(filter))
	if err != nil {
		return CallTotals{}, err
	}
	if len(rows) == 0 {
		return CallTotals{}, nil
	}
	return rows[0], nil
}

// CallsByDay returns per-day activity for the calls matching filter
func (s *Store) CallsByDay(ctx context.Context, filter CallFilter, timezone string) ([]DayBucket, error) {
	return aggregate[DayBucket](ctx, s.calls, CallsByDayPipeline(filter, timezone))
}

// CallsByStatus counts the calls matching filter per status
func (s *Store) CallsByStatus(ctx context.Context, filter CallFilter) ([]CountBucket, error) {
	return aggregate[CountBucket](ctx, s.calls, CountByPipeline(filter, "status", 0))
}

// CallsByEndedReason returns the most frequent ended reasons
func (s *Store) CallsByEndedReason(ctx context.Context, filter CallFilter, limit int64) ([]CountBucket, error) {
	return aggregate[CountBucket](ctx, s.calls, CountByPipeline(filter, "endedReason", limit))
}

// TopAssistants ranks assistants by call count
func (s *Store) TopAssistants(ctx context.Context, filter CallFilter, limit int64) ([]AssistantBucket, error) {
	return aggregate[AssistantBucket](ctx, s.calls, TopAssistantsPipeline(filter, limit))
}

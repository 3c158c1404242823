package mongodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/persistence"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// historyRetention is how long dispatched events are kept.
const historyRetention = 5 * 24 * time.Hour

type Document struct {
	Id         bson.ObjectID `bson:"_id"`
	CreateTime time.Time     `bson:"createTime"`
	CourseId   int64         `bson:"courseId"`
	Type       string        `bson:"type"`
	Event      string        `bson:"event"`
}

type EventLog struct {
	collection *mongo.Collection
}

func NewEventLog(client *mongo.Client) *EventLog {
	database := client.Database("seatcast")
	collection := database.Collection("events")

	return &EventLog{
		collection,
	}
}

func (l *EventLog) Setup(ctx context.Context) error {
	ttlIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "createTime", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(historyRetention.Seconds())),
	}

	courseIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "courseId", Value: 1},
			{Key: "_id", Value: -1},
		},
	}

	_, err := l.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{ttlIndexModel, courseIndexModel})

	return err
}

func (l *EventLog) Save(ctx context.Context, event broadcaster.Event) (persistence.Entry, error) {
	createTime := time.Now().UTC()

	eventJson, err := json.Marshal(event)
	if err != nil {
		return persistence.Entry{}, err
	}

	result, err := l.collection.InsertOne(ctx, bson.D{
		{Key: "createTime", Value: createTime},
		{Key: "courseId", Value: event.CourseId},
		{Key: "type", Value: event.Type},
		{Key: "event", Value: string(eventJson)},
	})
	if err != nil {
		return persistence.Entry{}, err
	}

	return persistence.Entry{
		Id:         result.InsertedID.(bson.ObjectID).Hex(),
		CreateTime: createTime,
		Event:      event,
	}, nil
}

func (l *EventLog) List(ctx context.Context, courseId int64, lastSeenId string) ([]persistence.Entry, error) {
	filter := bson.M{
		"courseId": courseId,
	}

	if lastSeenId != "" {
		lastSeenObjectId, err := bson.ObjectIDFromHex(lastSeenId)
		if err != nil {
			return nil, err
		}

		filter["_id"] = bson.M{"$lt": lastSeenObjectId}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(persistence.HistoryPageSize)

	result, err := l.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var documents []Document
	err = result.All(ctx, &documents)
	if err != nil {
		return nil, err
	}

	return toEntries(documents)
}

func toEntries(documents []Document) ([]persistence.Entry, error) {
	entries := make([]persistence.Entry, len(documents))
	for i, d := range documents {
		var event broadcaster.Event
		err := json.Unmarshal([]byte(d.Event), &event)
		if err != nil {
			return nil, err
		}

		entries[i] = persistence.Entry{
			Id:         d.Id.Hex(),
			CreateTime: d.CreateTime,
			Event:      event,
		}
	}

	return entries, nil
}

var _ persistence.EventLog = (*EventLog)(nil)

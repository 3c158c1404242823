package broadcaster

import (
	"strconv"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// TopicCourseUpdates is the only topic clients may subscribe to.
const TopicCourseUpdates = "course_updates"

const (
	EventTypeCapacityChanged = "course_capacity_changed"
	EventTypeCourseDeleted   = "course_deleted"
	EventTypeAnnouncement    = "announcement"
)

// Event is the unit pushed to live connections. Modifiers return copies, so a
// constructed Event is never mutated in place.
type Event struct {
	Id             string    `json:"id"`
	Type           string    `json:"type"`
	CourseId       int64     `json:"courseId"`
	Message        string    `json:"message"`
	CourseTitle    string    `json:"courseTitle,omitempty"`
	SeatsAvailable *int      `json:"seatsAvailable,omitempty"`
	Payload        any       `json:"payload,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	// Topic scopes the event for topic based strategies.
	Topic string `json:"-"`
	// Room restricts delivery to the connections joined to it.
	Room string `json:"-"`
}

func NewEvent(eventType string, courseId int64, message string) Event {
	return Event{
		Id:        gonanoid.Must(),
		Type:      eventType,
		CourseId:  courseId,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func (e Event) ForRoom(room string) Event {
	e.Room = room

	return e
}

func (e Event) OnTopic(topic string) Event {
	e.Topic = topic

	return e
}

func (e Event) WithCourseTitle(title string) Event {
	e.CourseTitle = title

	return e
}

func (e Event) WithSeatsAvailable(seats int) Event {
	e.SeatsAvailable = &seats

	return e
}

func (e Event) WithPayload(payload any) Event {
	e.Payload = payload

	return e
}

// UserRoom is the addressing room every connection of a user joins.
func UserRoom(userId string) string {
	return "user_" + userId
}

func RecipientRoom(recipientId int64) string {
	return UserRoom(strconv.FormatInt(recipientId, 10))
}

package broadcaster

import (
	"errors"
	"sync"

	"github.com/goevery/seatcast/internal/ierr"
	"go.uber.org/zap"
)

type Registry interface {
	Add(connection *Connection) error
	Remove(connectionId string)
	ForEach(predicate func(*Connection) bool, action func(*Connection))
	Subscribe(connectionId string, topic string) error
	Unsubscribe(connectionId string, topic string)
	Subscribers(topic string) []*Connection
	Get(connectionId string) (*Connection, bool)
	Len() int
}

type InMemoryRegistry struct {
	logger *zap.Logger
	mu     sync.RWMutex

	connections        map[string]*Connection
	connectionsByTopic map[string]map[string]struct{}
	topicsByConnection map[string]map[string]struct{}
}

func NewInMemoryRegistry(
	logger *zap.Logger,
) *InMemoryRegistry {
	return &InMemoryRegistry{
		logger:             logger,
		connections:        make(map[string]*Connection),
		connectionsByTopic: make(map[string]map[string]struct{}),
		topicsByConnection: make(map[string]map[string]struct{}),
	}
}

// Add registers the connection and joins it to its user room, if any.
func (r *InMemoryRegistry) Add(connection *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connection.Id]; ok {
		return ierr.New(ierr.ErrorCodeAlreadyExists, errors.New("connection already registered"))
	}

	r.connections[connection.Id] = connection
	r.topicsByConnection[connection.Id] = make(map[string]struct{})

	if room := connection.Room(); room != "" {
		r.subscribeLocked(connection.Id, room)
	}

	r.logger.Debug("connection added",
		zap.String("connectionId", connection.Id),
		zap.String("userId", connection.GetUserId()))

	return nil
}

// Remove is a no-op for unknown ids.
func (r *InMemoryRegistry) Remove(connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(connectionId)
}

// ForEach runs action for every connection accepted by predicate. Actions run
// on a snapshot, outside the lock, so they may call back into the registry.
func (r *InMemoryRegistry) ForEach(predicate func(*Connection) bool, action func(*Connection)) {
	r.mu.RLock()
	connections := make([]*Connection, 0, len(r.connections))
	for _, connection := range r.connections {
		connections = append(connections, connection)
	}
	r.mu.RUnlock()

	for _, connection := range connections {
		if predicate != nil && !predicate(connection) {
			continue
		}

		action(connection)
	}
}

func (r *InMemoryRegistry) Subscribe(connectionId string, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connectionId]; !ok {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("connection not registered"))
	}

	r.subscribeLocked(connectionId, topic)

	return nil
}

func (r *InMemoryRegistry) Unsubscribe(connectionId string, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connectionTopics, ok := r.topicsByConnection[connectionId]
	if !ok {
		return
	}

	delete(connectionTopics, topic)

	topicConnections, ok := r.connectionsByTopic[topic]
	if !ok {
		return
	}

	delete(topicConnections, connectionId)
	if len(topicConnections) == 0 {
		delete(r.connectionsByTopic, topic)
	}
}

func (r *InMemoryRegistry) Subscribers(topic string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connectionIds, ok := r.connectionsByTopic[topic]
	if !ok {
		return nil
	}

	connections := make([]*Connection, 0, len(connectionIds))
	for connectionId := range connectionIds {
		if connection, ok := r.connections[connectionId]; ok {
			connections = append(connections, connection)
		}
	}

	return connections
}

func (r *InMemoryRegistry) Get(connectionId string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connection, ok := r.connections[connectionId]

	return connection, ok
}

func (r *InMemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections)
}

// IMPORTANT: It must be called only when a write lock is already held.
func (r *InMemoryRegistry) subscribeLocked(connectionId string, topic string) {
	if _, ok := r.connectionsByTopic[topic]; !ok {
		r.connectionsByTopic[topic] = make(map[string]struct{})
	}

	r.connectionsByTopic[topic][connectionId] = struct{}{}
	r.topicsByConnection[connectionId][topic] = struct{}{}
}

// IMPORTANT: It must be called only when a write lock is already held.
func (r *InMemoryRegistry) removeLocked(connectionId string) {
	connection, ok := r.connections[connectionId]
	if !ok {
		return
	}

	connectionTopics, ok := r.topicsByConnection[connectionId]
	if !ok {
		panic("inconsistent state: connection not found in topicsByConnection")
	}

	for topic := range connectionTopics {
		topicConnections, ok := r.connectionsByTopic[topic]
		if !ok {
			panic("inconsistent state: topic not found in connectionsByTopic")
		}

		delete(topicConnections, connectionId)
		if len(topicConnections) == 0 {
			delete(r.connectionsByTopic, topic)
		}
	}

	delete(r.topicsByConnection, connectionId)
	delete(r.connections, connectionId)
	connection.Close()

	r.logger.Debug("connection removed", zap.String("connectionId", connectionId))
}

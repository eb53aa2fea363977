package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media_tracker/internal/domain"
	"media_tracker/internal/remote"
)

func TestChangeMessage_SurvivesTheWire(t *testing.T) {
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	changes := []remote.Change{
		{Type: remote.ChangeAdded, Doc: remote.Document{
			Ref:       remote.DocRef{Collection: "items", ID: "a"},
			Data:      remote.Data{"title": "A", "order": 1.5, "favorite": true},
			UpdatedAt: updated,
		}},
		{Type: remote.ChangeRemoved, Doc: remote.Document{
			Ref:  remote.DocRef{Collection: "items", ID: "b"},
			Data: remote.Data{"userId": "u1"},
		}},
	}

	body, err := json.Marshal(encodeChanges(changes))
	require.NoError(t, err)

	var msg ChangeMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.False(t, msg.Timestamp.IsZero())
	assert.Equal(t, "added", msg.Changes[0].Action)
	assert.Equal(t, changes, msg.decode())
}

func TestClassify(t *testing.T) {
	assert.True(t, domain.IsTransient(classify("op", amqp.ErrClosed)))
	assert.True(t, domain.IsTransient(classify("op", &amqp.Error{Code: amqp.ConnectionForced, Server: true, Recover: true})))
	assert.False(t, domain.IsTransient(classify("op", &amqp.Error{Code: amqp.AccessRefused, Server: true})))
	assert.False(t, domain.IsTransient(classify("op", errors.New("marshal"))))
}

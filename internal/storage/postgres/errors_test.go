package postgres

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"media_tracker/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, transient: true},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, transient: true},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, transient: true},
		{name: "too many connections", err: &pq.Error{Code: "53300"}, transient: true},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, transient: true},
		{name: "wrapped bad conn", err: fmt.Errorf("query: %w", driver.ErrBadConn), transient: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, transient: false},
		{name: "syntax error", err: &pq.Error{Code: "42601"}, transient: false},
		{name: "plain error", err: errors.New("boom"), transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			assert.Equal(t, tt.transient, domain.IsTransient(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, classify("op", nil))
}

func TestClassify_KeepsExistingTransient(t *testing.T) {
	inner := &domain.TransientError{Op: "inner", Err: errors.New("down")}
	assert.Same(t, inner, classify("outer", inner))
}

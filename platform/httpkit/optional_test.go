package httpkit

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type optionalPayload struct {
	AssignedTo Optional[uuid.UUID] `json:"assignedTo"`
}

func TestOptionalDistinguishesAbsentFromNull(t *testing.T) {
	id := uuid.New()

	var absent optionalPayload
	require.NoError(t, json.Unmarshal([]byte(`{}`), &absent))
	assert.False(t, absent.AssignedTo.Set)

	var cleared optionalPayload
	require.NoError(t, json.Unmarshal([]byte(`{"assignedTo":null}`), &cleared))
	assert.True(t, cleared.AssignedTo.Set)
	assert.Nil(t, cleared.AssignedTo.Value)

	var empty optionalPayload
	require.NoError(t, json.Unmarshal([]byte(`{"assignedTo":""}`), &empty))
	assert.True(t, empty.AssignedTo.Set)
	assert.Nil(t, empty.AssignedTo.Value)

	var set optionalPayload
	require.NoError(t, json.Unmarshal([]byte(`{"assignedTo":"`+id.String()+`"}`), &set))
	require.NotNil(t, set.AssignedTo.Value)
	assert.Equal(t, id, *set.AssignedTo.Value)

	var bad optionalPayload
	assert.Error(t, json.Unmarshal([]byte(`{"assignedTo":"not-a-uuid"}`), &bad))
}

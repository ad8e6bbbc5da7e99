package handler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserID_AcceptsNumberOrString(t *testing.T) {
	var req updateLimitReq
	require.NoError(t, json.Unmarshal([]byte(`{"userId": 12, "limit": 3}`), &req))
	assert.EqualValues(t, 12, *req.UserID)
	assert.Equal(t, 3, *req.Limit)

	require.NoError(t, json.Unmarshal([]byte(`{"userId": "7"}`), &req))
	assert.EqualValues(t, 7, *req.UserID)

	for _, bad := range []string{`{"userId": "x"}`, `{"userId": -1}`, `{"userId": 0}`, `{"userId": 1.5}`} {
		var r resetUsageReq
		assert.Error(t, json.Unmarshal([]byte(bad), &r), bad)
	}
}

func TestUpdateLimitReq_MissingFields(t *testing.T) {
	var req updateLimitReq
	require.NoError(t, json.Unmarshal([]byte(`{}`), &req))
	assert.Nil(t, req.UserID)
	assert.Nil(t, req.Limit)
}

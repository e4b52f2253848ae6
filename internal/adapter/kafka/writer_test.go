package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := domain.Publication{
		DatasetID:    "ds-1",
		DatasetName:  "chc_ucsb_tmax_2030_ssp245",
		ResourceID:   "res-7",
		ResourceName: "Daily_Tmax_cnt_Tmaxgt30C_07",
		Scenario:     "2030_SSP245",
		PublishedAt:  now,
	}

	msg, err := serializeToMessage(pub)
	require.NoError(t, err)

	assert.Equal(t, []byte("chc_ucsb_tmax_2030_ssp245"), msg.Key)
	assert.Contains(t, string(msg.Value), `"resource_name":"Daily_Tmax_cnt_Tmaxgt30C_07"`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "scenario", msg.Headers[0].Key)
	assert.Equal(t, []byte("2030_SSP245"), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded domain.Publication
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, pub, decoded)
}

func TestSerializeToMessage_OmitsEmptyResourceID(t *testing.T) {
	msg, err := serializeToMessage(domain.Publication{DatasetName: "d", ResourceName: "r"})
	require.NoError(t, err)
	assert.NotContains(t, string(msg.Value), "resource_id")
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/datatypes"
)

func TestMetadataEncodeDecode(t *testing.T) {
	raw, err := EncodeMetadata(BillScheduling{
		TargetID:    "room-42",
		BillingType: "electricity",
		Rule:        "DTSTART:20250101T000000\nRRULE:FREQ=MONTHLY;BYMONTHDAY=1",
		PrincipalID: "user-1",
		Timezone:    "Asia/Ho_Chi_Minh",
	})
	require.NoError(t, err)

	meta, err := DecodeMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, MetadataKindBill, meta.MetadataKind())

	bill, ok := meta.(BillScheduling)
	require.True(t, ok)
	assert.Equal(t, "room-42", bill.TargetID)
	assert.Equal(t, "electricity", bill.BillingType)
	assert.Equal(t, "Asia/Ho_Chi_Minh", bill.Timezone)
}

func TestDecodeMetadataUnknownKind(t *testing.T) {
	_, err := DecodeMetadata(datatypes.JSON(`{"kind":"mystery"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestDecodeMetadataMalformed(t *testing.T) {
	_, err := DecodeMetadata(datatypes.JSON(`not json`))
	require.Error(t, err)
}

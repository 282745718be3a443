package sys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseExportTable(t *testing.T) {
	raw := []byte{
		0x00, 0x10, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x34, 0x12, 0x02, 0x00,
	}
	table := ParseExportTable(raw, 0x80010000)
	assert.Equal(t, []uint32{0, 0x80011000, 0, 0x80031234}, table)

	assert.Equal(t, []uint32{0}, ParseExportTable(nil, 0x80010000))
}

func TestParseVersion(t *testing.T) {
	v := ParseVersion(0x04031501)
	assert.Equal(t, Version{0x01, 0x15, 0x03, 0x04}, v)
	assert.Equal(t, "1.21.3.4", v.String())
}

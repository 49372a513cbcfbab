package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	addr, err := parseAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), addr)

	_, err = parseAddress("bob")
	assert.Error(t, err)
}

func TestNeedArgs(t *testing.T) {
	assert.NoError(t, needArgs([]string{"7"}, 1))
	assert.Error(t, needArgs(nil, 1))
	assert.Error(t, needArgs([]string{"7", "8"}, 1))
}

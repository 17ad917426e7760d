package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleDestinationsDeduplicate(t *testing.T) {
	var rule ForwardingRule
	require.NoError(t, rule.SetDestinations([]int64{-100, -200, -100, -300, -200}))
	assert.Equal(t, []int64{-100, -200, -300}, rule.Destinations())
}

func TestRuleKeywords(t *testing.T) {
	var rule ForwardingRule

	require.NoError(t, rule.SetKeywords(nil))
	assert.Empty(t, rule.KeywordList())

	require.NoError(t, rule.SetKeywords([]string{"urgent", "alert"}))
	assert.Equal(t, []string{"urgent", "alert"}, rule.KeywordList())

	require.NoError(t, rule.SetKeywords(nil))
	assert.Empty(t, rule.KeywordList())
}

func TestAccountStatusEnum(t *testing.T) {
	assert.True(t, StatusActive.Valid())
	assert.True(t, StatusBanned.Valid())
	assert.False(t, AccountStatus("sleeping").Valid())

	assert.True(t, StatusActive.Connected())
	assert.True(t, StatusFloodWait.Connected())
	assert.False(t, StatusOffline.Connected())
	assert.False(t, StatusPendingCode.Connected())
}

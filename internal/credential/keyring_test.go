package credential_test

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/orgpulse/internal/credential"
)

func TestEnvName(t *testing.T) {
	assert.Equal(t, "ORGPULSE_JIRA_TOKEN", credential.EnvName(credential.KeyJiraToken))
	assert.Equal(t, "ORGPULSE_LLM_API_KEY", credential.EnvName(credential.KeyLLMAPIKey))
}

func TestStore_EnvWinsOverKeyring(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: credential.KeyJiraToken, Data: []byte("from-ring")}})
	env := map[string]string{"ORGPULSE_JIRA_TOKEN": "from-env"}
	s := credential.NewWithKeyring(ring, func(k string) string { return env[k] })

	v, err := s.Get(credential.KeyJiraToken)
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	delete(env, "ORGPULSE_JIRA_TOKEN")
	v, err = s.Get(credential.KeyJiraToken)
	require.NoError(t, err)
	assert.Equal(t, "from-ring", v)
}

func TestStore_SetGetDelete(t *testing.T) {
	s := credential.NewWithKeyring(keyring.NewArrayKeyring(nil), nil)

	_, err := s.Get(credential.KeyIMAPPassword)
	assert.ErrorIs(t, err, credential.ErrNotFound)

	require.NoError(t, s.Set(credential.KeyIMAPPassword, "hunter2"))
	v, err := s.Get(credential.KeyIMAPPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)

	require.NoError(t, s.Delete(credential.KeyIMAPPassword))
	_, err = s.Get(credential.KeyIMAPPassword)
	assert.ErrorIs(t, err, credential.ErrNotFound)
}

package secrets_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultseal/internal/crypto"
	"github.com/TheMichaelB/vaultseal/internal/events"
	"github.com/TheMichaelB/vaultseal/internal/models"
	"github.com/TheMichaelB/vaultseal/internal/services/secrets"
	"github.com/TheMichaelB/vaultseal/internal/store"
	"github.com/TheMichaelB/vaultseal/internal/validation"
)

const (
	password    = "correct-Horse-battery-9"
	newPassword = "another-Staple-fish-42"
)

func newTestService(t *testing.T, policy validation.Policy) (*secrets.Service, *store.MemoryStore, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	st := store.NewMemoryStore()
	svc := secrets.NewService(crypto.NewEngine(crypto.ProfileFast), st, policy, logger)
	return svc, st, &buf
}

func lenientPolicy() validation.Policy {
	return validation.Policy{MinLength: 8, MinScore: 0}
}

func TestSealOpen(t *testing.T) {
	ctx := context.Background()
	svc, st, logs := newTestService(t, lenientPolicy())

	opts := &secrets.SealOptions{
		Encryption: crypto.NewEncryptionOptions().
			WithDescription("stripe live key").
			WithType(models.SecretTypeAPIKey),
	}
	secret, err := svc.Seal(ctx, "stripe/live", []byte("sk_live_123"), []byte(password), opts)
	require.NoError(t, err)
	assert.Equal(t, "stripe live key", secret.Metadata().Description)
	assert.Equal(t, 1, st.Len())

	pt, err := svc.Open(ctx, "stripe/live", []byte(password))
	require.NoError(t, err)
	defer pt.Wipe()

	text, err := pt.Text()
	require.NoError(t, err)
	assert.Equal(t, "sk_live_123", text)

	out := logs.String()
	assert.Contains(t, out, `"secret":"stripe/live"`)
	assert.Contains(t, out, `"op_id":"`)
	assert.NotContains(t, out, password)
	assert.NotContains(t, out, "sk_live_123")
}

func TestSealExisting(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, lenientPolicy())

	_, err := svc.Seal(ctx, "db", []byte("one"), []byte(password), nil)
	require.NoError(t, err)

	_, err = svc.Seal(ctx, "db", []byte("two"), []byte(password), nil)
	assert.ErrorIs(t, err, secrets.ErrExists)

	_, err = svc.Seal(ctx, "db", []byte("two"), []byte(password), &secrets.SealOptions{Overwrite: true})
	require.NoError(t, err)

	pt, err := svc.Open(ctx, "db", []byte(password))
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), pt.Bytes())
}

func TestSealInvalidName(t *testing.T) {
	svc, _, _ := newTestService(t, lenientPolicy())
	_, err := svc.Seal(context.Background(), "../etc", []byte("x"), []byte(password), nil)
	assert.ErrorIs(t, err, store.ErrInvalidKey)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, lenientPolicy())

	_, err := svc.Open(ctx, "missing", []byte(password))
	assert.ErrorIs(t, err, store.ErrSecretNotFound)

	_, err = svc.Seal(ctx, "token", []byte("value"), []byte(password), nil)
	require.NoError(t, err)

	_, err = svc.Open(ctx, "token", []byte("wrong password"))
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, lenientPolicy())
	svc.SetVerifyMinDuration(50 * time.Millisecond)

	_, err := svc.Seal(ctx, "token", []byte("value"), []byte(password), nil)
	require.NoError(t, err)

	start := time.Now()
	ok, err := svc.Verify(ctx, "token", []byte(password))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ok, err = svc.Verify(ctx, "token", []byte("nope"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Verify(ctx, "missing", []byte(password))
	assert.ErrorIs(t, err, store.ErrSecretNotFound)
}

func TestRekey(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, lenientPolicy())

	opts := &secrets.SealOptions{Encryption: crypto.NewEncryptionOptions().WithTags("prod")}
	original, err := svc.Seal(ctx, "db", []byte("postgres://"), []byte(password), opts)
	require.NoError(t, err)

	_, err = svc.Rekey(ctx, "db", []byte("wrong"), []byte(newPassword))
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)

	rekeyed, err := svc.Rekey(ctx, "db", []byte(password), []byte(newPassword))
	require.NoError(t, err)
	assert.NotEqual(t, original.Salt(), rekeyed.Salt())
	assert.Equal(t, []string{"prod"}, rekeyed.Metadata().Tags)

	_, err = svc.Open(ctx, "db", []byte(password))
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)

	pt, err := svc.Open(ctx, "db", []byte(newPassword))
	require.NoError(t, err)
	assert.Equal(t, []byte("postgres://"), pt.Bytes())
}

func TestListDelete(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, lenientPolicy())

	for _, name := range []string{"b", "a", "c"} {
		_, err := svc.Seal(ctx, name, []byte(name), []byte(password), nil)
		require.NoError(t, err)
	}

	names, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	require.NoError(t, svc.Delete(ctx, "b"))
	assert.ErrorIs(t, svc.Delete(ctx, "b"), store.ErrSecretNotFound)

	names, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestEnforcedPolicy(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t, validation.Policy{MinLength: 12, MinScore: 0, Enforce: true})

	_, err := svc.Seal(ctx, "x", []byte("v"), []byte("short"), nil)
	assert.ErrorIs(t, err, validation.ErrWeakPassword)
	assert.Zero(t, st.Len())

	_, err = svc.Seal(ctx, "x", []byte("v"), []byte(password), nil)
	require.NoError(t, err)

	_, err = svc.Rekey(ctx, "x", []byte(password), []byte("short"))
	assert.ErrorIs(t, err, validation.ErrWeakPassword)
}

func TestLenientPolicyWarns(t *testing.T) {
	ctx := context.Background()
	svc, _, logs := newTestService(t, validation.Policy{MinLength: 12})

	_, err := svc.Seal(ctx, "x", []byte("v"), []byte("short"), nil)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "at least 12 characters")
}

func TestSealBatch(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t, lenientPolicy())

	_, err := svc.Seal(ctx, "taken", []byte("old"), []byte(password), nil)
	require.NoError(t, err)

	items := []crypto.BatchItem{
		{Label: "one", Plaintext: []byte("1")},
		{Label: "taken", Plaintext: []byte("2")},
		{Label: "big", Plaintext: bytes.Repeat([]byte("x"), 64)},
		{Label: "", Plaintext: []byte("4")},
		{Label: "two", Plaintext: []byte("5")},
	}
	opts := &secrets.SealOptions{Encryption: crypto.NewEncryptionOptions().WithMaxPlaintextSize(16)}

	result, err := svc.SealBatch(ctx, items, []byte(password), opts)
	require.NoError(t, err)
	require.Len(t, result.Items, len(items))

	assert.NoError(t, result.Items[0].Err)
	assert.ErrorIs(t, result.Items[1].Err, secrets.ErrExists)
	assert.ErrorIs(t, result.Items[2].Err, models.ErrEncryption)
	assert.ErrorIs(t, result.Items[3].Err, store.ErrInvalidKey)
	assert.NoError(t, result.Items[4].Err)
	assert.Len(t, result.Successes(), 2)
	assert.Error(t, result.Err())

	names, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "taken", "two"}, names)
	assert.Equal(t, 3, st.Len())

	pt, err := svc.Open(ctx, "two", []byte(password))
	require.NoError(t, err)
	assert.Equal(t, []byte("5"), pt.Bytes())

	pt, err = svc.Open(ctx, "taken", []byte(password))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), pt.Bytes(), "existing secret untouched")
}

func TestSealBatchNothingToDo(t *testing.T) {
	svc, _, _ := newTestService(t, lenientPolicy())

	result, err := svc.SealBatch(context.Background(), []crypto.BatchItem{{Label: ""}}, []byte(password), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Successes())
}

func TestSealCancelled(t *testing.T) {
	svc, st, _ := newTestService(t, lenientPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Seal(ctx, "late", []byte("v"), []byte(password), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, st.Len())
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	src, _, _ := newTestService(t, lenientPolicy())
	dst, st, _ := newTestService(t, lenientPolicy())

	secret, err := src.Seal(ctx, "db-url", []byte("postgres://x"), []byte(password), nil)
	require.NoError(t, err)

	data, err := secret.MarshalJSON()
	require.NoError(t, err)
	parsed, err := models.ParseJSON(data)
	require.NoError(t, err)

	require.NoError(t, dst.Import(ctx, "db-url", parsed, false))
	assert.Equal(t, 1, st.Len())

	err = dst.Import(ctx, "db-url", parsed, false)
	assert.ErrorIs(t, err, secrets.ErrExists)
	require.NoError(t, dst.Import(ctx, "db-url", parsed, true))

	pt, err := dst.Open(ctx, "db-url", []byte(password))
	require.NoError(t, err)
	defer pt.Wipe()
	assert.Equal(t, []byte("postgres://x"), pt.Bytes())

	assert.ErrorIs(t, dst.Import(ctx, "other", nil, false), store.ErrNilSecret)
	assert.ErrorIs(t, dst.Import(ctx, "", parsed, false), store.ErrInvalidKey)
}

func TestServiceMetrics(t *testing.T) {
	ctx := context.Background()
	svc, _, logs := newTestService(t, lenientPolicy())

	_, err := svc.Seal(ctx, "token", []byte("value"), []byte(password), nil)
	require.NoError(t, err)

	pt, err := svc.Open(ctx, "token", []byte(password))
	require.NoError(t, err)
	pt.Wipe()

	_, err = svc.Open(ctx, "token", []byte("wrong password"))
	require.ErrorIs(t, err, models.ErrAuthenticationFailed)

	_, err = svc.Open(ctx, "missing", []byte(password))
	require.ErrorIs(t, err, store.ErrSecretNotFound)

	ok, err := svc.Verify(ctx, "token", []byte("nope"))
	require.NoError(t, err)
	require.False(t, ok)

	snap := svc.Metrics().Snapshot()

	seal := snap["seal"]
	assert.EqualValues(t, 1, seal.Count)
	assert.Zero(t, seal.Failures)
	assert.Greater(t, seal.Total, time.Duration(0))
	assert.LessOrEqual(t, seal.Mean(), seal.Max)

	open := snap["open"]
	assert.EqualValues(t, 3, open.Count)
	assert.EqualValues(t, 2, open.Failures)
	assert.EqualValues(t, 1, open.AuthFailures)

	verify := snap["verify"]
	assert.EqualValues(t, 1, verify.Count)
	assert.Zero(t, verify.Failures)
	assert.EqualValues(t, 1, verify.AuthFailures)

	assert.Equal(t, []string{"open", "seal", "verify"}, svc.Metrics().Operations())

	out := logs.String()
	assert.Contains(t, out, `"security_event":"auth_failure"`)
	assert.Contains(t, out, `"security_event":"verify_mismatch"`)
	assert.NotContains(t, out, "wrong password")
}

func TestRekeyWrongPasswordIsSecurityEvent(t *testing.T) {
	ctx := context.Background()
	svc, _, logs := newTestService(t, lenientPolicy())

	_, err := svc.Seal(ctx, "db", []byte("value"), []byte(password), nil)
	require.NoError(t, err)

	_, err = svc.Rekey(ctx, "db", []byte("not the password"), []byte(newPassword))
	require.ErrorIs(t, err, models.ErrAuthenticationFailed)

	assert.EqualValues(t, 1, svc.Metrics().Snapshot()["rekey"].AuthFailures)
	assert.Contains(t, logs.String(), `"security_event":"auth_failure"`)
	assert.Contains(t, logs.String(), `"secret":"db"`)
}

func TestMetricsConcurrentRecord(t *testing.T) {
	m := secrets.NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Record("open", time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	stats := m.Snapshot()["open"]
	assert.EqualValues(t, 800, stats.Count)
	assert.Equal(t, time.Millisecond, stats.Mean())
	assert.Equal(t, time.Millisecond, stats.Max)
	assert.Zero(t, secrets.OperationStats{}.Mean())
}

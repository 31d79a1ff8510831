package verify

import (
	"encoding/json"
	"testing"

	"snapmatch/internal/snapshot"
	"snapmatch/internal/transform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &v), "bad test json")
	return v
}

func record(t *testing.T, raw string) *snapshot.Record {
	t.Helper()
	return &snapshot.Record{
		RecordedContent: decode(t, raw),
		RecordedDate:    "11-08-2025, 14:21:09",
	}
}

func TestVerifyEqualAfterNormalization(t *testing.T) {
	rec := record(t, `{
		"describe-key": {
			"KeyId": "<key-id:1>",
			"Enabled": true
		}
	}`)
	actual := map[string]any{
		"describe-key": decode(t, `{"KeyId": "real-key-guid", "Enabled": true}`),
	}

	v := New(WithChain(transform.NewChain().
		Add(transform.KeyValue{Key: "KeyId", Name: "key-id", Reference: true})))

	res, err := v.Verify("kms::describe", rec, actual)
	require.NoError(t, err)
	assert.True(t, res.Passed, "mismatches: %v", res.Mismatches)
}

func TestVerifyReportsLeafMismatches(t *testing.T) {
	rec := record(t, `{
		"get-queue": {
			"Attributes": {"VisibilityTimeout": "30", "DelaySeconds": "0"}
		}
	}`)
	actual := map[string]any{
		"get-queue": decode(t, `{"Attributes": {"VisibilityTimeout": "45", "DelaySeconds": "0"}}`),
	}

	res, err := New().Verify("sqs::attrs", rec, actual)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Mismatches, 1)
	m := res.Mismatches[0]
	assert.Equal(t, "get-queue", m.Key)
	assert.Equal(t, "$.Attributes.VisibilityTimeout", m.Path)
	assert.Equal(t, "30", m.Recorded)
	assert.Equal(t, "45", m.Actual)
}

func TestVerifyMissingAndExtraKeys(t *testing.T) {
	rec := record(t, `{"first": {"A": 1}, "second": {"B": 2}}`)
	actual := map[string]any{
		"second": decode(t, `{"B": 2}`),
		"third":  decode(t, `{"C": 3}`),
	}

	res, err := New().Verify("t", rec, actual)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"first"}, res.MissingKeys)
	assert.Equal(t, []string{"third"}, res.ExtraKeys)
	assert.Empty(t, res.Mismatches)
}

func TestVerifySkipPathsPruneBothSides(t *testing.T) {
	rec := record(t, `{
		"send": {
			"MessageId": "m-recorded",
			"Body": "hello"
		}
	}`)
	actual := map[string]any{
		"send": decode(t, `{"MessageId": "m-actual", "Body": "hello"}`),
	}

	res, err := New(WithSkipPaths("$..MessageId")).Verify("t", rec, actual)
	require.NoError(t, err)
	assert.True(t, res.Passed, "mismatches: %v", res.Mismatches)
}

func TestVerifyArrayLengthMismatchIsSingleMismatch(t *testing.T) {
	rec := record(t, `{"list": {"Items": [1, 2, 3]}}`)
	actual := map[string]any{"list": decode(t, `{"Items": [1, 2]}`)}

	res, err := New().Verify("t", rec, actual)
	require.NoError(t, err)
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, "$.Items", res.Mismatches[0].Path)
}

func TestVerifyTypeChangeAtNode(t *testing.T) {
	rec := record(t, `{"k": {"Value": {"nested": true}}}`)
	actual := map[string]any{"k": decode(t, `{"Value": "flat"}`)}

	res, err := New().Verify("t", rec, actual)
	require.NoError(t, err)
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, "$.Value", res.Mismatches[0].Path)
}

func TestVerifyNilRecordIsNotFound(t *testing.T) {
	_, err := New().Verify("t", nil, nil)
	require.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestVerifyEmptyMatchSetPasses(t *testing.T) {
	rec := &snapshot.Record{RecordedContent: map[string]any{}, RecordedDate: "x"}
	res, err := New().Verify("t", rec, map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestUpdateStampsFreshDate(t *testing.T) {
	v := New(WithChain(transform.NewChain().
		Add(transform.KeyValue{Key: "KeyId", Name: "key-id", Reference: true})))

	rec, err := v.Update(map[string]any{
		"create": decode(t, `{"KeyId": "abc"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.RecordedDate)
	assert.Equal(t, "<key-id:1>", rec.RecordedContent["create"].(map[string]any)["KeyId"])
}

func TestUpdateThenVerifyRoundTrips(t *testing.T) {
	chain := func() *transform.Chain {
		return transform.NewChain().
			Add(transform.KeyValue{Key: "RequestId", Name: "request-id", Reference: true})
	}
	actual := map[string]any{
		"a-first":  decode(t, `{"RequestId": "r1", "Code": "ok"}`),
		"b-second": decode(t, `{"RequestId": "r1", "Other": 2}`),
	}

	rec, err := New(WithChain(chain())).Update(actual)
	require.NoError(t, err)

	// A later run with the same underlying values must verify clean;
	// a fresh chain reproduces the same token indices.
	res, err := New(WithChain(chain())).Verify("t", rec, actual)
	require.NoError(t, err)
	assert.True(t, res.Passed, "mismatches: %v", res.Mismatches)
}

func TestTokenIndexDriftIsCaught(t *testing.T) {
	// Recorded says both keys carried the same underlying value
	// (<request-id:1> twice); a replay with two distinct values must
	// fail even though both are tokens after normalization.
	rec := record(t, `{
		"a-first":  {"RequestId": "<request-id:1>"},
		"b-second": {"RequestId": "<request-id:1>"}
	}`)
	actual := map[string]any{
		"a-first":  decode(t, `{"RequestId": "r1"}`),
		"b-second": decode(t, `{"RequestId": "r2"}`),
	}

	v := New(WithChain(transform.NewChain().
		Add(transform.KeyValue{Key: "RequestId", Name: "request-id", Reference: true})))
	res, err := v.Verify("t", rec, actual)
	require.NoError(t, err)
	assert.False(t, res.Passed, "repetition pattern change must fail verification")
}

func TestVerifyKeepsIntegerPrecision(t *testing.T) {
	rec := &snapshot.Record{
		RecordedDate: "11-08-2025, 14:21:09",
		RecordedContent: map[string]any{
			"describe-table": map[string]any{"ItemCount": json.Number("9007199254740993")},
		},
	}

	v := New()
	res, err := v.Verify("t", rec, map[string]any{
		"describe-table": map[string]any{"ItemCount": json.Number("9007199254740993")},
	})
	require.NoError(t, err)
	assert.True(t, res.Passed, "mismatches: %v", res.Mismatches)

	// One past 2^53: indistinguishable as float64, distinct as literals.
	res, err = v.Verify("t", rec, map[string]any{
		"describe-table": map[string]any{"ItemCount": json.Number("9007199254740992")},
	})
	require.NoError(t, err)
	require.False(t, res.Passed, "off-by-one beyond 2^53 must not compare equal")
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, "$.ItemCount", res.Mismatches[0].Path)
}

package lead

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinancialRecordString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		record FinancialRecord
		want   string
	}{
		{"placeholder", NotFound("timeout"), NotFoundText},
		{"revenue only", FinancialRecord{Fields: []Field{{Label: "Revenue", Value: "1,2 трлн. ₽"}}}, "Revenue: 1,2 трлн. ₽"},
		{
			"several fields",
			FinancialRecord{Fields: []Field{{Label: "Revenue", Value: "10"}, {Label: "Profit", Value: "2"}}},
			"Revenue: 10\nProfit: 2",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.record.String())
		})
	}
}

func TestNewResultHasEmptyCollections(t *testing.T) {
	t.Parallel()

	res := NewResult("https://example.ru")
	require.NotNil(t, res.Phones)
	require.NotNil(t, res.INNs)
	require.NotNil(t, res.Revenues)
	require.False(t, res.Failed())
}

func TestAdmissionErrorsWrapSentinel(t *testing.T) {
	t.Parallel()

	require.True(t, errors.Is(ErrGlobalLimit, ErrAdmissionRejected))
	require.True(t, errors.Is(ErrIdentityLimit, ErrAdmissionRejected))
	require.False(t, errors.Is(ErrGlobalLimit, ErrIdentityLimit))
}

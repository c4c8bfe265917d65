package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersIntoGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.LedgerAppends.Inc()
	m.NotificationsSuppressed.WithLabelValues("status").Add(2)

	require.Equal(t, 1.0, testutil.ToFloat64(m.LedgerAppends))
	require.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsSuppressed.WithLabelValues("status")))

	n, err := testutil.GatherAndCount(reg, "shipdesk_ledger_appends_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// вторая регистрация в тот же реестр: паника promauto
	require.Panics(t, func() { New(reg) })
	require.NotPanics(t, func() { NewDiscard(); NewDiscard() })
}

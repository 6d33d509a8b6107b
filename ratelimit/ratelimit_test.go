package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdmitEventRespectsThreshold(t *testing.T) {
	l := New(Thresholds{EventsPerWindow: 2, QueriesPerWindow: 2, MaxConnections: 2})
	defer l.Close()

	require.True(t, l.AdmitEvent("1.2.3.4"))
	require.True(t, l.AdmitEvent("1.2.3.4"))
	require.False(t, l.AdmitEvent("1.2.3.4"))
}

func TestAdmitEventIsPerAddress(t *testing.T) {
	l := New(Thresholds{EventsPerWindow: 1, QueriesPerWindow: 1, MaxConnections: 1})
	defer l.Close()

	require.True(t, l.AdmitEvent("1.2.3.4"))
	require.False(t, l.AdmitEvent("1.2.3.4"))
	require.True(t, l.AdmitEvent("5.6.7.8"))
}

func TestAdmitQueryRespectsThreshold(t *testing.T) {
	l := New(Thresholds{EventsPerWindow: 2, QueriesPerWindow: 1, MaxConnections: 2})
	defer l.Close()

	require.True(t, l.AdmitQuery("1.2.3.4"))
	require.False(t, l.AdmitQuery("1.2.3.4"))
}

func TestConnectionAdmitAndRelease(t *testing.T) {
	l := New(Thresholds{EventsPerWindow: 10, QueriesPerWindow: 10, MaxConnections: 1})
	defer l.Close()

	require.True(t, l.AdmitConnection("1.2.3.4"))
	require.False(t, l.AdmitConnection("1.2.3.4"))

	l.ReleaseConnection("1.2.3.4")
	require.True(t, l.AdmitConnection("1.2.3.4"))
}

func TestReleaseConnectionSaturatesAtZero(t *testing.T) {
	l := New(DefaultThresholds)
	defer l.Close()

	l.ReleaseConnection("1.2.3.4")
	l.ReleaseConnection("1.2.3.4")
	require.True(t, l.AdmitConnection("1.2.3.4"))
}

func TestReleaseConnectionOnUnseenAddressIsNoop(t *testing.T) {
	l := New(DefaultThresholds)
	defer l.Close()

	l.ReleaseConnection("never-seen")
}

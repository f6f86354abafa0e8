package background

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hamed0406/uptimealarm/internal/domain"
	"github.com/hamed0406/uptimealarm/internal/probe"
	"github.com/hamed0406/uptimealarm/internal/repo"
	"github.com/hamed0406/uptimealarm/internal/repo/memory"
)

func newRunner(kv repo.KV) *Runner {
	return NewRunner(nil, kv, probe.NewProber(nil, probe.NewHTTPChecker(2*time.Second)))
}

func TestRunner_MonitoringOffIsNoData(t *testing.T) {
	kv := memory.New()
	st := repo.NewState(kv, nil)
	_ = st.SetEndpoints(context.Background(), []string{"http://127.0.0.1:1"})

	require.Equal(t, NoData, newRunner(kv).Run(context.Background()))
	sts, _ := st.Statuses(context.Background())
	require.Empty(t, sts)
}

func TestRunner_NoEndpointsIsNoData(t *testing.T) {
	kv := memory.New()
	_ = repo.NewState(kv, nil).SetMonitoring(context.Background(), true)
	require.Equal(t, NoData, newRunner(kv).Run(context.Background()))
}

func TestRunner_WritesDurableStatuses(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	ctx := context.Background()
	kv := memory.New()
	st := repo.NewState(kv, nil)
	_ = st.SetEndpoints(ctx, []string{up.URL, down.URL})
	_ = st.SetMonitoring(ctx, true)

	require.Equal(t, NewData, newRunner(kv).Run(ctx))

	sts, _ := st.Statuses(ctx)
	require.Len(t, sts, 2)
	require.True(t, sts[0].IsUp)
	require.False(t, sts[1].IsUp)
	require.NotNil(t, sts[1].Error)
}

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk gone")
}
func (brokenKV) Set(context.Context, string, []byte) error { return errors.New("disk gone") }
func (brokenKV) Delete(context.Context, string) error      { return errors.New("disk gone") }

func TestRunner_StoreFailureIsFailed(t *testing.T) {
	require.Equal(t, Failed, newRunner(brokenKV{}).Run(context.Background()))
}

type panicProber struct{}

func (panicProber) Probe(context.Context, string, *domain.EndpointStatus) domain.EndpointStatus {
	panic("boom")
}

func TestRunner_ProbePanicIsCapturedAsDown(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	st := repo.NewState(kv, nil)
	_ = st.SetEndpoints(ctx, []string{"https://a"})
	_ = st.SetMonitoring(ctx, true)

	r := NewRunner(nil, kv, panicProber{})
	require.Equal(t, NewData, r.Run(ctx))

	sts, _ := st.Statuses(ctx)
	require.Len(t, sts, 1)
	require.False(t, sts[0].IsUp)
	require.Contains(t, *sts[0].Error, "boom")
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "no-data", NoData.String())
	require.Equal(t, "new-data", NewData.String())
	require.Equal(t, "failed", Failed.String())
}

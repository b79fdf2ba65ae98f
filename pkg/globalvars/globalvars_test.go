//go:build linux

package globalvars

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shmvars/pkg/diag"
	"github.com/srediag/shmvars/pkg/result"
	"github.com/srediag/shmvars/pkg/segment"
	"github.com/srediag/shmvars/pkg/serializer"
	"github.com/srediag/shmvars/pkg/store"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

type FacadeSuite struct {
	suite.Suite
	dir string
	g   *GlobalVars
}

func (s *FacadeSuite) SetupTest() {
	s.dir = s.T().TempDir()
	g, err := New(&Config{
		CacheCapacity: 5,
		DefaultFormat: "binary",
		SegmentDir:    s.dir,
	})
	s.Require().NoError(err)
	s.g = g
}

func (s *FacadeSuite) TearDownTest() {
	s.Require().NoError(s.g.Close())
}

// newPeer builds a second facade over the same segment directory, standing
// in for another process.
func (s *FacadeSuite) newPeer() *GlobalVars {
	g, err := New(&Config{
		CacheCapacity: 5,
		DefaultFormat: "binary",
		SegmentDir:    s.dir,
	})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = g.Close() })
	return g
}

func (s *FacadeSuite) TestVariableLifecycle() {
	r := s.g.Set("answer", 42, true)
	s.True(r.Success(), r.Message)

	r = s.g.Get("answer")
	s.Equal(42, r.MustData())

	r = s.g.Exists("answer")
	s.Equal(true, r.MustData())

	r = s.g.Set("answer", 1, false)
	s.False(r.Success())
	s.True(r.Is(result.ErrAlreadyExists))
	s.Equal(42, s.g.Get("answer").MustData(), "failed set leaves the value alone")

	r = s.g.Delete("answer")
	s.True(r.Success())
	r = s.g.Get("answer")
	s.True(r.Is(result.ErrNotFound))
}

func (s *FacadeSuite) TestFailureCarriesDiagnostics() {
	r := s.g.Get("missing")
	s.Equal(result.StatusFailure, r.Status)
	s.NotEmpty(r.Message)
	s.Equal("globalvars.Get", r.Context)
	info, ok := r.Data.(diag.Info)
	s.Require().True(ok, "failure payload is the captured diagnostics")
	s.Contains(info.Error, "missing")
	s.NotEmpty(info.Location)
	s.False(info.Time.IsZero())
}

func (s *FacadeSuite) TestListAndClear() {
	s.True(s.g.Set("a", 1, true).Success())
	s.True(s.g.Set("b", 2, true).Success())
	names, err := result.DataAs[[]string](s.g.ListVars())
	s.Require().NoError(err)
	s.ElementsMatch([]string{"a", "b"}, names)

	s.True(s.g.Clear().Success())
	s.Empty(s.g.Store().ListVars())
}

func (s *FacadeSuite) TestSyncAndUpdateAcrossFacades() {
	ctx := context.Background()

	s.True(s.g.ShmGen("shared", 4096, false).Success())
	s.True(s.g.Set("greeting", "hello", true).Success())
	s.True(s.g.ShmSync(ctx, "shared", serializer.FormatUnknown).Success(), "push")

	peer := s.newPeer()
	s.True(peer.ShmConnect("shared").Success())
	s.True(peer.Get("greeting").Is(result.ErrNotFound), "stores are isolated until update")

	s.True(peer.ShmUpdate(ctx, "shared", serializer.FormatUnknown).Success(), "pull")
	s.Equal("hello", peer.Get("greeting").MustData())

	s.Positive(counterValue(s.T(), s.g.metrics.syncBytes))
	s.Positive(counterValue(s.T(), peer.metrics.updateBytes))
}

func (s *FacadeSuite) TestSyncRequiresBoundSegment() {
	r := s.g.ShmSync(context.Background(), "never-bound", serializer.FormatUnknown)
	s.False(r.Success())
	s.True(r.Is(result.ErrNotFound))
	s.Equal(1.0, counterValue(s.T(), s.g.metrics.syncErrors))
}

func (s *FacadeSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := s.g.ShmSync(ctx, "any", serializer.FormatUnknown)
	s.Equal(result.StatusCancelled, r.Status)
	s.True(r.Is(result.ErrCancelled))

	r = s.g.ShmUpdate(ctx, "any", serializer.FormatUnknown)
	s.Equal(result.StatusCancelled, r.Status)
}

func (s *FacadeSuite) TestOversizedSyncLeavesSegmentIntact() {
	ctx := context.Background()
	s.True(s.g.ShmGen("tight", 160, false).Success())
	s.True(s.g.Set("k", "v", true).Success())
	s.True(s.g.ShmSync(ctx, "tight", serializer.FormatUnknown).Success())

	s.True(s.g.Set("blob", string(make([]byte, 4096)), true).Success())
	r := s.g.ShmSync(ctx, "tight", serializer.FormatUnknown)
	s.False(r.Success())
	s.True(r.Is(result.ErrPayloadTooLarge))

	peer := s.newPeer()
	s.True(peer.ShmConnect("tight").Success())
	s.True(peer.ShmUpdate(ctx, "tight", serializer.FormatUnknown).Success())
	s.Equal("v", peer.Get("k").MustData(), "prior frame survives the failed sync")
	s.True(peer.Get("blob").Is(result.ErrNotFound))
}

func (s *FacadeSuite) TestUpdateFormatExpectation() {
	ctx := context.Background()
	s.True(s.g.ShmGen("fmt", 1024, false).Success())
	s.True(s.g.Set("n", 1, true).Success())
	s.True(s.g.ShmSync(ctx, "fmt", serializer.FormatBinary).Success())

	r := s.g.ShmUpdate(ctx, "fmt", serializer.FormatJSON)
	s.False(r.Success())
	s.True(r.Is(result.ErrUnsupportedFormat))

	s.True(s.g.ShmUpdate(ctx, "fmt", serializer.FormatBinary).Success())
}

func (s *FacadeSuite) TestUpdateNeverWrittenSegment() {
	s.True(s.g.ShmGen("virgin", 256, false).Success())
	r := s.g.ShmUpdate(context.Background(), "virgin", serializer.FormatUnknown)
	s.False(r.Success())
	s.True(r.Is(result.ErrCorruptHeader))
}

func (s *FacadeSuite) TestConnectMissingSegment() {
	r := s.g.ShmConnect("ghost")
	s.False(r.Success())
	s.True(r.Is(result.ErrNotFound))
}

func (s *FacadeSuite) TestConnectWait() {
	done := make(chan result.Result, 1)
	peer := s.newPeer()
	go func() {
		done <- peer.ShmConnectWait("late", 5*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	s.True(s.g.ShmGen("late", 256, false).Success())

	select {
	case r := <-done:
		s.True(r.Success(), r.Message)
	case <-time.After(10 * time.Second):
		s.Fail("connect-wait never returned")
	}
}

func (s *FacadeSuite) TestShmCloseSemantics() {
	s.True(s.g.ShmGen("doomed", 256, false).Success())

	peer := s.newPeer()
	s.True(peer.ShmConnect("doomed").Success())
	s.True(peer.ShmClose("doomed", true).Success(), "close-only detaches locally")
	s.True(peer.ShmConnect("doomed").Success(), "block survives a close-only")
	s.True(peer.ShmClose("doomed", true).Success())

	s.True(s.g.ShmClose("doomed", false).Success(), "destroy")
	r := peer.ShmConnect("doomed")
	s.True(r.Is(result.ErrNotFound), "destroyed for every process")

	s.True(s.g.ShmClose("doomed", true).Success(), "closing an unopened name close-only is a no-op")
	r = s.g.ShmClose("doomed", false)
	s.True(r.Is(result.ErrNotFound))
}

func (s *FacadeSuite) TestCacheManagement() {
	for _, name := range []string{"one", "two"} {
		s.True(s.g.ShmGen(name, 256, false).Success())
	}
	s.Equal(2, s.g.CacheLen())

	s.True(s.g.ShmCacheManagement("one", nil).Success(), "touch")
	s.False(s.g.ShmCacheManagement("", &segment.Handle{}).Success(), "handle without a name")

	s.True(s.g.ShmCacheManagement("", nil).Success(), "flush")
	s.Equal(0, s.g.CacheLen())

	// flushed close-only: still connectable
	s.True(s.g.ShmConnect("one").Success())
}

func (s *FacadeSuite) TestCacheCapacityAtFacadeLevel() {
	g, err := New(&Config{CacheCapacity: 2, DefaultFormat: "binary", SegmentDir: s.dir})
	s.Require().NoError(err)
	defer func() { _ = g.Close() }()

	for _, name := range []string{"c1", "c2", "c3", "c4"} {
		s.True(g.ShmGen(name, 256, false).Success())
		s.LessOrEqual(g.CacheLen(), 2)
	}
	s.Positive(counterValue(s.T(), g.metrics.cacheEvictions))
}

func (s *FacadeSuite) TestWithLock() {
	r := s.g.WithLock(func(st *store.Store) error {
		return st.Set("locked", true, true)
	})
	s.True(r.Success())
	s.Equal(true, s.g.Get("locked").MustData())
}

func (s *FacadeSuite) TestGatherer() {
	s.Require().NotNil(s.g.Gatherer())
	families, err := s.g.Gatherer().Gather()
	s.Require().NoError(err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	s.Contains(names, "shmvars_sync_bytes_total")
	s.Contains(names, "shmvars_segment_cache_evictions_total")
}

func (s *FacadeSuite) TestHealthHandler() {
	h := s.g.HealthHandler()

	rec := httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	s.Equal(http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	s.Equal(http.StatusOK, rec.Code)
}

func TestFacadeSuite(t *testing.T) {
	suite.Run(t, new(FacadeSuite))
}

// TestCounterConvergence drives four writers, each with its own facade
// standing in for a process, through the guarded read-modify-write cycle
// and checks the segment converges on the sum.
func TestCounterConvergence(t *testing.T) {
	dir := t.TempDir()
	newFacade := func() *GlobalVars {
		g, err := New(&Config{CacheCapacity: 5, DefaultFormat: "binary", SegmentDir: dir})
		require.NoError(t, err)
		t.Cleanup(func() { _ = g.Close() })
		return g
	}
	ctx := context.Background()

	creator := newFacade()
	r := creator.ShmGen("counter-seg", 4096, true)
	require.True(t, r.Success(), r.Message)
	mtx, err := result.DataAs[*segment.Mutex](r)
	require.NoError(t, err)
	defer func() { _ = mtx.Close() }()

	require.True(t, creator.Set("counter", 0, true).Success())
	require.True(t, creator.ShmSync(ctx, "counter-seg", serializer.FormatUnknown).Success())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		g := newFacade()
		require.True(t, g.ShmConnect("counter-seg").Success())
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mtx.Lock())
			defer func() { assert.NoError(t, mtx.Unlock()) }()

			assert.True(t, g.ShmUpdate(ctx, "counter-seg", serializer.FormatUnknown).Success())
			n, err := g.Store().GetInt("counter")
			assert.NoError(t, err)
			assert.True(t, g.Set("counter", n+1, true).Success())
			assert.True(t, g.ShmSync(ctx, "counter-seg", serializer.FormatUnknown).Success())
		}()
	}
	wg.Wait()

	checker := newFacade()
	require.True(t, checker.ShmConnect("counter-seg").Success())
	require.True(t, checker.ShmUpdate(ctx, "counter-seg", serializer.FormatUnknown).Success())
	n, err := checker.Store().GetInt("counter")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.True(t, creator.ShmClose("counter-seg", false).Success())
}

package imagesync

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/logging"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	for x := 0; x < 100; x++ {
		for y := 0; y < 80; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newTestManager(t *testing.T, ops CloudOps) *Manager {
	t.Helper()
	return NewManager(Config{
		Dir:          t.TempDir(),
		MaxDimension: 1024,
		TargetBytes:  1 << 20,
		MaxAttempts:  3,
		NegativeTTL:  5 * time.Minute,
	}, ops, logging.Nop{})
}

func TestSaveLoadDelete(t *testing.T) {
	m := newTestManager(t, CloudOps{})

	require.NoError(t, m.Save("e1", testJPEG(t)))
	assert.True(t, m.Exists("e1"))

	data, err := m.Load("e1")
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	require.NoError(t, m.Delete("e1"))
	assert.False(t, m.Exists("e1"))

	_, err = m.Load("e1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	// deleting again is a no-op
	require.NoError(t, m.Delete("e1"))
}

func TestSave_RejectsGarbage(t *testing.T) {
	m := newTestManager(t, CloudOps{})
	assert.Error(t, m.Save("e1", []byte("not an image")))
}

func TestDownloadFromCloud_CoalescesConcurrentRequests(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	payload := []byte("jpeg-bytes")

	m := newTestManager(t, CloudOps{
		Download: func(ctx context.Context, entityID string, public bool) ([]byte, error) {
			if calls.Add(1) == 1 {
				close(started)
			}
			<-release
			return payload, nil
		},
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([][]byte, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = m.DownloadFromCloud(ctx, "e1", false)
		}()
		if i == 0 {
			<-started
			// give the second caller time to join the in-flight call
			time.Sleep(50 * time.Millisecond)
		}
	}
	close(release)
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, payload, results[i])
	}
	assert.EqualValues(t, 1, calls.Load())

	// the download landed in the local cache
	cached, err := os.ReadFile(filepath.Join(m.cfg.Dir, "e1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, payload, cached)
}

func TestDownloadFromCloud_NegativeCache(t *testing.T) {
	var calls atomic.Int32
	m := newTestManager(t, CloudOps{
		Download: func(ctx context.Context, entityID string, public bool) ([]byte, error) {
			calls.Add(1)
			return nil, common.ErrNotFound
		},
	})

	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := m.DownloadFromCloud(ctx, "e1", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.EqualValues(t, 1, calls.Load())

	// inside the TTL the miss is answered from cache
	_, err = m.DownloadFromCloud(ctx, "e1", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.EqualValues(t, 1, calls.Load())

	// partitions are cached independently
	_, err = m.DownloadFromCloud(ctx, "e1", true)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.EqualValues(t, 2, calls.Load())

	// past the TTL the backend is asked again
	now = now.Add(m.cfg.NegativeTTL + time.Second)
	_, err = m.DownloadFromCloud(ctx, "e1", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.EqualValues(t, 3, calls.Load())
}

func TestUploadToCloud_InvalidatesNegativeCache(t *testing.T) {
	var downloads atomic.Int32
	m := newTestManager(t, CloudOps{
		Upload: func(ctx context.Context, entityID string, data []byte, public bool) (string, error) {
			return "assets/" + entityID + ".jpg", nil
		},
		Download: func(ctx context.Context, entityID string, public bool) ([]byte, error) {
			downloads.Add(1)
			return nil, common.ErrNotFound
		},
	})
	ctx := context.Background()

	_, err := m.DownloadFromCloud(ctx, "e1", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.EqualValues(t, 1, downloads.Load())

	require.NoError(t, m.Save("e1", testJPEG(t)))
	assetID, err := m.UploadToCloud(ctx, "e1", false)
	require.NoError(t, err)
	assert.Equal(t, "assets/e1.jpg", assetID)

	// the upload cleared the negative entry, so the next miss hits the backend
	_, err = m.DownloadFromCloud(ctx, "e1", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.EqualValues(t, 2, downloads.Load())
}

func TestUploadToCloud_ReportsModTime(t *testing.T) {
	var gotID string
	var gotMod time.Time
	m := newTestManager(t, CloudOps{
		Upload: func(ctx context.Context, entityID string, data []byte, public bool) (string, error) {
			return "assets/e1.jpg", nil
		},
		OnUploaded: func(ctx context.Context, entityID, remoteAssetID string, public bool, modifiedAt time.Time) {
			gotID = remoteAssetID
			gotMod = modifiedAt
		},
	})

	require.NoError(t, m.Save("e1", testJPEG(t)))
	mod, err := m.ModTime("e1")
	require.NoError(t, err)

	_, err = m.UploadToCloud(context.Background(), "e1", false)
	require.NoError(t, err)
	assert.Equal(t, "assets/e1.jpg", gotID)
	assert.True(t, mod.Equal(gotMod))
}

func TestSweepPending_RetriesThenDrops(t *testing.T) {
	var attempts atomic.Int32
	m := newTestManager(t, CloudOps{
		Upload: func(ctx context.Context, entityID string, data []byte, public bool) (string, error) {
			attempts.Add(1)
			return "", common.ErrNetworkUnavailable
		},
	})
	m.cfg.MaxAttempts = 2
	ctx := context.Background()

	require.NoError(t, m.Save("e1", testJPEG(t)))
	m.MarkPending("e1", true, false)
	assert.Equal(t, 1, m.PendingCount())

	ok, bad := m.SweepPending(ctx)
	assert.Equal(t, 0, ok)
	assert.Equal(t, 1, bad)
	assert.Equal(t, 1, m.PendingCount())

	// the second failure exhausts the budget and drops the id
	_, bad = m.SweepPending(ctx)
	assert.Equal(t, 1, bad)
	assert.Equal(t, 0, m.PendingCount())
	assert.EqualValues(t, 2, attempts.Load())
}

func TestSweepPending_QuotaIsTerminal(t *testing.T) {
	m := newTestManager(t, CloudOps{
		Upload: func(ctx context.Context, entityID string, data []byte, public bool) (string, error) {
			return "", common.ErrQuotaExceeded
		},
	})

	require.NoError(t, m.Save("e1", testJPEG(t)))
	m.MarkPending("e1", true, false)

	ok, bad := m.SweepPending(context.Background())
	assert.Equal(t, 0, ok)
	assert.Equal(t, 1, bad)
	assert.Equal(t, 0, m.PendingCount())
}

func TestSweepPending_PublicUploadsBothPartitions(t *testing.T) {
	var publics []bool
	m := newTestManager(t, CloudOps{
		Upload: func(ctx context.Context, entityID string, data []byte, public bool) (string, error) {
			publics = append(publics, public)
			return "assets/e1.jpg", nil
		},
	})

	require.NoError(t, m.Save("e1", testJPEG(t)))
	m.MarkPending("e1", true, true)

	ok, bad := m.SweepPending(context.Background())
	assert.Equal(t, 1, ok)
	assert.Equal(t, 0, bad)
	assert.Equal(t, 0, m.PendingCount())
	assert.Equal(t, []bool{false, true}, publics)
}

func TestSweepPending_PartialSuccessKeepsAttemptCount(t *testing.T) {
	var privateUploads, publicUploads atomic.Int32
	m := newTestManager(t, CloudOps{
		Upload: func(ctx context.Context, entityID string, data []byte, public bool) (string, error) {
			if public {
				publicUploads.Add(1)
				return "", common.ErrNetworkUnavailable
			}
			privateUploads.Add(1)
			return "assets/" + entityID + ".jpg", nil
		},
	})
	m.cfg.MaxAttempts = 2
	ctx := context.Background()

	require.NoError(t, m.Save("e1", testJPEG(t)))
	m.MarkPending("e1", true, true)

	// private lands, public fails: the entry survives with one attempt spent
	ok, bad := m.SweepPending(ctx)
	assert.Equal(t, 0, ok)
	assert.Equal(t, 1, bad)
	assert.Equal(t, 1, m.PendingCount())

	// the second failure exhausts the budget, and the private copy that
	// already landed is not re-uploaded
	_, bad = m.SweepPending(ctx)
	assert.Equal(t, 1, bad)
	assert.Equal(t, 0, m.PendingCount())
	assert.EqualValues(t, 1, privateUploads.Load())
	assert.EqualValues(t, 2, publicUploads.Load())
}

func TestSweepPending_MissingLocalFileDropped(t *testing.T) {
	m := newTestManager(t, CloudOps{})
	m.MarkPending("ghost", true, false)

	ok, bad := m.SweepPending(context.Background())
	assert.Equal(t, 0, ok)
	assert.Equal(t, 0, bad)
	assert.Equal(t, 0, m.PendingCount())
}

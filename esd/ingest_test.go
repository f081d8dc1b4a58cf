package esd_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/esd"
	"github.com/evekit/ramg/eve"
	mock_eve "github.com/evekit/ramg/eve/mocks"
	"github.com/evekit/ramg/gpualloc"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func newMockCache(t *testing.T, model eve.Model) (*esd.Cache, *mock_eve.MockBus, *mock_eve.MockCoprocessor) {
	logger := slog.New(slog.NewTextHandler(os.Stdout))
	ctrl := gomock.NewController(t)
	bus := mock_eve.NewMockBus(ctrl)
	cmd := mock_eve.NewMockCoprocessor(ctrl)
	bus.EXPECT().Model().Return(model).AnyTimes()

	alloc, err := gpualloc.New(logger, gpualloc.CreateOptions{Base: testBase, Size: 4096})
	require.NoError(t, err)

	return esd.NewCache(logger, alloc, bus, cmd, esd.CacheOptions{}), bus, cmd
}

func TestFlashImageCommands(t *testing.T) {
	cache, bus, cmd := newMockCache(t, eve.ModelBT817)
	ctx := context.Background()

	gomock.InOrder(
		cmd.EXPECT().Wr32(ctx, eve.CmdFlashSource).Return(nil),
		cmd.EXPECT().Wr32(ctx, uint32(0x8000)).Return(nil),
		cmd.EXPECT().Wr32(ctx, eve.CmdLoadImage).Return(nil),
		cmd.EXPECT().Wr32(ctx, uint32(testBase)).Return(nil),
		cmd.EXPECT().Wr32(ctx, eve.OptNoDL|eve.OptFlash).Return(nil),
		cmd.EXPECT().WaitFlush(ctx).Return(nil),
		bus.EXPECT().Rd32(eve.RegLoadImageFmt).Return(eve.FormatRGB565, nil),
	)

	info := &esd.ResourceInfo{
		Source:      esd.FlashSource{Address: 0x8000},
		StorageSize: 700,
		RawSize:     1024,
		Compression: esd.CompressionImage,
	}
	addr, format, err := cache.Load(ctx, info)
	require.NoError(t, err)
	require.Equal(t, uint32(testBase), addr)
	require.Equal(t, eve.FormatRGB565, format)
}

func TestFlashReadRoundsToWords(t *testing.T) {
	cache, _, cmd := newMockCache(t, eve.ModelBT815)
	ctx := context.Background()

	gomock.InOrder(
		cmd.EXPECT().Wr32(ctx, eve.CmdFlashRead).Return(nil),
		cmd.EXPECT().Wr32(ctx, uint32(testBase)).Return(nil),
		cmd.EXPECT().Wr32(ctx, uint32(0x40)).Return(nil),
		cmd.EXPECT().Wr32(ctx, uint32(12)).Return(nil),
		cmd.EXPECT().WaitFlush(ctx).Return(nil),
	)

	info := &esd.ResourceInfo{
		Source:      esd.FlashSource{Address: 0x40},
		StorageSize: 10,
		RawSize:     12,
	}
	_, _, err := cache.Load(ctx, info)
	require.NoError(t, err)
	require.Equal(t, 10, info.StorageSize)
	require.Equal(t, 3, info.StorageWords())
}

func TestFlushFailureResetsCoprocessor(t *testing.T) {
	cache, _, cmd := newMockCache(t, eve.ModelBT815)
	ctx := context.Background()

	gomock.InOrder(
		cmd.EXPECT().Wr32(ctx, eve.CmdFlashSource).Return(nil),
		cmd.EXPECT().Wr32(ctx, uint32(0x1000)).Return(nil),
		cmd.EXPECT().Wr32(ctx, eve.CmdInflate2).Return(nil),
		cmd.EXPECT().Wr32(ctx, uint32(testBase)).Return(nil),
		cmd.EXPECT().Wr32(ctx, eve.OptFlash).Return(nil),
		cmd.EXPECT().WaitFlush(ctx).Return(errors.Wrap(eve.ErrCoprocessorFault, "waiting for coprocessor flush")),
		cmd.EXPECT().Reset(gomock.Any()).Return(nil),
	)

	info := &esd.ResourceInfo{
		Source:      esd.FlashSource{Address: 0x1000},
		StorageSize: 100,
		RawSize:     400,
		Compression: esd.CompressionDeflate,
	}
	_, _, err := cache.Load(ctx, info)
	require.True(t, errors.Is(err, esd.ErrStreamFailure))
	require.True(t, errors.Is(err, eve.ErrCoprocessorFault))
	require.False(t, info.Handle.IsValid())
}

func TestRawWriteFailure(t *testing.T) {
	cache, bus, _ := newMockCache(t, eve.ModelFT810)

	bus.EXPECT().WrMem(uint32(testBase), []byte{1, 2, 3, 4}).Return(errors.New("bus stalled"))

	info := &esd.ResourceInfo{
		Source:      esd.ProgMemSource{Data: []byte{1, 2, 3, 4}},
		StorageSize: 4,
		RawSize:     4,
	}
	addr, _, err := cache.Load(context.Background(), info)
	require.True(t, errors.Is(err, esd.ErrStreamFailure))
	require.Equal(t, uint32(eve.InvalidAddress), addr)
	require.Equal(t, 1, cache.Stats().Failures)
}

func TestStalledCoprocessorFailsLoad(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout))
	ctrl := gomock.NewController(t)
	hal := mock_eve.NewMockHAL(ctrl)

	// REG_CMDB_SPACE never reports room
	hal.EXPECT().StartTransfer(gomock.Any(), gomock.Any()).AnyTimes()
	hal.EXPECT().Transfer32(gomock.Any()).Return(uint32(0)).AnyTimes()
	hal.EXPECT().TransferMem(gomock.Any(), gomock.Any()).AnyTimes()
	hal.EXPECT().EndTransfer().Return(nil).AnyTimes()

	host := eve.NewHost(logger, hal, eve.ModelBT815, eve.HostOptions{})
	alloc, err := gpualloc.New(logger, gpualloc.CreateOptions{Base: testBase, Size: 4096})
	require.NoError(t, err)
	cache := esd.NewCache(logger, alloc, host, host.Coprocessor(), esd.CacheOptions{})

	data := deflate(t, pattern(256, 4))
	info := &esd.ResourceInfo{
		Source:      esd.ProgMemSource{Data: data},
		StorageSize: len(data),
		RawSize:     256,
		Compression: esd.CompressionDeflate,
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := cache.Load(context.Background(), info)
		done <- err
	}()

	select {
	case err = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("load did not return on a stalled coprocessor")
	}

	require.True(t, errors.Is(err, esd.ErrStreamFailure))
	require.True(t, errors.Is(err, eve.ErrCoprocessorStall))
	require.False(t, info.Handle.IsValid())
	require.Equal(t, 0, alloc.Statistics().AllocationCount)
}

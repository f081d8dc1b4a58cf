package eve_test

import (
	"context"
	"testing"
	"time"

	"github.com/evekit/ramg/eve"
	mock_eve "github.com/evekit/ramg/eve/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func expectSpaceRead(hal *mock_eve.MockHAL, space uint32) *gomock.Call {
	hal.EXPECT().StartTransfer(eve.TransferRead, eve.RegCmdBSpace)
	hal.EXPECT().Transfer32(uint32(0)).Return(space)
	return hal.EXPECT().EndTransfer().Return(nil)
}

func TestCommandBufferWaitsForSpace(t *testing.T) {
	ctrl := gomock.NewController(t)
	hal := mock_eve.NewMockHAL(ctrl)

	gomock.InOrder(
		expectSpaceRead(hal, 0),
		expectSpaceRead(hal, 0),
		expectSpaceRead(hal, 8),
		hal.EXPECT().StartTransfer(eve.TransferWrite, eve.RegCmdBWrite),
		hal.EXPECT().TransferMem(gomock.Nil(), []byte{0x78, 0x56, 0x34, 0x12}),
		hal.EXPECT().EndTransfer().Return(nil),
	)

	host := eve.NewHost(slog.Default(), hal, eve.ModelBT815, eve.HostOptions{
		PollMin: time.Microsecond,
		PollMax: time.Microsecond,
	})
	require.NoError(t, host.Coprocessor().Wr32(context.Background(), 0x12345678))
}

func TestCommandBufferChunksBySpace(t *testing.T) {
	ctrl := gomock.NewController(t)
	hal := mock_eve.NewMockHAL(ctrl)

	gomock.InOrder(
		expectSpaceRead(hal, 8),
		hal.EXPECT().StartTransfer(eve.TransferWrite, eve.RegCmdBWrite),
		hal.EXPECT().TransferMem(gomock.Nil(), []byte{1, 2, 3, 4, 5, 6, 7, 8}),
		hal.EXPECT().EndTransfer().Return(nil),
		expectSpaceRead(hal, 4092),
		hal.EXPECT().StartTransfer(eve.TransferWrite, eve.RegCmdBWrite),
		hal.EXPECT().TransferMem(gomock.Nil(), []byte{9, 10, 11, 12}),
		hal.EXPECT().EndTransfer().Return(nil),
		hal.EXPECT().StartTransfer(eve.TransferWrite, eve.RegCmdBWrite),
		hal.EXPECT().TransferMem(gomock.Nil(), []byte{13, 0, 0, 0}),
		hal.EXPECT().EndTransfer().Return(nil),
	)

	host := eve.NewHost(slog.Default(), hal, eve.ModelBT815, eve.HostOptions{})
	err := host.Coprocessor().WrMem(context.Background(), []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13})
	require.NoError(t, err)
}

func TestCommandBufferDetectsFault(t *testing.T) {
	ctrl := gomock.NewController(t)
	hal := mock_eve.NewMockHAL(ctrl)

	expectSpaceRead(hal, eve.CmdFaultValue)

	host := eve.NewHost(slog.Default(), hal, eve.ModelBT815, eve.HostOptions{})
	err := host.Coprocessor().WaitFlush(context.Background())
	require.ErrorIs(t, err, eve.ErrCoprocessorFault)
}

func TestCommandBufferStallTimesOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	hal := mock_eve.NewMockHAL(ctrl)

	hal.EXPECT().StartTransfer(eve.TransferRead, eve.RegCmdBSpace).AnyTimes()
	hal.EXPECT().Transfer32(uint32(0)).Return(uint32(0)).AnyTimes()
	hal.EXPECT().EndTransfer().Return(nil).AnyTimes()

	host := eve.NewHost(slog.Default(), hal, eve.ModelBT815, eve.HostOptions{
		PollMin:      time.Microsecond,
		PollMax:      time.Millisecond,
		StallTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	err := host.Coprocessor().WaitFlush(context.Background())
	require.ErrorIs(t, err, eve.ErrCoprocessorStall)
	require.Less(t, time.Since(start), time.Second)
}

func TestCommandBufferNeedsCMDB(t *testing.T) {
	ctrl := gomock.NewController(t)
	hal := mock_eve.NewMockHAL(ctrl)

	host := eve.NewHost(slog.Default(), hal, eve.ModelFT801, eve.HostOptions{})
	require.Error(t, host.Coprocessor().Wr32(context.Background(), 0))
	require.Error(t, host.Coprocessor().WrMem(context.Background(), []byte{0, 0, 0, 0}))
}

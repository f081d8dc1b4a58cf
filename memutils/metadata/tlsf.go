package metadata

import (
	"fmt"
	"math"
	"math/bits"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/evekit/ramg/memutils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

const (
	// SmallBufferSize is the largest size handled by the linear size classes
	SmallBufferSize = 256
	// SecondLevelIndex is log2 of the number of lists each power-of-two size class is split into
	SecondLevelIndex uint8 = 5
	MemoryClassShift       = 7
	MaxMemoryClasses       = 65 - MemoryClassShift
)

var segmentPool = sync.Pool{
	New: func() any {
		return &segment{}
	},
}

// segment is a contiguous range of the region, either taken by one allocation or free. Segments form a
// doubly linked list in offset order; free segments other than the tail are also linked into the list
// for their size class.
type segment struct {
	offset int
	size   int
	below  *segment
	above  *segment

	prevListed *segment
	nextListed *segment

	userData any
	handle   BlockAllocationHandle
}

func (s *segment) markFree() {
	s.prevListed = nil
}

// markTaken points prevListed at the segment itself, which no listed segment ever does
func (s *segment) markTaken() {
	s.prevListed = s
}

func (s *segment) isFree() bool {
	return s.prevListed != s
}

// TLSFBlockMetadata is a two-level segregated fit implementation of BlockMetadata. Free segments are listed
// by size class, and a bitmap per level finds a non-empty list of a suitable class in constant time. The
// free range at the top of the region, the tail, is tracked on its own and never listed.
type TLSFBlockMetadata struct {
	BlockMetadataBase

	liveCount   int
	listedCount int
	listedSize  int
	classBitmap uint32
	classCount  int
	listBitmaps [MaxMemoryClasses]uint32

	nextAllocationHandle BlockAllocationHandle
	segments             *swiss.Map[BlockAllocationHandle, *segment]
	lists                []*segment
	tail                 *segment
	head                 *segment
}

var _ BlockMetadata = &TLSFBlockMetadata{}

func NewTLSFBlockMetadata() *TLSFBlockMetadata {
	return &TLSFBlockMetadata{}
}

func (m *TLSFBlockMetadata) newSegment() *segment {
	seg := segmentPool.Get().(*segment)
	*seg = segment{}
	m.nextAllocationHandle++
	seg.handle = m.nextAllocationHandle
	m.segments.Put(seg.handle, seg)
	return seg
}

func (m *TLSFBlockMetadata) dropSegment(seg *segment) {
	m.segments.Delete(seg.handle)
	segmentPool.Put(seg)
}

func (m *TLSFBlockMetadata) lookup(handle BlockAllocationHandle) (*segment, error) {
	seg, ok := m.segments.Get(handle)
	if !ok {
		return nil, errors.Errorf("no segment has handle %d", handle)
	}
	return seg, nil
}

func (m *TLSFBlockMetadata) Init(size int) {
	m.BlockMetadataBase.Init(size)
	m.segments = swiss.NewMap[BlockAllocationHandle, *segment](42)

	m.tail = m.newSegment()
	m.tail.size = size
	m.tail.markFree()
	m.head = m.tail

	class := m.sizeClass(size)
	sli := m.subIndex(size, class)

	listSize := 1
	if class != 0 {
		listSize = int(class-1)*int(uint(1)<<SecondLevelIndex) + int(sli+1)
	}
	listSize += 4

	m.classCount = int(class + 2)
	m.lists = make([]*segment, listSize)
}

func (m *TLSFBlockMetadata) Validate() error {
	if m.SumFreeSize() > m.Size() {
		return errors.New("free size exceeds the region size")
	}

	var freeListCount int
	for listIndex := 0; listIndex < len(m.lists); listIndex++ {
		seg := m.lists[listIndex]
		if seg == nil {
			continue
		}

		if seg.prevListed != nil {
			return errors.Errorf("segment 0x%x heads a free list but links to a previous segment", seg.offset)
		}

		for ; seg != nil; seg = seg.nextListed {
			if !seg.isFree() {
				return errors.Errorf("segment 0x%x is listed as free but is taken", seg.offset)
			}
			if m.listForSize(seg.size) != listIndex {
				return errors.Errorf("segment 0x%x of %d bytes is listed under the wrong size class", seg.offset, seg.size)
			}
			if seg.nextListed != nil && seg.nextListed.prevListed != seg {
				return errors.Errorf("segment 0x%x links forward to listed segment 0x%x, which does not link back", seg.offset, seg.nextListed.offset)
			}
			freeListCount++
		}
	}

	if m.tail.above != nil {
		return errors.New("the tail is not the highest segment")
	}

	if m.head.below != nil {
		return errors.New("the head segment has a segment below it")
	}

	var calculatedSize, calculatedFreeSize, liveCount, freeCount int
	nextOffset := 0
	for seg := m.head; seg != nil; seg = seg.above {
		if seg.offset != nextOffset {
			return errors.Errorf("segment at 0x%x should start at 0x%x", seg.offset, nextOffset)
		}
		if seg.above != nil && seg.above.below != seg {
			return errors.Errorf("segment 0x%x links to the segment above it, which does not link back", seg.offset)
		}

		nextOffset += seg.size
		calculatedSize += seg.size

		if seg == m.tail {
			calculatedFreeSize += seg.size
		} else if seg.isFree() {
			if seg.above != nil && seg.above.isFree() {
				return errors.Errorf("free segment 0x%x was not merged with the free segment above it", seg.offset)
			}
			freeCount++
			calculatedFreeSize += seg.size
		} else {
			liveCount++
		}
	}

	if freeListCount != freeCount {
		return errors.Errorf("the number of free blocks in the physical list and the number of blocks in the free list do not match! free list size: %d, physical list free blocks: %d", freeListCount, freeCount)
	}

	if calculatedSize != m.size {
		return errors.Errorf("the full size of the metadata is %d, but the blocks only added up to %d", m.size, calculatedSize)
	}

	if calculatedFreeSize != m.SumFreeSize() {
		return errors.Errorf("the free size of the metadata is %d, but the free blocks only added up to %d", m.SumFreeSize(), calculatedFreeSize)
	}

	if liveCount != m.liveCount {
		return errors.Errorf("the allocation count of the metadata is %d, but the taken blocks only added up to %d", m.liveCount, liveCount)
	}

	if freeCount != m.listedCount {
		return errors.Errorf("%d segments are counted as listed, but %d free segments exist", m.listedCount, freeCount)
	}

	return nil
}

func (m *TLSFBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.RegionBytes += m.size

	for seg := m.head; seg != nil; seg = seg.above {
		if seg == m.tail {
			if seg.size > 0 {
				stats.AddUnusedRange(seg.size)
			}
		} else if seg.isFree() {
			stats.AddUnusedRange(seg.size)
		} else {
			stats.AddAllocation(seg.size)
		}
	}
}

func (m *TLSFBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.AllocationCount += m.liveCount
	stats.RegionBytes += m.size
	stats.AllocationBytes += m.size - m.SumFreeSize()
}

func (m *TLSFBlockMetadata) listForSize(size int) int {
	class := m.sizeClass(size)
	secondIndex := m.subIndex(size, class)
	return m.listFor(class, secondIndex)
}

func (m *TLSFBlockMetadata) listFor(class uint8, secondIndex uint16) int {
	if class == 0 {
		return int(secondIndex)
	}

	i := uint32(class-1)*uint32(uint(1)<<SecondLevelIndex) + uint32(secondIndex)

	return int(i) + 4
}

func (m *TLSFBlockMetadata) AllocationCount() int {
	return m.liveCount
}

func (m *TLSFBlockMetadata) FreeRegionsCount() int {
	if m.tail.size > 0 {
		return m.listedCount + 1
	}
	return m.listedCount
}

func (m *TLSFBlockMetadata) SumFreeSize() int {
	return m.listedSize + m.tail.size
}

func (m *TLSFBlockMetadata) IsEmpty() bool {
	return m.tail.offset == 0
}

func (m *TLSFBlockMetadata) MayHaveFreeBlock(size int) bool {
	if m.tail.size >= size {
		return true
	}

	if m.listedCount == 0 || m.listedSize < size {
		return false
	}

	seg, _ := m.firstListed(size)
	return seg != nil
}

func (m *TLSFBlockMetadata) sizeClass(size int) uint8 {
	if size > SmallBufferSize {
		mostSignificantBit := uint8(63 - bits.LeadingZeros64(uint64(size)))
		return mostSignificantBit - MemoryClassShift
	}

	return 0
}

func (m *TLSFBlockMetadata) subIndex(size int, class uint8) uint16 {
	if class != 0 {
		mask := uint(1) << SecondLevelIndex
		indexVal := uint(size) >> (class + MemoryClassShift - SecondLevelIndex)
		return uint16(indexVal ^ mask)
	}

	return uint16((size - 1) / 64)
}

type fitQuery struct {
	size      int
	alignment uint
	maxOffset int
	request   *AllocationRequest
}

func (m *TLSFBlockMetadata) CreateAllocationRequest(
	allocSize int, allocAlignment uint,
	strategy AllocationStrategy,
	maxOffset int,
) (bool, AllocationRequest, error) {
	var allocRequest AllocationRequest

	if allocSize < 1 {
		return false, allocRequest, errors.Errorf("invalid allocation size: %d", allocSize)
	}

	memutils.DebugValidate(m)
	memutils.DebugCheckPow2(allocAlignment, "allocAlignment")

	// Is the region big enough?
	if allocSize > m.SumFreeSize() {
		return false, allocRequest, nil
	}

	search := fitQuery{
		size:      allocSize,
		alignment: allocAlignment,
		maxOffset: maxOffset,
		request:   &allocRequest,
	}
	allocRequest.Strategy = strategy

	// Only the tail is free
	if m.listedCount == 0 {
		return m.tryFit(m.tail, len(m.lists), search), allocRequest, nil
	}

	if strategy&AllocationStrategyMinOffset != 0 {
		if m.scanLowestFirst(search) {
			return true, allocRequest, nil
		}
		return m.tryFit(m.tail, len(m.lists), search), allocRequest, nil
	}

	// Round up to the next list
	sizeForNextList := allocSize
	smallSizeStep := SmallBufferSize / 4
	if allocSize > SmallBufferSize {
		mostSignificantBit := 63 - bits.LeadingZeros64(uint64(allocSize))
		sizeForNextList += int(uint(1) << (mostSignificantBit - int(SecondLevelIndex)))
	} else if allocSize > SmallBufferSize-smallSizeStep {
		sizeForNextList = SmallBufferSize + 1
	} else {
		sizeForNextList += smallSizeStep
	}

	nextListSeg, nextListIndex := m.firstListed(sizeForNextList)
	doFullSearch := nextListSeg != nil

	checkNextList := func() bool {
		return m.scanList(nextListSeg, nextListIndex, search)
	}
	checkBestFit := func() bool {
		bestFitSeg, prevListIndex := m.firstListed(allocSize)
		return m.scanList(bestFitSeg, prevListIndex, search)
	}
	checkNull := func() bool {
		return m.tryFit(m.tail, len(m.lists), search)
	}

	var order []func() bool
	switch {
	case strategy&AllocationStrategyMinTime != 0:
		order = []func() bool{checkNextList, checkNull, checkBestFit}
	case strategy&AllocationStrategyMinMemory != 0:
		order = []func() bool{checkBestFit, checkNull, checkNextList}
	default:
		order = []func() bool{checkNextList, checkNull, checkBestFit}
	}

	for _, check := range order {
		if check() {
			return true, allocRequest, nil
		}
	}

	if !doFullSearch {
		return false, allocRequest, nil
	}

	// Worst case, every larger list has to be searched
	for nextListIndex++; nextListIndex < len(m.lists); nextListIndex++ {
		if m.scanList(m.lists[nextListIndex], nextListIndex, search) {
			return true, allocRequest, nil
		}
	}

	return false, allocRequest, nil
}

func (m *TLSFBlockMetadata) scanList(seg *segment, listIndex int, search fitQuery) bool {
	for ; seg != nil; seg = seg.nextListed {
		if m.tryFit(seg, listIndex, search) {
			return true
		}
	}

	return false
}

func (m *TLSFBlockMetadata) scanLowestFirst(search fitQuery) bool {
	for seg := m.head; seg != nil && seg != m.tail; seg = seg.above {
		if seg.offset >= search.maxOffset {
			return false
		}

		if seg.isFree() && seg.size >= search.size {
			if m.tryFit(seg, m.listForSize(seg.size), search) {
				return true
			}
		}
	}

	return false
}

func (m *TLSFBlockMetadata) tryFit(seg *segment, listIndex int, search fitQuery) bool {
	if !seg.isFree() {
		panic(fmt.Sprintf("segment 0x%x is already taken", seg.offset))
	}

	alignedOffset := memutils.AlignUp(seg.offset, search.alignment)

	if seg.size < search.size+alignedOffset-seg.offset {
		return false
	}

	if alignedOffset >= search.maxOffset {
		return false
	}

	search.request.BlockAllocationHandle = seg.handle
	search.request.Size = search.size
	search.request.Offset = alignedOffset

	// Move a listed segment to the front of its list
	if listIndex != len(m.lists) && seg.prevListed != nil {
		seg.prevListed.nextListed = seg.nextListed
		if seg.nextListed != nil {
			seg.nextListed.prevListed = seg.prevListed
		}

		seg.prevListed = nil
		seg.nextListed = m.lists[listIndex]
		m.lists[listIndex] = seg
		if seg.nextListed != nil {
			seg.nextListed.prevListed = seg
		}
	}

	return true
}

func (m *TLSFBlockMetadata) firstListed(size int) (*segment, int) {
	class := m.sizeClass(size)
	if int(class) >= m.classCount {
		return nil, 0
	}

	innerFreeMap := m.listBitmaps[class] & (math.MaxUint32 << m.subIndex(size, class))

	if innerFreeMap == 0 {
		// Check higher levels for available blocks
		freeMap := m.classBitmap & (math.MaxUint32 << (class + 1))
		if freeMap == 0 {
			return nil, 0
		}

		// Find lowest free region
		class = uint8(bits.TrailingZeros32(freeMap))
		innerFreeMap = m.listBitmaps[class]
		if innerFreeMap == 0 {
			panic("size class bitmap is out of sync with its lists")
		}
	}

	// Find lowest free subregion
	listIndex := m.listFor(class, uint16(bits.TrailingZeros32(innerFreeMap)))
	if m.lists[listIndex] == nil {
		panic(fmt.Sprintf("list %d is flagged in the bitmap but empty", listIndex))
	}

	return m.lists[listIndex], listIndex
}

func (m *TLSFBlockMetadata) BlockJsonData(json *jwriter.ObjectState) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	m.AddDetailedStatistics(&stats)

	m.writeJsonHeader(json, stats.RegionBytes-stats.AllocationBytes, stats.AllocationCount, stats.UnusedRangeCount)
}

func (m *TLSFBlockMetadata) Alloc(req AllocationRequest, userData any) error {
	target, err := m.lookup(req.BlockAllocationHandle)
	if err != nil {
		return err
	}

	if !target.isFree() {
		return errors.Errorf("allocation request names segment 0x%x, which is taken", target.offset)
	}

	offset := req.Offset
	if target.offset > offset {
		return errors.New("allocation request offset lies below its segment")
	}

	if target.size < req.Size+offset-target.offset {
		return errors.New("allocation request does not fit its segment")
	}

	if target != m.tail {
		m.removeFreeBlock(target)
	}

	// Alignment padding joins the segment below, or becomes a free segment of its own
	missingAlignment := offset - target.offset
	if missingAlignment != 0 {
		lower := target.below
		if lower == nil {
			return errors.New("alignment padding below offset 0")
		}

		if lower.isFree() {
			oldListIndex := m.listForSize(lower.size)
			if oldListIndex != m.listForSize(lower.size+missingAlignment) {
				m.removeFreeBlock(lower)
				lower.size += missingAlignment
				m.insertFreeBlock(lower)
			} else {
				lower.size += missingAlignment
				m.listedSize += missingAlignment
			}
		} else {
			split := m.newSegment()
			target.below = split
			lower.above = split
			split.below = lower
			split.above = target
			split.size = missingAlignment
			split.offset = target.offset
			split.markTaken()

			m.insertFreeBlock(split)
		}

		target.size -= missingAlignment
		target.offset += missingAlignment
	}

	size := req.Size
	if target.size == size {
		if target == m.tail {
			// The tail becomes empty
			m.tail = m.newSegment()
			m.tail.offset = target.offset + size
			m.tail.below = target
			m.tail.markFree()
			target.above = m.tail
			target.markTaken()
		}
	} else {
		// The remainder becomes a new free segment
		split := m.newSegment()
		split.size = target.size - size
		split.offset = target.offset + size
		split.below = target
		split.above = target.above
		target.above = split
		target.size = size

		if target == m.tail {
			m.tail = split
			m.tail.markFree()
			target.markTaken()
		} else {
			split.above.below = split
			split.markTaken()
			m.insertFreeBlock(split)
		}
	}

	target.userData = userData
	m.liveCount++

	return nil
}

func (m *TLSFBlockMetadata) Free(allocHandle BlockAllocationHandle) error {
	seg, err := m.lookup(allocHandle)
	if err != nil {
		return err
	}
	if seg.isFree() {
		return errors.New("segment is already free")
	}

	seg.userData = nil
	next := seg.above
	m.liveCount--

	// Try merging
	prev := seg.below
	if prev != nil && prev.isFree() {
		m.removeFreeBlock(prev)
		m.mergeBlock(seg, prev)
	}

	if !next.isFree() {
		m.insertFreeBlock(seg)
	} else if next == m.tail {
		m.mergeBlock(m.tail, seg)
	} else {
		m.removeFreeBlock(next)
		m.mergeBlock(next, seg)
		m.insertFreeBlock(next)
	}

	return nil
}

func (m *TLSFBlockMetadata) removeFreeBlock(seg *segment) {
	if seg == m.tail {
		panic("the tail is never listed")
	}
	if !seg.isFree() {
		panic("segment is not free")
	}

	if seg.nextListed != nil {
		seg.nextListed.prevListed = seg.prevListed
	}
	if seg.prevListed != nil {
		seg.prevListed.nextListed = seg.nextListed
	} else {
		class := m.sizeClass(seg.size)
		secondIndex := m.subIndex(seg.size, class)
		index := m.listFor(class, secondIndex)

		if m.lists[index] != seg {
			panic("segment is missing from the list for its size class")
		}
		m.lists[index] = seg.nextListed
		if seg.nextListed == nil {
			m.listBitmaps[class] &= ^(uint32(1) << secondIndex)
			if m.listBitmaps[class] == 0 {
				m.classBitmap &= ^(uint32(1) << class)
			}
		}
	}

	seg.nextListed = nil
	seg.markTaken()
	seg.userData = nil
	m.listedCount--
	m.listedSize -= seg.size
}

func (m *TLSFBlockMetadata) insertFreeBlock(seg *segment) {
	if seg == m.tail {
		panic("the tail is never listed")
	}

	if seg.isFree() {
		panic("segment is already free")
	}

	class := m.sizeClass(seg.size)
	secondIndex := m.subIndex(seg.size, class)
	index := m.listFor(class, secondIndex)

	if index >= len(m.lists) {
		panic("segment size is beyond the last size class")
	}

	seg.prevListed = nil
	seg.nextListed = m.lists[index]
	m.lists[index] = seg
	if seg.nextListed != nil {
		seg.nextListed.prevListed = seg
	} else {
		m.listBitmaps[class] |= uint32(1) << secondIndex
		m.classBitmap |= uint32(1) << class
	}
	m.listedCount++
	m.listedSize += seg.size
}

// mergeBlock folds prev into seg. prev must be the segment directly below seg, and must not be listed.
func (m *TLSFBlockMetadata) mergeBlock(seg *segment, prev *segment) {
	if seg.below != prev {
		panic("segments are not adjacent")
	}
	if prev.isFree() {
		panic("cannot merge a listed segment")
	}

	seg.offset = prev.offset
	seg.size += prev.size
	seg.below = prev.below
	if seg.below != nil {
		seg.below.above = seg
	} else {
		m.head = seg
	}

	m.dropSegment(prev)
}

// ReclaimableInRuns returns the user data of every allocation accepted by reclaimable that lies in a run of
// adjacent free and reclaimable segments long enough to hold allocSize bytes at allocAlignment. Allocations
// in shorter runs are left out: releasing them could never make room for the request.
func (m *TLSFBlockMetadata) ReclaimableInRuns(allocSize int, allocAlignment uint, reclaimable func(userData any) bool) []any {
	var result, run []any
	runStart := -1

	closeRun := func(end int) {
		if runStart >= 0 && end-memutils.AlignUp(runStart, allocAlignment) >= allocSize {
			result = append(result, run...)
		}
		run = run[:0]
		runStart = -1
	}

	for seg := m.head; seg != nil; seg = seg.above {
		free := seg.isFree()
		if !free && !reclaimable(seg.userData) {
			closeRun(seg.offset)
			continue
		}

		if runStart < 0 {
			runStart = seg.offset
		}
		if !free {
			run = append(run, seg.userData)
		}
	}
	closeRun(m.size)

	return result
}

func (m *TLSFBlockMetadata) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	for seg := m.head; seg != nil; seg = seg.above {
		if seg == m.tail && seg.size == 0 {
			continue
		}

		err := handleBlock(seg.handle, seg.offset, seg.size, seg.userData, seg.isFree())
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *TLSFBlockMetadata) AllocationListBegin() (BlockAllocationHandle, error) {
	if m.liveCount == 0 {
		return NoAllocation, nil
	}

	for seg := m.head; seg != nil; seg = seg.above {
		if !seg.isFree() {
			return seg.handle, nil
		}
	}

	return NoAllocation, errors.New("allocation count is non-zero but every segment is free")
}

func (m *TLSFBlockMetadata) FindNextAllocation(alloc BlockAllocationHandle) (BlockAllocationHandle, error) {
	start, err := m.lookup(alloc)
	if err != nil {
		return NoAllocation, err
	}
	if start.isFree() {
		return NoAllocation, errors.New("segment is free")
	}

	for seg := start.above; seg != nil; seg = seg.above {
		if !seg.isFree() {
			return seg.handle, nil
		}
	}

	return NoAllocation, nil
}

func (m *TLSFBlockMetadata) Clear() {
	m.liveCount = 0
	m.listedCount = 0
	m.listedSize = 0
	m.classBitmap = 0

	seg := m.tail.below
	m.tail.offset = 0
	m.tail.size = m.size
	m.tail.below = nil
	m.head = m.tail

	for seg != nil {
		prev := seg.below
		m.dropSegment(seg)
		seg = prev
	}

	m.lists = make([]*segment, len(m.lists))
	m.listBitmaps = [MaxMemoryClasses]uint32{}
}

// DebugLogAllAllocations calls logFunc once for each live allocation, in ascending offset order
func (m *TLSFBlockMetadata) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int, userData any)) {
	for seg := m.head; seg != nil; seg = seg.above {
		if !seg.isFree() {
			logFunc(logger, seg.offset, seg.size, seg.userData)
		}
	}
}

func (m *TLSFBlockMetadata) AllocationOffset(allocHandle BlockAllocationHandle) (int, error) {
	seg, err := m.lookup(allocHandle)
	if err != nil {
		return 0, err
	}

	return seg.offset, nil
}

func (m *TLSFBlockMetadata) AllocationSize(allocHandle BlockAllocationHandle) (int, error) {
	seg, err := m.lookup(allocHandle)
	if err != nil {
		return 0, err
	}

	return seg.size, nil
}

func (m *TLSFBlockMetadata) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	seg, err := m.lookup(allocHandle)
	if err != nil {
		return nil, err
	}

	if seg.isFree() {
		return nil, errors.New("free segments have no user data")
	}

	return seg.userData, nil
}

func (m *TLSFBlockMetadata) SetAllocationUserData(allocHandle BlockAllocationHandle, userData any) error {
	seg, err := m.lookup(allocHandle)
	if err != nil {
		return err
	}

	if seg.isFree() {
		return errors.New("free segments have no user data")
	}

	seg.userData = userData
	return nil
}

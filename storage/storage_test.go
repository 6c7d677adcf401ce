package storage

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func collectInts(t *testing.T, s *Storage) []int {
	t.Helper()

	it := s.Iter()
	defer it.Close()

	var result []int
	for ok := it.Start(); ok; ok = it.Advance() {
		result = append(result, *(*int)(unsafe.Pointer(&it.Payload()[0])))
	}
	return result
}

func insertInt(t *testing.T, p *Producer, v int) {
	t.Helper()

	b, err := p.Insert(uint64(unsafe.Sizeof(v)), uint64(unsafe.Alignof(v)))
	require.NoError(t, err)
	*(*int)(unsafe.Pointer(&b[0])) = v
}

func TestEmptyStorage(t *testing.T) {
	s := New(Config{})
	require.Empty(t, collectInts(t, s))
	s.Destruct(nil)
}

func TestPublishAndCollect(t *testing.T) {
	s := New(Config{})

	p1 := s.NewProducer()
	p2 := s.NewProducer()

	insertInt(t, p1, 1)
	insertInt(t, p1, 2)
	insertInt(t, p2, 10)
	insertInt(t, p2, 20)

	p1.Publish()
	p2.Publish()

	require.Equal(t, []int{1, 2, 10, 20}, collectInts(t, s))

	p1.Close()
	p2.Close()
	s.Destruct(nil)
}

func TestDoNotPublish(t *testing.T) {
	s := New(Config{})
	p := s.NewProducer()

	insertInt(t, p, 1)
	insertInt(t, p, 2)

	require.Empty(t, collectInts(t, s))

	p.Close()
	require.Equal(t, []int{1, 2}, collectInts(t, s))

	s.Destruct(nil)
}

func TestPublishSeveralTimes(t *testing.T) {
	s := New(Config{})
	p := s.NewProducer()

	insertInt(t, p, 1)
	insertInt(t, p, 2)
	p.Publish()

	insertInt(t, p, 3)
	p.Publish()

	p.Publish() // nothing to publish; no-op

	insertInt(t, p, 4)
	insertInt(t, p, 5)
	p.Publish()

	require.Equal(t, []int{1, 2, 3, 4, 5}, collectInts(t, s))

	p.Close()
	s.Destruct(nil)
}

func TestClosePublishesPendingInserts(t *testing.T) {
	s := New(Config{})
	p := s.NewProducer()

	insertInt(t, p, 1)
	insertInt(t, p, 2)
	p.Close()

	require.Equal(t, []int{1, 2}, collectInts(t, s))

	s.Destruct(nil)
}

type maxAligned struct {
	_     [16]byte
	value int32
}

func TestMixedAlignmentPayloads(t *testing.T) {
	s := New(Config{Alignment: MaxAlign})
	p := s.NewProducer()

	type small struct{ v byte }
	type medium struct{ v int32 }
	type wide struct{ v int64 }
	type wider struct{ v [2]int64 }

	b1, err := p.Insert(uint64(unsafe.Sizeof(small{})), uint64(unsafe.Alignof(small{})))
	require.NoError(t, err)
	b1[0] = 1

	b2, err := p.Insert(uint64(unsafe.Sizeof(medium{})), uint64(unsafe.Alignof(medium{})))
	require.NoError(t, err)
	*(*int32)(unsafe.Pointer(&b2[0])) = 2

	b3, err := p.Insert(uint64(unsafe.Sizeof(wide{})), uint64(unsafe.Alignof(wide{})))
	require.NoError(t, err)
	*(*int64)(unsafe.Pointer(&b3[0])) = 3

	b4, err := p.Insert(uint64(unsafe.Sizeof(wider{})), uint64(unsafe.Alignof(wider{})))
	require.NoError(t, err)
	*(*int64)(unsafe.Pointer(&b4[0])) = 4

	b5, err := p.Insert(uint64(unsafe.Sizeof(maxAligned{})), MaxAlign)
	require.NoError(t, err)
	*(*int32)(unsafe.Pointer(&b5[16])) = 5

	require.Zero(t, uintptr(unsafe.Pointer(&b1[0]))%uintptr(unsafe.Alignof(small{})))
	require.Zero(t, uintptr(unsafe.Pointer(&b2[0]))%uintptr(unsafe.Alignof(medium{})))
	require.Zero(t, uintptr(unsafe.Pointer(&b3[0]))%uintptr(unsafe.Alignof(wide{})))
	require.Zero(t, uintptr(unsafe.Pointer(&b4[0]))%uintptr(unsafe.Alignof(wider{})))
	require.Zero(t, uintptr(unsafe.Pointer(&b5[0]))%MaxAlign)

	p.Publish()

	it := s.Iter()
	require.True(t, it.Start())
	require.Equal(t, byte(1), it.Payload()[0])
	require.True(t, it.Advance())
	require.Equal(t, int32(2), *(*int32)(unsafe.Pointer(&it.Payload()[0])))
	require.True(t, it.Advance())
	require.Equal(t, int64(3), *(*int64)(unsafe.Pointer(&it.Payload()[0])))
	require.True(t, it.Advance())
	require.Equal(t, int64(4), *(*int64)(unsafe.Pointer(&it.Payload()[0])))
	require.True(t, it.Advance())
	require.Equal(t, int32(5), *(*int32)(unsafe.Pointer(&it.Payload()[16])))
	require.False(t, it.Advance())
	it.Close()

	p.Close()
	s.Destruct(nil)
}

func TestEraseSweep(t *testing.T) {
	for k := 1; k <= 3; k++ {
		s := New(Config{})
		p := s.NewProducer()
		insertInt(t, p, 1)
		insertInt(t, p, 2)
		insertInt(t, p, 3)
		p.Publish()

		it := s.Iter()
		for ok := it.Start(); ok; {
			v := *(*int)(unsafe.Pointer(&it.Payload()[0]))
			if v == k {
				ok = it.EraseAndAdvance(nil)
			} else {
				ok = it.Advance()
			}
		}
		it.Close()

		var expected []int
		for _, v := range []int{1, 2, 3} {
			if v != k {
				expected = append(expected, v)
			}
		}
		require.Equal(t, expected, collectInts(t, s))

		p.Close()
		s.Destruct(nil)
	}
}

func TestEraseAll(t *testing.T) {
	s := New(Config{})
	p := s.NewProducer()
	insertInt(t, p, 1)
	insertInt(t, p, 2)
	insertInt(t, p, 3)
	p.Publish()

	it := s.Iter()
	for ok := it.Start(); ok; {
		ok = it.EraseAndAdvance(nil)
	}
	it.Close()

	require.Empty(t, collectInts(t, s))

	p.Close()
	s.Destruct(nil)
}

func TestEraseTheOnlyElement(t *testing.T) {
	s := New(Config{})
	p := s.NewProducer()
	insertInt(t, p, 1)
	p.Publish()

	it := s.Iter()
	require.True(t, it.Start())
	require.False(t, it.EraseAndAdvance(nil))
	it.Close()

	require.Empty(t, collectInts(t, s))

	p.Close()
	s.Destruct(nil)
}

func TestDestructInvokesDisposer(t *testing.T) {
	s := New(Config{})
	p := s.NewProducer()
	insertInt(t, p, 1)
	insertInt(t, p, 2)
	insertInt(t, p, 3)
	p.Publish()
	p.Close()

	var disposed []int
	s.Destruct(func(b []byte) {
		disposed = append(disposed, *(*int)(unsafe.Pointer(&b[0])))
	})

	require.Equal(t, []int{1, 2, 3}, disposed)
}

func TestSecondConcurrentIteratorPanics(t *testing.T) {
	s := New(Config{})
	it := s.Iter()
	defer it.Close()

	require.Panics(t, func() {
		s.Iter()
	})
}

func TestDestructWithLiveProducerPanics(t *testing.T) {
	s := New(Config{})
	p := s.NewProducer()

	require.Panics(t, func() {
		s.Destruct(nil)
	})

	p.Close()
	s.Destruct(nil)
}

func TestSequentialIteratorsAllowed(t *testing.T) {
	s := New(Config{})
	p := s.NewProducer()
	insertInt(t, p, 1)
	p.Publish()

	it1 := s.Iter()
	require.True(t, it1.Start())
	it1.Close()

	it2 := s.Iter()
	require.True(t, it2.Start())
	it2.Close()

	p.Close()
	s.Destruct(nil)
}

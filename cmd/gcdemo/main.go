// Command gcdemo drives a handful of producers against one Factory while a
// single sweeping iterator collects and erases nodes concurrently, as a
// smoke test of the whole module wired together outside of "go test".
package main

import (
	"context"
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"

	"github.com/managedrt/objectfactory/factory"
	"github.com/managedrt/objectfactory/storage"
	"github.com/managedrt/objectfactory/types"
)

const (
	producerCount    = 8
	itemsPerProducer = 2000
	runDuration      = 500 * time.Millisecond
)

type demoRecord struct {
	Value int64
}

func main() {
	ctx, cancel := context.WithTimeout(
		logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)),
		runDuration+2*time.Second,
	)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	f := factory.New(storage.Config{})

	var erased, swept int64

	err := parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		desc := types.NewObjectDescriptor(uint64(unsafe.Sizeof(demoRecord{})))

		deadline := time.Now().Add(runDuration)

		for i := 0; i < producerCount; i++ {
			i := i
			spawn(fmt.Sprintf("producer-%02d", i), parallel.Continue, func(ctx context.Context) error {
				q := f.NewThreadQueue()
				defer q.Close()

				for j := 0; j < itemsPerProducer && time.Now().Before(deadline); j++ {
					h, err := q.CreateObject(desc)
					if err != nil {
						return errors.Wrapf(err, "producer %d create", i)
					}
					*(*demoRecord)(unsafe.Pointer(&h.Data()[0])) = demoRecord{Value: int64(i*itemsPerProducer + j)}

					if j%16 == 0 {
						q.Publish()
					}
				}
				return nil
			})
		}

		spawn("sweeper", parallel.Continue, func(ctx context.Context) error {
			for time.Now().Before(deadline.Add(100 * time.Millisecond)) {
				it := f.Iter()
				for ok := it.Start(); ok; {
					erased++
					ok = it.EraseAndAdvance(nil)
				}
				it.Close()
				swept++

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Millisecond):
				}
			}
			return nil
		})

		return nil
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var remaining int64
	it := f.Iter()
	for ok := it.Start(); ok; ok = it.Advance() {
		remaining++
	}
	it.Close()
	f.Destruct(nil)

	fmt.Printf("swept %d times, erased %d nodes, %d remaining\n", swept, erased, remaining)
	return nil
}

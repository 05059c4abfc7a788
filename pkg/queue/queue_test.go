package queue_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coio-net/coio/pkg/queue"
)

func TestLockFreeQueue(t *testing.T) {
	const jobNum = 10000
	q := queue.NewLockFreeQueue()
	assert.True(t, q.IsEmpty())

	var wg sync.WaitGroup
	wg.Add(4)
	for p := 0; p < 2; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < jobNum; i++ {
				job := queue.GetJob()
				job.Arg = i
				q.Enqueue(job)
			}
		}()
	}

	var counter int32
	for c := 0; c < 2; c++ {
		go func() {
			defer wg.Done()
			for {
				if job := q.Dequeue(); job != nil {
					atomic.AddInt32(&counter, 1)
					queue.PutJob(job)
					continue
				}
				if atomic.LoadInt32(&counter) == 2*jobNum {
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2*jobNum, counter)
	assert.True(t, q.IsEmpty())
	assert.Nil(t, q.Dequeue())
}

func TestLockFreeQueueOrder(t *testing.T) {
	q := queue.NewLockFreeQueue()
	for i := 0; i < 100; i++ {
		q.Enqueue(&queue.Job{Arg: i})
	}
	assert.EqualValues(t, 100, q.Length())
	for i := 0; i < 100; i++ {
		job := q.Dequeue()
		if assert.NotNil(t, job) {
			assert.Equal(t, i, job.Arg)
		}
	}
	assert.True(t, q.IsEmpty())
}

package consume

import (
	"context"
	"sync"
)

type fakeMeta struct {
	wm    map[int32]Watermark
	errs  map[int32]error
	calls sync.Map
}

func (f *fakeMeta) Watermarks(_ context.Context, _ string, p int32) (Watermark, error) {
	f.calls.Store(p, true)
	if err := f.errs[p]; err != nil {
		return Watermark{}, err
	}
	return f.wm[p], nil
}

func (f *fakeMeta) Close() error { return nil }

type fakeConsumer struct {
	partitions []int32
	subErr     error
	assignErr  error
	seekErr    error

	msgs chan *Message
	errs chan error

	mu         sync.Mutex
	subscribes int
	topic      string
	plan       OffsetPlan
	closed     bool
	seeked     chan struct{}
}

func newFakeConsumer(partitions ...int32) *fakeConsumer {
	return &fakeConsumer{
		partitions: partitions,
		msgs:       make(chan *Message, 256),
		errs:       make(chan error, 1),
		seeked:     make(chan struct{}),
	}
}

func (f *fakeConsumer) Subscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	f.subscribes++
	f.topic = topic
	f.mu.Unlock()
	return f.subErr
}

func (f *fakeConsumer) WaitAssignment(ctx context.Context) ([]int32, error) {
	if f.assignErr != nil {
		return nil, f.assignErr
	}
	return f.partitions, ctx.Err()
}

func (f *fakeConsumer) Seek(_ context.Context, plan OffsetPlan) error {
	if f.seekErr != nil {
		return f.seekErr
	}
	f.mu.Lock()
	f.plan = plan
	f.mu.Unlock()
	close(f.seeked)
	return nil
}

func (f *fakeConsumer) Messages() <-chan *Message { return f.msgs }
func (f *fakeConsumer) Errors() <-chan error      { return f.errs }

func (f *fakeConsumer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConsumer) Plan() OffsetPlan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plan
}

func (f *fakeConsumer) Subscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

func (f *fakeConsumer) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeProvider struct {
	consumer *fakeConsumer
	meta     *fakeMeta
	groupIDs []string
}

func (f *fakeProvider) NewConsumer(groupID string) (ConsumerHandle, error) {
	f.groupIDs = append(f.groupIDs, groupID)
	return f.consumer, nil
}

func (f *fakeProvider) NewMetadataClient() (MetadataHandle, error) { return f.meta, nil }

type fakeSource struct {
	provider BrokerProvider
	err      error
}

func (f fakeSource) Provider() (BrokerProvider, error) { return f.provider, f.err }

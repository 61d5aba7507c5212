package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("EventQueue", func() {
	var (
		mockCtrl *gomock.Controller
		queue    *EventQueueImpl
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		queue = NewEventQueue()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	newEvent := func(t VTimeInSec) *MockEvent {
		evt := NewMockEvent(mockCtrl)
		evt.EXPECT().Time().Return(t).AnyTimes()
		return evt
	}

	It("should pop events in time order", func() {
		evt1 := newEvent(3.0)
		evt2 := newEvent(1.0)
		evt3 := newEvent(2.0)

		queue.Push(evt1)
		queue.Push(evt2)
		queue.Push(evt3)

		Expect(queue.Len()).To(Equal(3))
		Expect(queue.Pop()).To(BeIdenticalTo(evt2))
		Expect(queue.Pop()).To(BeIdenticalTo(evt3))
		Expect(queue.Pop()).To(BeIdenticalTo(evt1))
	})

	It("should keep insertion order for same-time events", func() {
		evts := make([]*MockEvent, 10)
		for i := range evts {
			evts[i] = newEvent(1.0)
			queue.Push(evts[i])
		}

		for i := range evts {
			Expect(queue.Pop()).To(BeIdenticalTo(evts[i]))
		}
	})

	It("should peek without removing", func() {
		evt := newEvent(1.0)
		queue.Push(evt)

		Expect(queue.Peek()).To(BeIdenticalTo(evt))
		Expect(queue.Len()).To(Equal(1))
	})
})

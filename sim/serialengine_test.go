package sim

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("SerialEngine", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *SerialEngine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewSerialEngine()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	newEvent := func(t VTimeInSec, h Handler) *MockEvent {
		evt := NewMockEvent(mockCtrl)
		evt.EXPECT().Time().Return(t).AnyTimes()
		evt.EXPECT().Handler().Return(h).AnyTimes()
		return evt
	}

	It("should handle events in time order", func() {
		handler1 := NewMockHandler(mockCtrl)
		handler2 := NewMockHandler(mockCtrl)

		evt1 := newEvent(4.0, handler1)
		evt2 := newEvent(2.0, handler2)
		evt3 := newEvent(3.0, handler1)

		handleEvt2 := handler2.EXPECT().Handle(evt2).
			DoAndReturn(func(e Event) error {
				engine.Schedule(evt3)
				return nil
			})
		handleEvt3 := handler1.EXPECT().Handle(evt3).
			Return(nil).After(handleEvt2)
		handler1.EXPECT().Handle(evt1).Return(nil).After(handleEvt3)

		engine.Schedule(evt1)
		engine.Schedule(evt2)

		Expect(engine.Run()).To(Succeed())
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(4.0)))
		Expect(engine.Handled()).To(Equal(uint64(3)))
	})

	It("should deliver same-time events in scheduling order", func() {
		handler := NewMockHandler(mockCtrl)

		evt1 := newEvent(2.0, handler)
		evt2 := newEvent(2.0, handler)
		evt3 := newEvent(2.0, handler)

		first := handler.EXPECT().Handle(evt1).Return(nil)
		second := handler.EXPECT().Handle(evt2).Return(nil).After(first)
		handler.EXPECT().Handle(evt3).Return(nil).After(second)

		engine.Schedule(evt1)
		engine.Schedule(evt2)
		engine.Schedule(evt3)

		ran, err := engine.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(ran).To(BeTrue())
		Expect(engine.Pending()).To(Equal(0))
	})

	It("should only process one timestamp per step", func() {
		handler := NewMockHandler(mockCtrl)

		evt1 := newEvent(1.0, handler)
		evt2 := newEvent(2.0, handler)

		handler.EXPECT().Handle(evt1).Return(nil)

		engine.Schedule(evt1)
		engine.Schedule(evt2)

		ran, err := engine.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(ran).To(BeTrue())
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(1.0)))
		Expect(engine.Pending()).To(Equal(1))

		handler.EXPECT().Handle(evt2).Return(nil)
		ran, err = engine.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(ran).To(BeTrue())
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(2.0)))
	})

	It("should treat stepping without events as a no-op", func() {
		ran, err := engine.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(ran).To(BeFalse())

		ran, err = engine.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(ran).To(BeFalse())
	})

	It("should halt permanently after a handler error", func() {
		handler := NewMockHandler(mockCtrl)
		evt1 := newEvent(1.0, handler)
		evt2 := newEvent(2.0, handler)

		handler.EXPECT().Handle(evt1).Return(errors.New("engine fault"))

		engine.Schedule(evt1)
		engine.Schedule(evt2)

		_, err := engine.Step()
		Expect(err).To(HaveOccurred())
		Expect(engine.State()).To(Equal(StateHalted))

		_, err = engine.Step()
		Expect(err).To(MatchError(ErrEngineHalted))
	})

	It("should panic when scheduling into the past", func() {
		handler := NewMockHandler(mockCtrl)
		evt1 := newEvent(2.0, handler)
		handler.EXPECT().Handle(evt1).Return(nil)

		engine.Schedule(evt1)
		_, err := engine.Step()
		Expect(err).ToNot(HaveOccurred())

		stale := newEvent(1.0, handler)
		Expect(func() { engine.Schedule(stale) }).To(Panic())
	})

	It("should invoke hooks around events", func() {
		handler := NewMockHandler(mockCtrl)
		evt := newEvent(1.0, handler)
		handler.EXPECT().Handle(evt).Return(nil)

		var positions []*HookPos
		engine.AcceptHook(hookFunc(func(ctx HookCtx) {
			positions = append(positions, ctx.Pos)
		}))

		engine.Schedule(evt)
		_, err := engine.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(positions).To(Equal(
			[]*HookPos{HookPosBeforeEvent, HookPosAfterEvent}))
	})
})

type hookFunc func(ctx HookCtx)

func (f hookFunc) Func(ctx HookCtx) {
	f(ctx)
}

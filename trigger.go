package wrpc

import "sync"

// trigger is a single use broadcast signal.
type trigger struct {
	once sync.Once
	ch   chan struct{}
}

func newTrigger() *trigger {
	return &trigger{ch: make(chan struct{})}
}

func (t *trigger) fire() {
	t.once.Do(func() { close(t.ch) })
}

func (t *trigger) done() <-chan struct{} {
	return t.ch
}

// reqRespTrigger asks a task to stop and lets it acknowledge.
type reqRespTrigger struct {
	request  *trigger
	response *trigger
}

func newReqRespTrigger() reqRespTrigger {
	return reqRespTrigger{request: newTrigger(), response: newTrigger()}
}

package flood

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

type floodCall struct {
	radio  *Radio
	params Params
	tx     []byte
	proc   Processor
	doneCh chan error
}

// Medium is an in-memory radio medium shared by the nodes of a simulated
// swarm. Every attached Radio implements Flooder; a round starts once every
// attached radio has called Flood, and the last caller runs the lockstep
// simulation for all of them. The other callers block until it is done.
type Medium struct {
	sync.Mutex
	channel Channel
	radios  []*Radio
	pending map[*Radio]*floodCall
	nextID  int
	logger  *logrus.Entry
}

// NewMedium ...
func NewMedium(channel Channel, logger *logrus.Entry) *Medium {
	if logger == nil {
		l := logrus.New()
		l.Level = logrus.InfoLevel
		logger = logrus.NewEntry(l)
	}
	return &Medium{
		channel: channel,
		pending: make(map[*Radio]*floodCall),
		logger:  logger.WithField("component", "medium"),
	}
}

// Attach connects a new radio to the medium.
func (m *Medium) Attach() *Radio {
	m.Lock()
	defer m.Unlock()
	r := &Radio{id: m.nextID, medium: m}
	m.nextID++
	m.radios = append(m.radios, r)
	return r
}

// Radios returns the number of attached radios.
func (m *Medium) Radios() int {
	m.Lock()
	defer m.Unlock()
	return len(m.radios)
}

func (m *Medium) flood(ctx context.Context, call *floodCall) error {
	m.Lock()
	if call.radio.detached {
		m.Unlock()
		return fmt.Errorf("flood: radio %d closed", call.radio.id)
	}
	if _, ok := m.pending[call.radio]; ok {
		m.Unlock()
		return fmt.Errorf("flood: radio %d already in a round", call.radio.id)
	}
	m.pending[call.radio] = call
	batch := m.ready()
	m.Unlock()

	if batch != nil {
		m.run(batch)
	}

	select {
	case err := <-call.doneCh:
		return err
	case <-ctx.Done():
		m.Lock()
		_, waiting := m.pending[call.radio]
		if waiting {
			delete(m.pending, call.radio)
		}
		m.Unlock()
		if !waiting {
			// the round already started; wait for it to finish with our buffers
			return <-call.doneCh
		}
		return ctx.Err()
	}
}

// ready returns the batch of calls to run when every attached radio is
// waiting. The caller must hold the lock.
func (m *Medium) ready() []*floodCall {
	if len(m.pending) == 0 || len(m.pending) < len(m.radios) {
		return nil
	}
	batch := make([]*floodCall, 0, len(m.radios))
	for _, r := range m.radios {
		batch = append(batch, m.pending[r])
	}
	m.pending = make(map[*Radio]*floodCall)
	return batch
}

func (m *Medium) run(batch []*floodCall) {
	params := batch[0].params
	participants := make([]Participant, len(batch))
	for i, c := range batch {
		if c.params.Round != params.Round {
			m.logger.WithFields(logrus.Fields{
				"expected": params.Round,
				"radio":    c.radio.id,
				"round":    c.params.Round,
			}).Debug("Radio out of round")
		}
		participants[i] = Participant{TX: c.tx, Proc: c.proc}
	}

	m.logger.WithFields(logrus.Fields{
		"round":  params.Round,
		"radios": len(batch),
	}).Debug("Flood")

	err := Simulate(params, participants, m.channel)
	for _, c := range batch {
		c.doneCh <- err
	}
}

func (m *Medium) detach(r *Radio) {
	m.Lock()
	r.detached = true
	for i, o := range m.radios {
		if o == r {
			m.radios = append(m.radios[:i], m.radios[i+1:]...)
			break
		}
	}
	var abandoned *floodCall
	if c, ok := m.pending[r]; ok {
		abandoned = c
		delete(m.pending, r)
	}
	batch := m.ready()
	m.Unlock()

	if abandoned != nil {
		abandoned.doneCh <- fmt.Errorf("flood: radio %d closed", r.id)
	}
	if batch != nil {
		m.run(batch)
	}
}

// Radio is a node's attachment to a Medium.
type Radio struct {
	id       int
	medium   *Medium
	once     sync.Once
	detached bool
}

// ID returns the attachment order of the radio.
func (r *Radio) ID() int {
	return r.id
}

// Flood implements the Flooder interface.
func (r *Radio) Flood(ctx context.Context, params Params, tx []byte, proc Processor) error {
	return r.medium.flood(ctx, &floodCall{
		radio:  r,
		params: params,
		tx:     tx,
		proc:   proc,
		doneCh: make(chan error, 1),
	})
}

// Close detaches the radio. Rounds waiting on it no longer do.
func (r *Radio) Close() {
	r.once.Do(func() {
		r.medium.detach(r)
	})
}

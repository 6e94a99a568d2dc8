package control

import (
	"github.com/hdds-team/hdds/internal/discovery"
	"github.com/hdds-team/hdds/internal/reliability"
	"github.com/hdds-team/hdds/internal/wire"
	"github.com/hdds-team/hdds/internal/xerr"
)

// readerQueueDepth bounds a reader's take-queue; a slow/absent consumer
// drops the oldest sample rather than blocking the router's delivery
// path (spec §9 "bounded resources over unbounded reordering").
const readerQueueDepth = 256

// readerEntry is a local reader: its endpoint description and a bounded
// queue of delivered-but-not-yet-taken samples.
type readerEntry struct {
	pe    *participantEntry
	ep    discovery.EndpointInfo
	queue chan reliability.Sample

	statusCond *Condition
}

// CreateReader allocates a new local reader entity under topic, announces
// it over SEDP, and wires its delivery queue into the participant's
// reliability/router pipeline (spec §6 "writer/reader create/destroy
// with QoS").
func (m *Manager) CreateReader(participant, topic Handle, qos discovery.QoS) (Handle, error) {
	pe, err := m.participant(participant)
	if err != nil {
		return 0, err
	}
	t, err := pe.lookupTopic(topic)
	if err != nil {
		return 0, err
	}

	entityID := pe.p.NextReaderID(false)
	ep := discovery.EndpointInfo{
		ParticipantGUID: wire.ParticipantGUID(pe.p.GUIDPrefix),
		EndpointGUID:    wire.NewGUID(pe.p.GUIDPrefix, entityID),
		Kind:            discovery.EndpointReader,
		TopicName:       t.Name,
		TypeName:        t.TypeName,
		QoS:             qos,
		UnicastLocators: pe.p.UserDataLocators(),
	}

	if err := pe.p.AnnounceEndpoint(discovery.EndpointReader, ep); err != nil {
		return 0, xerr.Wrap(xerr.TransportError, err)
	}
	pe.p.Discovery().Topics().Upsert(ep)

	re := &readerEntry{
		pe:         pe,
		ep:         ep,
		queue:      make(chan reliability.Sample, readerQueueDepth),
		statusCond: NewCondition(),
	}
	pe.p.RegisterReaderSink(ep.EndpointGUID, func(s reliability.Sample) {
		select {
		case re.queue <- s:
		default:
			// Queue full: drop the oldest to make room rather than ever
			// block the router's delivery goroutine.
			select {
			case <-re.queue:
			default:
			}
			select {
			case re.queue <- s:
			default:
			}
		}
		re.statusCond.Signal()
	})

	h := allocHandle()
	pe.mu.Lock()
	pe.readers[h] = re
	pe.mu.Unlock()

	m.mu.Lock()
	m.readerIndex[h] = re
	m.mu.Unlock()

	return h, nil
}

// Take pops the oldest undelivered sample for reader, if any (spec §6
// "take a sample").
func (m *Manager) Take(reader Handle) ([]byte, bool, error) {
	re, err := m.reader(reader)
	if err != nil {
		return nil, false, err
	}

	select {
	case s := <-re.queue:
		if len(re.queue) == 0 {
			re.statusCond.Reset()
		}
		return s.Payload, true, nil
	default:
		return nil, false, nil
	}
}

// DestroyReader unregisters a reader's delivery sink, removes its
// endpoint registration, and releases its handle.
func (m *Manager) DestroyReader(participant, reader Handle) error {
	pe, err := m.participant(participant)
	if err != nil {
		return err
	}

	pe.mu.Lock()
	re, ok := pe.readers[reader]
	if ok {
		delete(pe.readers, reader)
	}
	pe.mu.Unlock()
	if !ok {
		return xerr.Wrap(xerr.NotFound, nil)
	}

	m.deleteReaderIndex(reader)
	pe.p.UnregisterReaderSink(re.ep.EndpointGUID)
	pe.p.Discovery().Topics().RemoveEndpoint(re.ep.TopicName, re.ep.EndpointGUID)
	return nil
}

func (m *Manager) reader(h Handle) (*readerEntry, error) {
	m.mu.Lock()
	re, ok := m.readerIndex[h]
	m.mu.Unlock()
	if !ok {
		return nil, xerr.Wrap(xerr.NotFound, nil)
	}
	return re, nil
}

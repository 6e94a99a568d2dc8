package control

import (
	"context"

	"github.com/hdds-team/hdds/internal/discovery"
	"github.com/hdds-team/hdds/internal/wire"
	"github.com/hdds-team/hdds/internal/xerr"
)

// writerEntry is a local writer: its endpoint description (for SEDP
// announcement and endpoint matching) and the participant that owns it.
type writerEntry struct {
	pe *participantEntry
	ep discovery.EndpointInfo

	// stopHeartbeat cancels this writer's HeartbeatEmitter goroutine. Only
	// set for RELIABLE writers (spec §4.7); nil otherwise.
	stopHeartbeat context.CancelFunc
}

// CreateWriter allocates a new local writer entity under topic, announces
// it over SEDP, and returns a Handle for Publish/DestroyWriter (spec §6
// "writer/reader create/destroy with QoS").
func (m *Manager) CreateWriter(participant, topic Handle, qos discovery.QoS) (Handle, error) {
	pe, err := m.participant(participant)
	if err != nil {
		return 0, err
	}
	t, err := pe.lookupTopic(topic)
	if err != nil {
		return 0, err
	}

	entityID := pe.p.NextWriterID(false)
	ep := discovery.EndpointInfo{
		ParticipantGUID: wire.ParticipantGUID(pe.p.GUIDPrefix),
		EndpointGUID:    wire.NewGUID(pe.p.GUIDPrefix, entityID),
		Kind:            discovery.EndpointWriter,
		TopicName:       t.Name,
		TypeName:        t.TypeName,
		QoS:             qos,
		UnicastLocators: pe.p.UserDataLocators(),
	}

	if err := pe.p.AnnounceEndpoint(discovery.EndpointWriter, ep); err != nil {
		return 0, xerr.Wrap(xerr.TransportError, err)
	}
	pe.p.Discovery().Topics().Upsert(ep)

	we := &writerEntry{pe: pe, ep: ep}
	if qos.Reliability == discovery.ReliabilityReliable {
		hbCtx, cancel := context.WithCancel(pe.ctx)
		pe.p.StartWriterHeartbeat(hbCtx, ep)
		we.stopHeartbeat = cancel
	}
	h := allocHandle()

	pe.mu.Lock()
	pe.writers[h] = we
	pe.mu.Unlock()

	m.mu.Lock()
	m.writerIndex[h] = we
	m.mu.Unlock()

	return h, nil
}

// Publish pushes payload onto writer's retransmit cache and sends it to
// every currently matched reader (spec §6 "publish a serialized
// payload").
func (m *Manager) Publish(writer Handle, payload []byte) error {
	we, err := m.writer(writer)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return xerr.Wrap(xerr.InvalidArgument, nil)
	}
	if err := we.pe.p.PublishSample(we.ep, payload); err != nil {
		return xerr.Wrap(xerr.TransportError, err)
	}
	return nil
}

// DestroyWriter removes a writer's endpoint registration and releases its
// handle.
func (m *Manager) DestroyWriter(participant, writer Handle) error {
	pe, err := m.participant(participant)
	if err != nil {
		return err
	}

	pe.mu.Lock()
	we, ok := pe.writers[writer]
	if ok {
		delete(pe.writers, writer)
	}
	pe.mu.Unlock()
	if !ok {
		return xerr.Wrap(xerr.NotFound, nil)
	}

	if we.stopHeartbeat != nil {
		we.stopHeartbeat()
	}

	m.deleteWriterIndex(writer)
	pe.p.Discovery().Topics().RemoveEndpoint(we.ep.TopicName, we.ep.EndpointGUID)
	return nil
}

func (m *Manager) writer(h Handle) (*writerEntry, error) {
	m.mu.Lock()
	we, ok := m.writerIndex[h]
	m.mu.Unlock()
	if !ok {
		return nil, xerr.Wrap(xerr.NotFound, nil)
	}
	return we, nil
}
